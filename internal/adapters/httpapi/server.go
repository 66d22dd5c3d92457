// Package httpapi exposes the fridge-sharing service over HTTP with gin. The
// acting user is taken from the X-User-ID header; requests without it are
// anonymous and may only read public products.
package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fridgeshare/internal/core"
)

// UserHeader carries the acting user's id.
const UserHeader = "X-User-ID"

// maxPhotoBytes bounds uploaded product photos.
const maxPhotoBytes = 10 << 20

// Handler serves the HTTP API on top of a core.Service.
type Handler struct {
	svc      *core.Service
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	health   func() error
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the request logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithGatherer selects the registry served on /metrics. Defaults to the
// default Prometheus gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) {
		if g != nil {
			h.gatherer = g
		}
	}
}

// WithHealthCheck adds a readiness probe to /healthz.
func WithHealthCheck(check func() error) Option {
	return func(h *Handler) { h.health = check }
}

// NewHandler binds the API to svc.
func NewHandler(svc *core.Service, opts ...Option) *Handler {
	h := &Handler{
		svc:      svc,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter builds a gin engine serving every route.
func NewRouter(svc *core.Service, opts ...Option) *gin.Engine {
	h := NewHandler(svc, opts...)
	router := gin.New()
	router.Use(gin.Recovery(), h.requestLogger())
	h.Register(router)
	return router
}

// Register mounts the API routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	products := r.Group("/products")
	products.GET("", h.handleListProducts)
	products.POST("", h.handleCreateProduct)
	products.GET("/:id", h.handleGetProduct)
	products.PUT("/:id", h.handleUpdateProduct)
	products.DELETE("/:id", h.handleDeleteProduct)
	products.POST("/:id/photo", h.handleUploadPhoto)
	products.GET("/:id/photo", h.handleGetPhoto)

	r.GET("/notifications", h.handleNotifications)

	api := r.Group("/api")
	api.POST("/claims", h.handleSubmitClaim)
	api.GET("/claims", h.handleListClaims)
	api.PUT("/claims/:id", h.handleDecideClaim)
	api.POST("/claims/:id/complete", h.handleCompleteClaim)
}

func (h *Handler) handleHealth(c *gin.Context) {
	if h.health != nil {
		if err := h.health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= http.StatusInternalServerError:
			level = slog.LevelError
		case status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", c.FullPath()),
			slog.Int("status", status),
			slog.String("user", actor(c)),
			slog.Duration("duration", time.Since(started)),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("error", c.Errors.String()))
		}
		h.logger.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}

func actor(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(UserHeader))
}
