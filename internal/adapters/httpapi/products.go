package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fridgeshare/internal/core"
	"fridgeshare/pkg/domain"
)

func (h *Handler) handleListProducts(c *gin.Context) {
	products, err := h.svc.ListProducts(c.Request.Context(), core.ProductQuery{
		OwnerID:  c.Query("ownerId"),
		Status:   domain.ProductStatus(c.Query("status")),
		ViewerID: actor(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProducts(products))
}

func (h *Handler) handleGetProduct(c *gin.Context) {
	p, err := h.svc.GetProduct(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(p))
}

func (h *Handler) handleCreateProduct(c *gin.Context) {
	var req createProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid product payload")
		return
	}
	expires, err := parseDate("expirationDate", req.ExpirationDate)
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.svc.CreateProduct(c.Request.Context(), actor(c), core.ProductInput{
		Name:      req.Name,
		Category:  req.Category,
		ExpiresOn: expires,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toProduct(p))
}

func (h *Handler) handleUpdateProduct(c *gin.Context) {
	var req updateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid product payload")
		return
	}
	patch, err := req.patch()
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.svc.UpdateProduct(c.Request.Context(), actor(c), c.Param("id"), patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(p))
}

func (h *Handler) handleDeleteProduct(c *gin.Context) {
	if err := h.svc.DeleteProduct(c.Request.Context(), actor(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

func (h *Handler) handleUploadPhoto(c *gin.Context) {
	header, err := c.FormFile("photo")
	if err != nil {
		badRequest(c, "multipart field \"photo\" is required")
		return
	}
	if header.Size > maxPhotoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "photo exceeds 10 MiB"})
		return
	}
	file, err := header.Open()
	if err != nil {
		badRequest(c, "unreadable photo upload")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	p, err := h.svc.AttachPhoto(c.Request.Context(), actor(c), c.Param("id"), file, contentType)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toProduct(p))
}

func (h *Handler) handleGetPhoto(c *gin.Context) {
	ctx := c.Request.Context()
	viewer, id := actor(c), c.Param("id")
	link, err := h.svc.PhotoURL(ctx, viewer, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	if link.Direct {
		c.Redirect(http.StatusFound, link.URL)
		return
	}
	info, body, err := h.svc.OpenPhoto(ctx, viewer, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	defer body.Close()
	headers := map[string]string{}
	if info.ETag != "" {
		headers["ETag"] = `"` + info.ETag + `"`
	}
	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, body, headers)
}

func (h *Handler) handleNotifications(c *gin.Context) {
	within := 0
	if raw := c.Query("withinDays"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "withinDays must be a non-negative integer")
			return
		}
		within = n
	}
	notes, err := h.svc.ExpiringSoon(c.Request.Context(), actor(c), within)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, notes)
}
