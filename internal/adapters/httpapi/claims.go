package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fridgeshare/internal/core"
	"fridgeshare/pkg/domain"
)

func (h *Handler) handleSubmitClaim(c *gin.Context) {
	var req submitClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid claim payload")
		return
	}
	if req.ProductID == "" {
		badRequest(c, "productId is required")
		return
	}
	claim, err := h.svc.SubmitClaim(c.Request.Context(), actor(c), string(req.ProductID), req.Message)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toClaim(claim))
}

func (h *Handler) handleListClaims(c *gin.Context) {
	claims, err := h.svc.ListClaims(c.Request.Context(), actor(c), core.ClaimFilter{
		ClaimerID: c.Query("claimerId"),
		ProductID: c.Query("productId"),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]claimResponse, 0, len(claims))
	for _, claim := range claims {
		out = append(out, toClaim(claim))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) handleDecideClaim(c *gin.Context) {
	var req decideClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Decision == "" {
		badRequest(c, "decision must be accept or reject")
		return
	}
	claim, product, err := h.svc.DecideClaim(c.Request.Context(), actor(c), c.Param("id"), domain.Decision(req.Decision))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"claim": toClaim(claim), "product": toProduct(product)})
}

func (h *Handler) handleCompleteClaim(c *gin.Context) {
	claim, err := h.svc.CompleteClaim(c.Request.Context(), actor(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toClaim(claim))
}
