package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"speaktoheaven/middleware"
	"speaktoheaven/services"
)

func (h *Handlers) billingEnabled(c *gin.Context) bool {
	if !h.features.BillingEnabled || h.billing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Billing not enabled", "error_kind": "not-found"})
		return false
	}
	return true
}

func (h *Handlers) Checkout(c *gin.Context) {
	if !h.billingEnabled(c) {
		return
	}
	var req struct {
		Product string `json:"product"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON")
		return
	}
	product := services.Product(req.Product)
	if !product.Valid() {
		badRequest(c, "Invalid product. Must be 'subscription', 'credits' or 'lifetime'.")
		return
	}

	url, err := h.billing.Checkout(c.Request.Context(), middleware.UserID(c), product)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *Handlers) CancelSubscription(c *gin.Context) {
	if !h.billingEnabled(c) {
		return
	}
	sub, err := h.billing.Cancel(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}

func (h *Handlers) ReactivateSubscription(c *gin.Context) {
	if !h.billingEnabled(c) {
		return
	}
	sub, err := h.billing.Reactivate(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscription": sub})
}
