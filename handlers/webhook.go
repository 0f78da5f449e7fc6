package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79/webhook"

	"speaktoheaven/services"
)

const maxWebhookBody = int64(65536)

// StripeWebhook verifies and applies a processor event. Redeliveries of an
// already applied event answer 200 without effect.
func (h *Handlers) StripeWebhook(c *gin.Context) {
	if h.billing == nil || h.webhookSecret == "" {
		h.log.Error("Stripe webhook not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		c.GetHeader("Stripe-Signature"),
		h.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		h.log.Warn("Stripe webhook signature failed", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	ev, ok, err := services.TranslateStripeEvent(event)
	if err != nil {
		h.log.Warn("Stripe event rejected", "event_id", event.ID, "type", event.Type, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}
	if !ok {
		h.log.Debug("Stripe event ignored", "event_id", event.ID, "type", event.Type)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	applied, err := h.billing.Apply(c.Request.Context(), ev)
	if errors.Is(err, services.ErrNotFound) {
		// Retrying cannot make an unknown user appear.
		h.log.Warn("Stripe event for unknown user", "event_id", event.ID, "type", event.Type)
		c.JSON(http.StatusOK, gin.H{"status": "unmatched"})
		return
	}
	if err != nil {
		h.log.Error("Stripe event apply failed", "event_id", event.ID, "type", event.Type, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to apply event"})
		return
	}
	status := "ok"
	if !applied {
		status = "duplicate"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}
