package http

import (
	"io"
	"net/http"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	"github.com/dmitrijs2005/scholarstream/internal/server/processor"
	"github.com/gin-gonic/gin"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBody        = 64 << 10
)

type webhookHandler struct {
	verifier  WebhookVerifier
	confirmer PaymentConfirmer
	logger    logging.Logger
}

// stripeWebhook runs the reconciler for completed checkout sessions. Any
// failure answers 5xx so the processor redelivers; a delivery for an already
// recorded payment is a no-op.
func (h *webhookHandler) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		fail(c, common.Invalid("unreadable body"))
		return
	}

	event, err := h.verifier.ParseWebhook(payload, c.GetHeader(stripeSignatureHeader))
	if err != nil {
		fail(c, err)
		return
	}

	ctx := c.Request.Context()
	switch event.Type {
	case processor.EventCheckoutCompleted, processor.EventCheckoutAsyncPaymentSucceeded:
	default:
		h.logger.Debug(ctx, "webhook event ignored", "event_id", event.ID, "type", event.Type)
		c.Status(http.StatusOK)
		return
	}

	if event.Session == nil || event.Session.ID == "" {
		fail(c, common.Invalid("checkout event without session"))
		return
	}

	res, err := h.confirmer.Confirm(ctx, event.Session.ID)
	if err != nil {
		h.logger.Error(ctx, "webhook reconciliation failed", "event_id", event.ID, "session_id", event.Session.ID, "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "reconciliation failed"})
		return
	}

	h.logger.Info(ctx, "webhook processed", "event_id", event.ID, "session_id", event.Session.ID, "success", res.Success)
	c.Status(http.StatusOK)
}
