// Package processor is the boundary to the external payment processor. The
// processor, not the client, is the authority on whether money moved.
package processor

import (
	"context"

	"github.com/dmitrijs2005/scholarstream/internal/server/models"
)

// CreateSessionRequest describes a single-line-item checkout session.
type CreateSessionRequest struct {
	AmountMinor   int64
	Currency      string
	ProductName   string
	Description   string
	CustomerEmail string
	Metadata      map[string]string
	SuccessURL    string
	CancelURL     string
	// IdempotencyKey is reused for every retry of the same request. Generated
	// when empty.
	IdempotencyKey string
}

// WebhookEvent is a verified processor notification. Session is set for
// checkout session events only.
type WebhookEvent struct {
	ID      string
	Type    string
	Session *models.CheckoutSession
}

// Gateway is implemented by Stripe in production and by fakes in tests.
//
// RetrieveSession returns common.ErrSessionNotFound for unknown ids. Every
// other failure is wrapped as common.ErrUpstreamUnavailable.
type Gateway interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*models.CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}
