package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/server/models"
)

// HistoryCache stores per-payer payment history. Implementations must be
// safe for concurrent use. A miss is (nil, version, false, nil); Set takes
// that version, and an Invalidate in between makes the Set unreadable.
type HistoryCache interface {
	Get(ctx context.Context, email string) (payments []*models.Payment, version int64, ok bool, err error)
	Set(ctx context.Context, email string, version int64, payments []*models.Payment, ttl time.Duration) error
	Invalidate(ctx context.Context, email string) error
}

// EventPublisher announces newly recorded payments.
type EventPublisher interface {
	PaymentRecorded(ctx context.Context, p *models.Payment) error
}

type noopHistoryCache struct{}

func (noopHistoryCache) Get(context.Context, string) ([]*models.Payment, int64, bool, error) {
	return nil, 0, false, nil
}
func (noopHistoryCache) Set(context.Context, string, int64, []*models.Payment, time.Duration) error {
	return nil
}
func (noopHistoryCache) Invalidate(context.Context, string) error { return nil }

type noopPublisher struct{}

func (noopPublisher) PaymentRecorded(context.Context, *models.Payment) error { return nil }
