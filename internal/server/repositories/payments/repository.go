package payments

import (
	"context"

	"github.com/dmitrijs2005/scholarstream/internal/server/models"
)

type Repository interface {
	// Insert records p. A second entry for the same transaction id returns
	// common.ErrAlreadyExists and leaves the first untouched.
	Insert(ctx context.Context, p *models.Payment) error
	GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	ListByPayer(ctx context.Context, email string) ([]*models.Payment, error)
	ListByApplication(ctx context.Context, applicationID string) ([]*models.Payment, error)
}
