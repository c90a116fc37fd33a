package applications

import (
	"context"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, app *models.Application) (*models.Application, error)
	GetByID(ctx context.Context, id string) (*models.Application, error)
	ListByUser(ctx context.Context, email string) ([]*models.Application, error)
	// MarkPaid moves the application from unpaid to paid with the given
	// tracking id. It reports false when the application was not unpaid.
	MarkPaid(ctx context.Context, id, trackingID string, paidAt time.Time) (bool, error)
}
