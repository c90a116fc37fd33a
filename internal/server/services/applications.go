package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	"github.com/dmitrijs2005/scholarstream/internal/server/models"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/repomanager"
)

// ApplicationService covers the minimum of application handling the payment
// flow depends on: submission and owner reads.
type ApplicationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

func NewApplicationService(db *sql.DB, repomanager repomanager.RepositoryManager, logger logging.Logger) *ApplicationService {
	return &ApplicationService{
		db:          db,
		repomanager: repomanager,
		logger:      logger.With("module", "applications"),
	}
}

// Submit creates a pending, unpaid application owned by principal.
func (s *ApplicationService) Submit(ctx context.Context, principal, scholarshipID string) (*models.Application, error) {
	scholarshipID = strings.TrimSpace(scholarshipID)
	if scholarshipID == "" {
		return nil, common.Invalid("scholarship id is required")
	}

	app, err := s.repomanager.Applications(s.db).Create(ctx, &models.Application{
		UserEmail:     principal,
		ScholarshipID: scholarshipID,
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, fmt.Errorf("%w: already applied to this scholarship", common.ErrConflict)
		}
		return nil, common.Unavailable("create application", err)
	}

	s.logger.Info(ctx, "application submitted", "application_id", app.ID, "scholarship_id", scholarshipID)
	return app, nil
}

// Get returns the application if principal owns it.
func (s *ApplicationService) Get(ctx context.Context, principal, id string) (*models.Application, error) {
	app, err := s.repomanager.Applications(s.db).GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("application %w", common.ErrNotFound)
		}
		return nil, common.Unavailable("load application", err)
	}
	if !strings.EqualFold(app.UserEmail, principal) {
		return nil, fmt.Errorf("%w: application belongs to another user", common.ErrForbidden)
	}
	return app, nil
}

func (s *ApplicationService) List(ctx context.Context, principal string) ([]*models.Application, error) {
	list, err := s.repomanager.Applications(s.db).ListByUser(ctx, principal)
	if err != nil {
		return nil, common.Unavailable("list applications", err)
	}
	if list == nil {
		list = []*models.Application{}
	}
	return list, nil
}
