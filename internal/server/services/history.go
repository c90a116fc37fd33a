package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	"github.com/dmitrijs2005/scholarstream/internal/server/models"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/repomanager"
)

// HistoryService lists a payer's own ledger entries, read through a cache.
// The cache is advisory: its errors are logged and the ledger answers.
type HistoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	cache       HistoryCache
	ttl         time.Duration
	logger      logging.Logger
}

func NewHistoryService(db *sql.DB, repomanager repomanager.RepositoryManager, cache HistoryCache,
	ttl time.Duration, logger logging.Logger) *HistoryService {
	if cache == nil {
		cache = noopHistoryCache{}
	}
	return &HistoryService{
		db:          db,
		repomanager: repomanager,
		cache:       cache,
		ttl:         ttl,
		logger:      logger.With("module", "history"),
	}
}

func (s *HistoryService) List(ctx context.Context, principal string) ([]*models.Payment, error) {
	email := strings.TrimSpace(principal)
	if email == "" {
		return nil, common.ErrUnauthorized
	}

	cacheable := s.ttl > 0
	cached, version, ok, err := s.cache.Get(ctx, email)
	if err != nil {
		s.logger.Warn(ctx, "history cache read failed", "error", err)
		cacheable = false
	} else if ok {
		return cached, nil
	}

	list, err := s.repomanager.Payments(s.db).ListByPayer(ctx, email)
	if err != nil {
		return nil, common.Unavailable("list payments", err)
	}
	if list == nil {
		list = []*models.Payment{}
	}

	if cacheable {
		if err := s.cache.Set(ctx, email, version, list, s.ttl); err != nil {
			s.logger.Warn(ctx, "history cache write failed", "error", err)
		}
	}

	return list, nil
}
