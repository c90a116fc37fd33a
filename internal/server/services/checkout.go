package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	sc "github.com/dmitrijs2005/scholarstream/internal/server/config"
	"github.com/dmitrijs2005/scholarstream/internal/server/processor"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/repomanager"
)

const defaultProcessorTimeout = 10 * time.Second

// CheckoutInput is the initiate-checkout request. Amount is in major units.
type CheckoutInput struct {
	ApplicationID   string
	ScholarshipID   string
	Amount          string
	ScholarshipName string
	UniversityName  string
	UserEmail       string
}

type CheckoutResult struct {
	SessionID   string
	RedirectURL string
}

// CheckoutService opens processor checkout sessions for unpaid applications.
// It never writes local state.
type CheckoutService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	gateway     processor.Gateway
	config      *sc.Config
	logger      logging.Logger
}

func NewCheckoutService(db *sql.DB, repomanager repomanager.RepositoryManager, gateway processor.Gateway,
	config *sc.Config, logger logging.Logger) *CheckoutService {
	return &CheckoutService{
		db:          db,
		repomanager: repomanager,
		gateway:     gateway,
		config:      config,
		logger:      logger.With("module", "checkout"),
	}
}

// Initiate validates the request against the caller and the application,
// then asks the processor for a session carrying the application linkage as
// metadata.
func (s *CheckoutService) Initiate(ctx context.Context, principal string, in CheckoutInput) (*CheckoutResult, error) {
	if strings.TrimSpace(in.UserEmail) == "" {
		return nil, common.Invalid("payer email is required")
	}
	if strings.TrimSpace(in.ApplicationID) == "" {
		return nil, common.Invalid("application id is required")
	}
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	currency := s.currency()
	minor, err := MinorUnits(amount, currency)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(principal, in.UserEmail) {
		return nil, fmt.Errorf("%w: payer email does not match the signed-in user", common.ErrForbidden)
	}

	app, err := s.repomanager.Applications(s.db).GetByID(ctx, in.ApplicationID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("application %w", common.ErrNotFound)
		}
		return nil, common.Unavailable("load application", err)
	}
	if !strings.EqualFold(app.UserEmail, principal) {
		return nil, fmt.Errorf("%w: application belongs to another user", common.ErrForbidden)
	}
	if in.ScholarshipID != "" && in.ScholarshipID != app.ScholarshipID {
		return nil, common.Invalid("scholarship id does not match the application")
	}
	if app.IsPaid() {
		return nil, fmt.Errorf("%w: application is already paid", common.ErrConflict)
	}

	req := processor.CreateSessionRequest{
		AmountMinor:   minor,
		Currency:      currency,
		ProductName:   productName(in.ScholarshipName),
		Description:   in.UniversityName,
		CustomerEmail: app.UserEmail,
		Metadata: map[string]string{
			common.MetadataApplicationID:   app.ID,
			common.MetadataScholarshipID:   app.ScholarshipID,
			common.MetadataScholarshipName: in.ScholarshipName,
			common.MetadataUniversityName:  in.UniversityName,
		},
		SuccessURL: s.clientURL("/payment-success") + "?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.clientURL("/payment-cancelled") + "?applicationId=" + url.QueryEscape(app.ID),
	}

	pctx, cancel := context.WithTimeout(ctx, processorTimeout(s.config))
	defer cancel()

	sess, err := s.gateway.CreateSession(pctx, req)
	if err != nil {
		s.logger.Warn(ctx, "checkout session not created", "application_id", app.ID, "error", err)
		if errors.Is(err, common.ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, common.Unavailable("create checkout session", err)
	}

	s.logger.Info(ctx, "checkout session created", "application_id", app.ID, "session_id", sess.ID, "amount_minor", minor, "currency", currency)

	return &CheckoutResult{SessionID: sess.ID, RedirectURL: sess.URL}, nil
}

func (s *CheckoutService) currency() string {
	if s.config.Currency == "" {
		return "usd"
	}
	return strings.ToLower(s.config.Currency)
}

func (s *CheckoutService) clientURL(path string) string {
	return strings.TrimRight(s.config.ClientBaseURL, "/") + path
}

func productName(scholarshipName string) string {
	if scholarshipName == "" {
		return "Scholarship application fee"
	}
	return scholarshipName
}

func processorTimeout(cfg *sc.Config) time.Duration {
	if cfg == nil || cfg.ProcessorTimeout <= 0 {
		return defaultProcessorTimeout
	}
	return cfg.ProcessorTimeout
}
