package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	sc "github.com/dmitrijs2005/scholarstream/internal/server/config"
	"github.com/dmitrijs2005/scholarstream/internal/server/models"
	"github.com/dmitrijs2005/scholarstream/internal/server/processor"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/payments"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/repomanager"
)

// Result of a confirmation. Success is false while the processor has not
// seen the money; that is a normal, pollable state.
type Result struct {
	Success bool
	Payment *models.Payment
	// AlreadyRecorded is set when the ledger already held the transaction,
	// either from an earlier call or from a concurrent winner.
	AlreadyRecorded bool
}

// Reconciler applies a paid checkout session to local state exactly once.
//
// The ledger's unique transaction id is the only linearization point. Every
// other step is safe to repeat, so a caller that saw an error may retry the
// same session and either finish the work or find it done.
type Reconciler struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	gateway     processor.Gateway
	config      *sc.Config
	history     HistoryCache
	events      EventPublisher
	logger      logging.Logger
}

type ReconcilerOption func(*Reconciler)

func WithHistoryCache(c HistoryCache) ReconcilerOption {
	return func(r *Reconciler) { r.history = c }
}

func WithEventPublisher(p EventPublisher) ReconcilerOption {
	return func(r *Reconciler) { r.events = p }
}

func NewReconciler(db *sql.DB, repomanager repomanager.RepositoryManager, gateway processor.Gateway,
	config *sc.Config, logger logging.Logger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		db:          db,
		repomanager: repomanager,
		gateway:     gateway,
		config:      config,
		history:     noopHistoryCache{},
		events:      noopPublisher{},
		logger:      logger.With("module", "reconciler"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Confirm verifies sessionID with the processor and, if it is paid, records
// the payment and marks the application paid.
func (r *Reconciler) Confirm(ctx context.Context, sessionID string) (*Result, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, common.Invalid("session id is required")
	}

	sess, err := r.verify(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !sess.IsPaid() {
		r.logger.Debug(ctx, "session not paid yet", "session_id", sessionID, "status", sess.Status, "payment_status", sess.PaymentStatus)
		return &Result{Success: false}, nil
	}

	return r.record(ctx, sess)
}

func (r *Reconciler) verify(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	vctx, cancel := context.WithTimeout(ctx, processorTimeout(r.config))
	defer cancel()

	sess, err := r.gateway.RetrieveSession(vctx, sessionID)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, common.ErrNotFound):
		return nil, common.ErrSessionNotFound
	case errors.Is(err, common.ErrUpstreamUnavailable):
		return nil, err
	default:
		return nil, common.Unavailable("retrieve checkout session", err)
	}
}

func (r *Reconciler) record(ctx context.Context, sess *models.CheckoutSession) (*Result, error) {
	ledger := r.repomanager.Payments(r.db)
	apps := r.repomanager.Applications(r.db)

	txID := sess.TransactionID
	if txID == "" {
		return nil, r.inconsistent(ctx, "paid session has no transaction id", "session_id", sess.ID)
	}
	log := r.logger.With("session_id", sess.ID, "transaction_id", txID)

	existing, err := ledger.GetByTransactionID(ctx, txID)
	switch {
	case err == nil:
		log.Debug(ctx, "payment already recorded")
		existing.PaidAt = existing.PaidAt.UTC()
		return &Result{Success: true, Payment: existing, AlreadyRecorded: true}, nil
	case !errors.Is(err, common.ErrNotFound):
		return nil, common.Unavailable("ledger lookup", err)
	}

	appID := sess.Metadata[common.MetadataApplicationID]
	if appID == "" {
		return nil, r.inconsistent(ctx, "paid session has no application id in metadata", "session_id", sess.ID, "transaction_id", txID)
	}

	amount := MajorUnits(sess.AmountTotal, sess.Currency)
	if !withinLedgerPrecision(amount) {
		return nil, r.inconsistent(ctx, "paid amount outside ledger range", "transaction_id", txID, "amount_total", sess.AmountTotal)
	}

	trackingID, err := NewTrackingID()
	if err != nil {
		return nil, err
	}
	// Postgres keeps microseconds; truncating makes a fresh result and a later
	// re-read identical.
	paidAt := now().UTC().Truncate(time.Microsecond)

	applied, err := apps.MarkPaid(ctx, appID, trackingID, paidAt)
	if err != nil {
		return nil, common.Unavailable("mark application paid", err)
	}
	if !applied {
		app, err := apps.GetByID(ctx, appID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, r.inconsistent(ctx, "session references an unknown application", "application_id", appID, "transaction_id", txID)
			}
			return nil, common.Unavailable("load application", err)
		}
		if !app.IsPaid() || app.TrackingID == "" {
			return nil, r.inconsistent(ctx, "application neither transitioned nor paid", "application_id", appID, "payment_status", app.PaymentStatus)
		}
		log.Info(ctx, "application already paid, adopting its tracking id", "application_id", appID, "tracking_id", app.TrackingID)
		trackingID = app.TrackingID
	}

	payment := &models.Payment{
		TransactionID:   txID,
		SessionID:       sess.ID,
		ApplicationID:   appID,
		ScholarshipID:   sess.Metadata[common.MetadataScholarshipID],
		ScholarshipName: sess.Metadata[common.MetadataScholarshipName],
		UniversityName:  sess.Metadata[common.MetadataUniversityName],
		PayerEmail:      sess.CustomerEmail,
		Amount:          amount,
		Currency:        strings.ToLower(sess.Currency),
		TrackingID:      trackingID,
		PaidAt:          paidAt,
	}

	if err := ledger.Insert(ctx, payment); err != nil {
		if !errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.Unavailable("record payment", err)
		}
		winner, err := ledger.GetByTransactionID(ctx, txID)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return nil, r.inconsistent(ctx, "ledger insert conflicted but no entry found", "transaction_id", txID)
			}
			return nil, common.Unavailable("ledger lookup", err)
		}
		log.Info(ctx, "concurrent confirmation won, returning its entry")
		winner.PaidAt = winner.PaidAt.UTC()
		return &Result{Success: true, Payment: winner, AlreadyRecorded: true}, nil
	}

	log.Info(ctx, "payment recorded", "application_id", appID, "tracking_id", trackingID,
		"amount", payment.Amount.StringFixed(2), "currency", payment.Currency)

	// Best effort, detached from caller cancellation.
	bg := context.WithoutCancel(ctx)
	if !applied {
		r.checkDoublePayment(bg, ledger, payment)
	}
	r.afterRecord(bg, payment)

	return &Result{Success: true, Payment: payment}, nil
}

// checkDoublePayment flags an application paid through more than one
// transaction. The extra payment stays recorded; refunds are a human task.
func (r *Reconciler) checkDoublePayment(ctx context.Context, ledger payments.Repository, p *models.Payment) {
	entries, err := ledger.ListByApplication(ctx, p.ApplicationID)
	if err != nil {
		r.logger.Warn(ctx, "double payment check failed", "application_id", p.ApplicationID, "error", err)
		return
	}
	for _, e := range entries {
		if e.TransactionID != p.TransactionID {
			r.logger.Warn(ctx, "application paid more than once, refund review needed",
				"application_id", p.ApplicationID, "transaction_id", p.TransactionID, "earlier_transaction_id", e.TransactionID)
			return
		}
	}
}

func (r *Reconciler) afterRecord(ctx context.Context, p *models.Payment) {
	if err := r.history.Invalidate(ctx, p.PayerEmail); err != nil {
		r.logger.Warn(ctx, "history cache invalidation failed", "payer_email", p.PayerEmail, "error", err)
	}
	if err := r.events.PaymentRecorded(ctx, p); err != nil {
		r.logger.Warn(ctx, "payment event not published", "transaction_id", p.TransactionID, "error", err)
	}
}

func (r *Reconciler) inconsistent(ctx context.Context, msg string, args ...any) error {
	r.logger.Error(ctx, msg, args...)
	return fmt.Errorf("%w: %s", common.ErrInternalInconsistency, msg)
}
