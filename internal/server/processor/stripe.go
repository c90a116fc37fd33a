package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/common"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	"github.com/dmitrijs2005/scholarstream/internal/server/models"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	defaultRetryBase = 200 * time.Millisecond
	defaultRetries   = 3
)

// Checkout session event types handled by the webhook.
const (
	EventCheckoutCompleted             = string(stripe.EventTypeCheckoutSessionCompleted)
	EventCheckoutAsyncPaymentSucceeded = string(stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded)
)

// Stripe is a Gateway over a stripe-go API client. The client is an instance
// owned by Stripe; the package-level stripe.Key is never used.
type Stripe struct {
	api           *client.API
	webhookSecret string
	newBackoff    func() retry.Backoff
	logger        logging.Logger
}

type StripeOption func(*stripeOptions)

type stripeOptions struct {
	backend    stripe.Backend
	httpClient *http.Client
	newBackoff func() retry.Backoff
}

// WithBackend replaces the API backend, e.g. with one pointed at a test server.
func WithBackend(b stripe.Backend) StripeOption {
	return func(o *stripeOptions) { o.backend = b }
}

func WithHTTPClient(c *http.Client) StripeOption {
	return func(o *stripeOptions) { o.httpClient = c }
}

// WithBackoff sets the retry policy for transient failures.
func WithBackoff(f func() retry.Backoff) StripeOption {
	return func(o *stripeOptions) { o.newBackoff = f }
}

func NewStripe(secretKey, webhookSecret string, logger logging.Logger, opts ...StripeOption) *Stripe {
	o := &stripeOptions{
		newBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(defaultRetries, retry.NewExponential(defaultRetryBase))
		},
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.backend == nil {
		o.backend = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			HTTPClient:        o.httpClient,
			LeveledLogger:     &leveledLogger{log: logger},
			MaxNetworkRetries: stripe.Int64(0),
		})
	}

	return &Stripe{
		api:           client.New(secretKey, &stripe.Backends{API: o.backend, Connect: o.backend, Uploads: o.backend}),
		webhookSecret: webhookSecret,
		newBackoff:    o.newBackoff,
		logger:        logger,
	}
}

func (s *Stripe) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.CheckoutSession, error) {
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.CustomerEmail),
		Metadata:      req.Metadata,
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: optionalString(req.Description),
					},
				},
			},
		},
	}
	params.SetIdempotencyKey(key)

	var out *stripe.CheckoutSession
	err := retry.Do(ctx, s.newBackoff(), func(ctx context.Context) error {
		params.Context = ctx
		sess, err := s.api.CheckoutSessions.New(params)
		if err != nil {
			return s.classify(ctx, "create checkout session", err)
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, s.finalError("create checkout session", err)
	}

	return toSession(out), nil
}

func (s *Stripe) RetrieveSession(ctx context.Context, sessionID string) (*models.CheckoutSession, error) {
	if sessionID == "" {
		return nil, common.ErrSessionNotFound
	}

	params := &stripe.CheckoutSessionParams{}
	var out *stripe.CheckoutSession
	err := retry.Do(ctx, s.newBackoff(), func(ctx context.Context) error {
		params.Context = ctx
		sess, err := s.api.CheckoutSessions.Get(sessionID, params)
		if err != nil {
			return s.classify(ctx, "retrieve checkout session", err)
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, s.finalError("retrieve checkout session", err)
	}

	return toSession(out), nil
}

// ParseWebhook verifies the Stripe-Signature header against the webhook
// secret. A bad signature is ErrInvalidInput.
func (s *Stripe) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: webhook: %w", common.ErrInvalidInput, err)
	}

	out := &WebhookEvent{ID: event.ID, Type: string(event.Type)}
	switch out.Type {
	case EventCheckoutCompleted, EventCheckoutAsyncPaymentSucceeded:
		if event.Data == nil {
			return nil, common.Invalid("webhook event without data")
		}
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("%w: webhook session: %w", common.ErrInvalidInput, err)
		}
		out.Session = toSession(&sess)
	}

	return out, nil
}

// classify decides whether a failed call is worth repeating. Unknown
// sessions and client errors are final; transport failures, rate limits and
// processor-side errors are retried.
func (s *Stripe) classify(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return err
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripe.ErrorCodeResourceMissing:
			return common.ErrSessionNotFound
		case stripeErr.HTTPStatusCode == http.StatusTooManyRequests,
			stripeErr.HTTPStatusCode >= http.StatusInternalServerError,
			stripeErr.HTTPStatusCode == http.StatusConflict:
			s.logger.Warn(ctx, "processor call failed, retrying", "op", op, "status", stripeErr.HTTPStatusCode, "request_id", stripeErr.RequestID)
			return retry.RetryableError(err)
		default:
			return err
		}
	}

	s.logger.Warn(ctx, "processor call failed, retrying", "op", op, "error", err)
	return retry.RetryableError(err)
}

func (s *Stripe) finalError(op string, err error) error {
	if errors.Is(err, common.ErrNotFound) {
		return err
	}
	return common.Unavailable(op, err)
}

func toSession(s *stripe.CheckoutSession) *models.CheckoutSession {
	out := &models.CheckoutSession{
		ID:            s.ID,
		URL:           s.URL,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		CustomerEmail: s.CustomerEmail,
		Metadata:      s.Metadata,
	}
	if s.PaymentIntent != nil {
		out.TransactionID = s.PaymentIntent.ID
	}
	if out.CustomerEmail == "" && s.CustomerDetails != nil {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if out.Metadata == nil {
		out.Metadata = map[string]string{}
	}
	return out
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return stripe.String(v)
}

// leveledLogger routes stripe-go's own diagnostics through our Logger.
type leveledLogger struct {
	log logging.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, v...), "source", "stripe")
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, v...), "source", "stripe")
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, v...), "source", "stripe")
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(context.Background(), fmt.Sprintf(format, v...), "source", "stripe")
}
