// Package http serves the JSON API over gin.
package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/scholarstream/internal/logging"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	address string
	engine  *gin.Engine
	logger  logging.Logger
}

func NewServer(address string, logger logging.Logger, secretKey string, svc Services) *Server {
	s := &Server{
		address: address,
		engine:  gin.New(),
		logger:  logger.With("module", "http_server"),
	}

	h := &handlers{svc: svc}
	wh := &webhookHandler{verifier: svc.Webhooks, confirmer: svc.Confirmer, logger: s.logger}

	r := s.engine
	r.Use(gin.Recovery(), requestLogger(s.logger))

	r.GET("/healthz", h.healthz)
	r.POST("/payments/confirm", h.confirmPayment)
	r.POST("/webhooks/stripe", wh.stripeWebhook)

	authed := r.Group("/", authRequired([]byte(secretKey)))
	{
		authed.POST("/checkout-sessions", h.createCheckoutSession)
		authed.GET("/payments", h.listPayments)
		authed.GET("/payments/:transactionId/receipt", h.paymentReceipt)
		authed.POST("/applications", h.submitApplication)
		authed.GET("/applications", h.listApplications)
		authed.GET("/applications/:id", h.getApplication)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
