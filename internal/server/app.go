// Package server wires the scholarstream collaborators together and runs the
// HTTP API and the gRPC health endpoint until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/IBM/sarama"
	"github.com/dmitrijs2005/scholarstream/internal/logging"
	"github.com/dmitrijs2005/scholarstream/internal/server/cache"
	"github.com/dmitrijs2005/scholarstream/internal/server/config"
	"github.com/dmitrijs2005/scholarstream/internal/server/events"
	"github.com/dmitrijs2005/scholarstream/internal/server/processor"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/scholarstream/internal/server/services"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/scholarstream/internal/server/grpc"
	hs "github.com/dmitrijs2005/scholarstream/internal/server/http"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Seams for tests.
var (
	openDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("pgx", dsn)
	}
	newRepositoryManager = repomanager.NewPostgresRepositoryManager
	connectRedis         = cache.Connect
	dialKafka            = events.Dial
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	redis      *redis.Client
	producer   sarama.SyncProducer
	httpServer *hs.Server
	grpcServer *gs.GRPCServer
}

// NewApp acquires every collaborator. On failure whatever was already
// acquired is released before returning.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)
	return newApp(ctx, c, logger)
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (_ *App, err error) {
	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			if cerr := app.Close(); cerr != nil {
				logger.Warn(ctx, "release after failed start", "error", cerr)
			}
		}
	}()

	app.db, err = openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err = app.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := newRepositoryManager()
	if err = rm.RunMigrations(ctx, app.db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	var history services.HistoryCache
	if c.RedisAddr != "" {
		app.redis, err = connectRedis(ctx, c.RedisAddr)
		if err != nil {
			return nil, err
		}
		history = cache.NewHistoryCache(app.redis)
	} else {
		logger.Info(ctx, "redis address not set, history cache disabled")
	}

	recOpts := []services.ReconcilerOption{}
	if history != nil {
		recOpts = append(recOpts, services.WithHistoryCache(history))
	}
	if len(c.KafkaBrokers) > 0 {
		app.producer, err = dialKafka(c.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		recOpts = append(recOpts, services.WithEventPublisher(events.NewPublisher(app.producer, c.PaymentsTopic)))
	} else {
		logger.Info(ctx, "kafka brokers not set, payment events disabled")
	}

	gateway := processor.NewStripe(c.StripeSecretKey, c.StripeWebhookSecret, logger)

	reconciler := services.NewReconciler(app.db, rm, gateway, c, logger, recOpts...)
	app.httpServer = hs.NewServer(c.EndpointAddrHTTP, logger, c.SecretKey, hs.Services{
		Checkout:     services.NewCheckoutService(app.db, rm, gateway, c, logger),
		Confirmer:    reconciler,
		History:      services.NewHistoryService(app.db, rm, history, c.HistoryCacheTTL, logger),
		Receipts:     services.NewReceiptService(app.db, rm, c, logger),
		Applications: services.NewApplicationService(app.db, rm, logger),
		Webhooks:     gateway,
	})
	app.grpcServer = gs.NewGRPCServer(c.EndpointAddrGRPC, logger)

	return app, nil
}

// Run serves until ctx is cancelled or a termination signal arrives. A
// server that fails stops the other.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.httpServer.Run(gctx)
	})
	g.Go(func() error {
		return app.grpcServer.Run(gctx)
	})
	app.grpcServer.SetServing(true)

	err := g.Wait()
	app.grpcServer.SetServing(false)
	app.logger.Info(ctx, "App stopped")
	return err
}

// Close releases collaborators in reverse order of acquisition.
func (app *App) Close() error {
	var errs []error
	if app.producer != nil {
		if err := app.producer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
		app.producer = nil
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
		app.redis = nil
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db close: %w", err))
		}
		app.db = nil
	}
	return errors.Join(errs...)
}
