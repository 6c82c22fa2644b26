package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/classbook/internal/config"
	"github.com/kirinyoku/classbook/internal/postgres"
	"github.com/kirinyoku/classbook/internal/redis"
	"github.com/kirinyoku/classbook/internal/repository"
	"github.com/kirinyoku/classbook/internal/repository/memory"
	postgresrepo "github.com/kirinyoku/classbook/internal/repository/postgres"
	redisrepo "github.com/kirinyoku/classbook/internal/repository/redis"
	"github.com/kirinyoku/classbook/internal/service"
	"github.com/kirinyoku/classbook/internal/service/reconcile"
	httpgin "github.com/kirinyoku/classbook/internal/transport/http/gin"
	kafkax "github.com/kirinyoku/classbook/internal/transport/kafka"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	services   *service.Services

	pool   *pgxpool.Pool
	rdb    *goredis.Client
	cache  *redisrepo.OfferingCache
	pubsub *redisrepo.OfferingsPubSub

	scheduler *reconcile.Scheduler
	payments  *kafkax.PaymentConsumer
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var (
		limiter *redisrepo.BookingLimiter
		idem    *redisrepo.IdempotencyStore
	)

	if cfg.Redis.Addr != "" {
		a.rdb, err = redis.New(ctx, redis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}

		a.cache = redisrepo.NewOfferingCache(a.rdb, redisrepo.DefaultOfferingTTL, logger)
		a.pubsub = redisrepo.NewOfferingsPubSub(a.rdb)
		limiter = redisrepo.NewBookingLimiter(a.rdb, cfg.Server.RateLimitPerMin, time.Minute)
		idem = redisrepo.NewIdempotencyStore(a.rdb, cfg.Server.IdempotencyTTL)
	} else {
		logger.Warn("redis disabled: no cache, rate limiting or idempotency keys")
	}

	a.services = service.NewServices(store, a.cache, a.pubsub, limiter, logger, service.Config{})

	if cfg.Reconcile.Interval > 0 {
		a.scheduler, err = reconcile.NewScheduler(a.services.Reconcile, cfg.Reconcile.Interval, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize reconcile scheduler: %w", err)
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		a.payments = kafkax.NewPaymentConsumer(kafkax.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.PaymentsTopic,
			GroupID: cfg.Kafka.GroupID,
		}, a.services.Booking, logger)
	}

	router := httpgin.NewRouter(a.services, idem, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) (repository.Store, error) {
	switch a.cfg.Store.Driver {
	case config.DriverMemory:
		a.logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(a.cfg.Store.LockTimeout), nil
	case config.DriverPostgres:
		pg := a.cfg.Postgres
		pool, err := postgres.New(ctx, postgres.Config{
			DSN:      postgres.DSN(pg.User, pg.Password, pg.Host, pg.Port, pg.Name, pg.SSLMode),
			MaxConns: pg.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres: %w", err)
		}

		if err := postgresrepo.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}

		a.pool = pool
		return postgresrepo.NewStore(pool, a.cfg.Store.LockTimeout), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer a.Close()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	if a.scheduler != nil {
		g.Go(func() error {
			a.logger.Info("reconcile sweep scheduled", "interval", a.cfg.Reconcile.Interval)
			return a.scheduler.Run(gCtx)
		})
	}

	if a.payments != nil {
		g.Go(func() error {
			a.logger.Info("payments consumer started", "topic", a.cfg.Kafka.PaymentsTopic)
			return ignoreCanceled(a.payments.Run(gCtx))
		})
	}

	// Offering changes published by other instances evict the local view.
	if a.pubsub != nil {
		g.Go(func() error {
			return ignoreCanceled(a.pubsub.Subscribe(gCtx, func(ctx context.Context, ch redisrepo.OfferingChange) {
				if err := a.cache.InvalidateOffering(ctx, ch.OfferingID); err != nil {
					a.logger.Warn("cache invalidation failed",
						slog.Int64("offering_id", ch.OfferingID),
						slog.String("error", err.Error()),
					)
				}
			}))
		})
	}

	return g.Wait()
}

// Close releases the connections opened by New. It is safe to call more than once.
func (a *App) Close() {
	if a.payments != nil {
		if err := a.payments.Close(); err != nil {
			a.logger.Warn("failed to close payments consumer", "error", err)
		}
		a.payments = nil
	}

	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}

	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
