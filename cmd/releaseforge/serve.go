package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	rfhttp "github.com/Strob0t/ReleaseForge/internal/adapter/http"
	"github.com/Strob0t/ReleaseForge/internal/adapter/memory"
	rfnats "github.com/Strob0t/ReleaseForge/internal/adapter/nats"
	"github.com/Strob0t/ReleaseForge/internal/adapter/natskv"
	rfotel "github.com/Strob0t/ReleaseForge/internal/adapter/otel"
	"github.com/Strob0t/ReleaseForge/internal/adapter/postgres"
	"github.com/Strob0t/ReleaseForge/internal/adapter/redis"
	"github.com/Strob0t/ReleaseForge/internal/adapter/ristretto"
	"github.com/Strob0t/ReleaseForge/internal/adapter/tiered"
	"github.com/Strob0t/ReleaseForge/internal/adapter/ws"
	"github.com/Strob0t/ReleaseForge/internal/config"
	"github.com/Strob0t/ReleaseForge/internal/middleware"
	"github.com/Strob0t/ReleaseForge/internal/port/cache"
	"github.com/Strob0t/ReleaseForge/internal/port/database"
	"github.com/Strob0t/ReleaseForge/internal/port/invalidation"
	"github.com/Strob0t/ReleaseForge/internal/port/messagequeue"
	"github.com/Strob0t/ReleaseForge/internal/service"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			closer := setupLogger(cfg)
			defer closer.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("port", "", "HTTP listen port")
	cmd.Flags().String("store", "", "persistence backend (postgres or memory)")
	cmd.Flags().String("dsn", "", "PostgreSQL connection string")
	cmd.Flags().String("nats-url", "", "NATS server URL; empty disables cross-instance features")
	return cmd
}

// cleanups run in reverse registration order on shutdown.
type cleanups []func()

func (c *cleanups) add(fn func()) { *c = append(*c, fn) }

func (c cleanups) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	var done cleanups
	defer done.run()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
		"cache_l2", cfg.Cache.L2Backend,
		"log_level", cfg.Logging.Level,
	)

	// --- Telemetry ---

	shutdownOTEL, err := rfotel.Setup(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	done.add(func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTEL(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	})
	metrics, err := rfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	var checks []rfhttp.HealthCheck

	// --- Persistence ---

	store, storeChecks, err := openStore(ctx, cfg, &done)
	if err != nil {
		return err
	}
	checks = append(checks, storeChecks...)

	// --- NATS ---

	var queue messagequeue.Queue
	var nq *rfnats.Queue
	if cfg.NATS.URL != "" {
		nq, err = rfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		done.add(func() {
			if err := nq.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		})
		queue = nq
		checks = append(checks, rfhttp.HealthCheck{Name: "nats", Check: func(context.Context) error {
			if !nq.IsConnected() {
				return errors.New("disconnected")
			}
			return nil
		}})
	} else {
		slog.Warn("nats disabled, invalidations stay local to this instance")
	}

	// --- Caches ---

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	done.add(l1.Close)

	l2, l2Checks, err := openL2(ctx, cfg, nq, &done)
	if err != nil {
		return err
	}
	checks = append(checks, l2Checks...)

	var planCache cache.Cache = l1
	if l2 != nil {
		planCache = tiered.New(l1, l2, cfg.Cache.L1TTL)
	}
	cached := service.NewCachedPlanStore(rfotel.TracePlanStore(store), planCache, cfg.Cache.L2TTL)

	idemStore, err := openIdempotencyStore(ctx, cfg, nq, l1)
	if err != nil {
		return err
	}

	// --- Invalidation fan-out ---

	hub := ws.NewHub(cfg.Server.CORSOrigin)
	done.add(hub.Close)

	local := invalidation.Multi{cached, service.NewBroadcastNotifier(hub)}
	notifier := invalidation.Notifier(local)
	if queue != nil {
		origin := uuid.NewString()
		notifier = invalidation.Multi{local, service.NewQueueNotifier(queue, origin)}
		cancelForward, err := service.ForwardInvalidations(ctx, queue, origin, local)
		if err != nil {
			return fmt.Errorf("invalidation subscriber: %w", err)
		}
		done.add(cancelForward)
	}

	// --- Services ---

	saver := service.NewSaveService(cached, store, store, notifier, saveOptions(cfg))
	saver.SetMetrics(metrics)

	handlers := &rfhttp.Handlers{
		Plans:    service.NewPlanService(store, cached, saver, notifier, queue),
		Features: service.NewFeatureService(store, notifier),
		Products: service.NewProductService(store, notifier),
		Checks:   checks,
	}

	// --- HTTP ---

	limiter := middleware.NewRateLimiterFromConfig(cfg.Rate)
	done.add(limiter.StartCleanup(cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime))

	r := chi.NewRouter()
	r.Use(rfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(rfhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(rfhttp.Logger)
	r.Use(chimw.Recoverer)
	r.Use(rfotel.HTTPMiddleware(cfg.OTEL.ServiceName))

	r.Get("/ws", hub.HandleWS)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Handler)
		r.Use(middleware.Idempotency(idemStore, cfg.Idempotency.TTL))
		r.Use(chimw.Timeout(30 * time.Second))
		rfhttp.MountRoutes(r, handlers)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, done *cleanups) (database.Store, []rfhttp.HealthCheck, error) {
	if cfg.Store.Backend == "memory" {
		slog.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	done.add(pool.Close)
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	check := rfhttp.HealthCheck{Name: "postgres", Check: pool.Ping}
	return postgres.NewStore(pool), []rfhttp.HealthCheck{check}, nil
}

func openL2(ctx context.Context, cfg *config.Config, nq *rfnats.Queue, done *cleanups) (cache.Cache, []rfhttp.HealthCheck, error) {
	switch cfg.Cache.L2Backend {
	case "nats":
		if nq == nil {
			return nil, nil, errors.New("l2 cache: nats backend needs a nats connection")
		}
		kv, err := natskv.Open(ctx, nq.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("l2 cache: %w", err)
		}
		return kv, nil, nil
	case "redis":
		rc, err := redis.New(ctx, cfg.Redis.URL, cfg.Redis.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("l2 cache: %w", err)
		}
		done.add(func() { _ = rc.Close() })
		return rc, []rfhttp.HealthCheck{{Name: "redis", Check: rc.Ping}}, nil
	default:
		return nil, nil, nil
	}
}

// openIdempotencyStore prefers a shared bucket so replays work across
// instances; without NATS it falls back to the process-local cache.
func openIdempotencyStore(ctx context.Context, cfg *config.Config, nq *rfnats.Queue, fallback cache.Cache) (cache.Cache, error) {
	if nq == nil {
		return fallback, nil
	}
	kv, err := natskv.Open(ctx, nq.JetStream(), cfg.Idempotency.Bucket, cfg.Idempotency.TTL)
	if err != nil {
		return nil, fmt.Errorf("idempotency store: %w", err)
	}
	return kv, nil
}
