package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/fleetflow/fleetflow/internal/app"
	"github.com/fleetflow/fleetflow/internal/audit"
	"github.com/fleetflow/fleetflow/internal/auth"
	authhttp "github.com/fleetflow/fleetflow/internal/auth/http"
	"github.com/fleetflow/fleetflow/internal/bookings"
	"github.com/fleetflow/fleetflow/internal/gateway"
	"github.com/fleetflow/fleetflow/internal/observability"
	"github.com/fleetflow/fleetflow/internal/platform/cache"
	"github.com/fleetflow/fleetflow/internal/platform/db"
	"github.com/fleetflow/fleetflow/internal/ratelimit"
	"github.com/fleetflow/fleetflow/internal/rbac"
	"github.com/fleetflow/fleetflow/internal/users"
	"github.com/fleetflow/fleetflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, falling back to in-process rate limits", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// Rate-limit counters live in Redis so every instance sees the same
	// window; without Redis a per-process table takes over.
	var limitStore ratelimit.Store
	if redisClient != nil {
		limitStore = ratelimit.NewRedisStore(redisClient)
	} else {
		memory := ratelimit.NewMemoryStore()
		group.Go(func() error {
			return memory.Janitor(groupCtx, time.Minute)
		})
		limitStore = memory
	}

	registry, err := rbac.NewRegistry()
	if err != nil {
		logger.Error("build permission registry", slog.Any("error", err))
		os.Exit(1)
	}

	tokens, err := auth.NewJWTTokenService(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		logger.Error("build token service", slog.Any("error", err))
		os.Exit(1)
	}

	principals := auth.NewPGPrincipalStore(dbpool)
	sessions := auth.NewPGSessionStore(dbpool)
	hasher := auth.BcryptHasher{Cost: cfg.BcryptCost}
	auditLog := audit.NewLogger(audit.NewPGStore(dbpool), logger, 5*time.Second)

	metrics := observability.NewMetrics()
	pipeline := &gateway.Pipeline{
		Logger:        logger,
		Limiter:       ratelimit.NewLimiter(limitStore, logger),
		Authenticator: auth.NewAuthenticator(tokens, principals, logger),
		Authorizer:    rbac.NewAuthorizer(registry),
		Audit:         auditLog,
		Metrics:       metrics,
		Production:    cfg.IsProduction(),
		TrustProxy:    cfg.TrustProxyHeaders,
	}

	authService := auth.NewService(principals, sessions, tokens, hasher, logger, cfg.RefreshTokenTTL)
	authHandler := authhttp.NewHandler(logger, authService, pipeline, auditLog)

	usersService := users.NewService(users.NewRepository(dbpool), hasher)
	usersHandler := users.NewHandler(logger, usersService, pipeline)

	bookingsService := bookings.NewService(bookings.NewRepository(dbpool))
	bookingsHandler := bookings.NewHandler(logger, bookingsService, pipeline)

	var jobsHandler *jobs.Handler
	if redisClient != nil {
		client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Warn("init jobs client", slog.Any("error", err))
		} else {
			defer func() {
				if err := client.Close(); err != nil {
					logger.Warn("jobs client close", slog.Any("error", err))
				}
			}()
			if _, err := client.EnqueueSessionCleanup(ctx); err != nil {
				logger.Warn("enqueue session cleanup", slog.Any("error", err))
			}
		}
		jobsHandler = jobs.NewHandler(asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr}), logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     authHandler,
		UsersHandler:    usersHandler,
		BookingsHandler: bookingsHandler,
		JobsHandler:     jobsHandler,
		Pool:            dbpool,
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown", slog.Any("error", err))
		}
		// Let in-flight audit writes land before the process exits.
		auditLog.Wait()
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}
