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

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-rbac/internal/app"
	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/editor"
	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err == nil {
		err = cfg.RequireSecrets()
	}
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("odyssey rbac", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	catalog, err := app.LoadCatalog(cfg)
	if err != nil {
		return err
	}

	backend, err := app.OpenBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("backend close", slog.Any("error", err))
		}
	}()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	store := rbac.NewStore(ctx, backend.KV, catalog,
		app.StoreOptions(cfg, rbac.WithLogger(logger), rbac.WithRecorder(metrics))...)
	authorizer := rbac.NewAuthorizer(store, catalog)
	rbacMiddleware := rbac.Middleware{Authorizer: authorizer, Logger: logger}
	logger.Info("rbac store ready",
		slog.String("driver", backend.Driver),
		slog.String("active_role", string(store.ActiveRole())),
		slog.Int("modules", len(catalog.Modules())))

	sessionManager := shared.NewSessionManager(redisClient, "odyssey_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	var source auth.PermissionSource
	if backend.Pool != nil {
		source = auth.NewPermissionSource(backend.Pool)
	}
	authHandler := auth.NewHandler(logger, auth.NewService(source, store),
		auth.NewVerifier(cfg.SessionSecret, cfg.HandoffMaxAge), sessionManager, csrfManager)

	drafts := editor.NewRegistry(store, catalog, cfg.DraftCapacity, cfg.DraftTTL)
	metrics.TrackDrafts(drafts.Len)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		RBACHandler:    rbac.NewHandler(logger, store, authorizer, rbacMiddleware),
		EditorHandler:  editor.NewHandler(logger, drafts, catalog, rbacMiddleware),
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
