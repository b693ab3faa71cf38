package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/variant-labs/variant-go/internal/ingest"
	"github.com/variant-labs/variant-go/internal/platform/auth"
	"github.com/variant-labs/variant-go/internal/platform/env"
	"github.com/variant-labs/variant-go/internal/platform/httpserver"
	"github.com/variant-labs/variant-go/internal/platform/metrics"
	"github.com/variant-labs/variant-go/internal/platform/objectstore"
	"github.com/variant-labs/variant-go/internal/platform/postgres"
	pgrepo "github.com/variant-labs/variant-go/internal/repo/postgres"
	"github.com/variant-labs/variant-go/internal/seed"
	"github.com/variant-labs/variant-go/internal/service/assign"
	"github.com/variant-labs/variant-go/internal/service/export"
	"github.com/variant-labs/variant-go/internal/service/results"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("EXPERIMENTS_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("EXPERIMENTS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	collector := metrics.NewCollector("variant")

	experimentStore := pgrepo.NewExperimentStore(db)
	assignmentStore := pgrepo.NewAssignmentStore(db)
	eventStore := pgrepo.NewEventStore(db)

	assignSvc := assign.New(experimentStore, assignmentStore, collector)
	resultsSvc := results.New(experimentStore, assignmentStore, eventStore, collector)
	exportSvc := export.New(experimentStore, assignmentStore, eventStore, resultsSvc,
		export.NewMinIOUploader(storeClient, storeCfg.BucketExports))

	seedPath := strings.TrimSpace(env.String("EXPERIMENTS_SEED_FILE", ""))
	if seedPath != "" {
		spec, err := seed.LoadFile(seedPath)
		if err != nil {
			logger.Error("invalid seed file", "path", seedPath, "error", err)
			os.Exit(2)
		}
		seedCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		created, err := seed.NewLoader(experimentStore, logger).Apply(seedCtx, spec)
		cancel()
		if err != nil {
			logger.Error("seed apply failed", "path", seedPath, "error", err)
			os.Exit(1)
		}
		logger.Info("seed applied", "path", seedPath, "created", created)
	}

	ingestCfg, err := ingest.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid event ingest config", "error", err)
		os.Exit(2)
	}
	if ingestCfg.Enabled {
		worker, err := ingest.NewWorker(ingestCfg, logger, eventStore, collector)
		if err != nil {
			logger.Error("event ingest init failed", "error", err)
			os.Exit(2)
		}
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := worker.Connect(connectCtx); err != nil {
			cancel()
			logger.Error("event ingest unavailable", "error", err)
			os.Exit(1)
		}
		cancel()
		defer worker.Close()
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("event ingest stopped", "error", err)
			}
		}()
	}

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", httpserver.Healthz("experiments"))
	mux.HandleFunc("GET /readyz", httpserver.ReadyzWithChecks(
		"experiments",
		httpserver.ReadinessCheck{
			Name: "postgres",
			Check: auth.WithTimeout(750*time.Millisecond, func(ctx context.Context) error {
				return db.PingContext(ctx)
			}),
		},
		httpserver.ReadinessCheck{
			Name: "minio",
			Check: auth.WithTimeout(750*time.Millisecond, func(ctx context.Context) error {
				return objectstore.CheckBuckets(ctx, storeClient, storeCfg)
			}),
		},
	))
	mux.Handle("GET /metrics", collector.Handler())

	api := newExperimentsAPI(apiDeps{
		logger:      logger,
		experiments: experimentStore,
		assignments: assignmentStore,
		events:      eventStore,
		assign:      assignSvc,
		results:     resultsSvc,
		export:      exportSvc,
		metrics:     collector,
	})
	api.register(mux)

	var handler http.Handler = mux
	skipPrefixes := []string{"/healthz", "/readyz", "/metrics", "/auth/"}
	switch authCfg.Mode {
	case auth.ModeOIDC:
		oidcSvc, err := auth.NewOIDCService(ctx, authCfg)
		if err != nil {
			logger.Error("oidc init failed", "error", err)
			os.Exit(1)
		}
		registerAuthRoutes(mux, logger, oidcSvc)
		handler = auth.Middleware{
			Logger:        logger,
			Authenticator: oidcSvc,
			Authorize:     auth.MethodRoleAuthorizer(),
			SkipPrefixes:  skipPrefixes,
		}.Wrap(mux)
	case auth.ModeDev:
		handler = auth.Middleware{
			Logger:        logger,
			Authenticator: auth.NewDevAuthenticator(authCfg),
			Authorize:     auth.MethodRoleAuthorizer(),
			SkipPrefixes:  skipPrefixes,
		}.Wrap(mux)
	case auth.ModeDisabled:
		logger.Warn("auth disabled")
	}

	cfg := httpserver.Config{
		Service:         "experiments",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, collector, handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func registerAuthRoutes(mux *http.ServeMux, logger *slog.Logger, oidcSvc *auth.OIDCService) {
	login, err := oidcSvc.LoginHandler()
	if err != nil {
		logger.Warn("login endpoints disabled", "error", err)
	} else {
		callback, err := oidcSvc.CallbackHandler()
		if err != nil {
			logger.Warn("login endpoints disabled", "error", err)
		} else {
			mux.HandleFunc("GET /auth/login", login)
			mux.HandleFunc("GET /auth/callback", callback)
		}
	}
	mux.HandleFunc("POST /auth/logout", oidcSvc.LogoutHandler())
	mux.HandleFunc("GET /auth/session", oidcSvc.SessionHandler())
}
