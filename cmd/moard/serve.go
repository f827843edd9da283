package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"moard/internal/config"
	"moard/internal/db"
	"moard/internal/logging"
	"moard/internal/metrics"
	"moard/internal/ratelimit"
	"moard/internal/routes"
	"moard/internal/server"
	"moard/internal/session"
	"moard/internal/upload"
	"moard/internal/view"
)

const shutdownTimeout = 5 * time.Second

func serve(c *cli.Context) error {
	cfg, err := config.FromEnv(os.Getenv)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(version)

	client, database, err := db.Connect(ctx, cfg.MongoURI, logger.Named("db"))
	if err != nil {
		return err
	}
	defer disconnect(logger, client)

	storeClient, storeDB, err := db.Connect(ctx, cfg.MongoStoreURI, logger.Named("session_db"))
	if err != nil {
		return err
	}
	defer disconnect(logger, storeClient)

	users := db.NewUsers(database)
	store := session.NewStore(storeDB, session.KeyPairs(cfg.SessionSecret),
		session.WithTTL(cfg.SessionTTL),
		session.WithErrorHandler(func(err error) {
			m.RecordSessionStoreError()
			logger.Error("session store error", zap.Error(err))
		}),
	)
	go ensureIndexes(ctx, logger, users, store)

	views, err := view.New(cfg.ViewsDir, !cfg.Production(), logger.Named("view"))
	if err != nil {
		return err
	}
	storage, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}

	limiter := ratelimit.New(cfg.LoginRate)
	go limiter.Run(ctx, time.Minute)
	lockout := ratelimit.NewLockout(5, 15*time.Minute, 10*time.Minute)
	go lockout.Run(ctx, time.Hour)

	router := routes.New(routes.Deps{
		Users:        users,
		Sessions:     store,
		Views:        views,
		Logger:       logger.Named("routes"),
		Metrics:      m,
		LoginLimiter: limiter,
		Lockout:      lockout,
	})

	srv, err := server.New(server.Config{
		Addr:           cfg.Addr(),
		Production:     cfg.Production(),
		TrustProxy:     cfg.TrustProxy,
		SessionSecret:  cfg.SessionSecret,
		UploadMaxBytes: cfg.UploadMaxBytes,
		PublicDir:      cfg.PublicDir,
		Version:        version,
	}, server.Deps{
		Logger:   logger,
		Metrics:  m,
		Sessions: store,
		Storage:  storage,
		Views:    views,
		Router:   router,
		Checks: []server.Check{
			{Name: "database", Fn: func(ctx context.Context) error { return db.Ping(ctx, client) }},
			{Name: "session_store", Fn: func(ctx context.Context) error { return db.Ping(ctx, storeClient) }},
			{Name: "storage", Fn: storage.Check, Slow: 2 * time.Second},
		},
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting",
			zap.String("addr", cfg.Addr()),
			zap.String("env", cfg.Env),
			zap.String("version", version),
			zap.String("commit", commit),
			zap.Bool("s3_uploads", cfg.S3.Enabled()))
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
			return err
		}
		logger.Info("shutdown complete")
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			return err
		}
		return nil
	}
}

// newStorage picks the bucket when S3 is configured and the public
// uploads directory otherwise.
func newStorage(ctx context.Context, cfg config.Config) (upload.Storage, error) {
	if cfg.S3.Enabled() {
		return upload.NewMinioStorage(ctx, cfg.S3.Endpoint, cfg.S3.AccessKey, cfg.S3.SecretKey, cfg.S3.Bucket)
	}
	return upload.NewDiskStorage(filepath.Join(cfg.PublicDir, "uploads"))
}

type indexer interface {
	EnsureIndexes(ctx context.Context) error
}

// ensureIndexes runs in the background so an unreachable database does not
// delay startup.
func ensureIndexes(ctx context.Context, logger *zap.Logger, targets ...indexer) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, t := range targets {
		if err := t.EnsureIndexes(ctx); err != nil {
			logger.Error("ensure indexes failed", zap.Error(err))
		}
	}
}

func disconnect(logger *zap.Logger, client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logger.Warn("mongo disconnect failed", zap.Error(err))
	}
}
