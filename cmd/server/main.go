// Command server is the pagebase core process: it serves the REST surface
// of spec.md §4.I/§6, runs the sync scheduler, and owns the single sqlite
// state file everything else in this module persists to.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pagebase/core/internal/api"
	"github.com/pagebase/core/internal/cache"
	"github.com/pagebase/core/internal/httpx"
	"github.com/pagebase/core/internal/localdb"
	"github.com/pagebase/core/internal/model"
	"github.com/pagebase/core/internal/publish"
	"github.com/pagebase/core/internal/schema"
	"github.com/pagebase/core/internal/secrets"
	"github.com/pagebase/core/internal/settings"
	"github.com/pagebase/core/internal/store"
	"github.com/pagebase/core/internal/strategy"
	"github.com/pagebase/core/internal/sync"
	"github.com/pagebase/core/internal/view"
	"github.com/pagebase/core/pkg/config"
)

const (
	adminTokenTTL   = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := localdb.OpenManager(ctx, cfg.StateDir)
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer mgr.Close()

	if err := settings.EnsureBucket(mgr.DB); err != nil {
		return fmt.Errorf("ensure settings bucket: %w", err)
	}

	st := store.New(mgr.DB)
	settingsMgr := settings.Manager{DB: mgr.DB}

	secretsMgr, err := secrets.New(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("build secrets manager: %w", err)
	}

	issuer := httpx.NewTokenIssuer(cfg.EncryptionKey, adminTokenTTL)

	// srv is allocated before every other dependency so AdapterFor can be
	// closed over below and handed to the domain packages as their
	// AdapterFactory — schema/view/sync/publish never build adapters
	// themselves.
	srv := &api.Server{
		DB:      mgr.DB,
		Store:   st,
		Secrets: secretsMgr,
		Settings: settingsMgr,
		Logger:  logger,
		Issuer:  issuer,
		Config:  cfg,
	}
	adapterFactory := srv.AdapterFor

	projectSettings, err := settingsMgr.Get()
	if err != nil {
		return fmt.Errorf("load project settings: %w", err)
	}

	c := cache.New()
	c.Configure(projectSettings)
	srv.Cache = c

	schemas := schema.New(st)
	srv.Schemas = schemas

	views := view.New(st, adapterFactory)
	srv.Views = views

	rdb := buildSyncRedis(cfg)
	if rdb == nil {
		logger.Warn("UPSTASH_REDIS_URL not set; sync capture buffer disabled, sync runs will fail fast")
	}
	syncExec := sync.New(st, adapterFactory, rdb)
	srv.SyncExec = syncExec

	scheduler := sync.NewScheduler(syncExec, st)
	srv.Scheduler = scheduler
	if configs, err := st.ListSyncConfigs(); err != nil {
		logger.Warn("list sync configs for scheduler", zap.Error(err))
	} else {
		scheduler.Sync(configs)
	}
	scheduler.Start()
	defer scheduler.Stop()

	compiler := publish.New(st, schemas, adapterFactory, c, func() model.ProjectSettings {
		s, err := settingsMgr.Get()
		if err != nil {
			return projectSettings
		}
		return s
	})
	srv.Compiler = compiler

	edge := strategy.NewEdgeHTTPStrategy(cfg.EdgeURL)
	hostedSQL := strategy.NewHostedSQLStrategy(cfg.TursoDBURL, cfg.TursoDBToken, c)
	srv.Strategy = strategy.ForKind(cfg.PublishStrategy, edge, hostedSQL)

	router := api.NewRouter(srv)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr), zap.String("publish_strategy", string(cfg.PublishStrategy)))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// buildSyncRedis builds the redis client backing the sync executor's
// per-job capture buffer (spec.md §4.E step 2). It reuses the same
// Upstash-or-plain-redis URL/token pair the cache tier is configured with,
// since both are "the one external KV the process was given."
func buildSyncRedis(cfg *config.Config) *redis.Client {
	if cfg.UpstashRedisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(cfg.UpstashRedisURL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.UpstashRedisURL}
	}
	if cfg.UpstashToken != "" {
		opts.Password = cfg.UpstashToken
	}
	return redis.NewClient(opts)
}
