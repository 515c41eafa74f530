package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lattice/api/internal/app"
	"lattice/api/internal/cache"
	"lattice/api/internal/config"
	"lattice/api/internal/docsource"
	"lattice/api/internal/gitrepo"
	"lattice/api/internal/logger"
	"lattice/api/internal/search"
	"lattice/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.FromEnv("info", "text").Fatal("invalid configuration", "error", err)
	}
	log := logger.FromEnv(cfg.LogLevel, cfg.LogFormat)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connection failed", "error", err)
	}
	defer db.Close()
	if err := store.ApplyMigrations(ctx, db); err != nil {
		log.Fatal("migrations failed", "error", err)
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatal("failed to create repos dir", "error", err)
	}

	var source docsource.Store
	switch cfg.Source {
	case config.SourceMinio:
		source, err = docsource.NewMinio(ctx, cfg.Minio)
	default:
		source, err = docsource.NewFS(cfg.SourceDir)
	}
	if err != nil {
		log.Fatal("document source unavailable", "source", cfg.Source, "error", err)
	}

	var renderCache cache.Cache = cache.Noop{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			log.Fatal("redis connection failed", "error", err)
		}
		defer redisCache.Close()
		renderCache = redisCache
		log.Info("render cache enabled", "backend", "redis")
	}

	var searchBackend search.Backend
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meili.Close()
		searchBackend = meili
	}

	service, err := app.New(ctx, app.Deps{
		Store:              store.New(db),
		Source:             source,
		History:            gitrepo.New(cfg.ReposDir),
		Cache:              renderCache,
		Search:             searchBackend,
		Log:                log,
		IndexWorkers:       cfg.IndexWorkers,
		IndexQueue:         cfg.IndexQueue,
		ReindexParallelism: cfg.ReindexParallelism,
	})
	if err != nil {
		log.Fatal("service init failed", "error", err)
	}
	service.Start(ctx)
	defer service.Close()

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("Lattice API listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
