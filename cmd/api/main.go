package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lexvault/api/internal/app"
	"lexvault/api/internal/archive"
	"lexvault/api/internal/cache"
	"lexvault/api/internal/config"
	"lexvault/api/internal/diff"
	"lexvault/api/internal/export"
	"lexvault/api/internal/logger"
	"lexvault/api/internal/search"
	"lexvault/api/internal/store"
	"lexvault/api/internal/version"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	dataStore := store.NewPostgresStore(db)

	var opts []version.Option

	if strings.TrimSpace(cfg.RedisURL) != "" {
		pointerCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection failed")
		}
		defer pointerCache.Close()
		opts = append(opts, version.WithCache(pointerCache))
		log.Info().Msg("current-version pointer cache enabled")
	}

	var searchService *search.Service
	fallback := search.NewPgFallback(dataStore)
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		defer meiliClient.Close()
		searchService = search.NewService(meiliClient, fallback, log)
	} else {
		searchService = search.NewService(nil, fallback, log)
	}
	opts = append(opts, version.WithIndexer(searchService))

	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archiver, err := archive.NewMinioArchiver(archive.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, log)
		if err != nil {
			log.Fatal().Err(err).Msg("object storage connection failed")
		}
		opts = append(opts, version.WithArchiver(archiver))
		log.Info().Str("bucket", cfg.MinioBucket).Msg("retention archive enabled")
	}

	versionService := version.New(dataStore, diff.NewAnalyzer(), log, opts...)
	exportService := export.NewService(versionService)

	httpServer := app.NewHTTPServer(versionService, searchService, exportService, dataStore.Ping, cfg.CORSOrigin, log)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}
