package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"rostrum/api/internal/app"
	"rostrum/api/internal/archive"
	"rostrum/api/internal/config"
	"rostrum/api/internal/docstore"
	"rostrum/api/internal/export"
	"rostrum/api/internal/gitrepo"
	"rostrum/api/internal/search"
	"rostrum/api/internal/session"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	// Document store: Postgres when configured, in-memory otherwise. The
	// memory backend is single-process only; fine for development.
	var docs docstore.Store
	var pgStore *docstore.PostgresStore
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		db, err := docstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()

		if err := docstore.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}

		var notifier docstore.Notifier
		if strings.TrimSpace(cfg.RedisURL) != "" {
			notifier, err = docstore.NewRedisNotifier(cfg.RedisURL)
			if err != nil {
				log.Fatalf("redis notifier failed: %v", err)
			}
			defer notifier.Close()
			log.Printf("main: change notifications over Redis")
		} else {
			notifier = docstore.NewLocalNotifier()
			log.Printf("main: change notifications in-process only")
		}

		pgStore = docstore.NewPostgresStore(db, notifier)
		docs = pgStore
	} else {
		log.Printf("main: no DATABASE_URL, using in-memory document store")
		docs = docstore.NewMemoryStore()
	}

	var sessions session.Registry
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisRegistry, err := session.NewRedisRegistry(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis session registry failed: %v", err)
		}
		defer redisRegistry.Close()
		sessions = redisRegistry
		log.Printf("main: sessions in Redis")
	} else {
		sessions = session.NewMemoryRegistry()
		log.Printf("main: sessions in memory")
	}

	if err := os.MkdirAll(cfg.ReposDir, 0o755); err != nil {
		log.Fatalf("failed to create repos dir: %v", err)
	}
	history := gitrepo.New(cfg.ReposDir)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	var pgfts *search.PgFTS
	if pgStore != nil {
		pgfts = search.NewPgFTS(pgStore.DB())
	}
	var searchService *search.Service
	if meiliClient != nil || pgfts != nil {
		searchService = search.NewService(meiliClient, pgfts)
		go searchService.ReindexAllFromPG(ctx)
	} else {
		log.Printf("main: search disabled, no Meilisearch or Postgres backend")
	}

	var archiveService *archive.Service
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		var err error
		archiveService, err = archive.New(archive.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
		if err := archiveService.EnsureBucket(ctx); err != nil {
			log.Printf("WARNING: export archive bucket unavailable: %v", err)
		}
	}

	service := app.NewService(cfg, app.Deps{
		Docs:     docs,
		Sessions: sessions,
		Export:   export.NewService(),
		History:  history,
		Search:   searchService,
		Archive:  archiveService,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewServer(service, cfg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: the watch stream holds its response open for the
		// whole session.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Rostrum API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
