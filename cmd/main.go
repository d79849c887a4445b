package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"arrears-recon/internal/clients"
	"arrears-recon/internal/config"
	"arrears-recon/internal/domain"
	"arrears-recon/internal/extraction"
	"arrears-recon/internal/repository"
	"arrears-recon/internal/service"
	"arrears-recon/internal/transport/auth"
	"arrears-recon/internal/transport/rest"
	"arrears-recon/internal/transport/websocket"
	"arrears-recon/pkg/database/postgres"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)
	if envErr != nil {
		logger.Info("no .env file found, using system env or defaults")
	}

	decimal.MarshalJSONWithoutQuotes = true

	// top-level context which we can cancel on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore := mustInitStore(ctx, cfg, logger)
	defer closeStore()

	defaults := domain.YearConfig{Start: cfg.DefaultStartYear, End: cfg.DefaultEndYear}
	ledger := service.NewLedger(repository.NewStateRepository(store), defaults, logger)
	if err := ledger.Load(ctx); err != nil {
		logger.Fatalf("ledger load error: %v", err)
	}

	storageClient, err := clients.NewLocalStorage(cfg.ExportDir, cfg.FilesPublicPrefix, cfg.ExternalURL)
	if err != nil {
		logger.Fatalf("storage init error: %v", err)
	}

	s3Client := mustInitS3(cfg.S3, logger)

	wsHub := websocket.NewHub(logger)
	go wsHub.Run(ctx)
	wsClient := clients.NewWebSocketClient(wsHub)

	if cfg.Extraction.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is empty, extraction calls will be rejected")
	}
	extractor := extraction.NewGeminiClient(extraction.ClientConfig{
		BaseURL:     cfg.Extraction.APIURL,
		APIKey:      cfg.Extraction.APIKey,
		Model:       cfg.Extraction.Model,
		MaxRetries:  cfg.Extraction.MaxRetries,
		BaseBackoff: time.Duration(cfg.Extraction.BaseBackoffSeconds) * time.Second,
		Timeout:     time.Duration(cfg.Extraction.TimeoutSeconds) * time.Second,
	}, logger)

	var archiver service.Archiver
	if cfg.ArchiveSources && s3Client != nil {
		archiver = s3Client
	}

	ingestor := service.NewIngestor(ledger, extractor, archiver, wsClient, logger)
	exportSvc := service.NewExportService(ledger, storageClient, s3Client, wsClient, logger)

	tokenMiddleware := auth.TokenMiddleware(cfg.Token, logger)

	handler := rest.NewHandler(ledger, ingestor, exportSvc, logger)
	router := handler.InitRouterWithAuth(tokenMiddleware)

	// protected websocket feed; browsers pass the token as ?token=
	router.Get("/ws", wsHub.HandleWebSocket)

	// /files stays public so exported links can be opened directly
	root := chi.NewRouter()

	root.Get(storageClient.PublicPrefix+"/{file}", func(w http.ResponseWriter, r *http.Request) {
		file := chi.URLParam(r, "file")
		path, err := storageClient.Path(file)
		if err != nil {
			if errors.Is(err, clients.ErrFileNotFound) {
				http.NotFound(w, r)
				return
			}
			http.Error(w, "failed to access file", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", clients.OriginalName(file)))
		http.ServeFile(w, r, path)
	})

	root.Mount("/", router)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     withCORS(root),
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Infof("HTTP server listening on :%s (store=%s)", cfg.Port, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
			return
		}
		srvErr <- nil
	}()

	retention := time.Duration(cfg.FileRetentionMins) * time.Minute
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := storageClient.CleanupOlderThan(retention); err != nil {
					logger.WithField("module", "storage").Warnf("cleanup error: %v", err)
				}
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srvErr:
		if err != nil {
			logger.Fatalf("HTTP server error: %v", err)
		}
	case sig := <-stop:
		logger.Infof("Shutdown signal received: %v", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("HTTP server Shutdown error: %v", err)
		}

		// stops the websocket hub and the cleaner
		cancel()

		logger.Info("Shutdown complete")
	}
}

// mustInitStore opens the blob store selected by STORE_DRIVER and returns a
// func releasing it.
func mustInitStore(ctx context.Context, cfg config.AppConfig, logger *logrus.Logger) (repository.BlobStore, func()) {
	switch cfg.StoreDriver {
	case config.StoreRedis:
		client, err := clients.NewRedisClient(ctx, clients.RedisConfig{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			MaxRetries:  cfg.Redis.MaxRetries,
			DialTimeout: time.Duration(cfg.Redis.DialTimeout) * time.Second,
			Timeout:     time.Duration(cfg.Redis.Timeout) * time.Second,
			Prefix:      cfg.Redis.Prefix,
		})
		if err != nil {
			logger.Fatalf("redis init error: %v", err)
		}
		return client, client.Close

	case config.StorePostgres:
		db := mustInitPostgres(ctx, cfg.Postgres, logger)
		store := repository.NewPostgresStore(db)
		if err := store.Migrate(ctx); err != nil {
			logger.Fatalf("postgres migrate error: %v", err)
		}
		return store, func() {
			if err := postgres.Close(db); err != nil {
				logger.Warnf("postgres close error: %v", err)
			}
		}

	case config.StoreMemory:
		logger.Warn("STORE_DRIVER=memory, state is lost on restart")
		return repository.NewMemoryStore(), func() {}
	}

	logger.Fatalf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	return nil, nil
}

func mustInitPostgres(ctx context.Context, cfg config.PostgresConfig, logger *logrus.Logger) *sql.DB {
	db, err := postgres.NewPostgresConnection(ctx, postgres.ConnectionInfo{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Username: cfg.User,
		DBName:   cfg.DBName,
		SSLMode:  cfg.SSLMode,
		Password: cfg.Password,
	})
	if err != nil {
		logger.Fatalf("postgres init error: %v", err)
	}
	return db
}

// mustInitS3 returns nil when S3 is disabled; exports then go to local storage.
func mustInitS3(cfg config.S3Config, logger *logrus.Logger) *clients.S3Client {
	if !cfg.Enabled {
		return nil
	}
	client, err := clients.NewS3Client(clients.S3Config{
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		Bucket:          cfg.Bucket,
		UseSSL:          cfg.UseSSL,
		Region:          cfg.Region,
		Prefix:          cfg.Prefix,
	})
	if err != nil {
		logger.Fatalf("s3 init error: %v", err)
	}
	return client
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")

			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
