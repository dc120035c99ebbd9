// README: Entry point; loads config, wires the directory manager and match service, starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"tripmate/internal/config"
	httptransport "tripmate/internal/http"
	"tripmate/internal/http/handlers"
	"tripmate/internal/infra"
	"tripmate/internal/modules/directory"
	"tripmate/internal/modules/matching"
	"tripmate/internal/upstream"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := infra.NewLogger(cfg.Log.Level, cfg.Log.Dev)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		logger.Fatal("firebase init", zap.Error(err))
	}

	redisClient, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		logger.Fatal("redis init", zap.Error(err))
	}
	defer redisClient.Close()

	var (
		journal matching.Journal
		history handlers.History
	)
	if cfg.DB.DSN != "" {
		dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal("postgres init", zap.Error(err))
		}
		defer dbPool.Close()
		store := matching.NewStore(dbPool)
		if err := store.EnsureSchema(ctx); err != nil {
			logger.Fatal("journal schema", zap.Error(err))
		}
		journal, history = store, store
	} else {
		logger.Info("TRIPMATE_DB_DSN not set, match journal disabled")
	}

	client := upstream.NewClient(cfg.Upstream.URL, cfg.Upstream.Timeout)
	manager := directory.NewManager(directory.NewRedisStore(redisClient), cfg.Session.TTL, logger)
	matchingSvc := matching.NewService(journal, logger)

	srv := httptransport.NewServer(httptransport.ServerDeps{
		Manager:      manager,
		Matching:     matchingSvc,
		History:      history,
		Backend:      handlers.UpstreamBackend(client),
		Verifier:     verifier,
		Log:          logger,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
		FeedPageSize: cfg.Session.FeedPageSize,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
	}()

	logger.Info("tripmate api listening", zap.String("addr", cfg.HTTP.Addr), zap.String("upstream", cfg.Upstream.URL))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server", zap.Error(err))
	}
}
