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

	"calorie-app/internal/app"
	"calorie-app/internal/config"
	"calorie-app/internal/database"
	"calorie-app/internal/logging"
	"calorie-app/internal/metrics"
	"calorie-app/internal/telegram"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: could not read .env: %v\n", err)
	}

	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateTelegram(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid telegram config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx := context.Background()

	// 2. Resolution pipeline
	pipeline, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build resolver", zap.Error(err))
	}
	defer pipeline.Close()

	// 3. History store
	db, err := database.NewDB(cfg.DatabasePath, logger.Named("database"))
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	metricsStore := metrics.NewStore(db.SQL)
	defer metricsStore.Close()

	// 4. Telegram Bot
	bot, err := telegram.NewBot(cfg, pipeline, metricsStore, logger.Named("telegram"))
	if err != nil {
		logger.Fatal("failed to initialize telegram bot", zap.Error(err))
	}

	mux := http.NewServeMux()
	bot.RegisterHandlers(mux)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 5. Start Server with Graceful Shutdown
	go func() {
		logger.Info("telegram bot server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
