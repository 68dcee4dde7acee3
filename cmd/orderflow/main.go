package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_orderflow/internal/config"
	"github.com/vitos/crypto_orderflow/internal/infrastructure/exchange"
	"github.com/vitos/crypto_orderflow/internal/infrastructure/logger"
	"github.com/vitos/crypto_orderflow/internal/infrastructure/storage"
	"github.com/vitos/crypto_orderflow/internal/metrics"
	"github.com/vitos/crypto_orderflow/internal/usecase"
	"github.com/vitos/crypto_orderflow/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level, true)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Pipelines
	params, err := cfg.PipelineParams()
	if err != nil {
		log.Fatal("Failed to resolve pipeline params", zap.Error(err))
	}
	m := metrics.New()
	svc, err := usecase.NewPipelineService(params, store, m, log)
	if err != nil {
		log.Fatal("Failed to init pipelines", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Init Web Server
	server := web.NewServer(cfg.Server.Port, svc, store, m.Handler(), log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	// 6. Stream ticks until shutdown
	feed := exchange.NewBinanceFeed(cfg.Exchange.WSEndpoint, log)
	log.Info("Starting order-flow pipelines", zap.Strings("symbols", svc.Symbols()))
	if err := svc.Run(ctx, feed); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Feed stopped", zap.Error(err))
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
