package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/vitos/crypto_orderflow/internal/config"
	"github.com/vitos/crypto_orderflow/internal/domain"
	"github.com/vitos/crypto_orderflow/internal/infrastructure/logger"
	"github.com/vitos/crypto_orderflow/internal/infrastructure/replay"
	"github.com/vitos/crypto_orderflow/internal/infrastructure/storage"
	"github.com/vitos/crypto_orderflow/internal/usecase"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config")
	file := flag.String("file", "", "CSV tick file: timestamp,price,quantity,is_buyer_maker[,symbol]")
	symbol := flag.String("symbol", "", "symbol for rows without one (defaults to the first configured symbol)")
	dbPath := flag.String("db", "", "journal the replay into this SQLite file")
	verbose := flag.Bool("v", false, "print every candle, not only trade signals")
	flag.Parse()

	if *file == "" {
		fmt.Println("Usage: replay -file ticks.csv [-symbol BTCUSDT] [-db replay.db] [-v]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *symbol != "" {
		*symbol = strings.ToUpper(*symbol)
		if _, err := cfg.SymbolParams(*symbol); err != nil {
			cfg.Symbols = append(cfg.Symbols, config.SymbolConfig{Symbol: *symbol})
		}
	} else {
		*symbol = cfg.Symbols[0].Symbol
	}

	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var journal domain.Journal
	if *dbPath != "" {
		store, err := storage.NewSQLiteStore(*dbPath)
		if err != nil {
			log.Fatal("Failed to init sqlite", zap.Error(err))
		}
		defer store.Close()
		journal = store
	}

	params, err := cfg.PipelineParams()
	if err != nil {
		log.Fatal("Failed to resolve pipeline params", zap.Error(err))
	}
	svc, err := usecase.NewPipelineService(params, journal, nil, log)
	if err != nil {
		log.Fatal("Failed to init pipelines", zap.Error(err))
	}

	ctx := context.Background()
	var candles, trades int
	src := replay.NewCSVSource(*file, *symbol)
	err = src.Stream(ctx, svc.Symbols(), func(st domain.SymbolTick) {
		r, err := svc.HandleTick(ctx, st.Symbol, st.Tick)
		if err != nil {
			log.Warn("Tick rejected", zap.String("symbol", st.Symbol), zap.Error(err))
			return
		}
		if r == nil {
			return
		}
		candles++
		if *verbose {
			fmt.Printf("%s %d close=%.4f delta=%.4f cvd=%.4f regime=%s signals=%d\n",
				r.Symbol, r.Candle.Timestamp, r.Candle.Close, r.Candle.Delta(), r.CVD, r.Regime, len(r.Signals))
		}
		if r.Trade != nil {
			trades++
			t := r.Trade
			fmt.Printf("TRADE %s %s %s entry=%.4f sl=%.4f tp=%.4f score=%.1f signals=%v\n",
				t.Symbol, t.Side, t.Strategy, t.EntryPrice, t.StopLoss, t.TakeProfit, t.ConfluenceScore, t.SignalTypes())
		}
	})
	if err != nil {
		log.Fatal("Replay failed", zap.Error(err))
	}

	fmt.Printf("Replayed %s: %d candles, %d trade signals\n", *file, candles, trades)
}
