package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vitos/crypto_orderflow/internal/infrastructure/storage"
)

func main() {
	dbPath := flag.String("db", "orderflow.db", "journal database")
	symbol := flag.String("symbol", "", "only signals for this symbol")
	limit := flag.Int("limit", 20, "rows per section")
	candles := flag.Bool("candles", false, "also print the latest candles for -symbol")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	sym := strings.ToUpper(*symbol)

	signals, err := store.ListSignals(ctx, sym, *limit)
	if err != nil {
		fmt.Printf("Failed to list signals: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Found %d signals:\n", len(signals))
	for _, s := range signals {
		fmt.Printf("- %s %s %-24s strength=%5.1f price=%f %s\n",
			formatTs(s.Timestamp), s.Symbol, s.Type, s.Strength, s.Price, s.Description)
	}

	trades, err := store.ListTradeSignals(ctx, *limit)
	if err != nil {
		fmt.Printf("Failed to list trade signals: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nFound %d trade signals:\n", len(trades))
	for _, t := range trades {
		fmt.Printf("- %s %s %s %s entry=%f sl=%f tp=%f score=%.1f signals=%v id=%s\n",
			formatTs(t.Timestamp), t.Symbol, t.Side, t.Strategy, t.EntryPrice, t.StopLoss, t.TakeProfit,
			t.ConfluenceScore, t.SignalTypes(), t.ID)
	}

	if *candles && sym != "" {
		list, err := store.ListCandles(ctx, sym, *limit)
		if err != nil {
			fmt.Printf("Failed to list candles: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nLast %d candles for %s:\n", len(list), sym)
		for _, c := range list {
			fmt.Printf("- %s O=%f H=%f L=%f C=%f delta=%.4f poc=%f levels=%d\n",
				formatTs(c.Timestamp), c.Open, c.High, c.Low, c.Close, c.Delta(), c.POC(), c.LevelCount())
		}
	}
}

func formatTs(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}
