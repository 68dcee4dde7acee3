package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"github.com/vitos/crypto_orderflow/internal/infrastructure/exchange"
	"github.com/vitos/crypto_orderflow/internal/infrastructure/logger"
)

func main() {
	symbols := flag.String("symbols", "BTCUSDT", "comma separated symbols")
	duration := flag.Duration("duration", 10*time.Second, "how long to listen")
	ws := flag.String("ws", exchange.BinanceWSURL, "websocket endpoint")
	rest := flag.String("rest", exchange.BinanceRESTURL, "REST endpoint")
	flag.Parse()

	list := strings.Split(strings.ToUpper(*symbols), ",")
	log, err := logger.NewLogger("info")
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	// 1. Check REST (recent aggregated trades)
	client := exchange.NewBinanceREST(*rest)
	for _, s := range list {
		ticks, err := client.RecentAggTrades(ctx, s, 5)
		if err != nil {
			fmt.Printf("❌ Failed to get recent trades for %s: %v\n", s, err)
			continue
		}
		fmt.Printf("✅ %s: %d recent trades\n", s, len(ticks))
		for _, t := range ticks {
			fmt.Printf("   %d price=%f qty=%f buy=%v\n", t.Timestamp, t.Price, t.Quantity, t.IsBuy())
		}
	}

	// 2. Check WebSocket stream
	feed := exchange.NewBinanceFeed(*ws, log)
	fmt.Printf("Listening on %s for %s...\n", feed.StreamURL(list), *duration)
	var count int64
	_ = feed.Stream(ctx, list, func(st domain.SymbolTick) {
		n := atomic.AddInt64(&count, 1)
		if n <= 20 {
			side := "SELL"
			if st.Tick.IsBuy() {
				side = "BUY "
			}
			fmt.Printf("%s %s %f x %f\n", st.Symbol, side, st.Tick.Price, st.Tick.Quantity)
		}
	})

	if atomic.LoadInt64(&count) == 0 {
		fmt.Printf("❌ No ticks received\n")
		os.Exit(1)
	}
	fmt.Printf("✅ Received %d ticks\n", atomic.LoadInt64(&count))
}
