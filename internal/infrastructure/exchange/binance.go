package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

const (
	BinanceWSURL   = "wss://fstream.binance.com"
	BinanceRESTURL = "https://fapi.binance.com"

	minReconnectDelay = time.Second
	maxReconnectDelay = 60 * time.Second
	pingInterval      = 15 * time.Second
	readTimeout       = 60 * time.Second
)

// ErrNotAggTrade is returned by ParseAggTrade for valid JSON that is not an aggTrade event
// (subscription acks, other streams).
var ErrNotAggTrade = errors.New("not an aggTrade event")

type aggTrade struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// ParseAggTrade decodes a futures aggTrade message, either bare or wrapped in a combined-stream envelope.
func ParseAggTrade(msg []byte) (domain.SymbolTick, error) {
	var env combinedEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return domain.SymbolTick{}, fmt.Errorf("decode message: %w", err)
	}
	payload := msg
	if len(env.Data) > 0 {
		payload = env.Data
	}

	var t aggTrade
	if err := json.Unmarshal(payload, &t); err != nil {
		return domain.SymbolTick{}, fmt.Errorf("decode aggTrade: %w", err)
	}
	if t.Event != "aggTrade" {
		return domain.SymbolTick{}, ErrNotAggTrade
	}

	symbol := strings.ToUpper(t.Symbol)
	if symbol == "" {
		symbol = streamSymbol(env.Stream)
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return domain.SymbolTick{}, fmt.Errorf("invalid price %q: %w", t.Price, err)
	}
	qty, err := strconv.ParseFloat(t.Quantity, 64)
	if err != nil {
		return domain.SymbolTick{}, fmt.Errorf("invalid quantity %q: %w", t.Quantity, err)
	}

	return domain.SymbolTick{
		Symbol: symbol,
		Tick: domain.RawTick{
			Timestamp:    t.TradeTime,
			Price:        price,
			Quantity:     qty,
			IsBuyerMaker: t.IsBuyerMaker,
		},
	}, nil
}

func streamSymbol(stream string) string {
	name, _, _ := strings.Cut(stream, "@")
	return strings.ToUpper(name)
}

// BinanceFeed is a domain.TickSource over the futures combined aggTrade stream.
type BinanceFeed struct {
	endpoint   string
	dialer     *websocket.Dialer
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewBinanceFeed(endpoint string, logger *zap.Logger) *BinanceFeed {
	if endpoint == "" {
		endpoint = BinanceWSURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BinanceFeed{
		endpoint:   strings.TrimRight(endpoint, "/"),
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger,
		minBackoff: minReconnectDelay,
		maxBackoff: maxReconnectDelay,
	}
}

// StreamURL is the combined-stream URL for symbols.
func (f *BinanceFeed) StreamURL(symbols []string) string {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@aggTrade"
	}
	return f.endpoint + "/stream?streams=" + strings.Join(streams, "/")
}

// Stream delivers ticks until ctx is cancelled, reconnecting with a doubling delay capped at one minute.
// The delay resets once a connection delivers a tick.
func (f *BinanceFeed) Stream(ctx context.Context, symbols []string, handle func(domain.SymbolTick)) error {
	if len(symbols) == 0 {
		return errors.New("binance feed requires at least one symbol")
	}
	url := f.StreamURL(symbols)
	backoff := f.minBackoff

	for {
		delivered, err := f.consume(ctx, url, symbols, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if delivered {
			backoff = f.minBackoff
		}
		f.logger.Warn("Binance feed disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("delay", backoff),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, f.maxBackoff)
	}
}

func (f *BinanceFeed) consume(ctx context.Context, url string, symbols []string, handle func(domain.SymbolTick)) (bool, error) {
	conn, _, err := f.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	f.logger.Info("Connected to Binance aggTrade stream", zap.Strings("symbols", symbols))

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			case <-ctx.Done():
				// unblocks ReadMessage
				conn.Close()
				return
			case <-done:
				return
			}
		}
	}()

	delivered := false
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return delivered, err
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		st, err := ParseAggTrade(message)
		if errors.Is(err, ErrNotAggTrade) {
			continue
		}
		if err != nil {
			f.logger.Warn("Failed to parse Binance message", zap.Error(err))
			continue
		}
		delivered = true
		handle(st)
	}
}
