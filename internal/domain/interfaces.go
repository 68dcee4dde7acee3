package domain

import "context"

// SymbolTick is a tick tagged with the market it belongs to.
type SymbolTick struct {
	Symbol string
	Tick   RawTick
}

// TickSource delivers ticks in arrival order until ctx is cancelled or the source is exhausted.
type TickSource interface {
	Stream(ctx context.Context, symbols []string, handle func(SymbolTick)) error
}

// SignalRecord is a journaled order-flow signal or sweep.
type SignalRecord struct {
	ID          int64   `json:"id" db:"id"`
	Symbol      string  `json:"symbol" db:"symbol"`
	Type        string  `json:"type" db:"signal_type"`
	Strength    float64 `json:"strength" db:"strength"`
	Price       float64 `json:"price" db:"price"`
	Timestamp   int64   `json:"timestamp" db:"ts"`
	Description string  `json:"description" db:"description"`
}

// Journal records what the pipelines produced.
type Journal interface {
	SaveCandle(ctx context.Context, symbol string, candle FootprintCandle) error
	SaveSignals(ctx context.Context, symbol string, signals []OrderFlowSignal) error
	SaveSweeps(ctx context.Context, symbol string, sweeps []SweepEvent) error
	SaveTradeSignal(ctx context.Context, trade *TradeSignal) (string, error)
	ListSignals(ctx context.Context, symbol string, limit int) ([]SignalRecord, error)
	ListTradeSignals(ctx context.Context, limit int) ([]TradeSignal, error)
}
