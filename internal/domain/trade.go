package domain

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type StrategyType string

const (
	StrategyReversal     StrategyType = "reversal"
	StrategyBreakout     StrategyType = "breakout"
	StrategyPOCReversion StrategyType = "poc_reversion"
)

// TradeSignal is a directional proposal built from one candle's signals.
// The core never mutates a TradeSignal once it is returned.
type TradeSignal struct {
	ID                  string            `json:"id,omitempty"`
	Symbol              string            `json:"symbol,omitempty"`
	Side                Side              `json:"side"`
	Strategy            StrategyType      `json:"strategy"`
	EntryPrice          float64           `json:"entry_price"`
	StopLoss            float64           `json:"stop_loss"`
	TakeProfit          float64           `json:"take_profit"`
	ConfluenceScore     float64           `json:"confluence_score"`
	ContributingSignals []OrderFlowSignal `json:"signals"`
	Timestamp           int64             `json:"timestamp"` // candle bucket start, ms
}

// SignalTypes lists the contributing signal types in order of appearance.
func (t TradeSignal) SignalTypes() []SignalType {
	out := make([]SignalType, 0, len(t.ContributingSignals))
	for _, s := range t.ContributingSignals {
		out = append(out, s.Type)
	}
	return out
}

// BiasSource names a module that adjusts a proposal's score.
type BiasSource string

const (
	BiasSweep         BiasSource = "sweep"
	BiasVolumeProfile BiasSource = "volume_profile"
	BiasHigherTF      BiasSource = "higher_timeframe"
)

// Bias is one score adjustment. Positive values favor longs, negative favor shorts.
type Bias struct {
	Source BiasSource `json:"source"`
	Value  int        `json:"value"`
}

// SumBias reduces biases by summation.
func SumBias(biases []Bias) int {
	total := 0
	for _, b := range biases {
		total += b.Value
	}
	return total
}
