package domain

import "fmt"

type SignalType string

const (
	SignalStackedImbalanceBuy  SignalType = "stacked_imbalance_buy"
	SignalStackedImbalanceSell SignalType = "stacked_imbalance_sell"
	SignalDeltaDivergenceBull  SignalType = "delta_divergence_bull"
	SignalDeltaDivergenceBear  SignalType = "delta_divergence_bear"
	SignalAbsorptionSupport    SignalType = "absorption_support"
	SignalAbsorptionResistance SignalType = "absorption_resistance"
	SignalExhaustionBull       SignalType = "exhaustion_bull"
	SignalExhaustionBear       SignalType = "exhaustion_bear"
	SignalCVDConfirmsUp        SignalType = "cvd_confirms_up"
	SignalCVDConfirmsDown      SignalType = "cvd_confirms_down"
	SignalPOCMagnetLong        SignalType = "poc_magnet_long"
	SignalPOCMagnetShort       SignalType = "poc_magnet_short"
)

// IsBullish reports whether the signal argues for a long. Exhaustion of sellers is bullish.
func (t SignalType) IsBullish() bool {
	switch t {
	case SignalStackedImbalanceBuy, SignalDeltaDivergenceBull, SignalAbsorptionSupport,
		SignalExhaustionBear, SignalCVDConfirmsUp, SignalPOCMagnetLong:
		return true
	}
	return false
}

// IsBearish reports whether the signal argues for a short. Exhaustion of buyers is bearish.
func (t SignalType) IsBearish() bool {
	switch t {
	case SignalStackedImbalanceSell, SignalDeltaDivergenceBear, SignalAbsorptionResistance,
		SignalExhaustionBull, SignalCVDConfirmsDown, SignalPOCMagnetShort:
		return true
	}
	return false
}

// SignalDetail is the detector-specific payload of an OrderFlowSignal.
// Exactly one concrete type exists per detector family.
type SignalDetail interface {
	describe(t SignalType, price float64) string
}

// StackDetail describes a run of consecutive imbalanced levels.
type StackDetail struct {
	Levels    int     `json:"levels"`
	LowPrice  float64 `json:"low_price"`
	HighPrice float64 `json:"high_price"`
}

func (d StackDetail) describe(t SignalType, _ float64) string {
	side := "buy"
	if t == SignalStackedImbalanceSell {
		side = "sell"
	}
	return fmt.Sprintf("%d stacked %s levels at %.2f-%.2f", d.Levels, side, d.LowPrice, d.HighPrice)
}

// DivergenceDetail carries the deltas that disagreed with the price move.
type DivergenceDetail struct {
	Delta     float64 `json:"delta"`
	PrevDelta float64 `json:"prev_delta"`
}

func (d DivergenceDetail) describe(t SignalType, _ float64) string {
	if t == SignalDeltaDivergenceBull {
		return fmt.Sprintf("price down but delta rising (%+.2f), hidden buying", d.Delta)
	}
	return fmt.Sprintf("price up but delta falling (%+.2f), hidden selling", d.Delta)
}

// AbsorptionDetail is one absorbing level and its volume relative to the candle average.
type AbsorptionDetail struct {
	BidVolume      float64 `json:"bid_volume"`
	AskVolume      float64 `json:"ask_volume"`
	RatioToAverage float64 `json:"ratio_to_average"`
}

func (d AbsorptionDetail) describe(t SignalType, price float64) string {
	if t == SignalAbsorptionSupport {
		return fmt.Sprintf("bid absorption at %.2f, bid %.1f vs ask %.1f", price, d.BidVolume, d.AskVolume)
	}
	return fmt.Sprintf("ask absorption at %.2f, ask %.1f vs bid %.1f", price, d.AskVolume, d.BidVolume)
}

// ExhaustionDetail compares the latest candle's effort and result with its predecessors.
type ExhaustionDetail struct {
	DeltaRatio float64 `json:"delta_ratio"`
	RangeRatio float64 `json:"range_ratio"`
}

func (d ExhaustionDetail) describe(t SignalType, _ float64) string {
	side := "sell"
	if t == SignalExhaustionBull {
		side = "buy"
	}
	return fmt.Sprintf("%s exhaustion, high %s delta without follow-through (delta ratio %.1f)",
		t.direction(), side, d.DeltaRatio)
}

// CVDDetail is the CVD slope that confirmed the candle direction.
type CVDDetail struct {
	Slope float64 `json:"slope"`
}

func (d CVDDetail) describe(t SignalType, _ float64) string {
	if t == SignalCVDConfirmsUp {
		return fmt.Sprintf("CVD trending up confirms bullish move (slope %+.3f)", d.Slope)
	}
	return fmt.Sprintf("CVD trending down confirms bearish move (slope %+.3f)", d.Slope)
}

// POCDetail is the distance of the close from the previous candle's POC.
type POCDetail struct {
	POC         float64 `json:"poc"`
	DistancePct float64 `json:"distance_pct"`
}

func (d POCDetail) describe(t SignalType, _ float64) string {
	if t == SignalPOCMagnetLong {
		return fmt.Sprintf("price %.2f%% below prev POC (%.2f), pull up", d.DistancePct, d.POC)
	}
	return fmt.Sprintf("price %.2f%% above prev POC (%.2f), pull down", d.DistancePct, d.POC)
}

func (t SignalType) direction() string {
	if t.IsBullish() {
		return "bullish"
	}
	return "bearish"
}

// OrderFlowSignal is one detector hit on a closed candle.
type OrderFlowSignal struct {
	Type      SignalType   `json:"type"`
	Strength  float64      `json:"strength"` // 0..100
	Price     float64      `json:"price"`
	Timestamp int64        `json:"timestamp"`
	Detail    SignalDetail `json:"detail,omitempty"`
}

// Description renders a human-readable summary from the typed detail.
func (s OrderFlowSignal) Description() string {
	if s.Detail == nil {
		return string(s.Type)
	}
	return s.Detail.describe(s.Type, s.Price)
}
