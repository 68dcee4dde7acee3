package domain

type Regime string

const (
	RegimeTrendingUp   Regime = "trending_up"
	RegimeTrendingDown Regime = "trending_down"
	RegimeRanging      Regime = "ranging"
	RegimeVolatile     Regime = "volatile"
	RegimeLowVolume    Regime = "low_volume"
)

// AvoidAll is the Avoid value of a regime that suppresses every strategy.
const AvoidAll StrategyType = "all"

// StrategyGuidance is the fixed playbook for a regime.
type StrategyGuidance struct {
	Favor          StrategyType `json:"favor,omitempty"`
	Avoid          StrategyType `json:"avoid,omitempty"`
	SizeMultiplier float64      `json:"size_multiplier"`
}

var regimeGuidance = map[Regime]StrategyGuidance{
	RegimeTrendingUp:   {Favor: StrategyBreakout, Avoid: StrategyPOCReversion, SizeMultiplier: 1.0},
	RegimeTrendingDown: {Favor: StrategyBreakout, Avoid: StrategyPOCReversion, SizeMultiplier: 1.0},
	RegimeRanging:      {Favor: StrategyPOCReversion, Avoid: StrategyBreakout, SizeMultiplier: 0.8},
	RegimeVolatile:     {Favor: StrategyReversal, Avoid: StrategyBreakout, SizeMultiplier: 0.5},
	RegimeLowVolume:    {Avoid: AvoidAll, SizeMultiplier: 0},
}

// Guidance returns the regime's playbook. Unknown regimes get the ranging playbook.
func (r Regime) Guidance() StrategyGuidance {
	if g, ok := regimeGuidance[r]; ok {
		return g
	}
	return regimeGuidance[RegimeRanging]
}

// Blocks reports whether the guidance rules out a strategy.
func (g StrategyGuidance) Blocks(s StrategyType) bool {
	return g.Avoid == AvoidAll || (g.Avoid != "" && g.Avoid == s)
}

// RegimeMetrics are the measurements a regime was classified from.
type RegimeMetrics struct {
	Volatility   float64 `json:"volatility"`
	Trend        float64 `json:"trend"`
	VolumeHealth float64 `json:"volume_health"`
}
