package domain

// LevelType says where a price sits relative to a composite profile.
type LevelType string

const (
	LevelNone     LevelType = "none"
	LevelPOC      LevelType = "poc"
	LevelBelowVA  LevelType = "below_va"
	LevelAboveVA  LevelType = "above_va"
	LevelBelowPOC LevelType = "below_poc"
	LevelAbovePOC LevelType = "above_poc"
	LevelInsideVA LevelType = "inside_va"
)

// BiasResult is a single profile's mean-reversion opinion about a price.
type BiasResult struct {
	Bias      int       `json:"bias"`
	LevelType LevelType `json:"level_type"`
	Reason    string    `json:"reason"`
}

// CombinedBias merges the daily and weekly opinions.
type CombinedBias struct {
	Bias   int        `json:"bias"`
	Daily  BiasResult `json:"daily"`
	Weekly BiasResult `json:"weekly"`
}

// VolumeNodeRatio is a high or low volume node with its volume relative to the profile mean.
type VolumeNodeRatio struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
	Ratio  float64 `json:"ratio"`
}

type ProfileAnalysis struct {
	POC         float64           `json:"poc"`
	VAHigh      float64           `json:"va_high"`
	VALow       float64           `json:"va_low"`
	TotalVolume float64           `json:"total_volume"`
	Candles     int               `json:"candles"`
	Levels      int               `json:"levels"`
	HVN         []VolumeNodeRatio `json:"hvn"`
	LVN         []VolumeNodeRatio `json:"lvn"`
}

type MultiPeriodAnalysis struct {
	Session ProfileAnalysis `json:"session"`
	Daily   ProfileAnalysis `json:"daily"`
	Weekly  ProfileAnalysis `json:"weekly"`
}

type Confirmation string

const (
	ConfirmationConfirmed Confirmation = "confirmed"
	ConfirmationDivergent Confirmation = "divergent"
	ConfirmationMixed     Confirmation = "mixed"
	ConfirmationNoData    Confirmation = "no_data"
)

// TimeframeDetail is one higher timeframe's contribution to an HTF bias.
type TimeframeDetail struct {
	Delta        float64 `json:"delta"`
	Direction    string  `json:"direction"` // bull or bear
	CVDDirection string  `json:"cvd_direction"`
}

// HTFBias says whether higher timeframes agree with the base timeframe's last candle.
type HTFBias struct {
	Bias         int                     `json:"bias"` // positive favors longs
	Confirmation Confirmation            `json:"confirmation"`
	Details      map[int]TimeframeDetail `json:"details"` // keyed by timeframe minutes
}
