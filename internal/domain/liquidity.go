package domain

import "fmt"

// SwingPoint is a local 5-candle extremum.
type SwingPoint struct {
	Price     float64 `json:"price"`
	Index     int     `json:"index"` // position in the window it was found in
	Timestamp int64   `json:"timestamp"`
}

type SweepType string

const (
	SweepStopHuntBear SweepType = "stop_hunt_bear"
	SweepStopHuntBull SweepType = "stop_hunt_bull"
)

// SweepEvent is a wick through a swing level that closed back inside.
type SweepEvent struct {
	Type      SweepType `json:"type"`
	Level     float64   `json:"level"`
	WickPrice float64   `json:"wick_price"` // candle high for bear sweeps, low for bull sweeps
	SweepPct  float64   `json:"sweep_pct"`
	Rejection float64   `json:"rejection"` // percent of range reclaimed after the wick
	Strength  float64   `json:"strength"`
	Timestamp int64     `json:"timestamp"`
}

func (e SweepEvent) Description() string {
	if e.Type == SweepStopHuntBear {
		return fmt.Sprintf("bearish stop hunt: swept %.2f high by %.3f%%, rejected back", e.Level, e.SweepPct)
	}
	return fmt.Sprintf("bullish stop hunt: swept %.2f low by %.3f%%, rejected back", e.Level, e.SweepPct)
}

// NearbyLevels are swing levels close to a price, nearest first.
type NearbyLevels struct {
	Resistance []float64 `json:"resistance"`
	Support    []float64 `json:"support"`
}
