package usecase

import (
	"math"
	"sort"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultMinSweepPct       = 0.05
	DefaultNearbyDistancePct = 0.5

	swingCapacity   = 50
	swingMinCandles = 5
	sweepBias       = 12
	minSweepRange   = 0.01
)

// LiquiditySweepDetector tracks swing highs and lows and flags candles that wick through them
// and close back inside.
type LiquiditySweepDetector struct {
	minSweepPct float64
	highs       *RingBuffer[domain.SwingPoint]
	lows        *RingBuffer[domain.SwingPoint]
	logger      *zap.Logger
}

func NewLiquiditySweepDetector(minSweepPct float64, logger *zap.Logger) *LiquiditySweepDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiquiditySweepDetector{
		minSweepPct: minSweepPct,
		highs:       NewRingBuffer[domain.SwingPoint](swingCapacity),
		lows:        NewRingBuffer[domain.SwingPoint](swingCapacity),
		logger:      logger,
	}
}

// UpdateSwings rebuilds the swing points from candles. A swing high strictly exceeds the two
// candles on each side; swing lows mirror it. With fewer than five candles nothing is tracked.
func (d *LiquiditySweepDetector) UpdateSwings(candles []domain.FootprintCandle) {
	d.highs.Clear()
	d.lows.Clear()
	if len(candles) < swingMinCandles {
		return
	}

	for i := 2; i < len(candles)-2; i++ {
		c := candles[i]
		l1, l2, r1, r2 := candles[i-1], candles[i-2], candles[i+1], candles[i+2]

		if c.High > l1.High && c.High > l2.High && c.High > r1.High && c.High > r2.High {
			d.highs.Push(domain.SwingPoint{Price: c.High, Index: i, Timestamp: c.Timestamp})
		}
		if c.Low < l1.Low && c.Low < l2.Low && c.Low < r1.Low && c.Low < r2.Low {
			d.lows.Push(domain.SwingPoint{Price: c.Low, Index: i, Timestamp: c.Timestamp})
		}
	}
}

func (d *LiquiditySweepDetector) SwingHighs() []domain.SwingPoint {
	return d.highs.Tail(d.highs.Len())
}

func (d *LiquiditySweepDetector) SwingLows() []domain.SwingPoint {
	return d.lows.Tail(d.lows.Len())
}

// Detect reports the swing levels c swept. prev is the candle before c; without it nothing is reported.
func (d *LiquiditySweepDetector) Detect(c domain.FootprintCandle, prev *domain.FootprintCandle) []domain.SweepEvent {
	if prev == nil {
		return nil
	}

	rng := math.Max(c.Range(), minSweepRange)
	var events []domain.SweepEvent

	for _, swing := range d.SwingHighs() {
		level := swing.Price
		if !(c.High > level && c.Close < level && prev.Close < level) {
			continue
		}
		sweepPct := (c.High - level) / level * 100
		if sweepPct < d.minSweepPct {
			continue
		}
		rejection := (c.High - c.Close) / rng * 100
		events = append(events, domain.SweepEvent{
			Type:      domain.SweepStopHuntBear,
			Level:     level,
			WickPrice: c.High,
			SweepPct:  sweepPct,
			Rejection: rejection,
			Strength:  sweepStrength(sweepPct, rejection),
			Timestamp: c.Timestamp,
		})
	}

	for _, swing := range d.SwingLows() {
		level := swing.Price
		if !(c.Low < level && c.Close > level && prev.Close > level) {
			continue
		}
		sweepPct := (level - c.Low) / level * 100
		if sweepPct < d.minSweepPct {
			continue
		}
		rejection := (c.Close - c.Low) / rng * 100
		events = append(events, domain.SweepEvent{
			Type:      domain.SweepStopHuntBull,
			Level:     level,
			WickPrice: c.Low,
			SweepPct:  sweepPct,
			Rejection: rejection,
			Strength:  sweepStrength(sweepPct, rejection),
			Timestamp: c.Timestamp,
		})
	}

	for _, e := range events {
		d.logger.Info("Liquidity sweep",
			zap.String("type", string(e.Type)),
			zap.Float64("level", e.Level),
			zap.Float64("strength", e.Strength),
			zap.String("description", e.Description()),
		)
	}
	return events
}

func sweepStrength(sweepPct, rejection float64) float64 {
	return math.Min(sweepPct*200+rejection*0.5, 100)
}

// NearbyLevels lists swing highs above and swing lows below price within distancePct percent.
func (d *LiquiditySweepDetector) NearbyLevels(price, distancePct float64) domain.NearbyLevels {
	out := domain.NearbyLevels{Resistance: []float64{}, Support: []float64{}}
	if price <= 0 {
		return out
	}
	for _, s := range d.SwingHighs() {
		if dist := (s.Price - price) / price * 100; dist > 0 && dist < distancePct {
			out.Resistance = append(out.Resistance, s.Price)
		}
	}
	for _, s := range d.SwingLows() {
		if dist := (price - s.Price) / price * 100; dist > 0 && dist < distancePct {
			out.Support = append(out.Support, s.Price)
		}
	}
	sort.Float64s(out.Resistance)
	sort.Sort(sort.Reverse(sort.Float64Slice(out.Support)))
	return out
}

// SweepBias sums the fixed sweep bias of every event, positive for bullish sweeps.
func SweepBias(events []domain.SweepEvent) int {
	total := 0
	for _, e := range events {
		if e.Type == domain.SweepStopHuntBull {
			total += sweepBias
		} else {
			total -= sweepBias
		}
	}
	return total
}
