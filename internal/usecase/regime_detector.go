package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultRegimeLookback = 20

	regimeMinCandles     = 5
	regimeHistorySize    = 100
	lowVolumeHealth      = 0.3
	volatileReturnStdev  = 0.008
	trendingSlopePerBar  = 0.0005
	volumeHealthTailSize = 3
)

// RegimeDetector classifies the market from a window of closed candles and remembers the
// last classifications.
type RegimeDetector struct {
	lookback    int
	current     domain.Regime
	lastMetrics domain.RegimeMetrics
	history     *RingBuffer[domain.Regime]
	logger      *zap.Logger
}

// NewRegimeDetector uses DefaultRegimeLookback when lookback is zero.
func NewRegimeDetector(lookback int, logger *zap.Logger) (*RegimeDetector, error) {
	if lookback == 0 {
		lookback = DefaultRegimeLookback
	}
	if lookback < regimeMinCandles {
		return nil, fmt.Errorf("regime lookback %d: %w", lookback, domain.ErrInvalidWindow)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegimeDetector{
		lookback: lookback,
		current:  domain.RegimeRanging,
		history:  NewRingBuffer[domain.Regime](regimeHistorySize),
		logger:   logger,
	}, nil
}

// Analyze classifies the newest lookback candles. Fewer than five candles read as ranging
// without updating the detector's state.
func (r *RegimeDetector) Analyze(candles []domain.FootprintCandle) domain.Regime {
	if len(candles) < regimeMinCandles {
		return domain.RegimeRanging
	}
	if len(candles) > r.lookback {
		candles = candles[len(candles)-r.lookback:]
	}

	m := domain.RegimeMetrics{
		Volatility:   returnVolatility(candles),
		Trend:        trendStrength(candles),
		VolumeHealth: volumeHealth(candles),
	}
	regime := classifyRegime(m)

	r.current = regime
	r.lastMetrics = m
	r.history.Push(regime)

	r.logger.Info("Regime",
		zap.String("regime", string(regime)),
		zap.Float64("volatility", m.Volatility),
		zap.Float64("trend", m.Trend),
		zap.Float64("volume_health", m.VolumeHealth),
	)
	return regime
}

func classifyRegime(m domain.RegimeMetrics) domain.Regime {
	switch {
	case m.VolumeHealth < lowVolumeHealth:
		return domain.RegimeLowVolume
	case m.Volatility > volatileReturnStdev:
		return domain.RegimeVolatile
	case m.Trend > trendingSlopePerBar:
		return domain.RegimeTrendingUp
	case m.Trend < -trendingSlopePerBar:
		return domain.RegimeTrendingDown
	}
	return domain.RegimeRanging
}

func (r *RegimeDetector) Current() domain.Regime {
	return r.current
}

func (r *RegimeDetector) Metrics() domain.RegimeMetrics {
	return r.lastMetrics
}

func (r *RegimeDetector) Guidance() domain.StrategyGuidance {
	return r.current.Guidance()
}

// ShouldTrade is false only when the current regime sizes every trade to zero.
func (r *RegimeDetector) ShouldTrade() bool {
	return r.Guidance().SizeMultiplier > 0
}

// History returns up to the last 100 classifications, oldest first.
func (r *RegimeDetector) History() []domain.Regime {
	return r.history.Tail(r.history.Len())
}

// returnVolatility is the population stdev of close-to-close returns.
func returnVolatility(candles []domain.FootprintCandle) float64 {
	var returns []float64
	for i := 1; i < len(candles); i++ {
		if prev := candles[i-1].Close; prev > 0 {
			returns = append(returns, (candles[i].Close-prev)/prev)
		}
	}
	if len(returns) == 0 {
		return 0
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	return math.Sqrt(variance / float64(len(returns)))
}

// trendStrength is the least-squares slope of closes divided by the mean close.
func trendStrength(candles []domain.FootprintCandle) float64 {
	n := len(candles)
	if n < regimeMinCandles {
		return 0
	}

	xMean := float64(n-1) / 2
	var yMean float64
	for _, c := range candles {
		yMean += c.Close
	}
	yMean /= float64(n)

	var num, den float64
	for i, c := range candles {
		dx := float64(i) - xMean
		num += dx * (c.Close - yMean)
		den += dx * dx
	}
	if den == 0 || yMean == 0 {
		return 0
	}
	return (num / den) / yMean
}

// volumeHealth is the mean volume of the last three candles over the window mean.
func volumeHealth(candles []domain.FootprintCandle) float64 {
	if len(candles) < volumeHealthTailSize {
		return 1
	}
	var total float64
	for _, c := range candles {
		total += c.TotalVolume()
	}
	avg := total / float64(len(candles))
	if avg <= 0 {
		return 1
	}

	var tail float64
	for _, c := range candles[len(candles)-volumeHealthTailSize:] {
		tail += c.TotalVolume()
	}
	return (tail / volumeHealthTailSize) / avg
}
