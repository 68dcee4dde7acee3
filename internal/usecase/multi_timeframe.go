package usecase

import (
	"fmt"
	"math"
	"sort"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

const htfBiasLimit = 15.0

var DefaultTimeframes = []int{1, 5, 15, 60}

// MultiTimeframeAnalyzer feeds the same ticks to one FootprintEngine per timeframe.
type MultiTimeframeAnalyzer struct {
	timeframes []int // minutes, ascending
	engines    map[int]*FootprintEngine
	detectors  map[int]*SignalDetector
	last       map[int]domain.FootprintCandle
}

// NewMultiTimeframeAnalyzer copies base for every timeframe, replacing only the period.
func NewMultiTimeframeAnalyzer(base EngineParams, timeframes []int, logger *zap.Logger) (*MultiTimeframeAnalyzer, error) {
	if len(timeframes) == 0 {
		timeframes = DefaultTimeframes
	}
	tfs := append([]int(nil), timeframes...)
	sort.Ints(tfs)

	if logger == nil {
		logger = zap.NewNop()
	}

	a := &MultiTimeframeAnalyzer{
		timeframes: tfs,
		engines:    make(map[int]*FootprintEngine, len(tfs)),
		detectors:  make(map[int]*SignalDetector, len(tfs)),
		last:       make(map[int]domain.FootprintCandle, len(tfs)),
	}
	for _, tf := range tfs {
		if tf <= 0 {
			return nil, fmt.Errorf("timeframe %dm: %w", tf, domain.ErrInvalidPeriod)
		}
		params := base
		params.PeriodMs = int64(tf) * 60 * 1000
		engine, err := NewFootprintEngine(params, logger.With(zap.Int("tf", tf)))
		if err != nil {
			return nil, fmt.Errorf("timeframe %dm: %w", tf, err)
		}
		a.engines[tf] = engine
		a.detectors[tf] = NewSignalDetector(engine, zap.NewNop())
	}
	return a, nil
}

func (a *MultiTimeframeAnalyzer) Timeframes() []int {
	return append([]int(nil), a.timeframes...)
}

// ProcessTick returns the candles closed by t, keyed by timeframe.
func (a *MultiTimeframeAnalyzer) ProcessTick(t domain.RawTick) (map[int]domain.FootprintCandle, error) {
	closed := make(map[int]domain.FootprintCandle)
	for _, tf := range a.timeframes {
		c, err := a.engines[tf].ProcessTick(t)
		if err != nil {
			return closed, err
		}
		if c != nil {
			a.last[tf] = *c
			closed[tf] = *c
		}
	}
	return closed, nil
}

func (a *MultiTimeframeAnalyzer) LastCandle(tf int) (domain.FootprintCandle, bool) {
	c, ok := a.last[tf]
	return c, ok
}

func htfBullish(c domain.FootprintCandle) bool {
	return c.Delta() > 0 && c.Close > c.Open
}

// HTFBias compares the base timeframe's last closed candle with the last closed candle of every
// higher timeframe. Bias is long-positive: agreement with a bearish base candle is negative.
func (a *MultiTimeframeAnalyzer) HTFBias(baseTF int) domain.HTFBias {
	details := make(map[int]domain.TimeframeDetail)
	base, ok := a.last[baseTF]
	if !ok {
		return domain.HTFBias{Confirmation: domain.ConfirmationNoData, Details: details}
	}
	baseBull := htfBullish(base)

	confirmations, contradictions := 0, 0
	for _, tf := range a.timeframes {
		if tf <= baseTF {
			continue
		}
		c, ok := a.last[tf]
		if !ok {
			continue
		}

		bull := htfBullish(c)
		if bull == baseBull {
			confirmations++
		} else {
			contradictions++
		}

		direction := "bear"
		if bull {
			direction = "bull"
		}
		details[tf] = domain.TimeframeDetail{
			Delta:        c.Delta(),
			Direction:    direction,
			CVDDirection: string(a.engines[tf].CVDTrend(5).Direction),
		}
	}

	total := confirmations + contradictions
	if total == 0 {
		return domain.HTFBias{Confirmation: domain.ConfirmationNoData, Details: details}
	}

	confirmation := domain.ConfirmationMixed
	switch {
	case confirmations > contradictions:
		confirmation = domain.ConfirmationConfirmed
	case contradictions > confirmations:
		confirmation = domain.ConfirmationDivergent
	}

	bias := float64(confirmations-contradictions) / float64(total) * htfBiasLimit
	if !baseBull {
		bias = -bias
	}
	return domain.HTFBias{
		Bias:         int(math.RoundToEven(bias)),
		Confirmation: confirmation,
		Details:      details,
	}
}

// HTFSignals runs the signal detectors on tf's last closed candle.
func (a *MultiTimeframeAnalyzer) HTFSignals(tf int) []domain.OrderFlowSignal {
	c, ok := a.last[tf]
	if !ok {
		return nil
	}
	return a.detectors[tf].Analyze(c)
}
