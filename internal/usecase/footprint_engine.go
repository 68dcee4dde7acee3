package usecase

import (
	"fmt"
	"math"
	"sort"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultHistorySize        = 500
	DefaultExhaustionLookback = 5
	DefaultCVDLookback        = 10

	absorptionVolumeMultiple = 5.0
	absorptionDominance      = 1.5
	cvdNeutralSlope          = 0.1
)

// EngineParams configures one FootprintEngine.
type EngineParams struct {
	Scale           float64 // price bin width
	ImbalanceRatio  float64
	ImbalanceVolume float64
	StackedMin      int
	PeriodMs        int64
	ValueAreaPct    float64
	HistorySize     int

	// RejectOutOfOrder makes ProcessTick return ErrOutOfOrderTick for ticks older than the open candle
	// instead of folding them in.
	RejectOutOfOrder bool
}

func DefaultEngineParams() EngineParams {
	return EngineParams{
		Scale:           0.5,
		ImbalanceRatio:  3.0,
		ImbalanceVolume: 5,
		StackedMin:      3,
		PeriodMs:        5 * 60 * 1000,
		ValueAreaPct:    domain.DefaultValueAreaPct,
		HistorySize:     DefaultHistorySize,
	}
}

func (p EngineParams) Validate() error {
	if p.Scale <= 0 || math.IsNaN(p.Scale) || math.IsInf(p.Scale, 0) {
		return fmt.Errorf("scale %v: %w", p.Scale, domain.ErrInvalidScale)
	}
	if p.PeriodMs <= 0 {
		return fmt.Errorf("period %dms: %w", p.PeriodMs, domain.ErrInvalidPeriod)
	}
	// a ratio of one or less lets a single level extend a buy and a sell run at once
	if !(p.ImbalanceRatio > 1) {
		return fmt.Errorf("imbalance ratio %v: %w", p.ImbalanceRatio, domain.ErrInvalidRatio)
	}
	if p.StackedMin < 1 {
		return fmt.Errorf("stacked imbalance minimum %d: %w", p.StackedMin, domain.ErrInvalidWindow)
	}
	return nil
}

type CVDDirection string

const (
	CVDUp      CVDDirection = "up"
	CVDDown    CVDDirection = "down"
	CVDNeutral CVDDirection = "neutral"
)

type CVDTrend struct {
	Direction CVDDirection `json:"direction"`
	Strength  float64      `json:"strength"`
	Slope     float64      `json:"slope"`
	Values    []float64    `json:"values,omitempty"`
}

// ImbalanceStacks holds the price runs found by one ascending scan.
type ImbalanceStacks struct {
	Buy  [][]float64
	Sell [][]float64
}

type AbsorptionZone struct {
	Price          float64
	BidVolume      float64
	AskVolume      float64
	RatioToAverage float64
}

type Absorption struct {
	Support    []AbsorptionZone
	Resistance []AbsorptionZone
}

type Exhaustion struct {
	Bullish    bool // latest delta was positive: buyers exhausted
	DeltaRatio float64
	RangeRatio float64
	Price      float64
	Timestamp  int64
	Strength   float64
}

// FootprintEngine turns a tick stream into footprint candles and keeps the closed history and CVD.
// It is not safe for concurrent use; callers own one engine per symbol.
type FootprintEngine struct {
	params  EngineParams
	logger  *zap.Logger
	current *domain.CandleBuilder

	candles *RingBuffer[domain.FootprintCandle]
	cvd     float64
	cvdHist *RingBuffer[float64]
}

func NewFootprintEngine(params EngineParams, logger *zap.Logger) (*FootprintEngine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if params.HistorySize <= 0 {
		params.HistorySize = DefaultHistorySize
	}
	if params.ValueAreaPct <= 0 {
		params.ValueAreaPct = domain.DefaultValueAreaPct
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FootprintEngine{
		params:  params,
		logger:  logger,
		candles: NewRingBuffer[domain.FootprintCandle](params.HistorySize),
		cvdHist: NewRingBuffer[float64](params.HistorySize),
	}, nil
}

func (e *FootprintEngine) Params() EngineParams {
	return e.params
}

func (e *FootprintEngine) bucketStart(ts int64) int64 {
	b := ts / e.params.PeriodMs
	if ts < 0 && ts%e.params.PeriodMs != 0 {
		b--
	}
	return b * e.params.PeriodMs
}

// ProcessTick folds t into the open candle. When t starts a later bucket the open candle is closed
// first and returned. Ticks are expected in non-decreasing timestamp order.
func (e *FootprintEngine) ProcessTick(t domain.RawTick) (*domain.FootprintCandle, error) {
	bucket := e.bucketStart(t.Timestamp)

	var closed *domain.FootprintCandle
	switch {
	case e.current == nil:
		e.current = domain.NewCandleBuilder(bucket, t.Price, e.params.Scale)
	case bucket > e.current.Timestamp():
		c := e.closeCandle()
		closed = &c
		e.current = domain.NewCandleBuilder(bucket, t.Price, e.params.Scale)
	case bucket < e.current.Timestamp() && e.params.RejectOutOfOrder:
		return nil, fmt.Errorf("tick at %d, open candle at %d: %w",
			t.Timestamp, e.current.Timestamp(), domain.ErrOutOfOrderTick)
	}

	e.current.Add(t)
	return closed, nil
}

func (e *FootprintEngine) closeCandle() domain.FootprintCandle {
	c := e.current.Snapshot()
	e.cvd += c.Delta()
	e.cvdHist.Push(e.cvd)
	e.candles.Push(c)

	e.logger.Debug("Candle closed",
		zap.Int64("ts", c.Timestamp),
		zap.Float64("open", c.Open),
		zap.Float64("high", c.High),
		zap.Float64("low", c.Low),
		zap.Float64("close", c.Close),
		zap.Float64("delta", c.Delta()),
		zap.Float64("cvd", e.cvd),
		zap.Int("levels", c.LevelCount()),
		zap.Int("trades", c.TotalTrades),
	)
	return c
}

// Current snapshots the open candle.
func (e *FootprintEngine) Current() (domain.FootprintCandle, bool) {
	if e.current == nil {
		return domain.FootprintCandle{}, false
	}
	return e.current.Snapshot(), true
}

// History returns the newest n closed candles, oldest first.
func (e *FootprintEngine) History(n int) []domain.FootprintCandle {
	return e.candles.Tail(n)
}

func (e *FootprintEngine) LastCandle() (domain.FootprintCandle, bool) {
	return e.candles.Last()
}

func (e *FootprintEngine) CandleCount() int {
	return e.candles.Len()
}

// CVD is the running sum of closed-candle deltas.
func (e *FootprintEngine) CVD() float64 {
	return e.cvd
}

func (e *FootprintEngine) CVDHistory(n int) []float64 {
	return e.cvdHist.Tail(n)
}

// previousCandle returns the closed candle before c. c may be the newest closed candle
// or a candle that was never appended, such as a snapshot of the open one.
func (e *FootprintEngine) previousCandle(c domain.FootprintCandle) (domain.FootprintCandle, bool) {
	n := e.candles.Len()
	if n == 0 {
		return domain.FootprintCandle{}, false
	}
	last := e.candles.At(n - 1)
	if last.Timestamp < c.Timestamp {
		return last, true
	}
	if n < 2 {
		return domain.FootprintCandle{}, false
	}
	return e.candles.At(n - 2), true
}

// StackedImbalances scans c's levels once in ascending price order and reports buy and sell runs
// of at least StackedMin consecutive imbalanced levels. A low-volume level breaks both runs.
func (e *FootprintEngine) StackedImbalances(c domain.FootprintCandle) ImbalanceStacks {
	var out ImbalanceStacks
	var buy, sell []float64

	flush := func(run []float64, dst *[][]float64) {
		if len(run) >= e.params.StackedMin {
			*dst = append(*dst, run)
		}
	}

	for i := 0; i < c.LevelCount(); i++ {
		l := c.Level(i)
		if l.TotalVolume() < e.params.ImbalanceVolume {
			flush(buy, &out.Buy)
			flush(sell, &out.Sell)
			buy, sell = nil, nil
			continue
		}

		if l.ImbalanceRatio() >= e.params.ImbalanceRatio {
			buy = append(buy, l.Price)
		} else {
			flush(buy, &out.Buy)
			buy = nil
		}

		if l.ReverseImbalanceRatio() >= e.params.ImbalanceRatio {
			sell = append(sell, l.Price)
		} else {
			flush(sell, &out.Sell)
			sell = nil
		}
	}
	flush(buy, &out.Buy)
	flush(sell, &out.Sell)
	return out
}

// Absorption finds levels with outsized one-sided volume at the candle's extremes that price failed
// to break through. At most two zones per side are returned, strongest first.
func (e *FootprintEngine) Absorption(c domain.FootprintCandle) Absorption {
	n := c.LevelCount()
	if c.TotalVolume() == 0 || n < 3 {
		return Absorption{}
	}

	avg := c.TotalVolume() / float64(n)
	threshold := avg * absorptionVolumeMultiple
	zone := n / 4
	if zone < 1 {
		zone = 1
	}

	var out Absorption
	for i := 0; i < n; i++ {
		l := c.Level(i)
		if l.TotalVolume() < threshold {
			continue
		}
		z := AbsorptionZone{
			Price:          l.Price,
			BidVolume:      l.BidVolume,
			AskVolume:      l.AskVolume,
			RatioToAverage: l.TotalVolume() / avg,
		}
		if i < zone && l.BidVolume > l.AskVolume*absorptionDominance && c.Close > l.Price {
			out.Support = append(out.Support, z)
		}
		if i >= n-zone && l.AskVolume > l.BidVolume*absorptionDominance && c.Close < l.Price {
			out.Resistance = append(out.Resistance, z)
		}
	}

	out.Support = strongestZones(out.Support, 2)
	out.Resistance = strongestZones(out.Resistance, 2)
	return out
}

func strongestZones(zones []AbsorptionZone, n int) []AbsorptionZone {
	sort.SliceStable(zones, func(i, j int) bool {
		return zones[i].RatioToAverage > zones[j].RatioToAverage
	})
	if len(zones) > n {
		zones = zones[:n]
	}
	return zones
}

// Exhaustion compares the newest closed candle with the mean |delta| and mean range of the
// lookback candles before it. It needs lookback+1 closed candles.
func (e *FootprintEngine) Exhaustion(lookback int) (Exhaustion, bool) {
	if lookback < 1 || e.candles.Len() < lookback+1 {
		return Exhaustion{}, false
	}

	recent := e.candles.Tail(lookback + 1)
	latest := recent[lookback]
	prior := recent[:lookback]

	var sumDelta, sumRange float64
	for _, c := range prior {
		sumDelta += math.Abs(c.Delta())
		sumRange += c.Range()
	}
	avgDelta := sumDelta / float64(len(prior))
	avgRange := sumRange / float64(len(prior))
	if avgDelta == 0 || avgRange == 0 {
		return Exhaustion{}, false
	}

	deltaRatio := math.Abs(latest.Delta()) / avgDelta
	rangeRatio := latest.Range() / avgRange
	if deltaRatio <= 1.5 || rangeRatio >= 0.5 {
		return Exhaustion{}, false
	}

	strength := 100.0
	if rangeRatio > 0 {
		strength = math.Min(deltaRatio/rangeRatio*20, 100)
	}
	return Exhaustion{
		Bullish:    latest.Delta() > 0,
		DeltaRatio: deltaRatio,
		RangeRatio: rangeRatio,
		Price:      latest.Close,
		Timestamp:  latest.Timestamp,
		Strength:   strength,
	}, true
}

// CVDTrend fits the slope of the last lookback CVD values.
func (e *FootprintEngine) CVDTrend(lookback int) CVDTrend {
	if lookback < 1 || e.cvdHist.Len() < lookback {
		return CVDTrend{Direction: CVDNeutral, Values: e.cvdHist.Tail(e.cvdHist.Len())}
	}

	values := e.cvdHist.Tail(lookback)
	slope := (values[len(values)-1] - values[0]) / float64(lookback)

	direction := CVDNeutral
	switch {
	case math.Abs(slope) < cvdNeutralSlope:
	case slope > 0:
		direction = CVDUp
	default:
		direction = CVDDown
	}

	var peak float64
	for _, v := range values {
		peak = math.Max(peak, math.Abs(v))
	}
	strength := math.Min(math.Abs(slope)/math.Max(peak*0.01, 0.001)*50, 100)

	return CVDTrend{Direction: direction, Strength: strength, Slope: slope, Values: values}
}
