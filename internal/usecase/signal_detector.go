package usecase

import (
	"math"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

const (
	cvdConfirmMinStrength = 30.0
	pocIgnorePct          = 0.05
	pocMagnetPct          = 0.3
	pocMagnetMaxStrength  = 80.0
)

// SignalDetector runs the order-flow detectors over a closed candle and its engine's history.
type SignalDetector struct {
	engine *FootprintEngine
	logger *zap.Logger
}

func NewSignalDetector(engine *FootprintEngine, logger *zap.Logger) *SignalDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignalDetector{engine: engine, logger: logger}
}

// Analyze returns every signal found on c. It does not modify the engine.
func (d *SignalDetector) Analyze(c domain.FootprintCandle) []domain.OrderFlowSignal {
	var signals []domain.OrderFlowSignal
	signals = append(signals, d.stackedImbalances(c)...)
	signals = append(signals, d.deltaDivergence(c)...)
	signals = append(signals, d.absorption(c)...)
	signals = append(signals, d.exhaustion()...)
	signals = append(signals, d.cvdConfirmation(c)...)
	signals = append(signals, d.pocMagnet(c)...)

	for _, s := range signals {
		d.logger.Info("Signal",
			zap.String("type", string(s.Type)),
			zap.Float64("strength", s.Strength),
			zap.Float64("price", s.Price),
			zap.String("description", s.Description()),
		)
	}
	return signals
}

func stackStrength(levels int) float64 {
	return math.Min(float64(levels)*20+20, 100)
}

func (d *SignalDetector) stackedImbalances(c domain.FootprintCandle) []domain.OrderFlowSignal {
	stacks := d.engine.StackedImbalances(c)
	var out []domain.OrderFlowSignal

	for _, run := range stacks.Buy {
		out = append(out, domain.OrderFlowSignal{
			Type:      domain.SignalStackedImbalanceBuy,
			Strength:  stackStrength(len(run)),
			Price:     run[0],
			Timestamp: c.Timestamp,
			Detail:    domain.StackDetail{Levels: len(run), LowPrice: run[0], HighPrice: run[len(run)-1]},
		})
	}
	for _, run := range stacks.Sell {
		out = append(out, domain.OrderFlowSignal{
			Type:      domain.SignalStackedImbalanceSell,
			Strength:  stackStrength(len(run)),
			Price:     run[len(run)-1],
			Timestamp: c.Timestamp,
			Detail:    domain.StackDetail{Levels: len(run), LowPrice: run[0], HighPrice: run[len(run)-1]},
		})
	}
	return out
}

// deltaDivergence flags a new local extreme in price that delta refuses to confirm.
func (d *SignalDetector) deltaDivergence(c domain.FootprintCandle) []domain.OrderFlowSignal {
	prev, ok := d.engine.previousCandle(c)
	if !ok {
		return nil
	}

	priceUp := c.Close > prev.Close && c.High > prev.High
	priceDown := c.Close < prev.Close && c.Low < prev.Low
	deltaFalling := c.Delta() < 0 && c.Delta() < prev.Delta()
	deltaRising := c.Delta() > 0 && c.Delta() > prev.Delta()

	strength := math.Min(math.Abs(c.Delta())/math.Max(c.TotalVolume(), 1)*200, 100)
	detail := domain.DivergenceDetail{Delta: c.Delta(), PrevDelta: prev.Delta()}

	var out []domain.OrderFlowSignal
	if priceUp && deltaFalling {
		out = append(out, domain.OrderFlowSignal{
			Type:      domain.SignalDeltaDivergenceBear,
			Strength:  strength,
			Price:     c.Close,
			Timestamp: c.Timestamp,
			Detail:    detail,
		})
	}
	if priceDown && deltaRising {
		out = append(out, domain.OrderFlowSignal{
			Type:      domain.SignalDeltaDivergenceBull,
			Strength:  strength,
			Price:     c.Close,
			Timestamp: c.Timestamp,
			Detail:    detail,
		})
	}
	return out
}

func (d *SignalDetector) absorption(c domain.FootprintCandle) []domain.OrderFlowSignal {
	abs := d.engine.Absorption(c)
	var out []domain.OrderFlowSignal

	emit := func(t domain.SignalType, zones []AbsorptionZone) {
		for _, z := range zones {
			out = append(out, domain.OrderFlowSignal{
				Type:      t,
				Strength:  math.Min(z.RatioToAverage*25, 100),
				Price:     z.Price,
				Timestamp: c.Timestamp,
				Detail: domain.AbsorptionDetail{
					BidVolume:      z.BidVolume,
					AskVolume:      z.AskVolume,
					RatioToAverage: z.RatioToAverage,
				},
			})
		}
	}
	emit(domain.SignalAbsorptionSupport, abs.Support)
	emit(domain.SignalAbsorptionResistance, abs.Resistance)
	return out
}

func (d *SignalDetector) exhaustion() []domain.OrderFlowSignal {
	ex, ok := d.engine.Exhaustion(DefaultExhaustionLookback)
	if !ok {
		return nil
	}
	t := domain.SignalExhaustionBear
	if ex.Bullish {
		t = domain.SignalExhaustionBull
	}
	return []domain.OrderFlowSignal{{
		Type:      t,
		Strength:  ex.Strength,
		Price:     ex.Price,
		Timestamp: ex.Timestamp,
		Detail:    domain.ExhaustionDetail{DeltaRatio: ex.DeltaRatio, RangeRatio: ex.RangeRatio},
	}}
}

func (d *SignalDetector) cvdConfirmation(c domain.FootprintCandle) []domain.OrderFlowSignal {
	trend := d.engine.CVDTrend(DefaultCVDLookback)
	if trend.Strength < cvdConfirmMinStrength {
		return nil
	}

	var t domain.SignalType
	switch {
	case trend.Direction == CVDUp && c.IsBullish():
		t = domain.SignalCVDConfirmsUp
	case trend.Direction == CVDDown && c.IsBearish():
		t = domain.SignalCVDConfirmsDown
	default:
		return nil
	}
	return []domain.OrderFlowSignal{{
		Type:      t,
		Strength:  trend.Strength,
		Price:     c.Close,
		Timestamp: c.Timestamp,
		Detail:    domain.CVDDetail{Slope: trend.Slope},
	}}
}

// pocMagnet measures how far the close has drifted from the previous candle's POC.
func (d *SignalDetector) pocMagnet(c domain.FootprintCandle) []domain.OrderFlowSignal {
	prev, ok := d.engine.previousCandle(c)
	if !ok {
		return nil
	}
	poc := prev.ValueArea(d.engine.params.ValueAreaPct).POC
	if poc == 0 {
		return nil
	}

	distance := math.Abs(c.Close-poc) / poc * 100
	if distance < pocIgnorePct || distance <= pocMagnetPct {
		return nil
	}

	t := domain.SignalPOCMagnetShort
	if c.Close < poc {
		t = domain.SignalPOCMagnetLong
	}
	return []domain.OrderFlowSignal{{
		Type:      t,
		Strength:  math.Min(distance*100, pocMagnetMaxStrength),
		Price:     c.Close,
		Timestamp: c.Timestamp,
		Detail:    domain.POCDetail{POC: poc, DistancePct: distance},
	}}
}
