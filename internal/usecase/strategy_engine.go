package usecase

import (
	"math"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultMinConfluenceScore = 65.0

	atrLookback      = 10
	atrMinCandles    = 3
	atrFallbackRatio = 0.002
)

var signalWeights = map[domain.SignalType]float64{
	domain.SignalStackedImbalanceBuy:  1.3,
	domain.SignalStackedImbalanceSell: 1.3,
	domain.SignalDeltaDivergenceBull:  1.2,
	domain.SignalDeltaDivergenceBear:  1.2,
	domain.SignalAbsorptionSupport:    1.1,
	domain.SignalAbsorptionResistance: 1.1,
	domain.SignalExhaustionBull:       1.0,
	domain.SignalExhaustionBear:       1.0,
	domain.SignalCVDConfirmsUp:        0.8,
	domain.SignalCVDConfirmsDown:      0.8,
	domain.SignalPOCMagnetLong:        0.7,
	domain.SignalPOCMagnetShort:       0.7,
}

var maxSignalWeight = func() float64 {
	heaviest := 0.0
	for _, w := range signalWeights {
		heaviest = math.Max(heaviest, w)
	}
	return heaviest
}()

func signalWeight(t domain.SignalType) float64 {
	if w, ok := signalWeights[t]; ok {
		return w
	}
	return 1.0
}

// StrategyEngine turns a candle's signals into at most one directional proposal.
type StrategyEngine struct {
	engine   *FootprintEngine
	minScore float64
	logger   *zap.Logger
}

func NewStrategyEngine(engine *FootprintEngine, minScore float64, logger *zap.Logger) *StrategyEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StrategyEngine{engine: engine, minScore: minScore, logger: logger}
}

func (s *StrategyEngine) MinScore() float64 {
	return s.minScore
}

// Evaluate scores both directions and proposes the winner when it clears the minimum
// and beats the other side. It returns nil otherwise.
func (s *StrategyEngine) Evaluate(c domain.FootprintCandle, signals []domain.OrderFlowSignal) *domain.TradeSignal {
	if len(signals) == 0 {
		return nil
	}

	bull := DirectionalScore(signals, domain.SideBuy)
	bear := DirectionalScore(signals, domain.SideSell)
	s.logger.Info("Confluence scores",
		zap.Float64("bull", bull),
		zap.Float64("bear", bear),
		zap.Float64("min", s.minScore),
	)

	switch {
	case bull >= s.minScore && bull > bear:
		return s.build(c, signals, domain.SideBuy, bull)
	case bear >= s.minScore && bear > bull:
		return s.build(c, signals, domain.SideSell, bear)
	}
	return nil
}

func relevantTo(t domain.SignalType, side domain.Side) bool {
	if side == domain.SideBuy {
		return t.IsBullish()
	}
	return t.IsBearish()
}

// DirectionalScore is the 0..100 confluence of the signals that favor side. It is zero unless
// at least two such signals of two distinct types are present.
func DirectionalScore(signals []domain.OrderFlowSignal, side domain.Side) float64 {
	var weighted float64
	count := 0
	types := make(map[domain.SignalType]struct{})
	for _, sig := range signals {
		if !relevantTo(sig.Type, side) {
			continue
		}
		weighted += sig.Strength * signalWeight(sig.Type)
		types[sig.Type] = struct{}{}
		count++
	}
	if count < 2 || len(types) < 2 {
		return 0
	}

	base := (weighted / float64(count)) / (100 * maxSignalWeight) * 70
	bonus := math.Min(float64(len(types)-1)*12, 30)
	return math.Min(base+bonus, 100)
}

// ClassifyStrategy picks the archetype from the signal mix.
func ClassifyStrategy(signals []domain.OrderFlowSignal) domain.StrategyType {
	var absorption, divergence, exhaustion, imbalance, cvd, poc bool
	for _, sig := range signals {
		switch sig.Type {
		case domain.SignalAbsorptionSupport, domain.SignalAbsorptionResistance:
			absorption = true
		case domain.SignalDeltaDivergenceBull, domain.SignalDeltaDivergenceBear:
			divergence = true
		case domain.SignalExhaustionBull, domain.SignalExhaustionBear:
			exhaustion = true
		case domain.SignalStackedImbalanceBuy, domain.SignalStackedImbalanceSell:
			imbalance = true
		case domain.SignalCVDConfirmsUp, domain.SignalCVDConfirmsDown:
			cvd = true
		case domain.SignalPOCMagnetLong, domain.SignalPOCMagnetShort:
			poc = true
		}
	}

	switch {
	case absorption || divergence || exhaustion:
		return domain.StrategyReversal
	case imbalance && (cvd || poc):
		return domain.StrategyReversal
	case imbalance:
		return domain.StrategyBreakout
	case poc:
		return domain.StrategyPOCReversion
	}
	return domain.StrategyReversal
}

func (s *StrategyEngine) build(c domain.FootprintCandle, signals []domain.OrderFlowSignal, side domain.Side, score float64) *domain.TradeSignal {
	strategy := ClassifyStrategy(signals)
	sl, tp := s.StopTarget(c, side, strategy)

	var contributing []domain.OrderFlowSignal
	for _, sig := range signals {
		if relevantTo(sig.Type, side) {
			contributing = append(contributing, sig)
		}
	}

	trade := &domain.TradeSignal{
		Side:                side,
		Strategy:            strategy,
		EntryPrice:          c.Close,
		StopLoss:            sl,
		TakeProfit:          tp,
		ConfluenceScore:     score,
		ContributingSignals: contributing,
		Timestamp:           c.Timestamp,
	}
	s.logger.Info("Trade signal",
		zap.String("side", string(side)),
		zap.String("strategy", string(strategy)),
		zap.Float64("entry", trade.EntryPrice),
		zap.Float64("sl", sl),
		zap.Float64("tp", tp),
		zap.Float64("score", score),
	)
	return trade
}

// ATRProxy is the mean non-zero high-low range of the recent closed candles, falling back to c's range
// and finally to 0.2% of c's close.
func (s *StrategyEngine) ATRProxy(c domain.FootprintCandle) float64 {
	var atr float64
	recent := s.engine.History(atrLookback)
	if len(recent) >= atrMinCandles {
		var sum float64
		n := 0
		for _, r := range recent {
			if r.Range() > 0 {
				sum += r.Range()
				n++
			}
		}
		if n > 0 {
			atr = sum / float64(n)
		} else {
			atr = c.Close * atrFallbackRatio
		}
	} else {
		atr = c.Range()
	}
	if atr == 0 {
		atr = c.Close * atrFallbackRatio
	}
	return atr
}

// StopTarget returns the stop-loss and take-profit prices for an entry at c's close.
func (s *StrategyEngine) StopTarget(c domain.FootprintCandle, side domain.Side, strategy domain.StrategyType) (stopLoss, takeProfit float64) {
	atr := s.ATRProxy(c)

	var slDist, tpDist float64
	switch strategy {
	case domain.StrategyBreakout:
		slDist, tpDist = atr*0.8, atr*2.5
	case domain.StrategyPOCReversion:
		poc := c.ValueArea(s.engine.params.ValueAreaPct).POC
		slDist, tpDist = atr, math.Max(math.Abs(c.Close-poc), atr*1.5)
	default:
		slDist, tpDist = atr*1.2, atr*2.0
	}

	if side == domain.SideBuy {
		return c.Close - slDist, c.Close + tpDist
	}
	return c.Close + slDist, c.Close - tpDist
}
