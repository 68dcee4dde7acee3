package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

const (
	DefaultCooldownCandles  = 3
	DefaultCVDBlockStrength = 50.0
	DefaultRegimeWindow     = 30
)

// PipelineParams configures a MarketPipeline for one symbol.
type PipelineParams struct {
	Symbol             string
	Engine             EngineParams
	MinConfluenceScore float64
	CooldownCandles    int
	CVDBlockStrength   float64
	RegimeLookback     int
	RegimeWindow       int
	MinSweepPct        float64
	SessionCandles     int
	DailyCandles       int
	MTFEnabled         bool
	Timeframes         []int
}

func DefaultPipelineParams(symbol string) PipelineParams {
	return PipelineParams{
		Symbol:             symbol,
		Engine:             DefaultEngineParams(),
		MinConfluenceScore: DefaultMinConfluenceScore,
		CooldownCandles:    DefaultCooldownCandles,
		CVDBlockStrength:   DefaultCVDBlockStrength,
		RegimeLookback:     DefaultRegimeLookback,
		RegimeWindow:       DefaultRegimeWindow,
		MinSweepPct:        DefaultMinSweepPct,
		SessionCandles:     DefaultSessionCandles,
		DailyCandles:       DefaultDailyCandles,
		Timeframes:         DefaultTimeframes,
	}
}

// BlockReason says why a closed candle did not produce a trade.
type BlockReason string

const (
	BlockNone       BlockReason = ""
	BlockCooldown   BlockReason = "cooldown"
	BlockRegime     BlockReason = "regime_no_trade"
	BlockNoSignals  BlockReason = "no_signals"
	BlockNoProposal BlockReason = "below_confluence"
	BlockAvoided    BlockReason = "strategy_avoided"
	BlockCVDTrend   BlockReason = "cvd_counter_trend"
	BlockBiasScore  BlockReason = "score_after_bias"
)

// CandleReport is everything one candle close produced.
type CandleReport struct {
	Symbol  string                   `json:"symbol"`
	Candle  domain.FootprintCandle   `json:"candle"`
	CVD     float64                  `json:"cvd"`
	Regime  domain.Regime            `json:"regime"`
	Signals []domain.OrderFlowSignal `json:"signals"`
	Sweeps  []domain.SweepEvent      `json:"sweeps"`
	// Proposal is the strategy engine's output before any filter or bias.
	Proposal *domain.TradeSignal `json:"proposal,omitempty"`
	Biases   []domain.Bias       `json:"biases,omitempty"`
	// Trade is a bias-adjusted copy of Proposal that passed every filter.
	Trade   *domain.TradeSignal `json:"trade,omitempty"`
	Blocked BlockReason         `json:"blocked,omitempty"`
}

// MarketPipeline wires the analytics for one symbol and runs them on every candle close.
// It is single-threaded; PipelineService serializes access.
type MarketPipeline struct {
	params    PipelineParams
	Engine    *FootprintEngine
	Signals   *SignalDetector
	Strategy  *StrategyEngine
	Regime    *RegimeDetector
	Liquidity *LiquiditySweepDetector
	Profile   *MultiPeriodProfile
	MTF       *MultiTimeframeAnalyzer // nil when disabled

	candleCount     int
	lastTradeCandle int
	logger          *zap.Logger
}

func NewMarketPipeline(params PipelineParams, logger *zap.Logger) (*MarketPipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("symbol", params.Symbol))

	if params.RegimeWindow <= 0 {
		params.RegimeWindow = DefaultRegimeWindow
	}

	engine, err := NewFootprintEngine(params.Engine, logger)
	if err != nil {
		return nil, fmt.Errorf("footprint engine for %s: %w", params.Symbol, err)
	}
	regime, err := NewRegimeDetector(params.RegimeLookback, logger)
	if err != nil {
		return nil, fmt.Errorf("regime detector for %s: %w", params.Symbol, err)
	}

	p := &MarketPipeline{
		params:    params,
		Engine:    engine,
		Signals:   NewSignalDetector(engine, logger),
		Strategy:  NewStrategyEngine(engine, params.MinConfluenceScore, logger),
		Regime:    regime,
		Liquidity: NewLiquiditySweepDetector(params.MinSweepPct, logger),
		Profile:   NewMultiPeriodProfile(params.Engine.Scale, params.SessionCandles, params.DailyCandles),
		logger:    logger,
	}

	if params.MTFEnabled {
		p.MTF, err = NewMultiTimeframeAnalyzer(params.Engine, params.Timeframes, logger)
		if err != nil {
			return nil, fmt.Errorf("multi-timeframe analyzer for %s: %w", params.Symbol, err)
		}
	}
	return p, nil
}

func (p *MarketPipeline) Symbol() string {
	return p.params.Symbol
}

func (p *MarketPipeline) CandleCount() int {
	return p.candleCount
}

// baseTimeframe is the pipeline's own candle period in minutes.
func (p *MarketPipeline) baseTimeframe() int {
	return int(p.params.Engine.PeriodMs / 60000)
}

// OnTick folds t into every engine. It returns a report when t closed the pipeline's candle.
func (p *MarketPipeline) OnTick(t domain.RawTick) (*CandleReport, error) {
	if p.MTF != nil {
		if _, err := p.MTF.ProcessTick(t); err != nil {
			return nil, err
		}
	}
	closed, err := p.Engine.ProcessTick(t)
	if err != nil || closed == nil {
		return nil, err
	}
	return p.onCandleClose(*closed), nil
}

func (p *MarketPipeline) onCandleClose(c domain.FootprintCandle) *CandleReport {
	p.candleCount++
	p.Profile.AddCandle(c)

	report := &CandleReport{
		Symbol: p.params.Symbol,
		Candle: c,
		CVD:    p.Engine.CVD(),
		Regime: p.Regime.Current(),
	}
	p.logger.Info("Candle",
		zap.Int("n", p.candleCount),
		zap.Float64("open", c.Open),
		zap.Float64("high", c.High),
		zap.Float64("low", c.Low),
		zap.Float64("close", c.Close),
		zap.Float64("delta", c.Delta()),
		zap.Float64("volume", c.TotalVolume()),
	)

	since := p.candleCount - p.lastTradeCandle
	if p.lastTradeCandle > 0 && since < p.params.CooldownCandles {
		return p.block(report, BlockCooldown, zap.Int("remaining", p.params.CooldownCandles-since))
	}

	window := p.Engine.History(p.params.RegimeWindow)
	report.Regime = p.Regime.Analyze(window)
	guidance := p.Regime.Guidance()
	if !p.Regime.ShouldTrade() {
		return p.block(report, BlockRegime, zap.String("regime", string(report.Regime)))
	}

	p.Liquidity.UpdateSwings(window)
	var prev *domain.FootprintCandle
	if len(window) >= 2 {
		prev = &window[len(window)-2]
	}
	report.Sweeps = p.Liquidity.Detect(c, prev)
	report.Signals = p.Signals.Analyze(c)
	if len(report.Signals) == 0 && len(report.Sweeps) == 0 {
		report.Blocked = BlockNoSignals
		return report
	}

	proposal := p.Strategy.Evaluate(c, report.Signals)
	if proposal == nil {
		report.Blocked = BlockNoProposal
		return report
	}
	proposal.Symbol = p.params.Symbol
	report.Proposal = proposal

	if guidance.Blocks(proposal.Strategy) {
		return p.block(report, BlockAvoided,
			zap.String("strategy", string(proposal.Strategy)),
			zap.String("regime", string(report.Regime)))
	}

	trend := p.Engine.CVDTrend(DefaultCVDLookback)
	if trend.Strength > p.params.CVDBlockStrength &&
		((proposal.Side == domain.SideBuy && trend.Direction == CVDDown) ||
			(proposal.Side == domain.SideSell && trend.Direction == CVDUp)) {
		return p.block(report, BlockCVDTrend,
			zap.String("side", string(proposal.Side)),
			zap.Float64("cvd_strength", trend.Strength))
	}

	report.Biases = p.biases(c, report.Sweeps)
	trade := applyBias(*proposal, domain.SumBias(report.Biases))
	if trade.ConfluenceScore < p.params.MinConfluenceScore {
		return p.block(report, BlockBiasScore,
			zap.Float64("raw_score", proposal.ConfluenceScore),
			zap.Float64("score", trade.ConfluenceScore))
	}

	report.Trade = &trade
	p.lastTradeCandle = p.candleCount
	p.logger.Info("Trade proposal accepted",
		zap.String("side", string(trade.Side)),
		zap.String("strategy", string(trade.Strategy)),
		zap.Float64("entry", trade.EntryPrice),
		zap.Float64("sl", trade.StopLoss),
		zap.Float64("tp", trade.TakeProfit),
		zap.Float64("raw_score", proposal.ConfluenceScore),
		zap.Float64("score", trade.ConfluenceScore),
	)
	return report
}

func (p *MarketPipeline) block(r *CandleReport, reason BlockReason, fields ...zap.Field) *CandleReport {
	r.Blocked = reason
	p.logger.Info("Trade blocked", append([]zap.Field{zap.String("reason", string(reason))}, fields...)...)
	return r
}

func (p *MarketPipeline) biases(c domain.FootprintCandle, sweeps []domain.SweepEvent) []domain.Bias {
	var out []domain.Bias
	if b := SweepBias(sweeps); b != 0 {
		out = append(out, domain.Bias{Source: domain.BiasSweep, Value: b})
	}
	if vp := p.Profile.CombinedBias(c.Close); vp.Bias != 0 {
		out = append(out, domain.Bias{Source: domain.BiasVolumeProfile, Value: vp.Bias})
	}
	if p.MTF != nil {
		if htf := p.MTF.HTFBias(p.baseTimeframe()); htf.Bias != 0 {
			out = append(out, domain.Bias{Source: domain.BiasHigherTF, Value: htf.Bias})
		}
	}
	return out
}

// applyBias returns a copy of t with a long-positive bias applied by side and clamped to [0, 100].
func applyBias(t domain.TradeSignal, bias int) domain.TradeSignal {
	t.ContributingSignals = append([]domain.OrderFlowSignal(nil), t.ContributingSignals...)
	if t.Side == domain.SideBuy {
		t.ConfluenceScore += float64(bias)
	} else {
		t.ConfluenceScore -= float64(bias)
	}
	t.ConfluenceScore = math.Max(0, math.Min(100, t.ConfluenceScore))
	return t
}
