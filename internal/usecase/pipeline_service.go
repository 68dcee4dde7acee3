package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

// PipelineMetrics receives pipeline outcomes. internal/metrics implements it with Prometheus.
type PipelineMetrics interface {
	ObserveTick(symbol string)
	ObserveCandle(symbol string, candle domain.FootprintCandle, cvd float64)
	ObserveRegime(symbol string, regime domain.Regime)
	ObserveSignals(symbol string, signals []domain.OrderFlowSignal)
	ObserveSweeps(symbol string, sweeps []domain.SweepEvent)
	ObserveDecision(symbol string, trade *domain.TradeSignal, blocked BlockReason)
}

type MarketSnapshot struct {
	Symbol        string                           `json:"symbol"`
	Candles       int                              `json:"candles"`
	LastCandle    *domain.FootprintCandle          `json:"last_candle,omitempty"`
	OpenCandle    *domain.FootprintCandle          `json:"open_candle,omitempty"`
	CVD           float64                          `json:"cvd"`
	CVDTrend      CVDTrend                         `json:"cvd_trend"`
	Regime        domain.Regime                    `json:"regime"`
	RegimeMetrics domain.RegimeMetrics             `json:"regime_metrics"`
	Guidance      domain.StrategyGuidance          `json:"guidance"`
	NearbyLevels  domain.NearbyLevels              `json:"nearby_levels"`
	ProfileBias   domain.CombinedBias              `json:"profile_bias"`
	HTF           *domain.HTFBias                  `json:"htf,omitempty"`
	HTFSignals    map[int][]domain.OrderFlowSignal `json:"htf_signals,omitempty"`
	LastReport    *CandleReport                    `json:"last_report,omitempty"`
}

type pipelineEntry struct {
	mu         sync.Mutex
	pipeline   *MarketPipeline
	lastReport *CandleReport
}

// PipelineService owns one MarketPipeline per symbol and fans every candle close out to the
// journal, metrics and logs. Symbols are processed independently.
type PipelineService struct {
	entries map[string]*pipelineEntry
	journal domain.Journal
	metrics PipelineMetrics
	logger  *zap.Logger
}

// NewPipelineService builds a pipeline per params entry. journal and metrics may be nil.
func NewPipelineService(params []PipelineParams, journal domain.Journal, metrics PipelineMetrics, logger *zap.Logger) (*PipelineService, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PipelineService{
		entries: make(map[string]*pipelineEntry, len(params)),
		journal: journal,
		metrics: metrics,
		logger:  logger,
	}
	for _, p := range params {
		if _, dup := s.entries[p.Symbol]; dup {
			return nil, fmt.Errorf("duplicate symbol %s", p.Symbol)
		}
		pipeline, err := NewMarketPipeline(p, logger)
		if err != nil {
			return nil, err
		}
		s.entries[p.Symbol] = &pipelineEntry{pipeline: pipeline}
	}
	return s, nil
}

func (s *PipelineService) Symbols() []string {
	out := make([]string, 0, len(s.entries))
	for sym := range s.entries {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *PipelineService) entry(symbol string) (*pipelineEntry, error) {
	e, ok := s.entries[symbol]
	if !ok {
		return nil, fmt.Errorf("%s: %w", symbol, domain.ErrUnknownSymbol)
	}
	return e, nil
}

// HandleTick runs t through symbol's pipeline. The report is non-nil only when a candle closed.
func (s *PipelineService) HandleTick(ctx context.Context, symbol string, t domain.RawTick) (*CandleReport, error) {
	e, err := s.entry(symbol)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	report, err := e.pipeline.OnTick(t)
	e.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObserveTick(symbol)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", symbol, err)
	}
	if report == nil {
		return nil, nil
	}

	s.record(ctx, report)

	// published only after journaling so readers never see the trade ID change
	e.mu.Lock()
	e.lastReport = report
	e.mu.Unlock()
	return report, nil
}

func (s *PipelineService) record(ctx context.Context, r *CandleReport) {
	if s.metrics != nil {
		s.metrics.ObserveCandle(r.Symbol, r.Candle, r.CVD)
		s.metrics.ObserveRegime(r.Symbol, r.Regime)
		s.metrics.ObserveSignals(r.Symbol, r.Signals)
		s.metrics.ObserveSweeps(r.Symbol, r.Sweeps)
		s.metrics.ObserveDecision(r.Symbol, r.Trade, r.Blocked)
	}

	if s.journal == nil {
		return
	}
	if err := s.journal.SaveCandle(ctx, r.Symbol, r.Candle); err != nil {
		s.logger.Error("Failed to journal candle", zap.String("symbol", r.Symbol), zap.Error(err))
	}
	if len(r.Signals) > 0 {
		if err := s.journal.SaveSignals(ctx, r.Symbol, r.Signals); err != nil {
			s.logger.Error("Failed to journal signals", zap.String("symbol", r.Symbol), zap.Error(err))
		}
	}
	if len(r.Sweeps) > 0 {
		if err := s.journal.SaveSweeps(ctx, r.Symbol, r.Sweeps); err != nil {
			s.logger.Error("Failed to journal sweeps", zap.String("symbol", r.Symbol), zap.Error(err))
		}
	}
	if r.Trade != nil {
		id, err := s.journal.SaveTradeSignal(ctx, r.Trade)
		if err != nil {
			s.logger.Error("Failed to journal trade signal", zap.String("symbol", r.Symbol), zap.Error(err))
			return
		}
		r.Trade.ID = id
	}
}

// Run streams ticks from src into the pipelines until src returns.
func (s *PipelineService) Run(ctx context.Context, src domain.TickSource) error {
	return src.Stream(ctx, s.Symbols(), func(st domain.SymbolTick) {
		if _, err := s.HandleTick(ctx, st.Symbol, st.Tick); err != nil {
			s.logger.Warn("Tick rejected", zap.String("symbol", st.Symbol), zap.Error(err))
		}
	})
}

func (s *PipelineService) Snapshot(symbol string) (*MarketSnapshot, error) {
	e, err := s.entry(symbol)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.pipeline
	snap := &MarketSnapshot{
		Symbol:        symbol,
		Candles:       p.Engine.CandleCount(),
		CVD:           p.Engine.CVD(),
		CVDTrend:      p.Engine.CVDTrend(DefaultCVDLookback),
		Regime:        p.Regime.Current(),
		RegimeMetrics: p.Regime.Metrics(),
		Guidance:      p.Regime.Guidance(),
		LastReport:    e.lastReport,
	}
	if c, ok := p.Engine.LastCandle(); ok {
		snap.LastCandle = &c
		snap.NearbyLevels = p.Liquidity.NearbyLevels(c.Close, DefaultNearbyDistancePct)
		snap.ProfileBias = p.Profile.CombinedBias(c.Close)
	}
	if c, ok := p.Engine.Current(); ok {
		snap.OpenCandle = &c
	}
	if p.MTF != nil {
		htf := p.MTF.HTFBias(p.baseTimeframe())
		snap.HTF = &htf
		for _, tf := range p.MTF.Timeframes() {
			if tf <= p.baseTimeframe() {
				continue
			}
			if signals := p.MTF.HTFSignals(tf); len(signals) > 0 {
				if snap.HTFSignals == nil {
					snap.HTFSignals = make(map[int][]domain.OrderFlowSignal)
				}
				snap.HTFSignals[tf] = signals
			}
		}
	}
	return snap, nil
}

func (s *PipelineService) Profile(symbol string) (domain.MultiPeriodAnalysis, error) {
	e, err := s.entry(symbol)
	if err != nil {
		return domain.MultiPeriodAnalysis{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pipeline.Profile.Analysis(), nil
}
