package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

func newTestPipeline(t *testing.T) *MarketPipeline {
	t.Helper()
	params := DefaultPipelineParams("BTCUSDT")
	params.Engine = testParams()
	p, err := NewMarketPipeline(params, zap.NewNop())
	require.NoError(t, err)
	return p
}

// reversalCandle closes below ten quiet candles at 101 with a three-level buy stack.
func reversalCandle() domain.FootprintCandle {
	return domain.NewFootprintCandle(10*minuteMs, 100, 100.75, 99.5, 100.5, []domain.PriceLevel{
		{Price: 99.5, AskVolume: 10, BidVolume: 1},
		{Price: 100, AskVolume: 10, BidVolume: 1},
		{Price: 100.5, AskVolume: 10, BidVolume: 1},
	})
}

func seedQuietHistory(p *MarketPipeline, withProfile bool) {
	for i := int64(0); i < 10; i++ {
		c := barCandle(i*minuteMs, 101, 10)
		seedCandles(p.Engine, c)
		if withProfile {
			p.Profile.AddCandle(c)
		}
	}
}

func TestMarketPipeline_AcceptsBiasedReversal(t *testing.T) {
	p := newTestPipeline(t)
	seedQuietHistory(p, true)
	c := reversalCandle()
	seedCandles(p.Engine, c)

	r := p.onCandleClose(c)

	assert.Equal(t, BlockNone, r.Blocked)
	assert.Equal(t, domain.RegimeRanging, r.Regime)
	assert.Empty(t, r.Sweeps)
	assert.Len(t, r.Signals, 4)

	require.NotNil(t, r.Proposal)
	assert.InDelta(t, 75.58797, r.Proposal.ConfluenceScore, 1e-5)
	assert.Equal(t, "BTCUSDT", r.Proposal.Symbol)

	assert.Equal(t, []domain.Bias{{Source: domain.BiasVolumeProfile, Value: 15}}, r.Biases)

	require.NotNil(t, r.Trade)
	assert.Equal(t, domain.SideBuy, r.Trade.Side)
	assert.Equal(t, domain.StrategyReversal, r.Trade.Strategy)
	assert.InDelta(t, 90.58797, r.Trade.ConfluenceScore, 1e-5)
	assert.Equal(t, 100.5, r.Trade.EntryPrice)
	assert.InDelta(t, 99.27, r.Trade.StopLoss, 1e-9)
	assert.InDelta(t, 102.55, r.Trade.TakeProfit, 1e-9)

	// the raw proposal is untouched by the bias
	assert.InDelta(t, 75.58797, r.Proposal.ConfluenceScore, 1e-5)
}

func TestMarketPipeline_BiasCanSinkProposal(t *testing.T) {
	p := newTestPipeline(t)
	seedQuietHistory(p, false)
	c := reversalCandle()
	seedCandles(p.Engine, c)

	r := p.onCandleClose(c)

	require.NotNil(t, r.Proposal)
	assert.Nil(t, r.Trade)
	assert.Equal(t, BlockBiasScore, r.Blocked)
	assert.Equal(t, []domain.Bias{{Source: domain.BiasVolumeProfile, Value: -15}}, r.Biases)
}

func TestMarketPipeline_Cooldown(t *testing.T) {
	p := newTestPipeline(t)
	seedQuietHistory(p, true)
	c := reversalCandle()
	seedCandles(p.Engine, c)
	require.NotNil(t, p.onCandleClose(c).Trade)

	for i := int64(11); i <= 12; i++ {
		next := barCandle(i*minuteMs, 101, 10)
		seedCandles(p.Engine, next)
		r := p.onCandleClose(next)
		assert.Equal(t, BlockCooldown, r.Blocked, "candle %d", i)
		assert.Nil(t, r.Signals)
	}

	next := barCandle(13*minuteMs, 101, 10)
	seedCandles(p.Engine, next)
	assert.NotEqual(t, BlockCooldown, p.onCandleClose(next).Blocked)
	assert.Equal(t, 4, p.CandleCount())
}

func TestMarketPipeline_LowVolumeBlocksOnTick(t *testing.T) {
	p := newTestPipeline(t)

	var last *CandleReport
	for i := int64(0); i <= 20; i++ {
		qty := 100.0
		if i >= 17 {
			qty = 20
		}
		r, err := p.OnTick(tick(i*minuteMs, 100, qty, true))
		require.NoError(t, err)
		if r != nil {
			last = r
		}
	}

	require.NotNil(t, last)
	assert.Equal(t, 19*minuteMs, last.Candle.Timestamp)
	assert.Equal(t, domain.RegimeLowVolume, last.Regime)
	assert.Equal(t, BlockRegime, last.Blocked)
	assert.Equal(t, 20, p.CandleCount())
}

func TestMarketPipeline_QuietCandleHasNoSignals(t *testing.T) {
	p := newTestPipeline(t)
	seedQuietHistory(p, true)
	c := barCandle(10*minuteMs, 101, 10)
	seedCandles(p.Engine, c)

	r := p.onCandleClose(c)
	assert.Equal(t, BlockNoSignals, r.Blocked)
	assert.Nil(t, r.Proposal)
}

func TestMarketPipeline_MTFBias(t *testing.T) {
	params := DefaultPipelineParams("ETHUSDT")
	params.Engine = testParams()
	params.MTFEnabled = true
	params.Timeframes = []int{1, 5}
	p, err := NewMarketPipeline(params, nil)
	require.NoError(t, err)
	require.NotNil(t, p.MTF)

	for _, tk := range []domain.RawTick{
		tick(0, 100, 1, true),
		tick(30000, 101, 1, true),
		tick(5*minuteMs, 102, 1, true),
	} {
		_, err := p.OnTick(tk)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, p.baseTimeframe())
	assert.Contains(t, p.biases(domain.FootprintCandle{}, nil), domain.Bias{Source: domain.BiasHigherTF, Value: 15})
}

func TestMarketPipeline_MTFBiasFavorsSellsOnBearishAgreement(t *testing.T) {
	params := DefaultPipelineParams("ETHUSDT")
	params.Engine = testParams()
	params.MTFEnabled = true
	params.Timeframes = []int{1, 5}
	p, err := NewMarketPipeline(params, nil)
	require.NoError(t, err)

	for _, tk := range []domain.RawTick{
		tick(0, 100, 5, false),
		tick(30000, 99, 5, false),
		tick(5*minuteMs, 98, 1, false),
	} {
		_, err := p.OnTick(tk)
		require.NoError(t, err)
	}

	htf := domain.Bias{Source: domain.BiasHigherTF, Value: -15}
	assert.Contains(t, p.biases(domain.FootprintCandle{}, nil), htf)

	sell := domain.TradeSignal{Side: domain.SideSell, ConfluenceScore: 70}
	assert.Equal(t, 85.0, applyBias(sell, htf.Value).ConfluenceScore)
	buy := domain.TradeSignal{Side: domain.SideBuy, ConfluenceScore: 70}
	assert.Equal(t, 55.0, applyBias(buy, htf.Value).ConfluenceScore)
}

func TestApplyBias(t *testing.T) {
	orig := domain.TradeSignal{
		Side:                domain.SideSell,
		ConfluenceScore:     70,
		ContributingSignals: []domain.OrderFlowSignal{{Type: domain.SignalAbsorptionResistance, Strength: 60}},
	}

	up := applyBias(orig, 10)
	assert.Equal(t, 60.0, up.ConfluenceScore, "long-positive bias lowers a sell")

	up.ContributingSignals[0].Strength = 1
	assert.Equal(t, 60.0, orig.ContributingSignals[0].Strength)
	assert.Equal(t, 70.0, orig.ConfluenceScore)

	assert.Equal(t, 100.0, applyBias(orig, -40).ConfluenceScore)
	assert.Equal(t, 0.0, applyBias(orig, 80).ConfluenceScore)

	buy := orig
	buy.Side = domain.SideBuy
	assert.Equal(t, 85.0, applyBias(buy, 15).ConfluenceScore)
}

type MockJournal struct {
	mu      sync.Mutex
	candles []domain.FootprintCandle
	signals []domain.OrderFlowSignal
	trades  []domain.TradeSignal
	failOn  string
}

func (m *MockJournal) SaveCandle(ctx context.Context, symbol string, c domain.FootprintCandle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn == "candle" {
		return errors.New("disk full")
	}
	m.candles = append(m.candles, c)
	return nil
}

func (m *MockJournal) SaveSignals(ctx context.Context, symbol string, signals []domain.OrderFlowSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, signals...)
	return nil
}

func (m *MockJournal) SaveSweeps(ctx context.Context, symbol string, sweeps []domain.SweepEvent) error {
	return nil
}

func (m *MockJournal) SaveTradeSignal(ctx context.Context, t *domain.TradeSignal) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, *t)
	return "trade-1", nil
}

func (m *MockJournal) ListSignals(ctx context.Context, symbol string, limit int) ([]domain.SignalRecord, error) {
	return nil, nil
}

func (m *MockJournal) ListTradeSignals(ctx context.Context, limit int) ([]domain.TradeSignal, error) {
	return nil, nil
}

type MockMetrics struct {
	ticks     int
	candles   int
	decisions []BlockReason
}

func (m *MockMetrics) ObserveTick(symbol string) { m.ticks++ }
func (m *MockMetrics) ObserveCandle(symbol string, c domain.FootprintCandle, cvd float64) {
	m.candles++
}
func (m *MockMetrics) ObserveRegime(symbol string, r domain.Regime) {}
func (m *MockMetrics) ObserveSignals(symbol string, signals []domain.OrderFlowSignal) {}
func (m *MockMetrics) ObserveSweeps(symbol string, sweeps []domain.SweepEvent) {}
func (m *MockMetrics) ObserveDecision(symbol string, trade *domain.TradeSignal, blocked BlockReason) {
	m.decisions = append(m.decisions, blocked)
}

// MockTickSource replays a fixed tick list.
type MockTickSource struct {
	ticks []domain.SymbolTick
}

func (m *MockTickSource) Stream(ctx context.Context, symbols []string, handle func(domain.SymbolTick)) error {
	for _, t := range m.ticks {
		handle(t)
	}
	return nil
}

func TestPipelineService_HandleTick(t *testing.T) {
	journal := &MockJournal{}
	metrics := &MockMetrics{}
	params := DefaultPipelineParams("BTCUSDT")
	params.Engine = testParams()
	svc, err := NewPipelineService([]PipelineParams{params}, journal, metrics, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.HandleTick(context.Background(), "DOGEUSDT", tick(0, 1, 1, true))
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)

	r, err := svc.HandleTick(context.Background(), "BTCUSDT", tick(0, 100, 1, true))
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = svc.HandleTick(context.Background(), "BTCUSDT", tick(minuteMs, 101, 1, true))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, int64(0), r.Candle.Timestamp)

	assert.Equal(t, 2, metrics.ticks)
	assert.Equal(t, 1, metrics.candles)
	assert.Equal(t, []BlockReason{r.Blocked}, metrics.decisions)
	assert.Len(t, journal.candles, 1)

	snap, err := svc.Snapshot("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Candles)
	require.NotNil(t, snap.LastCandle)
	require.NotNil(t, snap.OpenCandle)
	assert.Equal(t, 101.0, snap.OpenCandle.Open)
	assert.Same(t, r, snap.LastReport)
	assert.Nil(t, snap.HTF)

	_, err = svc.Snapshot("DOGEUSDT")
	assert.ErrorIs(t, err, domain.ErrUnknownSymbol)
}

func TestPipelineService_SnapshotCarriesHigherTimeframes(t *testing.T) {
	params := DefaultPipelineParams("BTCUSDT")
	params.Engine = testParams()
	params.MTFEnabled = true
	params.Timeframes = []int{1, 5}
	svc, err := NewPipelineService([]PipelineParams{params}, nil, nil, nil)
	require.NoError(t, err)

	for _, tk := range []domain.RawTick{
		tick(0, 100, 6, true),
		tick(1000, 101, 6, true),
		tick(2000, 102, 6, true),
		tick(5*minuteMs, 102, 1, true),
	} {
		_, err := svc.HandleTick(context.Background(), "BTCUSDT", tk)
		require.NoError(t, err)
	}

	snap, err := svc.Snapshot("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, snap.HTF)
	assert.Equal(t, 15, snap.HTF.Bias)
	assert.Equal(t, domain.ConfirmationConfirmed, snap.HTF.Confirmation)

	require.Contains(t, snap.HTFSignals, 5)
	assert.NotContains(t, snap.HTFSignals, 1, "the base timeframe is reported through last_report")
	assert.Equal(t, domain.SignalStackedImbalanceBuy, snap.HTFSignals[5][0].Type)
}

func TestPipelineService_JournalsTrades(t *testing.T) {
	journal := &MockJournal{}
	params := DefaultPipelineParams("BTCUSDT")
	params.Engine = testParams()
	svc, err := NewPipelineService([]PipelineParams{params}, journal, nil, nil)
	require.NoError(t, err)

	e := svc.entries["BTCUSDT"]
	seedQuietHistory(e.pipeline, true)
	c := reversalCandle()
	seedCandles(e.pipeline.Engine, c)
	r := e.pipeline.onCandleClose(c)
	require.NotNil(t, r.Trade)

	svc.record(context.Background(), r)
	assert.Equal(t, "trade-1", r.Trade.ID)
	require.Len(t, journal.trades, 1)
	assert.Equal(t, domain.SideBuy, journal.trades[0].Side)
	assert.Len(t, journal.signals, 4)
}

func TestPipelineService_JournalErrorsAreNotFatal(t *testing.T) {
	journal := &MockJournal{failOn: "candle"}
	params := DefaultPipelineParams("BTCUSDT")
	params.Engine = testParams()
	svc, err := NewPipelineService([]PipelineParams{params}, journal, nil, nil)
	require.NoError(t, err)

	err = svc.Run(context.Background(), &MockTickSource{ticks: []domain.SymbolTick{
		{Symbol: "BTCUSDT", Tick: tick(0, 100, 1, true)},
		{Symbol: "XRPUSDT", Tick: tick(1, 1, 1, true)},
		{Symbol: "BTCUSDT", Tick: tick(minuteMs, 100, 1, true)},
	}})
	require.NoError(t, err)

	snap, err := svc.Snapshot("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Candles)
	assert.Empty(t, journal.candles)
}

func TestNewPipelineService_RejectsDuplicates(t *testing.T) {
	p := DefaultPipelineParams("BTCUSDT")
	_, err := NewPipelineService([]PipelineParams{p, p}, nil, nil, nil)
	assert.Error(t, err)

	bad := DefaultPipelineParams("ETHUSDT")
	bad.Engine.Scale = 0
	_, err = NewPipelineService([]PipelineParams{bad}, nil, nil, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidScale)

	svc, err := NewPipelineService([]PipelineParams{DefaultPipelineParams("SOLUSDT"), p}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, svc.Symbols())
}
