package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_orderflow/internal/domain"
	"github.com/vitos/crypto_orderflow/internal/usecase"
)

// value returns the sample of family name whose labels include want, or -1.
func value(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !hasLabels(metric, want) {
				continue
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				return metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				return metric.GetGauge().GetValue()
			}
		}
	}
	return -1
}

func hasLabels(metric *dto.Metric, want map[string]string) bool {
	matched := 0
	for _, lp := range metric.GetLabel() {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestMetrics_Observe(t *testing.T) {
	m := New()
	btc := map[string]string{"symbol": "BTCUSDT"}

	m.ObserveTick("BTCUSDT")
	m.ObserveTick("BTCUSDT")
	assert.Equal(t, 2.0, value(t, m, "orderflow_ticks_total", btc))

	candle := domain.NewFootprintCandle(0, 100, 101, 99, 100.5, []domain.PriceLevel{
		{Price: 100, BidVolume: 2, AskVolume: 7, Trades: 3},
	})
	m.ObserveCandle("BTCUSDT", candle, 42)
	assert.Equal(t, 1.0, value(t, m, "orderflow_candles_total", btc))
	assert.Equal(t, 5.0, value(t, m, "orderflow_candle_delta", btc))
	assert.Equal(t, 9.0, value(t, m, "orderflow_candle_volume", btc))
	assert.Equal(t, 42.0, value(t, m, "orderflow_cvd", btc))

	m.ObserveRegime("BTCUSDT", domain.RegimeVolatile)
	m.ObserveRegime("BTCUSDT", domain.RegimeRanging)
	assert.Equal(t, 1.0, value(t, m, "orderflow_regime", map[string]string{"symbol": "BTCUSDT", "regime": "ranging"}))
	assert.Equal(t, 0.0, value(t, m, "orderflow_regime", map[string]string{"symbol": "BTCUSDT", "regime": "volatile"}))

	m.ObserveSignals("BTCUSDT", []domain.OrderFlowSignal{
		{Type: domain.SignalCVDConfirmsUp}, {Type: domain.SignalCVDConfirmsUp}, {Type: domain.SignalPOCMagnetLong},
	})
	assert.Equal(t, 2.0, value(t, m, "orderflow_signals_total", map[string]string{"type": "cvd_confirms_up"}))

	m.ObserveSweeps("BTCUSDT", []domain.SweepEvent{{Type: domain.SweepStopHuntBull}})
	assert.Equal(t, 1.0, value(t, m, "orderflow_sweeps_total", map[string]string{"type": "stop_hunt_bull"}))

	m.ObserveDecision("BTCUSDT", &domain.TradeSignal{Side: domain.SideBuy, Strategy: domain.StrategyReversal, ConfluenceScore: 77}, usecase.BlockNone)
	m.ObserveDecision("BTCUSDT", nil, usecase.BlockCooldown)
	m.ObserveDecision("BTCUSDT", nil, usecase.BlockNone)
	assert.Equal(t, 1.0, value(t, m, "orderflow_trade_signals_total",
		map[string]string{"side": "buy", "strategy": "reversal"}))
	assert.Equal(t, 77.0, value(t, m, "orderflow_last_confluence_score", btc))
	assert.Equal(t, 1.0, value(t, m, "orderflow_blocked_total", map[string]string{"reason": "cooldown"}))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveTick("ETHUSDT")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `orderflow_ticks_total{symbol="ETHUSDT"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
