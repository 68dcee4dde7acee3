package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/crypto_orderflow/internal/domain"
	"github.com/vitos/crypto_orderflow/internal/usecase"
)

var regimes = []domain.Regime{
	domain.RegimeTrendingUp,
	domain.RegimeTrendingDown,
	domain.RegimeRanging,
	domain.RegimeVolatile,
	domain.RegimeLowVolume,
}

// Metrics implements usecase.PipelineMetrics on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	TicksTotal     *prometheus.CounterVec
	CandlesTotal   *prometheus.CounterVec
	CandleDelta    *prometheus.GaugeVec
	CandleVolume   *prometheus.GaugeVec
	CVD            *prometheus.GaugeVec
	Regime         *prometheus.GaugeVec
	SignalsTotal   *prometheus.CounterVec
	SweepsTotal    *prometheus.CounterVec
	ProposalsTotal *prometheus.CounterVec
	BlockedTotal   *prometheus.CounterVec
	LastScore      *prometheus.GaugeVec
}

var _ usecase.PipelineMetrics = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TicksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "orderflow_ticks_total", Help: "Ticks ingested"},
			[]string{"symbol"},
		),
		CandlesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "orderflow_candles_total", Help: "Footprint candles closed"},
			[]string{"symbol"},
		),
		CandleDelta: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "orderflow_candle_delta", Help: "Delta of the last closed candle"},
			[]string{"symbol"},
		),
		CandleVolume: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "orderflow_candle_volume", Help: "Volume of the last closed candle"},
			[]string{"symbol"},
		),
		CVD: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "orderflow_cvd", Help: "Cumulative volume delta"},
			[]string{"symbol"},
		),
		Regime: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "orderflow_regime", Help: "1 for the current market regime, 0 otherwise"},
			[]string{"symbol", "regime"},
		),
		SignalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "orderflow_signals_total", Help: "Order-flow signals detected"},
			[]string{"symbol", "type"},
		),
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "orderflow_sweeps_total", Help: "Liquidity sweeps detected"},
			[]string{"symbol", "type"},
		),
		ProposalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "orderflow_trade_signals_total", Help: "Trade proposals accepted"},
			[]string{"symbol", "side", "strategy"},
		),
		BlockedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "orderflow_blocked_total", Help: "Candle closes that produced no trade, by reason"},
			[]string{"symbol", "reason"},
		),
		LastScore: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "orderflow_last_confluence_score", Help: "Score of the last accepted proposal"},
			[]string{"symbol"},
		),
	}
	m.registry.MustRegister(
		m.TicksTotal, m.CandlesTotal, m.CandleDelta, m.CandleVolume, m.CVD, m.Regime,
		m.SignalsTotal, m.SweepsTotal, m.ProposalsTotal, m.BlockedTotal, m.LastScore,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveTick(symbol string) {
	m.TicksTotal.WithLabelValues(symbol).Inc()
}

func (m *Metrics) ObserveCandle(symbol string, candle domain.FootprintCandle, cvd float64) {
	m.CandlesTotal.WithLabelValues(symbol).Inc()
	m.CandleDelta.WithLabelValues(symbol).Set(candle.Delta())
	m.CandleVolume.WithLabelValues(symbol).Set(candle.TotalVolume())
	m.CVD.WithLabelValues(symbol).Set(cvd)
}

func (m *Metrics) ObserveRegime(symbol string, regime domain.Regime) {
	for _, r := range regimes {
		v := 0.0
		if r == regime {
			v = 1
		}
		m.Regime.WithLabelValues(symbol, string(r)).Set(v)
	}
}

func (m *Metrics) ObserveSignals(symbol string, signals []domain.OrderFlowSignal) {
	for _, s := range signals {
		m.SignalsTotal.WithLabelValues(symbol, string(s.Type)).Inc()
	}
}

func (m *Metrics) ObserveSweeps(symbol string, sweeps []domain.SweepEvent) {
	for _, e := range sweeps {
		m.SweepsTotal.WithLabelValues(symbol, string(e.Type)).Inc()
	}
}

func (m *Metrics) ObserveDecision(symbol string, trade *domain.TradeSignal, blocked usecase.BlockReason) {
	if trade != nil {
		m.ProposalsTotal.WithLabelValues(symbol, string(trade.Side), string(trade.Strategy)).Inc()
		m.LastScore.WithLabelValues(symbol).Set(trade.ConfluenceScore)
		return
	}
	if blocked != usecase.BlockNone {
		m.BlockedTotal.WithLabelValues(symbol, string(blocked)).Inc()
	}
}
