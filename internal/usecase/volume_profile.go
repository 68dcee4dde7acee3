package usecase

import (
	"fmt"
	"math"
	"sort"

	"github.com/vitos/crypto_orderflow/internal/domain"
)

const (
	DefaultSessionCandles = 12
	DefaultDailyCandles   = 288

	profileMinNodes   = 5
	profileTopNodes   = 3
	lvnMaxRatio       = 0.3
	atPOCPct          = 0.05
	pocSidePct        = 0.2
	outsideVABias     = 8
	pocSideBias       = 5
	weeklyBiasWeight  = 1.5
	combinedBiasLimit = 15
)

// CompositeVolumeProfile accumulates per-level volume across candles until reset.
type CompositeVolumeProfile struct {
	scale   float64
	volumes map[int64]float64
	candles int
}

func NewCompositeVolumeProfile(scale float64) *CompositeVolumeProfile {
	return &CompositeVolumeProfile{
		scale:   scale,
		volumes: make(map[int64]float64),
	}
}

// AddCandle adds every level of c, re-binned to the profile's scale.
func (p *CompositeVolumeProfile) AddCandle(c domain.FootprintCandle) {
	for i := 0; i < c.LevelCount(); i++ {
		l := c.Level(i)
		p.volumes[domain.LevelKey(l.Price, p.scale)] += l.TotalVolume()
	}
	p.candles++
}

func (p *CompositeVolumeProfile) Reset() {
	p.volumes = make(map[int64]float64)
	p.candles = 0
}

func (p *CompositeVolumeProfile) CandleCount() int {
	return p.candles
}

func (p *CompositeVolumeProfile) LevelCount() int {
	return len(p.volumes)
}

func (p *CompositeVolumeProfile) TotalVolume() float64 {
	var total float64
	for _, v := range p.volumes {
		total += v
	}
	return total
}

// nodes returns the histogram in ascending price order.
func (p *CompositeVolumeProfile) nodes() []domain.VolumeNode {
	keys := make([]int64, 0, len(p.volumes))
	for k := range p.volumes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]domain.VolumeNode, len(keys))
	for i, k := range keys {
		out[i] = domain.VolumeNode{Price: float64(k) * p.scale, Volume: p.volumes[k]}
	}
	return out
}

// POC returns the highest-volume price, or false for an empty profile.
func (p *CompositeVolumeProfile) POC() (float64, bool) {
	va, ok := domain.BuildValueArea(p.nodes(), domain.DefaultValueAreaPct)
	return va.POC, ok
}

// ValueArea is zero-valued for an empty profile.
func (p *CompositeVolumeProfile) ValueArea(pct float64) domain.ValueArea {
	va, _ := domain.BuildValueArea(p.nodes(), pct)
	return va
}

// VolumeNodes returns the top-n high volume nodes and up to n low volume nodes under 30% of the
// mean level volume. Both are empty when fewer than five levels exist.
func (p *CompositeVolumeProfile) VolumeNodes(n int) (hvn, lvn []domain.VolumeNodeRatio) {
	hvn, lvn = []domain.VolumeNodeRatio{}, []domain.VolumeNodeRatio{}
	nodes := p.nodes()
	if len(nodes) < profileMinNodes {
		return hvn, lvn
	}
	avg := p.TotalVolume() / float64(len(nodes))

	byVolume := make([]domain.VolumeNode, len(nodes))
	copy(byVolume, nodes)
	sort.SliceStable(byVolume, func(i, j int) bool { return byVolume[i].Volume > byVolume[j].Volume })
	for _, node := range byVolume[:min(n, len(byVolume))] {
		hvn = append(hvn, domain.VolumeNodeRatio{Price: node.Price, Volume: node.Volume, Ratio: node.Volume / avg})
	}

	sort.SliceStable(byVolume, func(i, j int) bool { return byVolume[i].Volume < byVolume[j].Volume })
	for _, node := range byVolume[:min(n, len(byVolume))] {
		if node.Volume < avg*lvnMaxRatio {
			lvn = append(lvn, domain.VolumeNodeRatio{Price: node.Price, Volume: node.Volume, Ratio: node.Volume / avg})
		}
	}
	return hvn, lvn
}

// SignalBias scores price against the profile: outside the value area pulls back toward it,
// and inside it a price well away from the POC pulls toward the POC.
func (p *CompositeVolumeProfile) SignalBias(price float64) domain.BiasResult {
	va := p.ValueArea(domain.DefaultValueAreaPct)
	if va.POC == 0 || price == 0 {
		return domain.BiasResult{Bias: 0, LevelType: domain.LevelNone, Reason: "no profile data"}
	}

	distance := (price - va.POC) / va.POC * 100
	switch {
	case math.Abs(distance) < atPOCPct:
		return domain.BiasResult{Bias: 0, LevelType: domain.LevelPOC,
			Reason: fmt.Sprintf("at POC (%.2f)", va.POC)}
	case price < va.Low:
		return domain.BiasResult{Bias: outsideVABias, LevelType: domain.LevelBelowVA,
			Reason: fmt.Sprintf("below value area low (%.2f), mean reversion up likely", va.Low)}
	case price > va.High:
		return domain.BiasResult{Bias: -outsideVABias, LevelType: domain.LevelAboveVA,
			Reason: fmt.Sprintf("above value area high (%.2f), mean reversion down likely", va.High)}
	case distance < -pocSidePct:
		return domain.BiasResult{Bias: pocSideBias, LevelType: domain.LevelBelowPOC,
			Reason: fmt.Sprintf("below POC (%.2f), pull up", va.POC)}
	case distance > pocSidePct:
		return domain.BiasResult{Bias: -pocSideBias, LevelType: domain.LevelAbovePOC,
			Reason: fmt.Sprintf("above POC (%.2f), pull down", va.POC)}
	}
	return domain.BiasResult{Bias: 0, LevelType: domain.LevelInsideVA, Reason: "inside value area"}
}

func (p *CompositeVolumeProfile) Analysis() domain.ProfileAnalysis {
	va := p.ValueArea(domain.DefaultValueAreaPct)
	hvn, lvn := p.VolumeNodes(profileTopNodes)
	return domain.ProfileAnalysis{
		POC:         va.POC,
		VAHigh:      va.High,
		VALow:       va.Low,
		TotalVolume: p.TotalVolume(),
		Candles:     p.candles,
		Levels:      len(p.volumes),
		HVN:         hvn,
		LVN:         lvn,
	}
}

// MultiPeriodProfile keeps session, daily and weekly composites with independent reset cadences.
// The weekly composite never resets on its own.
type MultiPeriodProfile struct {
	Session *CompositeVolumeProfile
	Daily   *CompositeVolumeProfile
	Weekly  *CompositeVolumeProfile

	sessionEvery   int
	dailyEvery     int
	sessionCandles int
	dailyCandles   int
}

// NewMultiPeriodProfile uses the default cadences for non-positive sessionEvery or dailyEvery.
func NewMultiPeriodProfile(scale float64, sessionEvery, dailyEvery int) *MultiPeriodProfile {
	if sessionEvery <= 0 {
		sessionEvery = DefaultSessionCandles
	}
	if dailyEvery <= 0 {
		dailyEvery = DefaultDailyCandles
	}
	return &MultiPeriodProfile{
		Session:      NewCompositeVolumeProfile(scale),
		Daily:        NewCompositeVolumeProfile(scale),
		Weekly:       NewCompositeVolumeProfile(scale),
		sessionEvery: sessionEvery,
		dailyEvery:   dailyEvery,
	}
}

func (m *MultiPeriodProfile) AddCandle(c domain.FootprintCandle) {
	m.Session.AddCandle(c)
	m.Daily.AddCandle(c)
	m.Weekly.AddCandle(c)

	m.sessionCandles++
	m.dailyCandles++
	if m.sessionCandles >= m.sessionEvery {
		m.Session.Reset()
		m.sessionCandles = 0
	}
	if m.dailyCandles >= m.dailyEvery {
		m.Daily.Reset()
		m.dailyCandles = 0
	}
}

// CombinedBias is daily + 1.5 x weekly, truncated and clamped to [-15, 15].
func (m *MultiPeriodProfile) CombinedBias(price float64) domain.CombinedBias {
	daily := m.Daily.SignalBias(price)
	weekly := m.Weekly.SignalBias(price)

	combined := int(float64(daily.Bias) + float64(weekly.Bias)*weeklyBiasWeight)
	combined = max(-combinedBiasLimit, min(combinedBiasLimit, combined))
	return domain.CombinedBias{Bias: combined, Daily: daily, Weekly: weekly}
}

func (m *MultiPeriodProfile) Analysis() domain.MultiPeriodAnalysis {
	return domain.MultiPeriodAnalysis{
		Session: m.Session.Analysis(),
		Daily:   m.Daily.Analysis(),
		Weekly:  m.Weekly.Analysis(),
	}
}
