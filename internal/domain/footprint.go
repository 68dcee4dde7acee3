package domain

import (
	"encoding/json"
	"math"
	"sort"
)

// DefaultValueAreaPct is the share of volume a value area must cover.
const DefaultValueAreaPct = 0.70

// PriceLevel holds the aggressor volume traded at one binned price.
type PriceLevel struct {
	Price     float64 `json:"price"`
	BidVolume float64 `json:"bid_volume"` // aggressive sells hitting the bid
	AskVolume float64 `json:"ask_volume"` // aggressive buys lifting the ask
	Trades    int     `json:"trades"`
}

func (l PriceLevel) Delta() float64 {
	return l.AskVolume - l.BidVolume
}

func (l PriceLevel) TotalVolume() float64 {
	return l.AskVolume + l.BidVolume
}

// ImbalanceRatio is ask/bid. A level with asks and no bids is +Inf, an empty level is 0.
func (l PriceLevel) ImbalanceRatio() float64 {
	if l.BidVolume == 0 {
		if l.AskVolume > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return l.AskVolume / l.BidVolume
}

// ReverseImbalanceRatio is bid/ask, the sell-side mirror of ImbalanceRatio.
func (l PriceLevel) ReverseImbalanceRatio() float64 {
	if l.AskVolume == 0 {
		if l.BidVolume > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return l.BidVolume / l.AskVolume
}

// ValueArea is the smallest set of highest-volume levels covering a target share of volume.
type ValueArea struct {
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	POC         float64 `json:"poc"`
	VolumeAtPOC float64 `json:"volume_at_poc"`
}

// VolumeNode is a price with the volume accumulated at it.
type VolumeNode struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// BuildValueArea computes the value area of nodes sorted by ascending price.
// Volume ties resolve to the lower price. ok is false when nodes is empty.
func BuildValueArea(nodes []VolumeNode, pct float64) (va ValueArea, ok bool) {
	if len(nodes) == 0 {
		return ValueArea{}, false
	}

	byVolume := make([]VolumeNode, len(nodes))
	copy(byVolume, nodes)
	sort.SliceStable(byVolume, func(i, j int) bool {
		return byVolume[i].Volume > byVolume[j].Volume
	})

	var total float64
	for _, n := range nodes {
		total += n.Volume
	}
	target := total * pct

	poc := byVolume[0]
	accumulated := poc.Volume
	high, low := poc.Price, poc.Price
	for _, n := range byVolume[1:] {
		if accumulated >= target {
			break
		}
		accumulated += n.Volume
		high = math.Max(high, n.Price)
		low = math.Min(low, n.Price)
	}

	return ValueArea{
		High:        high,
		Low:         low,
		POC:         poc.Price,
		VolumeAtPOC: poc.Volume,
	}, true
}

// FootprintCandle is a closed (or snapshotted) time bucket with per-price aggressor volume.
// It is a value: the level slice is private and never modified after construction.
type FootprintCandle struct {
	Timestamp   int64   `json:"timestamp"` // bucket start, ms
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	TotalBid    float64 `json:"total_bid"`
	TotalAsk    float64 `json:"total_ask"`
	TotalTrades int     `json:"total_trades"`

	levels []PriceLevel // ascending by price
}

// NewFootprintCandle builds a candle from explicit levels. Totals are derived from the levels.
func NewFootprintCandle(timestamp int64, open, high, low, close float64, levels []PriceLevel) FootprintCandle {
	c := FootprintCandle{
		Timestamp: timestamp,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     close,
		levels:    make([]PriceLevel, len(levels)),
	}
	copy(c.levels, levels)
	sort.Slice(c.levels, func(i, j int) bool {
		return c.levels[i].Price < c.levels[j].Price
	})
	for _, l := range c.levels {
		c.TotalBid += l.BidVolume
		c.TotalAsk += l.AskVolume
		c.TotalTrades += l.Trades
	}
	return c
}

func (c FootprintCandle) Delta() float64 {
	return c.TotalAsk - c.TotalBid
}

func (c FootprintCandle) TotalVolume() float64 {
	return c.TotalAsk + c.TotalBid
}

func (c FootprintCandle) Range() float64 {
	return c.High - c.Low
}

func (c FootprintCandle) IsBullish() bool {
	return c.Close > c.Open
}

func (c FootprintCandle) IsBearish() bool {
	return c.Close < c.Open
}

// LevelCount returns the number of distinct price levels.
func (c FootprintCandle) LevelCount() int {
	return len(c.levels)
}

// Level returns the i-th level in ascending price order.
func (c FootprintCandle) Level(i int) PriceLevel {
	return c.levels[i]
}

// Levels returns a copy of the levels in ascending price order.
func (c FootprintCandle) Levels() []PriceLevel {
	out := make([]PriceLevel, len(c.levels))
	copy(out, c.levels)
	return out
}

// LevelAt looks a level up by its binned price.
func (c FootprintCandle) LevelAt(price float64) (PriceLevel, bool) {
	i := sort.Search(len(c.levels), func(i int) bool {
		return c.levels[i].Price >= price
	})
	if i < len(c.levels) && c.levels[i].Price == price {
		return c.levels[i], true
	}
	return PriceLevel{}, false
}

// POC returns the price with the most volume, or Close when there are no levels.
func (c FootprintCandle) POC() float64 {
	if len(c.levels) == 0 {
		return c.Close
	}
	best := c.levels[0]
	for _, l := range c.levels[1:] {
		if l.TotalVolume() > best.TotalVolume() {
			best = l
		}
	}
	return best.Price
}

// ValueArea computes the candle's value area for pct of its volume.
func (c FootprintCandle) ValueArea(pct float64) ValueArea {
	va, ok := BuildValueArea(c.volumeNodes(), pct)
	if !ok {
		return ValueArea{High: c.Close, Low: c.Close, POC: c.Close}
	}
	return va
}

// MarshalJSON includes the private levels so API consumers see the full footprint.
func (c FootprintCandle) MarshalJSON() ([]byte, error) {
	type candle FootprintCandle
	return json.Marshal(struct {
		candle
		Delta  float64      `json:"delta"`
		POC    float64      `json:"poc"`
		Levels []PriceLevel `json:"levels"`
	}{
		candle: candle(c),
		Delta:  c.Delta(),
		POC:    c.POC(),
		Levels: c.levels,
	})
}

func (c FootprintCandle) volumeNodes() []VolumeNode {
	nodes := make([]VolumeNode, len(c.levels))
	for i, l := range c.levels {
		nodes[i] = VolumeNode{Price: l.Price, Volume: l.TotalVolume()}
	}
	return nodes
}

// CandleBuilder accumulates ticks into the open candle. It is owned by a single engine.
type CandleBuilder struct {
	timestamp   int64
	scale       float64
	open        float64
	high        float64
	low         float64
	close       float64
	totalBid    float64
	totalAsk    float64
	totalTrades int
	levels      map[int64]*PriceLevel // keyed by floor(price/scale)
}

func NewCandleBuilder(timestamp int64, open, scale float64) *CandleBuilder {
	return &CandleBuilder{
		timestamp: timestamp,
		scale:     scale,
		open:      open,
		high:      open,
		low:       open,
		close:     open,
		levels:    make(map[int64]*PriceLevel),
	}
}

func (b *CandleBuilder) Timestamp() int64 {
	return b.timestamp
}

// binEpsilon absorbs float error in price/scale so exact multiples of scale bin to themselves.
const binEpsilon = 1e-9

// LevelKey is the bin index floor(price/scale).
func LevelKey(price, scale float64) int64 {
	return int64(math.Floor(price/scale + binEpsilon))
}

// LevelPrice bins a price to floor(price/scale)*scale.
func LevelPrice(price, scale float64) float64 {
	return float64(LevelKey(price, scale)) * scale
}

// Add folds a tick into its level and the candle totals.
func (b *CandleBuilder) Add(t RawTick) {
	key := LevelKey(t.Price, b.scale)
	level, ok := b.levels[key]
	if !ok {
		level = &PriceLevel{Price: float64(key) * b.scale}
		b.levels[key] = level
	}
	level.Trades++

	if t.IsBuy() {
		level.AskVolume += t.Quantity
		b.totalAsk += t.Quantity
	} else {
		level.BidVolume += t.Quantity
		b.totalBid += t.Quantity
	}

	b.totalTrades++
	b.close = t.Price
	if t.Price > b.high {
		b.high = t.Price
	}
	if t.Price < b.low {
		b.low = t.Price
	}
}

// Snapshot freezes the builder's current state into an independent candle.
func (b *CandleBuilder) Snapshot() FootprintCandle {
	keys := make([]int64, 0, len(b.levels))
	for k := range b.levels {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	levels := make([]PriceLevel, len(keys))
	for i, k := range keys {
		levels[i] = *b.levels[k]
	}

	return FootprintCandle{
		Timestamp:   b.timestamp,
		Open:        b.open,
		High:        b.high,
		Low:         b.low,
		Close:       b.close,
		TotalBid:    b.totalBid,
		TotalAsk:    b.totalAsk,
		TotalTrades: b.totalTrades,
		levels:      levels,
	}
}
