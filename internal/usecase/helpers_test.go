package usecase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

const minuteMs = int64(60 * 1000)

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func testParams() EngineParams {
	p := DefaultEngineParams()
	p.Scale = 1
	p.PeriodMs = minuteMs
	return p
}

func newTestEngine(t *testing.T) *FootprintEngine {
	t.Helper()
	e, err := NewFootprintEngine(testParams(), zap.NewNop())
	require.NoError(t, err)
	return e
}

// seedCandles appends closed candles to e exactly as closeCandle would.
func seedCandles(e *FootprintEngine, candles ...domain.FootprintCandle) {
	for _, c := range candles {
		e.cvd += c.Delta()
		e.cvdHist.Push(e.cvd)
		e.candles.Push(c)
	}
}

// barCandle is a one-level candle at close with a one-point range. 60% of the volume is aggressive buying.
func barCandle(ts int64, close, volume float64) domain.FootprintCandle {
	return domain.NewFootprintCandle(ts, close, close+0.5, close-0.5, close, []domain.PriceLevel{
		{Price: close, AskVolume: volume * 0.6, BidVolume: volume * 0.4, Trades: 2},
	})
}

func tick(ts int64, price, qty float64, buy bool) domain.RawTick {
	return domain.RawTick{Timestamp: ts, Price: price, Quantity: qty, IsBuyerMaker: !buy}
}
