package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

func newTestMTF(t *testing.T, tfs ...int) *MultiTimeframeAnalyzer {
	t.Helper()
	a, err := NewMultiTimeframeAnalyzer(testParams(), tfs, zap.NewNop())
	require.NoError(t, err)
	return a
}

func feed(t *testing.T, a *MultiTimeframeAnalyzer, ticks ...domain.RawTick) map[int]domain.FootprintCandle {
	t.Helper()
	var closed map[int]domain.FootprintCandle
	for _, tk := range ticks {
		var err error
		closed, err = a.ProcessTick(tk)
		require.NoError(t, err)
	}
	return closed
}

func TestNewMultiTimeframeAnalyzer(t *testing.T) {
	a, err := NewMultiTimeframeAnalyzer(testParams(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5, 15, 60}, a.Timeframes())

	a, err = NewMultiTimeframeAnalyzer(testParams(), []int{15, 1, 5}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 5, 15}, a.Timeframes())

	_, err = NewMultiTimeframeAnalyzer(testParams(), []int{1, 0}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

func TestMultiTimeframeAnalyzer_HTFConfirms(t *testing.T) {
	a := newTestMTF(t, 1, 5)

	closed := feed(t, a,
		tick(0, 100, 1, true),
		tick(30000, 101, 1, true),
		tick(5*minuteMs, 102, 1, true),
	)
	assert.Len(t, closed, 2, "both timeframes close at the five minute boundary")

	bias := a.HTFBias(1)
	assert.Equal(t, 15, bias.Bias)
	assert.Equal(t, domain.ConfirmationConfirmed, bias.Confirmation)
	require.Contains(t, bias.Details, 5)
	assert.Equal(t, "bull", bias.Details[5].Direction)
	assert.Equal(t, 2.0, bias.Details[5].Delta)

	top := a.HTFBias(5)
	assert.Equal(t, domain.ConfirmationNoData, top.Confirmation)
	assert.Zero(t, top.Bias)
}

func TestMultiTimeframeAnalyzer_HTFDiverges(t *testing.T) {
	a := newTestMTF(t, 1, 5)

	feed(t, a,
		tick(0, 100, 5, false),
		tick(30000, 95, 5, false),
		tick(minuteMs, 95, 1, true),
		tick(90000, 96, 1, true),
		tick(5*minuteMs, 96, 1, true),
	)

	base, ok := a.LastCandle(1)
	require.True(t, ok)
	assert.Equal(t, minuteMs, base.Timestamp)
	assert.Equal(t, 2.0, base.Delta())

	htf, ok := a.LastCandle(5)
	require.True(t, ok)
	assert.Equal(t, -8.0, htf.Delta())

	bias := a.HTFBias(1)
	assert.Equal(t, -15, bias.Bias)
	assert.Equal(t, domain.ConfirmationDivergent, bias.Confirmation)
	assert.Equal(t, "bear", bias.Details[5].Direction)
}

func TestMultiTimeframeAnalyzer_HTFConfirmsBearish(t *testing.T) {
	a := newTestMTF(t, 1, 5)

	feed(t, a,
		tick(0, 100, 5, false),
		tick(30000, 99, 5, false),
		tick(5*minuteMs, 98, 1, false),
	)

	bias := a.HTFBias(1)
	assert.Equal(t, domain.ConfirmationConfirmed, bias.Confirmation)
	assert.Equal(t, -15, bias.Bias, "agreement on a falling candle favors shorts")
	assert.Equal(t, "bear", bias.Details[5].Direction)
}

func TestMultiTimeframeAnalyzer_HTFSignals(t *testing.T) {
	a := newTestMTF(t, 1, 5)

	feed(t, a,
		tick(0, 100, 6, true),
		tick(1000, 101, 6, true),
		tick(2000, 102, 6, true),
		tick(5*minuteMs, 102, 1, true),
	)

	signals := a.HTFSignals(5)
	require.NotEmpty(t, signals)
	assert.Equal(t, domain.SignalStackedImbalanceBuy, signals[0].Type)
	assert.Equal(t, 100.0, signals[0].Price)
	assert.Equal(t, domain.StackDetail{Levels: 3, LowPrice: 100, HighPrice: 102}, signals[0].Detail)
	assert.Nil(t, a.HTFSignals(15), "unknown timeframe")
}

func TestMultiTimeframeAnalyzer_NoClosedCandles(t *testing.T) {
	a := newTestMTF(t, 1, 5)
	feed(t, a, tick(0, 100, 1, true))

	bias := a.HTFBias(1)
	assert.Equal(t, domain.ConfirmationNoData, bias.Confirmation)
	assert.NotNil(t, bias.Details)
	assert.Nil(t, a.HTFSignals(5))
}
