package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_orderflow/internal/domain"
	"go.uber.org/zap"
)

func TestNewRegimeDetector_Lookback(t *testing.T) {
	_, err := NewRegimeDetector(3, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)

	r, err := NewRegimeDetector(0, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultRegimeLookback, r.lookback)
	assert.Equal(t, domain.RegimeRanging, r.Current())
}

func TestRegimeDetector_Analyze(t *testing.T) {
	tests := []struct {
		name    string
		candles func() []domain.FootprintCandle
		want    domain.Regime
	}{
		{
			name: "volume dried up",
			candles: func() []domain.FootprintCandle {
				var out []domain.FootprintCandle
				for i := int64(0); i < 20; i++ {
					vol := 100.0
					if i >= 17 {
						vol = 20
					}
					out = append(out, barCandle(i*minuteMs, 100, vol))
				}
				return out
			},
			want: domain.RegimeLowVolume,
		},
		{
			name: "steady climb",
			candles: func() []domain.FootprintCandle {
				var out []domain.FootprintCandle
				for i := int64(0); i < 20; i++ {
					out = append(out, barCandle(i*minuteMs, 100+0.5*float64(i), 10))
				}
				return out
			},
			want: domain.RegimeTrendingUp,
		},
		{
			name: "steady decline",
			candles: func() []domain.FootprintCandle {
				var out []domain.FootprintCandle
				for i := int64(0); i < 20; i++ {
					out = append(out, barCandle(i*minuteMs, 110-0.5*float64(i), 10))
				}
				return out
			},
			want: domain.RegimeTrendingDown,
		},
		{
			name: "whipsaw",
			candles: func() []domain.FootprintCandle {
				var out []domain.FootprintCandle
				for i := int64(0); i < 20; i++ {
					close := 100.0
					if i%2 == 1 {
						close = 102
					}
					out = append(out, barCandle(i*minuteMs, close, 10))
				}
				return out
			},
			want: domain.RegimeVolatile,
		},
		{
			name: "flat",
			candles: func() []domain.FootprintCandle {
				var out []domain.FootprintCandle
				for i := int64(0); i < 20; i++ {
					out = append(out, barCandle(i*minuteMs, 100, 10))
				}
				return out
			},
			want: domain.RegimeRanging,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRegimeDetector(DefaultRegimeLookback, nil)
			require.NoError(t, err)

			assert.Equal(t, tt.want, r.Analyze(tt.candles()))
			assert.Equal(t, tt.want, r.Current())
			assert.Equal(t, []domain.Regime{tt.want}, r.History())
		})
	}
}

func TestRegimeDetector_LowVolumeBlocksTrading(t *testing.T) {
	r, err := NewRegimeDetector(0, nil)
	require.NoError(t, err)

	var candles []domain.FootprintCandle
	for i := int64(0); i < 20; i++ {
		vol := 100.0
		if i >= 17 {
			vol = 20
		}
		candles = append(candles, barCandle(i*minuteMs, 100, vol))
	}
	r.Analyze(candles)

	assert.False(t, r.ShouldTrade())
	assert.True(t, r.Guidance().Blocks(domain.StrategyReversal))
	assert.InDelta(t, 20.0/88.0, r.Metrics().VolumeHealth, 1e-9)
}

func TestRegimeDetector_TooFewCandles(t *testing.T) {
	r, err := NewRegimeDetector(0, nil)
	require.NoError(t, err)

	var candles []domain.FootprintCandle
	for i := int64(0); i < 20; i++ {
		candles = append(candles, barCandle(i*minuteMs, 100+float64(i%2)*5, 10))
	}
	require.Equal(t, domain.RegimeVolatile, r.Analyze(candles))

	assert.Equal(t, domain.RegimeRanging, r.Analyze(candles[:4]))
	assert.Equal(t, domain.RegimeVolatile, r.Current(), "short windows leave state untouched")
	assert.Len(t, r.History(), 1)
	assert.True(t, r.ShouldTrade())
}

func TestRegimeDetector_UsesNewestWindow(t *testing.T) {
	r, err := NewRegimeDetector(5, nil)
	require.NoError(t, err)

	var candles []domain.FootprintCandle
	for i := int64(0); i < 10; i++ {
		close := 100.0
		if i < 5 && i%2 == 1 {
			close = 110
		}
		candles = append(candles, barCandle(i*minuteMs, close, 10))
	}
	assert.Equal(t, domain.RegimeRanging, r.Analyze(candles))
	assert.Zero(t, r.Metrics().Volatility)
}

func TestRegimeDetector_HistoryIsBounded(t *testing.T) {
	r, err := NewRegimeDetector(0, nil)
	require.NoError(t, err)

	var candles []domain.FootprintCandle
	for i := int64(0); i < 5; i++ {
		candles = append(candles, barCandle(i*minuteMs, 100, 10))
	}
	for i := 0; i < 120; i++ {
		r.Analyze(candles)
	}
	assert.Len(t, r.History(), 100)
}
