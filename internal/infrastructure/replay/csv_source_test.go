package replay

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_orderflow/internal/domain"
)

func collect(t *testing.T, input, defaultSymbol string, symbols []string) ([]domain.SymbolTick, error) {
	t.Helper()
	var got []domain.SymbolTick
	err := ReadTicks(context.Background(), strings.NewReader(input), defaultSymbol, symbols, func(st domain.SymbolTick) {
		got = append(got, st)
	})
	return got, err
}

func TestReadTicks(t *testing.T) {
	input := `timestamp,price,quantity,is_buyer_maker,symbol
1000,100.5,0.2,false,BTCUSDT
# comment
1500, 2000, 1, true, ethusdt
2000,101,3,1
`
	got, err := collect(t, input, "BTCUSDT", nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.SymbolTick{
		{Symbol: "BTCUSDT", Tick: domain.RawTick{Timestamp: 1000, Price: 100.5, Quantity: 0.2}},
		{Symbol: "ETHUSDT", Tick: domain.RawTick{Timestamp: 1500, Price: 2000, Quantity: 1, IsBuyerMaker: true}},
		{Symbol: "BTCUSDT", Tick: domain.RawTick{Timestamp: 2000, Price: 101, Quantity: 3, IsBuyerMaker: true}},
	}, got)

	got, err = collect(t, input, "BTCUSDT", []string{"ETHUSDT"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ETHUSDT", got[0].Symbol)
}

func TestReadTicks_NoHeader(t *testing.T) {
	got, err := collect(t, "1,10,1,false\n2,11,1,true\n", "SOLUSDT", nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "SOLUSDT", got[1].Symbol)
}

func TestReadTicks_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"too few fields", "1,10,1\n", "line 1: expected 4 or 5 fields"},
		{"bad price", "1,abc,1,false\n", "line 1: price"},
		{"bad side", "h,p,q,m\n1,10,1,maybe\n", "line 2: is_buyer_maker"},
		{"no symbol", "1,10,1,false\n", "no default symbol"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collect(t, tt.input, "", nil)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestReadTicks_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ReadTicks(ctx, strings.NewReader("1,10,1,false\n"), "BTCUSDT", nil, func(domain.SymbolTick) {
		t.Fatal("no tick expected")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVSource_RoundTripFile(t *testing.T) {
	ticks := []domain.SymbolTick{
		{Symbol: "BTCUSDT", Tick: domain.RawTick{Timestamp: 60000, Price: 37000.5, Quantity: 0.015}},
		{Symbol: "BTCUSDT", Tick: domain.RawTick{Timestamp: 60001, Price: 37000, Quantity: 1.25, IsBuyerMaker: true}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTicks(&buf, ticks))

	path := filepath.Join(t.TempDir(), "ticks.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	var got []domain.SymbolTick
	err := NewCSVSource(path, "").Stream(context.Background(), []string{"BTCUSDT"}, func(st domain.SymbolTick) {
		got = append(got, st)
	})
	require.NoError(t, err)
	assert.Equal(t, ticks, got)

	err = NewCSVSource(filepath.Join(t.TempDir(), "missing.csv"), "").Stream(context.Background(), nil, func(domain.SymbolTick) {})
	assert.Error(t, err)
}
