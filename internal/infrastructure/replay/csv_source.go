// Package replay feeds recorded ticks through the pipelines.
package replay

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/vitos/crypto_orderflow/internal/domain"
)

// CSVSource is a domain.TickSource over a file of rows
// timestamp,price,quantity,is_buyer_maker[,symbol]. A header row is optional.
// Rows without a symbol column belong to DefaultSymbol.
type CSVSource struct {
	Path          string
	DefaultSymbol string
}

func NewCSVSource(path, defaultSymbol string) *CSVSource {
	return &CSVSource{Path: path, DefaultSymbol: strings.ToUpper(defaultSymbol)}
}

func (s *CSVSource) Stream(ctx context.Context, symbols []string, handle func(domain.SymbolTick)) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("open replay file: %w", err)
	}
	defer f.Close()
	return ReadTicks(ctx, f, s.DefaultSymbol, symbols, handle)
}

// ReadTicks parses r and hands every row whose symbol is in symbols to handle, in file order.
// An empty symbols list accepts every row.
func ReadTicks(ctx context.Context, r io.Reader, defaultSymbol string, symbols []string, handle func(domain.SymbolTick)) error {
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	for line := 1; ; line++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}

		st, err := parseRow(rec, defaultSymbol)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if len(wanted) > 0 && !wanted[st.Symbol] {
			continue
		}
		handle(st)
	}
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	return err != nil
}

func parseRow(rec []string, defaultSymbol string) (domain.SymbolTick, error) {
	if len(rec) < 4 || len(rec) > 5 {
		return domain.SymbolTick{}, fmt.Errorf("expected 4 or 5 fields, got %d", len(rec))
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	if err != nil {
		return domain.SymbolTick{}, fmt.Errorf("timestamp: %w", err)
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
	if err != nil {
		return domain.SymbolTick{}, fmt.Errorf("price: %w", err)
	}
	qty, err := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
	if err != nil {
		return domain.SymbolTick{}, fmt.Errorf("quantity: %w", err)
	}
	maker, err := strconv.ParseBool(strings.TrimSpace(rec[3]))
	if err != nil {
		return domain.SymbolTick{}, fmt.Errorf("is_buyer_maker: %w", err)
	}

	symbol := defaultSymbol
	if len(rec) == 5 && strings.TrimSpace(rec[4]) != "" {
		symbol = strings.ToUpper(strings.TrimSpace(rec[4]))
	}
	if symbol == "" {
		return domain.SymbolTick{}, errors.New("row has no symbol and no default symbol is set")
	}

	return domain.SymbolTick{
		Symbol: symbol,
		Tick: domain.RawTick{
			Timestamp:    ts,
			Price:        price,
			Quantity:     qty,
			IsBuyerMaker: maker,
		},
	}, nil
}

// WriteTicks writes ticks in the format ReadTicks accepts, with a header.
func WriteTicks(w io.Writer, ticks []domain.SymbolTick) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"timestamp", "price", "quantity", "is_buyer_maker", "symbol"}); err != nil {
		return err
	}
	for _, st := range ticks {
		err := cw.Write([]string{
			strconv.FormatInt(st.Tick.Timestamp, 10),
			strconv.FormatFloat(st.Tick.Price, 'f', -1, 64),
			strconv.FormatFloat(st.Tick.Quantity, 'f', -1, 64),
			strconv.FormatBool(st.Tick.IsBuyerMaker),
			st.Symbol,
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
