package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vitos/crypto_orderflow/internal/domain"
)

// BinanceREST is a minimal public futures REST client.
type BinanceREST struct {
	baseURL string
	client  *http.Client
}

func NewBinanceREST(baseURL string) *BinanceREST {
	if baseURL == "" {
		baseURL = BinanceRESTURL
	}
	return &BinanceREST{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (b *BinanceREST) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, fmt.Errorf("binance api error %d: %s", apiErr.Code, apiErr.Msg)
		}
		return nil, fmt.Errorf("binance api status %d", resp.StatusCode)
	}
	return body, nil
}

// RecentAggTrades returns up to limit of the latest aggregated trades, oldest first.
func (b *BinanceREST) RecentAggTrades(ctx context.Context, symbol string, limit int) ([]domain.RawTick, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	body, err := b.get(ctx, "/fapi/v1/aggTrades", params)
	if err != nil {
		return nil, err
	}

	var list []aggTrade
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}

	ticks := make([]domain.RawTick, 0, len(list))
	for _, t := range list {
		price, err := strconv.ParseFloat(t.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q: %w", t.Price, err)
		}
		qty, err := strconv.ParseFloat(t.Quantity, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid quantity %q: %w", t.Quantity, err)
		}
		ticks = append(ticks, domain.RawTick{
			Timestamp:    t.TradeTime,
			Price:        price,
			Quantity:     qty,
			IsBuyerMaker: t.IsBuyerMaker,
		})
	}
	return ticks, nil
}
