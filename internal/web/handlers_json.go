package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"github.com/vitos/crypto_orderflow/internal/usecase"
	"go.uber.org/zap"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxLimit), nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"symbols": s.markets.Symbols(),
	})
}

type marketSummary struct {
	Symbol    string               `json:"symbol"`
	Candles   int                  `json:"candles"`
	LastClose float64              `json:"last_close"`
	LastDelta float64              `json:"last_delta"`
	CVD       float64              `json:"cvd"`
	CVDTrend  usecase.CVDDirection `json:"cvd_trend"`
	Regime    domain.Regime        `json:"regime"`
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	symbols := s.markets.Symbols()
	out := make([]marketSummary, 0, len(symbols))
	for _, sym := range symbols {
		snap, err := s.markets.Snapshot(sym)
		if err != nil {
			s.logger.Error("Failed to snapshot market", zap.String("symbol", sym), zap.Error(err))
			continue
		}
		m := marketSummary{
			Symbol:   sym,
			Candles:  snap.Candles,
			CVD:      snap.CVD,
			CVDTrend: snap.CVDTrend.Direction,
			Regime:   snap.Regime,
		}
		if snap.LastCandle != nil {
			m.LastClose = snap.LastCandle.Close
			m.LastDelta = snap.LastCandle.Delta()
		}
		out = append(out, m)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) marketError(w http.ResponseWriter, symbol string, err error) {
	if errors.Is(err, domain.ErrUnknownSymbol) {
		s.writeError(w, http.StatusNotFound, "unknown symbol "+symbol)
		return
	}
	s.logger.Error("Failed to read market", zap.String("symbol", symbol), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "failed to read market")
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	snap, err := s.markets.Snapshot(symbol)
	if err != nil {
		s.marketError(w, symbol, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMarketProfile(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.PathValue("symbol"))
	analysis, err := s.markets.Profile(symbol)
	if err != nil {
		s.marketError(w, symbol, err)
		return
	}
	s.writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleListSignals(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))

	records, err := s.journal.ListSignals(r.Context(), symbol, limit)
	if err != nil {
		s.logger.Error("Failed to list signals", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

type tradeView struct {
	domain.TradeSignal
	SignalTypes []domain.SignalType `json:"signal_types"`
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	trades, err := s.journal.ListTradeSignals(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trade signals", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list trade signals")
		return
	}
	out := make([]tradeView, len(trades))
	for i, t := range trades {
		out[i] = tradeView{TradeSignal: t, SignalTypes: t.SignalTypes()}
	}
	s.writeJSON(w, http.StatusOK, out)
}

var _ MarketReader = (*usecase.PipelineService)(nil)
