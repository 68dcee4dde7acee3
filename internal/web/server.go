package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitos/crypto_orderflow/internal/domain"
	"github.com/vitos/crypto_orderflow/internal/usecase"
	"go.uber.org/zap"
)

// MarketReader is the read side of the pipeline service.
type MarketReader interface {
	Symbols() []string
	Snapshot(symbol string) (*usecase.MarketSnapshot, error)
	Profile(symbol string) (domain.MultiPeriodAnalysis, error)
}

type Server struct {
	router  *http.ServeMux
	server  *http.Server
	markets MarketReader
	journal domain.Journal
	metrics http.Handler
	logger  *zap.Logger
}

// NewServer builds the status API. journal and metrics may be nil; their routes then answer 503 and 404.
func NewServer(
	port int,
	markets MarketReader,
	journal domain.Journal,
	metrics http.Handler,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:  http.NewServeMux(),
		markets: markets,
		journal: journal,
		metrics: metrics,
		logger:  logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /status", s.handleStatus)

	// Markets
	s.router.HandleFunc("GET /api/markets", s.handleListMarkets)
	s.router.HandleFunc("GET /api/markets/{symbol}", s.handleMarket)
	s.router.HandleFunc("GET /api/markets/{symbol}/profile", s.handleMarketProfile)

	// Journal
	s.router.HandleFunc("GET /api/signals", s.handleListSignals)
	s.router.HandleFunc("GET /api/trades", s.handleListTrades)

	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
