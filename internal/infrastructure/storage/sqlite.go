package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_orderflow/internal/domain"
)

const defaultListLimit = 50

// SQLiteStore is the domain.Journal backed by a SQLite file.
type SQLiteStore struct {
	db *sqlx.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS candles (
			symbol TEXT NOT NULL,
			ts INTEGER NOT NULL,
			open REAL NOT NULL,
			high REAL NOT NULL,
			low REAL NOT NULL,
			close REAL NOT NULL,
			total_bid REAL NOT NULL,
			total_ask REAL NOT NULL,
			total_trades INTEGER NOT NULL,
			delta REAL NOT NULL,
			poc REAL NOT NULL,
			levels TEXT NOT NULL,
			PRIMARY KEY (symbol, ts)
		);`,
		`CREATE TABLE IF NOT EXISTS signals_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			ts INTEGER NOT NULL,
			signal_type TEXT NOT NULL,
			strength REAL NOT NULL,
			price REAL NOT NULL,
			description TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol_ts ON signals_log(symbol, ts);`,
		`CREATE TABLE IF NOT EXISTS trade_signals (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			ts INTEGER NOT NULL,
			side TEXT NOT NULL,
			strategy TEXT NOT NULL,
			entry_price REAL NOT NULL,
			stop_loss REAL NOT NULL,
			take_profit REAL NOT NULL,
			confluence_score REAL NOT NULL,
			signal_types TEXT NOT NULL,
			signals TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_trade_signals_ts ON trade_signals(ts);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// SaveCandle upserts a closed candle. Levels are stored as JSON.
func (s *SQLiteStore) SaveCandle(ctx context.Context, symbol string, c domain.FootprintCandle) error {
	levels, err := json.Marshal(c.Levels())
	if err != nil {
		return err
	}
	query := `INSERT OR REPLACE INTO candles (symbol, ts, open, high, low, close, total_bid, total_ask, total_trades, delta, poc, levels)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		symbol, c.Timestamp, c.Open, c.High, c.Low, c.Close,
		c.TotalBid, c.TotalAsk, c.TotalTrades, c.Delta(), c.POC(), string(levels))
	return err
}

type candleRow struct {
	Symbol      string  `db:"symbol"`
	Timestamp   int64   `db:"ts"`
	Open        float64 `db:"open"`
	High        float64 `db:"high"`
	Low         float64 `db:"low"`
	Close       float64 `db:"close"`
	TotalBid    float64 `db:"total_bid"`
	TotalAsk    float64 `db:"total_ask"`
	TotalTrades int     `db:"total_trades"`
	Delta       float64 `db:"delta"`
	POC         float64 `db:"poc"`
	Levels      string  `db:"levels"`
}

// ListCandles returns the newest candles for symbol, oldest first.
func (s *SQLiteStore) ListCandles(ctx context.Context, symbol string, limit int) ([]domain.FootprintCandle, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var rows []candleRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM candles WHERE symbol = ? ORDER BY ts DESC LIMIT ?`, symbol, limit)
	if err != nil {
		return nil, err
	}

	out := make([]domain.FootprintCandle, len(rows))
	for i, r := range rows {
		var levels []domain.PriceLevel
		if err := json.Unmarshal([]byte(r.Levels), &levels); err != nil {
			return nil, fmt.Errorf("candle %s@%d levels: %w", r.Symbol, r.Timestamp, err)
		}
		out[len(rows)-1-i] = domain.NewFootprintCandle(r.Timestamp, r.Open, r.High, r.Low, r.Close, levels)
	}
	return out, nil
}

func (s *SQLiteStore) insertRecords(ctx context.Context, records []domain.SignalRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO signals_log (symbol, ts, signal_type, strength, price, description)
			  VALUES (:symbol, :ts, :signal_type, :strength, :price, :description)`
	for _, r := range records {
		if _, err := tx.NamedExecContext(ctx, query, r); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveSignals(ctx context.Context, symbol string, signals []domain.OrderFlowSignal) error {
	records := make([]domain.SignalRecord, len(signals))
	for i, sig := range signals {
		records[i] = domain.SignalRecord{
			Symbol:      symbol,
			Type:        string(sig.Type),
			Strength:    sig.Strength,
			Price:       sig.Price,
			Timestamp:   sig.Timestamp,
			Description: sig.Description(),
		}
	}
	return s.insertRecords(ctx, records)
}

// SaveSweeps journals sweeps next to the signals, priced at the swept level.
func (s *SQLiteStore) SaveSweeps(ctx context.Context, symbol string, sweeps []domain.SweepEvent) error {
	records := make([]domain.SignalRecord, len(sweeps))
	for i, e := range sweeps {
		records[i] = domain.SignalRecord{
			Symbol:      symbol,
			Type:        string(e.Type),
			Strength:    e.Strength,
			Price:       e.Level,
			Timestamp:   e.Timestamp,
			Description: e.Description(),
		}
	}
	return s.insertRecords(ctx, records)
}

// ListSignals returns the newest records first. An empty symbol lists every market.
func (s *SQLiteStore) ListSignals(ctx context.Context, symbol string, limit int) ([]domain.SignalRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	records := []domain.SignalRecord{}
	var err error
	if symbol == "" {
		err = s.db.SelectContext(ctx, &records,
			`SELECT id, symbol, ts, signal_type, strength, price, description FROM signals_log ORDER BY ts DESC, id DESC LIMIT ?`, limit)
	} else {
		err = s.db.SelectContext(ctx, &records,
			`SELECT id, symbol, ts, signal_type, strength, price, description FROM signals_log WHERE symbol = ? ORDER BY ts DESC, id DESC LIMIT ?`, symbol, limit)
	}
	if err != nil {
		return nil, err
	}
	return records, nil
}

// storedSignal is the journaled form of a contributing signal. The typed detail is kept only as
// its rendered description.
type storedSignal struct {
	Type        domain.SignalType `json:"type"`
	Strength    float64           `json:"strength"`
	Price       float64           `json:"price"`
	Timestamp   int64             `json:"timestamp"`
	Description string            `json:"description"`
}

type tradeRow struct {
	ID              string    `db:"id"`
	Symbol          string    `db:"symbol"`
	Timestamp       int64     `db:"ts"`
	Side            string    `db:"side"`
	Strategy        string    `db:"strategy"`
	EntryPrice      float64   `db:"entry_price"`
	StopLoss        float64   `db:"stop_loss"`
	TakeProfit      float64   `db:"take_profit"`
	ConfluenceScore float64   `db:"confluence_score"`
	SignalTypes     string    `db:"signal_types"`
	Signals         string    `db:"signals"`
	CreatedAt       time.Time `db:"created_at"`
}

// SaveTradeSignal stores an accepted proposal under a new UUID and returns it.
func (s *SQLiteStore) SaveTradeSignal(ctx context.Context, t *domain.TradeSignal) (string, error) {
	stored := make([]storedSignal, len(t.ContributingSignals))
	types := make([]string, len(t.ContributingSignals))
	for i, sig := range t.ContributingSignals {
		stored[i] = storedSignal{
			Type:        sig.Type,
			Strength:    sig.Strength,
			Price:       sig.Price,
			Timestamp:   sig.Timestamp,
			Description: sig.Description(),
		}
		types[i] = string(sig.Type)
	}
	signals, err := json.Marshal(stored)
	if err != nil {
		return "", err
	}

	row := tradeRow{
		ID:              uuid.New().String(),
		Symbol:          t.Symbol,
		Timestamp:       t.Timestamp,
		Side:            string(t.Side),
		Strategy:        string(t.Strategy),
		EntryPrice:      t.EntryPrice,
		StopLoss:        t.StopLoss,
		TakeProfit:      t.TakeProfit,
		ConfluenceScore: t.ConfluenceScore,
		SignalTypes:     strings.Join(types, ","),
		Signals:         string(signals),
		CreatedAt:       time.Now().UTC(),
	}
	query := `INSERT INTO trade_signals (id, symbol, ts, side, strategy, entry_price, stop_loss, take_profit, confluence_score, signal_types, signals, created_at)
			  VALUES (:id, :symbol, :ts, :side, :strategy, :entry_price, :stop_loss, :take_profit, :confluence_score, :signal_types, :signals, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return "", err
	}
	return row.ID, nil
}

// ListTradeSignals returns the newest proposals first. Contributing signals come back without their
// typed detail.
func (s *SQLiteStore) ListTradeSignals(ctx context.Context, limit int) ([]domain.TradeSignal, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var rows []tradeRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM trade_signals ORDER BY ts DESC, created_at DESC LIMIT ?`, limit); err != nil {
		return nil, err
	}

	out := make([]domain.TradeSignal, 0, len(rows))
	for _, r := range rows {
		var stored []storedSignal
		if err := json.Unmarshal([]byte(r.Signals), &stored); err != nil {
			return nil, fmt.Errorf("trade signal %s: %w", r.ID, err)
		}
		contributing := make([]domain.OrderFlowSignal, len(stored))
		for i, sig := range stored {
			contributing[i] = domain.OrderFlowSignal{
				Type:      sig.Type,
				Strength:  sig.Strength,
				Price:     sig.Price,
				Timestamp: sig.Timestamp,
			}
		}
		out = append(out, domain.TradeSignal{
			ID:                  r.ID,
			Symbol:              r.Symbol,
			Side:                domain.Side(r.Side),
			Strategy:            domain.StrategyType(r.Strategy),
			EntryPrice:          r.EntryPrice,
			StopLoss:            r.StopLoss,
			TakeProfit:          r.TakeProfit,
			ConfluenceScore:     r.ConfluenceScore,
			ContributingSignals: contributing,
			Timestamp:           r.Timestamp,
		})
	}
	return out, nil
}
