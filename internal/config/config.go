// Package config loads the orderflow YAML configuration, applies .env and environment overrides,
// and resolves per-symbol pipeline parameters.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_orderflow/internal/domain"
	"github.com/vitos/crypto_orderflow/internal/usecase"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath       = "config/config.yaml"
	DefaultWSEndpoint = "wss://fstream.binance.com"
)

// SymbolConfig is one market. Zero scale or imbalance volume falls back to the symbol defaults table,
// then to the footprint section.
type SymbolConfig struct {
	Symbol          string  `yaml:"symbol"`
	Scale           float64 `yaml:"scale"`
	ImbalanceVolume float64 `yaml:"imbalance_volume"`
}

// UnmarshalYAML accepts either a bare symbol name or a mapping.
func (s *SymbolConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		s.Symbol = node.Value
		return nil
	}
	type plain SymbolConfig
	return node.Decode((*plain)(s))
}

// Footprint holds the engine defaults shared by every symbol.
type Footprint struct {
	Scale               float64 `yaml:"scale"`
	ImbalanceRatio      float64 `yaml:"imbalance_ratio"`
	ImbalanceVolume     float64 `yaml:"imbalance_volume"`
	StackedImbalanceMin int     `yaml:"stacked_imbalance_min"`
	TimeframeMinutes    int     `yaml:"timeframe_minutes"`
	ValueAreaPct        float64 `yaml:"value_area_pct"`
	HistorySize         int     `yaml:"history_size"`
	RejectOutOfOrder    bool    `yaml:"reject_out_of_order"`
}

type Strategy struct {
	MinConfluenceScore float64 `yaml:"min_confluence_score"`
	CooldownCandles    int     `yaml:"cooldown_candles"`
	CVDBlockStrength   float64 `yaml:"cvd_block_strength"`
}

type Regime struct {
	Lookback int `yaml:"lookback"`
	Window   int `yaml:"window"`
}

type Liquidity struct {
	MinSweepPct float64 `yaml:"min_sweep_pct"`
}

type Profile struct {
	SessionCandles int `yaml:"session_candles"`
	DailyCandles   int `yaml:"daily_candles"`
}

type MTF struct {
	Enabled    bool  `yaml:"enabled"`
	Timeframes []int `yaml:"timeframes"`
}

type Exchange struct {
	WSEndpoint string `yaml:"ws_endpoint"`
}

type Storage struct {
	DBPath string `yaml:"db_path"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Config struct {
	Symbols   []SymbolConfig `yaml:"symbols"`
	Footprint Footprint      `yaml:"footprint"`
	Strategy  Strategy       `yaml:"strategy"`
	Regime    Regime         `yaml:"regime"`
	Liquidity Liquidity      `yaml:"liquidity"`
	Profile   Profile        `yaml:"profile"`
	MTF       MTF            `yaml:"mtf"`
	Exchange  Exchange       `yaml:"exchange"`
	Storage   Storage        `yaml:"storage"`
	Logging   Logging        `yaml:"logging"`
	Server    Server         `yaml:"server"`
}

// Default returns a single-market BTCUSDT configuration with the stock thresholds.
func Default() *Config {
	engine := usecase.DefaultEngineParams()
	return &Config{
		Symbols: []SymbolConfig{{Symbol: "BTCUSDT"}},
		Footprint: Footprint{
			Scale:               engine.Scale,
			ImbalanceRatio:      engine.ImbalanceRatio,
			ImbalanceVolume:     engine.ImbalanceVolume,
			StackedImbalanceMin: engine.StackedMin,
			TimeframeMinutes:    int(engine.PeriodMs / 60000),
			ValueAreaPct:        engine.ValueAreaPct,
			HistorySize:         engine.HistorySize,
		},
		Strategy: Strategy{
			MinConfluenceScore: usecase.DefaultMinConfluenceScore,
			CooldownCandles:    usecase.DefaultCooldownCandles,
			CVDBlockStrength:   usecase.DefaultCVDBlockStrength,
		},
		Regime:    Regime{Lookback: usecase.DefaultRegimeLookback, Window: usecase.DefaultRegimeWindow},
		Liquidity: Liquidity{MinSweepPct: usecase.DefaultMinSweepPct},
		Profile:   Profile{SessionCandles: usecase.DefaultSessionCandles, DailyCandles: usecase.DefaultDailyCandles},
		MTF:       MTF{Timeframes: append([]int(nil), usecase.DefaultTimeframes...)},
		Exchange:  Exchange{WSEndpoint: DefaultWSEndpoint},
		Storage:   Storage{DBPath: "orderflow.db"},
		Logging:   Logging{Level: "info"},
		Server:    Server{Port: 8080},
	}
}

// Load reads .env (if present), decodes path over the defaults, applies environment overrides and
// validates the result. A missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		path = DefaultPath
	}
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := getEnvString("ORDERFLOW_SYMBOLS", ""); v != "" {
		c.Symbols = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				c.Symbols = append(c.Symbols, SymbolConfig{Symbol: strings.ToUpper(s)})
			}
		}
	}
	c.Storage.DBPath = getEnvString("ORDERFLOW_DB_PATH", c.Storage.DBPath)
	c.Logging.Level = getEnvString("ORDERFLOW_LOG_LEVEL", c.Logging.Level)
	c.Server.Port = getEnvInt("PORT", c.Server.Port)
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Validate rejects configurations no pipeline could be built from.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return errors.New("config: no symbols configured")
	}
	seen := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		if s.Symbol == "" {
			return errors.New("config: empty symbol")
		}
		if seen[s.Symbol] {
			return fmt.Errorf("config: duplicate symbol %s", s.Symbol)
		}
		seen[s.Symbol] = true

		p, err := c.SymbolParams(s.Symbol)
		if err != nil {
			return err
		}
		if err := p.Engine.Validate(); err != nil {
			return fmt.Errorf("config: %s: %w", s.Symbol, err)
		}
	}
	for _, tf := range c.MTF.Timeframes {
		if tf <= 0 {
			return fmt.Errorf("config: mtf timeframe %d: %w", tf, domain.ErrInvalidPeriod)
		}
	}
	return nil
}

func (c *Config) symbol(name string) (SymbolConfig, bool) {
	for _, s := range c.Symbols {
		if s.Symbol == name {
			return s, true
		}
	}
	return SymbolConfig{}, false
}

// SymbolParams resolves the pipeline parameters for a configured symbol. Scale and imbalance volume
// come from the symbol entry, then the defaults table, then the footprint section.
func (c *Config) SymbolParams(symbol string) (usecase.PipelineParams, error) {
	s, ok := c.symbol(symbol)
	if !ok {
		return usecase.PipelineParams{}, fmt.Errorf("config: %s: %w", symbol, domain.ErrUnknownSymbol)
	}

	scale, volume := c.Footprint.Scale, c.Footprint.ImbalanceVolume
	if d, ok := symbolDefaults[symbol]; ok {
		scale, volume = d.Scale, d.ImbalanceVolume
	}
	if s.Scale != 0 {
		scale = s.Scale
	}
	if s.ImbalanceVolume != 0 {
		volume = s.ImbalanceVolume
	}

	p := usecase.DefaultPipelineParams(symbol)
	p.Engine = usecase.EngineParams{
		Scale:            scale,
		ImbalanceRatio:   c.Footprint.ImbalanceRatio,
		ImbalanceVolume:  volume,
		StackedMin:       c.Footprint.StackedImbalanceMin,
		PeriodMs:         int64(c.Footprint.TimeframeMinutes) * 60 * 1000,
		ValueAreaPct:     c.Footprint.ValueAreaPct,
		HistorySize:      c.Footprint.HistorySize,
		RejectOutOfOrder: c.Footprint.RejectOutOfOrder,
	}
	p.MinConfluenceScore = c.Strategy.MinConfluenceScore
	p.CooldownCandles = c.Strategy.CooldownCandles
	p.CVDBlockStrength = c.Strategy.CVDBlockStrength
	p.RegimeLookback = c.Regime.Lookback
	p.RegimeWindow = c.Regime.Window
	p.MinSweepPct = c.Liquidity.MinSweepPct
	p.SessionCandles = c.Profile.SessionCandles
	p.DailyCandles = c.Profile.DailyCandles
	p.MTFEnabled = c.MTF.Enabled
	p.Timeframes = append([]int(nil), c.MTF.Timeframes...)
	return p, nil
}

// PipelineParams resolves every configured symbol in order.
func (c *Config) PipelineParams() ([]usecase.PipelineParams, error) {
	out := make([]usecase.PipelineParams, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		p, err := c.SymbolParams(s.Symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Config) SymbolNames() []string {
	out := make([]string, len(c.Symbols))
	for i, s := range c.Symbols {
		out[i] = s.Symbol
	}
	return out
}
