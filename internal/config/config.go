package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bn-rebalance-bot/internal/rebalance"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log        LoggingConfig `yaml:"log"`
	REST       RESTConfig    `yaml:"rest"`
	WS         WSConfig      `yaml:"ws"`
	State      StateConfig   `yaml:"state"`
	Metrics    MetricsConfig `yaml:"metrics"`
	Engine     EngineConfig  `yaml:"engine"`
	Assets     []AssetConfig `yaml:"assets"`
	AssetsFile string        `yaml:"assets_file"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type RESTConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	RecvWindow time.Duration `yaml:"recv_window"`
	APIKey     string        `yaml:"api_key"`
	APISecret  string        `yaml:"api_secret"`
}

type WSConfig struct {
	Enabled        *bool         `yaml:"enabled"`
	URL            string        `yaml:"url"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
	MaxPriceAge    time.Duration `yaml:"max_price_age"`
}

func (c WSConfig) EnabledValue() bool {
	return c.Enabled == nil || *c.Enabled
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (c MetricsConfig) EnabledValue() bool {
	return c.Enabled == nil || *c.Enabled
}

type EngineConfig struct {
	QuoteAsset        string         `yaml:"quote_asset"`
	PollInterval      time.Duration  `yaml:"poll_interval"`
	MinQuoteBalance   *float64       `yaml:"min_quote_balance"`
	MaxParallelOrders int            `yaml:"max_parallel_orders"`
	RulesTTL          *time.Duration `yaml:"rules_ttl"`
}

const (
	defaultMinQuoteBalance = 10
	defaultRulesTTL        = time.Hour
)

// MinQuoteBalanceValue is the liquid quote balance a buy must exceed before
// savings are touched. An explicit zero is honoured.
func (c EngineConfig) MinQuoteBalanceValue() float64 {
	if c.MinQuoteBalance == nil {
		return defaultMinQuoteBalance
	}
	return *c.MinQuoteBalance
}

// RulesTTLValue is how long instrument rules are cached. Zero disables the cache.
func (c EngineConfig) RulesTTLValue() time.Duration {
	if c.RulesTTL == nil {
		return defaultRulesTTL
	}
	return *c.RulesTTL
}

// AssetConfig mirrors one record of the legacy config.json asset list.
type AssetConfig struct {
	Asset       string   `yaml:"asset" json:"asset"`
	TargetPrice float64  `yaml:"target_price" json:"target_price"`
	SellPrice   float64  `yaml:"sell_price" json:"sell_price"`
	BuyPrice    *float64 `yaml:"buy_price" json:"buy_price"`
	SplitCount  int      `yaml:"split_count" json:"split_count"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if cfg.AssetsFile != "" {
		assetsPath := cfg.AssetsFile
		if !filepath.IsAbs(assetsPath) {
			assetsPath = filepath.Join(filepath.Dir(path), assetsPath)
		}
		assets, err := LoadAssets(assetsPath)
		if err != nil {
			return nil, err
		}
		cfg.Assets = append(cfg.Assets, assets...)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// LoadAssets reads a JSON array of asset records. JSON is valid YAML, so the
// same decoder handles both.
func LoadAssets(path string) ([]AssetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var assets []AssetConfig
	if err := yaml.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("parse assets file %s: %w", path, err)
	}
	return assets, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Encoding == "" {
		cfg.Log.Encoding = "json"
	}
	if cfg.REST.BaseURL == "" {
		cfg.REST.BaseURL = "https://api.binance.com"
	}
	if cfg.REST.Timeout == 0 {
		cfg.REST.Timeout = 10 * time.Second
	}
	if cfg.REST.RecvWindow == 0 {
		cfg.REST.RecvWindow = 5 * time.Second
	}
	if cfg.WS.Enabled == nil {
		enabled := true
		cfg.WS.Enabled = &enabled
	}
	if cfg.WS.URL == "" {
		cfg.WS.URL = "wss://stream.binance.com:9443/ws"
	}
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}
	if cfg.WS.PingInterval == 0 {
		cfg.WS.PingInterval = 30 * time.Second
	}
	if cfg.WS.MaxPriceAge == 0 {
		cfg.WS.MaxPriceAge = 5 * time.Second
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/bn-rebalance-bot.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Engine.QuoteAsset == "" {
		cfg.Engine.QuoteAsset = "USDT"
	}
	cfg.Engine.QuoteAsset = strings.ToUpper(cfg.Engine.QuoteAsset)
	if cfg.Engine.PollInterval == 0 {
		cfg.Engine.PollInterval = time.Second
	}
	if cfg.Engine.MinQuoteBalance == nil {
		floor := float64(defaultMinQuoteBalance)
		cfg.Engine.MinQuoteBalance = &floor
	}
	if cfg.Engine.RulesTTL == nil {
		ttl := defaultRulesTTL
		cfg.Engine.RulesTTL = &ttl
	}
	for i := range cfg.Assets {
		a := &cfg.Assets[i]
		a.Asset = strings.ToUpper(strings.TrimSpace(a.Asset))
		if a.SellPrice == 0 {
			a.SellPrice = a.TargetPrice
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("BINANCE_API_KEY")); v != "" {
		cfg.REST.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("BINANCE_API_SECRET")); v != "" {
		cfg.REST.APISecret = v
	}
	if v := strings.TrimSpace(os.Getenv("BINANCE_BASE_URL")); v != "" {
		cfg.REST.BaseURL = v
	}
}

func validate(cfg *Config) error {
	switch cfg.Log.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("log.encoding must be json or console, got %q", cfg.Log.Encoding)
	}
	if cfg.REST.Timeout < 0 || cfg.REST.RecvWindow < 0 {
		return errors.New("rest.timeout and rest.recv_window must be >= 0")
	}
	if cfg.REST.RecvWindow > time.Minute {
		return errors.New("rest.recv_window must be <= 60s")
	}
	if cfg.WS.ReconnectDelay < 0 || cfg.WS.PingInterval < 0 || cfg.WS.MaxPriceAge < 0 {
		return errors.New("ws durations must be >= 0")
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Engine.PollInterval < 0 {
		return errors.New("engine.poll_interval must be >= 0")
	}
	if cfg.Engine.MinQuoteBalanceValue() < 0 {
		return errors.New("engine.min_quote_balance must be >= 0")
	}
	if cfg.Engine.MaxParallelOrders < 0 {
		return errors.New("engine.max_parallel_orders must be >= 0")
	}
	if cfg.Engine.RulesTTLValue() < 0 {
		return errors.New("engine.rules_ttl must be >= 0")
	}
	if len(cfg.Assets) == 0 {
		return errors.New("at least one asset is required")
	}
	seen := make(map[string]struct{}, len(cfg.Assets))
	for i, a := range cfg.Assets {
		if a.Asset == "" {
			return fmt.Errorf("assets[%d].asset is required", i)
		}
		if a.Asset == cfg.Engine.QuoteAsset {
			return fmt.Errorf("assets[%d].asset must differ from quote asset %s", i, cfg.Engine.QuoteAsset)
		}
		if _, dup := seen[a.Asset]; dup {
			return fmt.Errorf("assets[%d].asset %s is listed twice", i, a.Asset)
		}
		seen[a.Asset] = struct{}{}
		if a.TargetPrice <= 0 {
			return fmt.Errorf("assets[%d].target_price must be > 0", i)
		}
		if a.SellPrice <= 0 {
			return fmt.Errorf("assets[%d].sell_price must be > 0", i)
		}
		if a.BuyPrice != nil && *a.BuyPrice <= 0 {
			return fmt.Errorf("assets[%d].buy_price must be > 0 when set", i)
		}
		if a.SplitCount < 1 {
			return fmt.Errorf("assets[%d].split_count must be >= 1", i)
		}
	}
	return nil
}

// Policies converts the asset list into engine policies quoted in the
// configured quote asset.
func (c *Config) Policies() []rebalance.AssetPolicy {
	out := make([]rebalance.AssetPolicy, 0, len(c.Assets))
	for _, a := range c.Assets {
		p := rebalance.AssetPolicy{
			Asset:       a.Asset,
			Quote:       c.Engine.QuoteAsset,
			TargetPrice: decimal.NewFromFloat(a.TargetPrice),
			SellPrice:   decimal.NewFromFloat(a.SellPrice),
			SplitCount:  a.SplitCount,
		}
		if a.BuyPrice != nil {
			p.BuyPrice = decimal.NewFromFloat(*a.BuyPrice)
			p.HasBuyPrice = true
		}
		out = append(out, p)
	}
	return out
}

func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Assets))
	for _, a := range c.Assets {
		out = append(out, a.Asset+c.Engine.QuoteAsset)
	}
	return out
}
