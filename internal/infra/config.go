package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration. Loaded once at startup,
// treated as immutable afterwards and passed by reference into every
// component; nothing reads ambient process state past bootstrap.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode            string   `yaml:"mode"`    // "paper" or "live"
		Symbols         []string `yaml:"symbols"` // explicit universe; empty -> discovery
		CooldownSec     int      `yaml:"cooldown_sec"`
		RepollSec       int      `yaml:"repoll_sec"` // short deadline after no-action
		RetrySec        int      `yaml:"retry_sec"`  // short deadline after skip/error
		PositionPct     float64  `yaml:"position_pct"`
		TradesPerSymbol int      `yaml:"trades_per_symbol"`
		RulesFailClosed bool     `yaml:"rules_fail_closed"`
	} `yaml:"trading"`

	Discovery struct {
		QuoteWhitelist []string `yaml:"quote_whitelist"`
		MinQuoteVolume float64  `yaml:"min_quote_volume"`
		Limit          int      `yaml:"limit"`
	} `yaml:"discovery"`

	Gate struct {
		MetricsPath  string  `yaml:"metrics_path"`
		CoherenceMin float64 `yaml:"coherence_min"` // L floor; 0 keeps the gate fail-open
		GainMax      float64 `yaml:"gain_max"`      // G_eff ceiling
		AnomalyMax   float64 `yaml:"anomaly_max"`   // Q ceiling
	} `yaml:"gate"`

	API struct {
		Binance struct {
			APIKey    string `yaml:"api_key"`
			SecretKey string `yaml:"secret_key"`
			Testnet   bool   `yaml:"testnet"`
		} `yaml:"binance"`
	} `yaml:"api"`

	Ledger struct {
		RefAsset string             `yaml:"ref_asset"` // valuation asset for summaries
		Seed     map[string]float64 `yaml:"seed"`
	} `yaml:"ledger"`

	Journal struct {
		Dir string `yaml:"dir"`
	} `yaml:"journal"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the yaml config file, applies environment
// overrides (secrets should come from env, not the file) and validates.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "epicenter"
	}
	if c.Trading.Mode == "" {
		c.Trading.Mode = "paper"
	}
	if c.Trading.CooldownSec == 0 {
		c.Trading.CooldownSec = 20
	}
	if c.Trading.RepollSec == 0 {
		c.Trading.RepollSec = 2
	}
	if c.Trading.RetrySec == 0 {
		c.Trading.RetrySec = 5
	}
	if c.Trading.PositionPct == 0 {
		c.Trading.PositionPct = 0.2
	}
	if c.Trading.TradesPerSymbol == 0 {
		c.Trading.TradesPerSymbol = 10
	}
	if len(c.Discovery.QuoteWhitelist) == 0 {
		c.Discovery.QuoteWhitelist = []string{"USDT", "BTC"}
	}
	if c.Discovery.MinQuoteVolume == 0 {
		c.Discovery.MinQuoteVolume = 2_000_000
	}
	if c.Discovery.Limit == 0 {
		c.Discovery.Limit = 20
	}
	if c.Gate.MetricsPath == "" {
		c.Gate.MetricsPath = "metrics/lighthouse_autopilot.json"
	}
	if c.Gate.GainMax == 0 {
		c.Gate.GainMax = 1.0
	}
	if c.Gate.AnomalyMax == 0 {
		c.Gate.AnomalyMax = 1.0
	}
	if c.Ledger.RefAsset == "" {
		c.Ledger.RefAsset = "USDT"
	}
	if len(c.Ledger.Seed) == 0 {
		c.Ledger.Seed = map[string]float64{"BTC": 0.001, "USDT": 100.0}
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// overrideWithEnv lets environment variables win over file values.
func overrideWithEnv(cfg *Config) {
	if cfg.API.Binance.SecretKey != "" {
		fmt.Fprintln(os.Stderr, "⚠️  SECURITY WARNING: API secret found in config file; prefer BINANCE_API_SECRET")
	}

	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		cfg.API.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		cfg.API.Binance.SecretKey = v
	}
	if v := os.Getenv("BINANCE_TESTNET"); v != "" {
		cfg.API.Binance.Testnet = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("EPICENTER_SYMBOLS"); v != "" {
		cfg.Trading.Symbols = splitSymbols(v)
	}
	if v := os.Getenv("EPICENTER_MODE"); v != "" {
		cfg.Trading.Mode = strings.ToLower(v)
	}
	if v, ok := envInt("EPICENTER_COOLDOWN_SEC"); ok {
		cfg.Trading.CooldownSec = v
	}
	if v, ok := envInt("EPICENTER_TRADES_PER_SYMBOL"); ok {
		cfg.Trading.TradesPerSymbol = v
	}
	if v, ok := envFloat("EPICENTER_POSITION_PCT"); ok {
		cfg.Trading.PositionPct = v
	}
	if v, ok := envFloat("LIGHTHOUSE_L_MIN"); ok {
		cfg.Gate.CoherenceMin = v
	}
	if v, ok := envFloat("LIGHTHOUSE_G_MAX"); ok {
		cfg.Gate.GainMax = v
	}
	if v, ok := envFloat("LIGHTHOUSE_Q_MAX"); ok {
		cfg.Gate.AnomalyMax = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func splitSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}

// Validate checks configuration validity before the loop is allowed to start.
func (c *Config) Validate() error {
	switch c.Trading.Mode {
	case "paper", "live":
	default:
		return fmt.Errorf("trading.mode must be \"paper\" or \"live\", got %q", c.Trading.Mode)
	}
	if c.Trading.Mode == "live" && (c.API.Binance.APIKey == "" || c.API.Binance.SecretKey == "") {
		return fmt.Errorf("live mode requires BINANCE_API_KEY and BINANCE_API_SECRET")
	}
	if c.Trading.PositionPct <= 0 || c.Trading.PositionPct > 1 {
		return fmt.Errorf("trading.position_pct must be in (0, 1], got %v", c.Trading.PositionPct)
	}
	if c.Trading.CooldownSec <= 0 {
		return fmt.Errorf("trading.cooldown_sec must be positive")
	}
	if c.Trading.TradesPerSymbol <= 0 {
		return fmt.Errorf("trading.trades_per_symbol must be positive")
	}
	if len(c.Trading.Symbols) == 0 && c.Discovery.Limit <= 0 {
		return fmt.Errorf("either trading.symbols or a positive discovery.limit is required")
	}
	return nil
}
