package store

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"trading-gate/internal/types"
)

const (
	ModeDryRun = "DRY_RUN"
	ModeLive   = "LIVE"

	SourceKite      = "KITE"
	SourceCSV       = "CSV"
	SourceSynthetic = "SYNTHETIC"
	SourceStatic    = "STATIC"

	LedgerMemory   = "MEMORY"
	LedgerSQLite   = "SQLITE"
	LedgerPostgres = "POSTGRES"

	TieBreakLower  = "LOWER"
	TieBreakHigher = "HIGHER"
)

type Strategy struct {
	Name       string               `yaml:"name"`
	Instrument types.InstrumentSpec `yaml:"instrument"`
}

type SyntheticUnderlying struct {
	Name       string  `yaml:"name"`
	Exchange   string  `yaml:"exchange"`
	Spot       float64 `yaml:"spot"`
	StrikeStep float64 `yaml:"strike_step"`
	LotSize    int     `yaml:"lot_size"`
	Weekly     bool    `yaml:"weekly"`
	Mini       bool    `yaml:"mini"`
	NoOptions  bool    `yaml:"no_options"`
}

type Config struct {
	Mode     string `yaml:"mode"`
	StateDir string `yaml:"state_dir"`
	LogDir   string `yaml:"log_dir"`

	Catalog struct {
		Source                 string   `yaml:"source"`
		CSVPath                string   `yaml:"csv_path"`
		CacheDir               string   `yaml:"cache_dir"`
		Exchanges              []string `yaml:"exchanges"`
		RefreshTimeoutSeconds  int      `yaml:"refresh_timeout_seconds"`
		RetryAttempts          int      `yaml:"retry_attempts"`
		AllowSyntheticFallback bool     `yaml:"allow_synthetic_fallback"`
	} `yaml:"catalog"`

	Spot struct {
		Source          string             `yaml:"source"`
		QuotesPerSecond float64            `yaml:"quotes_per_second"`
		QuoteKeys       map[string]string  `yaml:"quote_keys"`
		Static          map[string]float64 `yaml:"static"`
	} `yaml:"spot"`

	Synthetic struct {
		WeeklyExpiries  int                   `yaml:"weekly_expiries"`
		MonthlyExpiries int                   `yaml:"monthly_expiries"`
		StrikesEachSide int                   `yaml:"strikes_each_side"`
		Underlyings     []SyntheticUnderlying `yaml:"underlyings"`
	} `yaml:"synthetic"`

	Resolver struct {
		ATMTieBreak string `yaml:"atm_tie_break"`
	} `yaml:"resolver"`

	Validation struct {
		Workers   int    `yaml:"workers"`
		ReportDir string `yaml:"report_dir"`
	} `yaml:"validation"`

	Strategies []Strategy `yaml:"strategies"`

	Risk struct {
		AccountEquity     float64 `yaml:"account_equity"`
		PerTradeRiskPct   float64 `yaml:"per_trade_risk_pct"`
		MaxHeatPct        float64 `yaml:"max_heat_pct"`
		DailyLossLimitPct float64 `yaml:"daily_loss_limit_pct"`
		MaxDrawdownPct    float64 `yaml:"max_drawdown_pct"`
		MaxOpenPositions  int     `yaml:"max_open_positions"`
	} `yaml:"risk"`

	Ledger struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		DSNEnv  string `yaml:"dsn_env"`
	} `yaml:"ledger"`

	Service struct {
		Addr           string `yaml:"addr"`
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"service"`

	EOD struct {
		Dir string `yaml:"dir"`
	} `yaml:"eod"`
}

func (c *Config) Validate() error {
	if c.Mode != ModeDryRun && c.Mode != ModeLive {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	switch c.Catalog.Source {
	case SourceKite, SourceCSV, SourceSynthetic:
	default:
		return fmt.Errorf("invalid catalog.source '%s': must be 'KITE', 'CSV' or 'SYNTHETIC'", c.Catalog.Source)
	}
	if c.Catalog.Source == SourceCSV && c.Catalog.CSVPath == "" {
		return errors.New("catalog.csv_path is required when catalog.source is 'CSV'")
	}
	if c.Mode == ModeLive && c.Catalog.Source == SourceSynthetic {
		return errors.New("catalog.source 'SYNTHETIC' is not allowed in LIVE mode")
	}
	if c.Mode == ModeLive && c.Catalog.AllowSyntheticFallback {
		return errors.New("catalog.allow_synthetic_fallback is not allowed in LIVE mode")
	}
	if c.Spot.Source != SourceKite && c.Spot.Source != SourceStatic {
		return fmt.Errorf("invalid spot.source '%s': must be 'KITE' or 'STATIC'", c.Spot.Source)
	}
	if c.Resolver.ATMTieBreak != TieBreakLower && c.Resolver.ATMTieBreak != TieBreakHigher {
		return fmt.Errorf("resolver.atm_tie_break must be 'LOWER' or 'HIGHER', got '%s'", c.Resolver.ATMTieBreak)
	}

	seen := make(map[string]bool, len(c.Strategies))
	for i, s := range c.Strategies {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("strategies[%d].name cannot be empty", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate strategy name '%s'", s.Name)
		}
		seen[s.Name] = true
	}

	if c.Risk.PerTradeRiskPct <= 0 || c.Risk.PerTradeRiskPct > 100 {
		return fmt.Errorf("risk.per_trade_risk_pct must be between 0-100, got %.2f", c.Risk.PerTradeRiskPct)
	}
	if c.Risk.MaxHeatPct <= 0 || c.Risk.MaxHeatPct > 100 {
		return fmt.Errorf("risk.max_heat_pct must be between 0-100, got %.2f", c.Risk.MaxHeatPct)
	}
	if c.Risk.DailyLossLimitPct <= 0 || c.Risk.DailyLossLimitPct > 100 {
		return fmt.Errorf("risk.daily_loss_limit_pct must be between 0-100, got %.2f", c.Risk.DailyLossLimitPct)
	}
	if c.Risk.MaxDrawdownPct < 0 || c.Risk.MaxDrawdownPct > 100 {
		return fmt.Errorf("risk.max_drawdown_pct must be between 0-100, got %.2f", c.Risk.MaxDrawdownPct)
	}
	if c.Risk.MaxOpenPositions < 1 {
		return fmt.Errorf("risk.max_open_positions must be at least 1, got %d", c.Risk.MaxOpenPositions)
	}

	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerSQLite:
		if c.Ledger.Path == "" {
			return errors.New("ledger.path is required for the 'SQLITE' backend")
		}
	case LedgerPostgres:
		if c.Ledger.DSNEnv == "" {
			return errors.New("ledger.dsn_env is required for the 'POSTGRES' backend")
		}
	default:
		return fmt.Errorf("invalid ledger.backend '%s': must be 'MEMORY', 'SQLITE' or 'POSTGRES'", c.Ledger.Backend)
	}
	return nil
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

func (c *Config) applyDefaults() {
	c.Mode = strings.ToUpper(c.Mode)
	if c.Mode == "" {
		c.Mode = ModeDryRun
	}
	if c.StateDir == "" {
		c.StateDir = "state"
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}

	c.Catalog.Source = strings.ToUpper(c.Catalog.Source)
	if c.Catalog.Source == "" {
		c.Catalog.Source = SourceKite
	}
	if c.Catalog.CacheDir == "" {
		c.Catalog.CacheDir = "cache"
	}
	if c.Catalog.RefreshTimeoutSeconds == 0 {
		c.Catalog.RefreshTimeoutSeconds = 60
	}
	if c.Catalog.RetryAttempts == 0 {
		c.Catalog.RetryAttempts = 3
	}

	c.Spot.Source = strings.ToUpper(c.Spot.Source)
	if c.Spot.Source == "" {
		if c.Catalog.Source == SourceKite {
			c.Spot.Source = SourceKite
		} else {
			c.Spot.Source = SourceStatic
		}
	}

	c.Resolver.ATMTieBreak = strings.ToUpper(c.Resolver.ATMTieBreak)
	if c.Resolver.ATMTieBreak == "" {
		c.Resolver.ATMTieBreak = TieBreakLower
	}

	if c.Validation.Workers == 0 {
		c.Validation.Workers = 8
	}
	if c.Validation.ReportDir == "" {
		c.Validation.ReportDir = "reports"
	}

	if c.Risk.PerTradeRiskPct == 0 {
		c.Risk.PerTradeRiskPct = 2.5
	}
	if c.Risk.MaxHeatPct == 0 {
		c.Risk.MaxHeatPct = 2.0
	}
	if c.Risk.DailyLossLimitPct == 0 {
		c.Risk.DailyLossLimitPct = 3.0
	}
	if c.Risk.MaxOpenPositions == 0 {
		c.Risk.MaxOpenPositions = 5
	}

	c.Ledger.Backend = strings.ToUpper(c.Ledger.Backend)
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = LedgerMemory
	}
	if c.Ledger.DSNEnv == "" && c.Ledger.Backend == LedgerPostgres {
		c.Ledger.DSNEnv = "GATE_PG_DSN"
	}

	if c.Service.Addr == "" {
		c.Service.Addr = ":8088"
	}
	if c.Service.TimeoutSeconds == 0 {
		c.Service.TimeoutSeconds = 5
	}

	if c.EOD.Dir == "" {
		c.EOD.Dir = "reports/eod"
	}
}
