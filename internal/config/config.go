package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"backtest-leakcheck/internal/backtest"
	"backtest-leakcheck/internal/data"
	"backtest-leakcheck/internal/harness"
	"backtest-leakcheck/internal/model"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration shape (YAML).
type Config struct {
	TestName    string  `yaml:"test_name"`
	TotalItems  int     `yaml:"total_items"`
	BatchCount  int     `yaml:"batch_count"`
	OutputDir   string  `yaml:"output_dir"`
	Engine      string  `yaml:"engine"`
	Timestamps  string  `yaml:"timestamps"`
	LogLevel    string  `yaml:"log_level"`
	MaxGrowthGB float64 `yaml:"max_growth_gb"`
	// HistoryDB, when set, is a SQLite file that every successful run is
	// recorded in.
	HistoryDB string `yaml:"history_db"`

	// Optional: load the engine fixture from a separate YAML. If both
	// FixtureFile and Fixture are provided, Fixture overrides FixtureFile.
	FixtureFile string        `yaml:"fixture_file"`
	Fixture     FixtureConfig `yaml:"fixture"`
	Quotes      QuoteConfig   `yaml:"quotes"`
}

type FixtureConfig struct {
	EngineLogLevel string `yaml:"engine_log_level"`
	BypassRisk     *bool  `yaml:"bypass_risk"`
	TickCapacity   int    `yaml:"tick_capacity"`
	BarCapacity    int    `yaml:"bar_capacity"`

	Instrument      string  `yaml:"instrument"`
	OMSType         string  `yaml:"oms_type"`
	AccountType     string  `yaml:"account_type"`
	BaseCurrency    string  `yaml:"base_currency"`
	StartingBalance string  `yaml:"starting_balance"`
	ProbSlippage    float64 `yaml:"prob_slippage"`
	FillSeed        int64   `yaml:"fill_seed"`

	BarType    string `yaml:"bar_type"`
	TradeSize  string `yaml:"trade_size"`
	FastPeriod int    `yaml:"fast_period"`
	SlowPeriod int    `yaml:"slow_period"`
}

type QuoteConfig struct {
	BidPrice       float64 `yaml:"bid_price"`
	AskPrice       float64 `yaml:"ask_price"`
	PricePrecision *int32  `yaml:"price_precision"`
	BidSize        float64 `yaml:"bid_size"`
	AskSize        float64 `yaml:"ask_size"`
	SizePrecision  *int32  `yaml:"size_precision"`
}

// Default mirrors a one-year EUR/USD tick run split into 50 batches.
func Default() *Config {
	bypass := true
	pricePrec, sizePrec := int32(4), int32(0)
	return &Config{
		TestName:   "memory",
		TotalItems: 32_431_360,
		BatchCount: 50,
		OutputDir:  ".",
		Engine:     "backtest",
		Timestamps: string(data.TimestampsReset),
		LogLevel:   "info",
		Fixture: FixtureConfig{
			EngineLogLevel:  string(backtest.LogWarning),
			BypassRisk:      &bypass,
			TickCapacity:    1,
			BarCapacity:     1,
			Instrument:      "EUR/USD.SIM",
			OMSType:         string(model.OMSHedging),
			AccountType:     string(model.AccountMargin),
			BaseCurrency:    string(model.USD),
			StartingBalance: "1_000_000 USD",
			BarType:         "EUR/USD.SIM-1-HOUR-ASK-EXTERNAL",
			TradeSize:       "100000",
			FastPeriod:      10,
			SlowPeriod:      20,
		},
		Quotes: QuoteConfig{
			BidPrice:       1.234,
			AskPrice:       1.234,
			PricePrecision: &pricePrec,
			BidSize:        5,
			AskSize:        5,
			SizePrecision:  &sizePrec,
		},
	}
}

// Load reads path, fills every unset field from Default and validates.
// An empty path yields the defaults.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with override merged on top of the file before
// validation.
func LoadWithOverrides(path string, override *Config) (*Config, error) {
	c := Default()
	if path != "" {
		fromFile, err := LoadUnchecked(path)
		if err != nil {
			return nil, err
		}
		c = Merge(c, fromFile)
	}
	c = Merge(c, override)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadUnchecked loads and merges config, but does not validate it or apply
// defaults.
func LoadUnchecked(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.FixtureFile != "" {
		fixturePath := c.FixtureFile
		if !filepath.IsAbs(fixturePath) {
			// Relative to the config file first, then to the working directory.
			cand := filepath.Join(filepath.Dir(path), fixturePath)
			if _, err := os.Stat(cand); err == nil {
				fixturePath = cand
			}
		}
		loaded, err := loadFixtureFile(fixturePath)
		if err != nil {
			return nil, err
		}
		c.Fixture = MergeFixture(loaded, c.Fixture)
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.ToRunConfig().Validate(); err != nil {
		return err
	}
	if c.Engine == "" {
		return errors.New("engine is required")
	}
	if _, err := data.ParseTimestampMode(c.Timestamps); err != nil {
		return err
	}
	if _, err := ParseSlogLevel(c.LogLevel); err != nil {
		return err
	}
	if c.MaxGrowthGB < 0 {
		return fmt.Errorf("max_growth_gb must be >= 0, got %v", c.MaxGrowthGB)
	}
	if _, err := c.ToFixture(); err != nil {
		return fmt.Errorf("fixture config invalid: %w", err)
	}
	if _, err := c.ToQuoteSpec(); err != nil {
		return fmt.Errorf("quotes config invalid: %w", err)
	}
	return nil
}

func (c *Config) ToRunConfig() harness.RunConfig {
	return harness.RunConfig{
		TestName:   c.TestName,
		TotalItems: c.TotalItems,
		BatchCount: c.BatchCount,
	}
}

func (c *Config) TimestampMode() data.TimestampMode {
	m, _ := data.ParseTimestampMode(c.Timestamps)
	return m
}

func (c *Config) ToFixture() (harness.Fixture, error) {
	f := c.Fixture
	fx := harness.DefaultFixture()

	if f.EngineLogLevel != "" {
		lvl, err := backtest.ParseLogLevel(f.EngineLogLevel)
		if err != nil {
			return fx, err
		}
		fx.Engine.LogLevel = lvl
	}
	if f.BypassRisk != nil {
		fx.Engine.RiskEngine.Bypass = *f.BypassRisk
	}
	if f.TickCapacity != 0 {
		fx.Engine.Cache.TickCapacity = f.TickCapacity
	}
	if f.BarCapacity != 0 {
		fx.Engine.Cache.BarCapacity = f.BarCapacity
	}
	if err := fx.Engine.Validate(); err != nil {
		return fx, err
	}

	if f.Instrument != "" {
		id, err := model.ParseInstrumentID(f.Instrument)
		if err != nil {
			return fx, err
		}
		fx.Symbol, fx.Venue = string(id.Symbol), id.Venue
	}
	if f.OMSType != "" {
		oms, err := model.ParseOMSType(f.OMSType)
		if err != nil {
			return fx, err
		}
		fx.OMSType = oms
	}
	if f.AccountType != "" {
		acct, err := model.ParseAccountType(f.AccountType)
		if err != nil {
			return fx, err
		}
		fx.AccountType = acct
	}
	if f.BaseCurrency != "" {
		cur, err := model.ParseCurrency(f.BaseCurrency)
		if err != nil {
			return fx, err
		}
		fx.BaseCurrency = cur
	}
	if f.StartingBalance != "" {
		bal, err := model.ParseMoney(f.StartingBalance)
		if err != nil {
			return fx, err
		}
		fx.StartingBalance = bal
	}
	if f.ProbSlippage < 0 || f.ProbSlippage > 1 {
		return fx, fmt.Errorf("prob_slippage must be in [0,1], got %v", f.ProbSlippage)
	}
	fx.ProbSlippage = f.ProbSlippage
	fx.FillSeed = f.FillSeed

	if f.BarType != "" {
		bt, err := model.ParseBarType(f.BarType)
		if err != nil {
			return fx, err
		}
		if bt.InstrumentID.Symbol != model.Symbol(fx.Symbol) || bt.InstrumentID.Venue != fx.Venue {
			return fx, fmt.Errorf("bar_type %s does not match instrument %s.%s", f.BarType, fx.Symbol, fx.Venue)
		}
		fx.BarType = f.BarType
	}
	if f.TradeSize != "" {
		size, err := decimal.NewFromString(strings.ReplaceAll(f.TradeSize, "_", ""))
		if err != nil {
			return fx, fmt.Errorf("invalid trade_size %q: %w", f.TradeSize, err)
		}
		fx.TradeSize = size
	}
	if f.FastPeriod != 0 {
		fx.FastPeriod = f.FastPeriod
	}
	if f.SlowPeriod != 0 {
		fx.SlowPeriod = f.SlowPeriod
	}
	if fx.FastPeriod >= fx.SlowPeriod {
		return fx, fmt.Errorf("fast_period %d must be less than slow_period %d", fx.FastPeriod, fx.SlowPeriod)
	}
	return fx, nil
}

// ToQuoteSpec builds the synthetic quote content for the fixture instrument.
func (c *Config) ToQuoteSpec() (data.QuoteSpec, error) {
	spec := data.DefaultQuoteSpec()
	if c.Fixture.Instrument != "" {
		id, err := model.ParseInstrumentID(c.Fixture.Instrument)
		if err != nil {
			return spec, err
		}
		spec.InstrumentID = id
	}
	q := c.Quotes
	if q.BidPrice != 0 {
		spec.BidPrice = q.BidPrice
	}
	if q.AskPrice != 0 {
		spec.AskPrice = q.AskPrice
	}
	if q.PricePrecision != nil {
		spec.PricePrecision = *q.PricePrecision
	}
	if q.BidSize != 0 {
		spec.BidSize = q.BidSize
	}
	if q.AskSize != 0 {
		spec.AskSize = q.AskSize
	}
	if q.SizePrecision != nil {
		spec.SizePrecision = *q.SizePrecision
	}
	if spec.BidPrice <= 0 || spec.AskPrice <= 0 {
		return spec, errors.New("quote prices must be > 0")
	}
	if spec.AskPrice < spec.BidPrice {
		return spec, fmt.Errorf("ask %v is below bid %v", spec.AskPrice, spec.BidPrice)
	}
	if spec.PricePrecision < 0 || spec.SizePrecision < 0 {
		return spec, errors.New("precisions must be >= 0")
	}
	return spec, nil
}

// ParseSlogLevel maps debug, info, warn and error to slog levels.
func ParseSlogLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", s, err)
	}
	return l, nil
}

type fixtureFileWrapper struct {
	Fixture FixtureConfig `yaml:"fixture"`
}

func loadFixtureFile(path string) (FixtureConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FixtureConfig{}, err
	}
	var w fixtureFileWrapper
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return FixtureConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return w.Fixture, nil
}

// Merge overlays non-zero fields from override onto a copy of base.
// Command-line flags reach the config through the same path.
func Merge(base, override *Config) *Config {
	out := *base
	if override == nil {
		return &out
	}
	if override.TestName != "" {
		out.TestName = override.TestName
	}
	if override.TotalItems != 0 {
		out.TotalItems = override.TotalItems
	}
	if override.BatchCount != 0 {
		out.BatchCount = override.BatchCount
	}
	if override.OutputDir != "" {
		out.OutputDir = override.OutputDir
	}
	if override.Engine != "" {
		out.Engine = override.Engine
	}
	if override.Timestamps != "" {
		out.Timestamps = override.Timestamps
	}
	if override.LogLevel != "" {
		out.LogLevel = override.LogLevel
	}
	if override.MaxGrowthGB != 0 {
		out.MaxGrowthGB = override.MaxGrowthGB
	}
	if override.HistoryDB != "" {
		out.HistoryDB = override.HistoryDB
	}
	if override.FixtureFile != "" {
		out.FixtureFile = override.FixtureFile
	}
	out.Fixture = MergeFixture(base.Fixture, override.Fixture)
	out.Quotes = mergeQuotes(base.Quotes, override.Quotes)
	return &out
}

// MergeFixture overlays non-zero fields from override onto base.
func MergeFixture(base, override FixtureConfig) FixtureConfig {
	out := base
	if override.EngineLogLevel != "" {
		out.EngineLogLevel = override.EngineLogLevel
	}
	if override.BypassRisk != nil {
		out.BypassRisk = override.BypassRisk
	}
	if override.TickCapacity != 0 {
		out.TickCapacity = override.TickCapacity
	}
	if override.BarCapacity != 0 {
		out.BarCapacity = override.BarCapacity
	}
	if override.Instrument != "" {
		out.Instrument = override.Instrument
	}
	if override.OMSType != "" {
		out.OMSType = override.OMSType
	}
	if override.AccountType != "" {
		out.AccountType = override.AccountType
	}
	if override.BaseCurrency != "" {
		out.BaseCurrency = override.BaseCurrency
	}
	if override.StartingBalance != "" {
		out.StartingBalance = override.StartingBalance
	}
	if override.ProbSlippage != 0 {
		out.ProbSlippage = override.ProbSlippage
	}
	if override.FillSeed != 0 {
		out.FillSeed = override.FillSeed
	}
	if override.BarType != "" {
		out.BarType = override.BarType
	}
	if override.TradeSize != "" {
		out.TradeSize = override.TradeSize
	}
	if override.FastPeriod != 0 {
		out.FastPeriod = override.FastPeriod
	}
	if override.SlowPeriod != 0 {
		out.SlowPeriod = override.SlowPeriod
	}
	return out
}

func mergeQuotes(base, override QuoteConfig) QuoteConfig {
	out := base
	if override.BidPrice != 0 {
		out.BidPrice = override.BidPrice
	}
	if override.AskPrice != 0 {
		out.AskPrice = override.AskPrice
	}
	if override.PricePrecision != nil {
		out.PricePrecision = override.PricePrecision
	}
	if override.BidSize != 0 {
		out.BidSize = override.BidSize
	}
	if override.AskSize != 0 {
		out.AskSize = override.AskSize
	}
	if override.SizePrecision != nil {
		out.SizePrecision = override.SizePrecision
	}
	return out
}
