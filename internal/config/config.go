// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Strategy defaults, used when the corresponding YAML keys are unset.
const (
	// defaultMinPremium rejects strangles too cheap to be worth the
	// commission and assignment risk
	defaultMinPremium = 0.30
	// defaultProfitTargetHighVol closes high-rank entries at 50% of credit
	defaultProfitTargetHighVol = 0.50
	// defaultProfitTargetLowVol closes low-rank entries at 25% of credit
	defaultProfitTargetLowVol = 0.25
	// defaultStopLossMultiple closes any position once it costs 2x credit
	defaultStopLossMultiple = 2.0
	// defaultEarningsWindowDays is the forward earnings blackout window
	defaultEarningsWindowDays = 5
	// defaultTimezone is the exchange timezone
	defaultTimezone = "America/New_York"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Risk        RiskConfig        `yaml:"risk"`
	Calendar    CalendarConfig    `yaml:"calendar"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings.
type BrokerConfig struct {
	Provider  string `yaml:"provider"`
	APIKey    string `yaml:"api_key"`
	AccountID string `yaml:"account_id"`
	Sandbox   bool   `yaml:"sandbox"`
}

// ScheduleConfig defines the trading schedule and market hours.
type ScheduleConfig struct {
	Timezone     string `yaml:"timezone"`      // e.g., "America/New_York"
	MarketOpen   string `yaml:"market_open"`   // "HH:MM"
	MarketClose  string `yaml:"market_close"`  // "HH:MM"
	SellTime     string `yaml:"sell_time"`     // "HH:MM", entries allowed at or after
	PollInterval string `yaml:"poll_interval"` // e.g., "60s"
	EntryPause   string `yaml:"entry_pause"`   // pause between entry attempts within a cycle
}

// StrategyConfig defines trading strategy parameters.
type StrategyConfig struct {
	Tickers             []string `yaml:"tickers"`
	MinPremium          float64  `yaml:"min_premium"`
	ProfitTargetHighVol float64  `yaml:"profit_target_high_vol"`
	ProfitTargetLowVol  float64  `yaml:"profit_target_low_vol"`
	StopLossMultiple    float64  `yaml:"stop_loss_multiple"`
	EarningsWindowDays  int      `yaml:"earnings_window_days"`
	Quantity            int      `yaml:"quantity"`
}

// RiskConfig defines risk management parameters.
type RiskConfig struct {
	MaxStrangles int `yaml:"max_strangles"`
}

// CalendarConfig defines the earnings calendar source.
type CalendarConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines the status dashboard settings.
type DashboardConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.normalize()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// normalize fills unset values with defaults before validation.
func (c *Config) normalize() {
	if c.Strategy.MinPremium == 0 {
		c.Strategy.MinPremium = defaultMinPremium
	}
	if c.Strategy.ProfitTargetHighVol == 0 {
		c.Strategy.ProfitTargetHighVol = defaultProfitTargetHighVol
	}
	if c.Strategy.ProfitTargetLowVol == 0 {
		c.Strategy.ProfitTargetLowVol = defaultProfitTargetLowVol
	}
	if c.Strategy.StopLossMultiple == 0 {
		c.Strategy.StopLossMultiple = defaultStopLossMultiple
	}
	if c.Strategy.EarningsWindowDays == 0 {
		c.Strategy.EarningsWindowDays = defaultEarningsWindowDays
	}
	if c.Strategy.Quantity == 0 {
		c.Strategy.Quantity = 1
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultTimezone
	}
	if c.Schedule.MarketOpen == "" {
		c.Schedule.MarketOpen = "09:30"
	}
	if c.Schedule.MarketClose == "" {
		c.Schedule.MarketClose = "16:00"
	}
	if c.Schedule.SellTime == "" {
		c.Schedule.SellTime = "15:45"
	}
	if c.Schedule.PollInterval == "" {
		c.Schedule.PollInterval = "60s"
	}
	if c.Schedule.EntryPause == "" {
		c.Schedule.EntryPause = "1s"
	}
	if c.Risk.MaxStrangles == 0 {
		c.Risk.MaxStrangles = 2
	}
	if c.Dashboard.ListenAddr == "" {
		c.Dashboard.ListenAddr = ":8080"
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	if !c.IsPaperTrading() {
		if c.Broker.APIKey == "" {
			return fmt.Errorf("broker.api_key is required in live mode")
		}
		if c.Broker.AccountID == "" {
			return fmt.Errorf("broker.account_id is required in live mode")
		}
	}

	if len(c.Strategy.Tickers) == 0 {
		return fmt.Errorf("strategy.tickers must list at least one symbol")
	}
	seen := make(map[string]struct{}, len(c.Strategy.Tickers))
	for _, ticker := range c.Strategy.Tickers {
		if strings.TrimSpace(ticker) == "" {
			return fmt.Errorf("strategy.tickers must not contain empty symbols")
		}
		if _, dup := seen[ticker]; dup {
			return fmt.Errorf("strategy.tickers contains duplicate symbol %q", ticker)
		}
		seen[ticker] = struct{}{}
	}

	if c.Strategy.MinPremium <= 0 {
		return fmt.Errorf("strategy.min_premium must be > 0")
	}
	if c.Strategy.ProfitTargetHighVol <= 0 || c.Strategy.ProfitTargetHighVol >= 1 {
		return fmt.Errorf("strategy.profit_target_high_vol must be in (0,1)")
	}
	if c.Strategy.ProfitTargetLowVol <= 0 || c.Strategy.ProfitTargetLowVol >= 1 {
		return fmt.Errorf("strategy.profit_target_low_vol must be in (0,1)")
	}
	if c.Strategy.StopLossMultiple <= 1 {
		return fmt.Errorf("strategy.stop_loss_multiple must be > 1")
	}
	if c.Strategy.EarningsWindowDays < 0 {
		return fmt.Errorf("strategy.earnings_window_days must be >= 0")
	}
	if c.Strategy.Quantity <= 0 {
		return fmt.Errorf("strategy.quantity must be > 0")
	}
	if c.Risk.MaxStrangles <= 0 {
		return fmt.Errorf("risk.max_strangles must be > 0")
	}
	if c.Calendar.Path == "" {
		return fmt.Errorf("calendar.path is required")
	}

	if _, err := time.ParseDuration(c.Schedule.PollInterval); err != nil {
		return fmt.Errorf("schedule.poll_interval invalid: %w", err)
	}
	if _, err := time.ParseDuration(c.Schedule.EntryPause); err != nil {
		return fmt.Errorf("schedule.entry_pause invalid: %w", err)
	}

	loc := c.Location()
	openClock, err1 := time.ParseInLocation("15:04", c.Schedule.MarketOpen, loc)
	closeClock, err2 := time.ParseInLocation("15:04", c.Schedule.MarketClose, loc)
	sellClock, err3 := time.ParseInLocation("15:04", c.Schedule.SellTime, loc)
	if err1 != nil || err2 != nil || err3 != nil {
		return fmt.Errorf("schedule times must be HH:MM (open=%q close=%q sell=%q)",
			c.Schedule.MarketOpen, c.Schedule.MarketClose, c.Schedule.SellTime)
	}
	if !minutesBefore(openClock, closeClock) {
		return fmt.Errorf("schedule.market_open must be before schedule.market_close")
	}
	if minutesBefore(sellClock, openClock) || minutesBefore(closeClock, sellClock) {
		return fmt.Errorf("schedule.sell_time must fall within market hours")
	}

	return nil
}

func minutesBefore(a, b time.Time) bool {
	return a.Hour() < b.Hour() || (a.Hour() == b.Hour() && a.Minute() < b.Minute())
}

// IsPaperTrading returns true if the bot is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// Location returns the configured exchange timezone, falling back to a
// DST-agnostic fixed Eastern zone on minimal containers.
func (c *Config) Location() *time.Location {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.FixedZone("ET", -5*60*60)
	}
	return loc
}

// GetPollInterval returns the configured polling interval duration.
func (c *Config) GetPollInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.PollInterval)
	if err != nil {
		return time.Minute
	}
	return d
}

// GetEntryPause returns the pause between entry attempts within a cycle.
func (c *Config) GetEntryPause() time.Duration {
	d, err := time.ParseDuration(c.Schedule.EntryPause)
	if err != nil {
		return time.Second
	}
	return d
}

// IsWithinMarketHours reports whether now falls on a weekday between market
// open and close, inclusive of both endpoints.
func (c *Config) IsWithinMarketHours(now time.Time) bool {
	loc := c.Location()
	today := now.In(loc)

	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false
	}

	open := c.clockToday(today, c.Schedule.MarketOpen, 9, 30, loc)
	end := c.clockToday(today, c.Schedule.MarketClose, 16, 0, loc)

	return !today.Before(open) && !today.After(end)
}

// IsAtOrAfterSellTime reports whether new entries are allowed at this time
// of day.
func (c *Config) IsAtOrAfterSellTime(now time.Time) bool {
	loc := c.Location()
	today := now.In(loc)
	sell := c.clockToday(today, c.Schedule.SellTime, 15, 45, loc)
	return !today.Before(sell)
}

// clockToday anchors a "HH:MM" clock string onto today's date, falling back
// to the given defaults when the string does not parse.
func (c *Config) clockToday(today time.Time, clock string, defHour, defMin int, loc *time.Location) time.Time {
	parsed, err := time.ParseInLocation("15:04", clock, loc)
	hour, minute := defHour, defMin
	if err == nil {
		hour, minute = parsed.Hour(), parsed.Minute()
	}
	return time.Date(today.Year(), today.Month(), today.Day(), hour, minute, 0, 0, loc)
}
