// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. SCENARIST_RUNNER_CONCURRENCY.
const EnvPrefix = "SCENARIST"

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Session    SessionConfig    `mapstructure:"session" yaml:"session"`
	Navigation NavigationConfig `mapstructure:"navigation" yaml:"navigation"`
	Frames     FramesConfig     `mapstructure:"frames" yaml:"frames"`
	Steps      StepsConfig      `mapstructure:"steps" yaml:"steps"`
	Assertions AssertionsConfig `mapstructure:"assertions" yaml:"assertions"`
	Runner     RunnerConfig     `mapstructure:"runner" yaml:"runner"`
	Report     ReportConfig     `mapstructure:"report" yaml:"report"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig is forwarded to the browser launch as-is.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	Args         []string `mapstructure:"args" yaml:"args"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
	NoSandbox    bool     `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	UserDataDir  string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	ExecPath     string   `mapstructure:"exec_path" yaml:"exec_path"`
}

type SessionConfig struct {
	ReleaseTimeout time.Duration `mapstructure:"release_timeout" yaml:"release_timeout"`
}

type NavigationConfig struct {
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WaitUntil string        `mapstructure:"wait_until" yaml:"wait_until"`
}

// FramesConfig configures frame readiness synchronization.
type FramesConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RediscoveryRounds int           `mapstructure:"rediscovery_rounds" yaml:"rediscovery_rounds"`
}

type StepsConfig struct {
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	ClickTimeout time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	FillTimeout  time.Duration `mapstructure:"fill_timeout" yaml:"fill_timeout"`
}

type AssertionsConfig struct {
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type RunnerConfig struct {
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`
}

// ReportConfig selects the report writer. An empty output means stdout.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// StoreConfig enables persisting reports to PostgreSQL.
type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"-"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scenarist")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.args", []string{
		"--window-size=1280,720",
		"--disable-dev-shm-usage",
		"--ipc=host",
		"--single-process",
	})
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 720)
	v.SetDefault("browser.no_sandbox", false)

	// -- Session --
	v.SetDefault("session.release_timeout", "10s")

	// -- Navigation --
	v.SetDefault("navigation.timeout", "10s")
	v.SetDefault("navigation.wait_until", "commit")

	// -- Frames --
	v.SetDefault("frames.timeout", "3s")
	v.SetDefault("frames.rediscovery_rounds", 1)

	// -- Steps --
	v.SetDefault("steps.settle_delay", "3s")
	v.SetDefault("steps.click_timeout", "5s")
	v.SetDefault("steps.fill_timeout", "5s")

	// -- Assertions --
	v.SetDefault("assertions.timeout", "30s")
	v.SetDefault("assertions.poll_interval", "100ms")

	// -- Runner --
	v.SetDefault("runner.concurrency", 1)

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "")

	// -- Store --
	v.SetDefault("store.enabled", false)
	v.SetDefault("store.dsn", "")

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9464")
}

// BindEnv wires SCENARIST_* environment variables into v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Secrets are never read from the config file alone.
	_ = v.BindEnv("store.dsn", EnvPrefix+"_STORE_DSN", "DATABASE_URL")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Logger.LogFile, &c.Browser.UserDataDir, &c.Browser.ExecPath, &c.Report.Output} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expanding path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

var (
	validWaitUntil = map[string]bool{"": true, "commit": true, "domcontentloaded": true, "load": true}
	validFormats   = map[string]bool{"text": true, "json": true, "junit": true}
)

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	if c.Browser.WindowWidth < 0 || c.Browser.WindowHeight < 0 {
		return fmt.Errorf("browser window size must not be negative")
	}
	if !validWaitUntil[strings.ToLower(c.Navigation.WaitUntil)] {
		return fmt.Errorf("navigation.wait_until must be one of commit, domcontentloaded, load; got %q", c.Navigation.WaitUntil)
	}
	durations := map[string]time.Duration{
		"session.release_timeout":  c.Session.ReleaseTimeout,
		"navigation.timeout":       c.Navigation.Timeout,
		"frames.timeout":           c.Frames.Timeout,
		"steps.click_timeout":      c.Steps.ClickTimeout,
		"steps.fill_timeout":       c.Steps.FillTimeout,
		"assertions.timeout":       c.Assertions.Timeout,
		"assertions.poll_interval": c.Assertions.PollInterval,
	}
	for key, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}
	if c.Steps.SettleDelay < 0 {
		return fmt.Errorf("steps.settle_delay must not be negative")
	}
	if c.Frames.RediscoveryRounds < 0 {
		return fmt.Errorf("frames.rediscovery_rounds must not be negative")
	}
	if !validFormats[c.Report.Format] {
		return fmt.Errorf("report.format must be one of text, json, junit; got %q", c.Report.Format)
	}
	if c.Store.Enabled && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required when the store is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}
