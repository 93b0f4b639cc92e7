// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Network  NetworkConfig  `mapstructure:"network" yaml:"network"`
	Patterns PatternsConfig `mapstructure:"patterns" yaml:"patterns"`
	Session  SessionConfig  `mapstructure:"session" yaml:"session"`
	Fields   FieldsConfig   `mapstructure:"fields" yaml:"fields"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	// Debug raises the log level and makes the matcher explain every skipped pattern.
	Debug bool `mapstructure:"debug" yaml:"debug"`
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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the browser processes backing each session.
type BrowserConfig struct {
	Headless        bool     `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors bool     `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Args            []string `mapstructure:"args" yaml:"args"`
	// ProfileDir is the parent of every per-session user data directory.
	ProfileDir string `mapstructure:"profile_dir" yaml:"profile_dir"`
	// DenylistFile lists URL fragments, one per line, whose requests are failed.
	DenylistFile       string   `mapstructure:"denylist_file" yaml:"denylist_file"`
	BlockResourceTypes []string `mapstructure:"block_resource_types" yaml:"block_resource_types"`
}

// NetworkConfig tunes page level timing.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	// ActionTimeout bounds a single locate, fill or check against the live page.
	ActionTimeout time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	PostLoadWait  time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// PatternsConfig locates the recognition pattern library.
type PatternsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SessionConfig drives the session state machine.
type SessionConfig struct {
	Tick        time.Duration `mapstructure:"tick" yaml:"tick"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	ClickBudget time.Duration `mapstructure:"click_budget" yaml:"click_budget"`
	ClickStep   time.Duration `mapstructure:"click_step" yaml:"click_step"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	Pause       bool          `mapstructure:"pause" yaml:"pause"`
}

// Iterations is the number of rounds a session may run before it times out.
func (s SessionConfig) Iterations() int {
	if s.Tick <= 0 {
		return 1
	}
	n := int(s.Timeout / s.Tick)
	if n < 1 {
		return 1
	}
	return n
}

// FieldsConfig configures where field values are looked up before prompting.
type FieldsConfig struct {
	EnvFile string `mapstructure:"env_file" yaml:"env_file"`
}

// ServerConfig configures the HTTP front.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "middleman")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "magenta")
	v.SetDefault("logger.colors.info", "cyan")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Browser --
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.profile_dir", "user-data-dir")
	v.SetDefault("browser.denylist_file", "denylist.txt")
	v.SetDefault("browser.block_resource_types", []string{"media", "font"})

	// -- Network --
	v.SetDefault("network.navigation_timeout", "90s")
	v.SetDefault("network.action_timeout", "10s")
	v.SetDefault("network.post_load_wait", "0s")

	// -- Patterns --
	v.SetDefault("patterns.dir", "./patterns")

	// -- Session --
	v.SetDefault("session.tick", "1s")
	v.SetDefault("session.timeout", "15s")
	v.SetDefault("session.settle_delay", "250ms")
	v.SetDefault("session.click_budget", "3s")
	v.SetDefault("session.click_step", "1s")
	v.SetDefault("session.idle_timeout", "10m")
	v.SetDefault("session.pause", false)

	// -- Fields --
	v.SetDefault("fields.env_file", ".env")

	// -- Server --
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)

	v.SetDefault("debug", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Container platforms set a bare PORT variable.
	_ = v.BindEnv("server.port", "MIDDLEMAN_SERVER_PORT", "PORT")
	_ = v.BindEnv("session.pause", "MIDDLEMAN_SESSION_PAUSE", "MIDDLEMAN_PAUSE")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if cfg.Debug {
		cfg.Logger.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Patterns.Dir, &c.Browser.ProfileDir, &c.Browser.DenylistFile, &c.Fields.EnvFile, &c.Logger.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("could not expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Patterns.Dir == "" {
		return fmt.Errorf("patterns.dir is required")
	}
	if c.Browser.ProfileDir == "" {
		return fmt.Errorf("browser.profile_dir is required")
	}
	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}
	return nil
}

// Validate checks the SessionConfig settings.
func (s *SessionConfig) Validate() error {
	if s.Tick <= 0 {
		return fmt.Errorf("tick must be a positive duration")
	}
	if s.Timeout < s.Tick {
		return fmt.Errorf("timeout (%s) must be at least one tick (%s)", s.Timeout, s.Tick)
	}
	if s.ClickStep <= 0 {
		return fmt.Errorf("click_step must be a positive duration")
	}
	if s.ClickBudget < 0 || s.SettleDelay < 0 || s.IdleTimeout < 0 {
		return fmt.Errorf("click_budget, settle_delay and idle_timeout must not be negative")
	}
	return nil
}
