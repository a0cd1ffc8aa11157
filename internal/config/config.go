// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode selects how listing pages are fetched.
const (
	ModeAuto     = "auto"
	ModeStatic   = "static"
	ModeHeadless = "headless"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Mode     string         `mapstructure:"mode"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// SourceConfig identifies the announcement board being harvested.
type SourceConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	ListPath    string `mapstructure:"list_path"`
	BoardID     string `mapstructure:"board_id"`
	UserAgent   string `mapstructure:"user_agent"`
	RowSelector string `mapstructure:"row_selector"`

	// HTMLPath points at a saved listing page. When set, the run parses
	// that file instead of fetching anything.
	HTMLPath string `mapstructure:"html_path"`
}

// HTTPConfig configures the static fetch path.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the browser-driven fetch path.
type HeadlessConfig struct {
	Headless       bool   `mapstructure:"headless"`
	Browser        string `mapstructure:"browser"`
	ExecPath       string `mapstructure:"exec_path"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	WaitTimeoutSec int    `mapstructure:"wait_timeout_seconds"`
}

// MirrorConfig holds the document-database credentials and pacing.
type MirrorConfig struct {
	Token             string  `mapstructure:"token"`
	DatabaseID        string  `mapstructure:"database_id"`
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}

// MetricsConfig controls the optional Prometheus listener. An empty
// address disables it.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCHOLARSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindCompatEnv(v)

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindCompatEnv keeps the short environment names the deployment
// already uses working alongside the prefixed forms.
func bindCompatEnv(v *viper.Viper) {
	v.BindEnv("mirror.token", "SCHOLARSYNC_MIRROR_TOKEN", "NOTION_TOKEN")
	v.BindEnv("mirror.database_id", "SCHOLARSYNC_MIRROR_DATABASE_ID", "NOTION_DB_ID")
	v.BindEnv("headless.browser", "SCHOLARSYNC_HEADLESS_BROWSER", "BROWSER")
	v.BindEnv("headless.headless", "SCHOLARSYNC_HEADLESS_HEADLESS", "HEADLESS")
	v.BindEnv("source.html_path", "SCHOLARSYNC_SOURCE_HTML_PATH", "HTML_PATH")
	v.BindEnv("source.board_id", "SCHOLARSYNC_SOURCE_BOARD_ID", "BBS_CONFIG_FK")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.base_url", "https://www.sogang.ac.kr")
	v.SetDefault("source.list_path", "/ko/scholarship-notice")
	v.SetDefault("source.board_id", "141")
	v.SetDefault("source.user_agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("mode", ModeAuto)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("headless.headless", true)
	v.SetDefault("headless.browser", "chromium")
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.wait_timeout_seconds", 10)
	v.SetDefault("mirror.requests_per_second", 3)
	v.SetDefault("mirror.timeout_seconds", 30)
	v.SetDefault("logging.development", true)
}

// Validate enforces structural limits. Credentials are checked at the
// command layer so inspect-style runs can fail with a friendlier message.
func (c Config) Validate() error {
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if c.Source.ListPath == "" {
		return fmt.Errorf("source.list_path must be set")
	}
	switch c.Mode {
	case ModeAuto, ModeStatic, ModeHeadless:
	default:
		return fmt.Errorf("mode must be one of %s, %s, %s", ModeAuto, ModeStatic, ModeHeadless)
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.NavTimeoutSec <= 0 {
		return fmt.Errorf("headless.nav_timeout_seconds must be > 0")
	}
	if c.Headless.WaitTimeoutSec <= 0 {
		return fmt.Errorf("headless.wait_timeout_seconds must be > 0")
	}
	if c.Mirror.RequestsPerSecond <= 0 {
		return fmt.Errorf("mirror.requests_per_second must be > 0")
	}
	return nil
}

// HTTPTimeout returns the static fetch budget as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout returns the browser navigation budget as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}

// WaitTimeout returns the browser render-wait budget as a duration.
func (c Config) WaitTimeout() time.Duration {
	return time.Duration(c.Headless.WaitTimeoutSec) * time.Second
}

// MirrorTimeout returns the mirror request budget as a duration.
func (c Config) MirrorTimeout() time.Duration {
	return time.Duration(c.Mirror.TimeoutSeconds) * time.Second
}
