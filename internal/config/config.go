// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Browser    BrowserConfig    `mapstructure:"browser" yaml:"browser"`
	Answer     AnswerConfig     `mapstructure:"answer" yaml:"answer"`
	Retry      RetryConfig      `mapstructure:"retry" yaml:"retry"`
	Diagnostic DiagnosticConfig `mapstructure:"diagnostic" yaml:"diagnostic"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
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

// BrowserConfig holds settings for the shared headless browser process.
type BrowserConfig struct {
	// ExecPath is the host-resolved browser executable. Empty lets chromedp
	// search the usual install locations.
	ExecPath string         `mapstructure:"exec_path" yaml:"exec_path"`
	Headless bool           `mapstructure:"headless" yaml:"headless"`
	Args     []string       `mapstructure:"args" yaml:"args"`
	MaxPages int            `mapstructure:"max_pages" yaml:"max_pages"`
	Viewport ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	// NavigationTimeout bounds a single navigation attempt. Zero waits forever.
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Languages         []string      `mapstructure:"languages" yaml:"languages"`
}

// ViewportConfig is the emulated window size for every page.
type ViewportConfig struct {
	Width  int64 `mapstructure:"width" yaml:"width"`
	Height int64 `mapstructure:"height" yaml:"height"`
}

// AnswerConfig controls how the answer page is driven and presented.
type AnswerConfig struct {
	URL  string `mapstructure:"url" yaml:"url"`
	Mode string `mapstructure:"mode" yaml:"mode"`
	// Wait is a pacing delay between extraction and emitting the answer.
	Wait time.Duration `mapstructure:"wait" yaml:"wait"`
	// SendText toggles the message shown before the page is opened.
	SendText    bool              `mapstructure:"send_text" yaml:"send_text"`
	SentText    string            `mapstructure:"sent_text" yaml:"sent_text"`
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	// ResultTimeout bounds the wait for the result content. Zero waits forever.
	ResultTimeout   time.Duration `mapstructure:"result_timeout" yaml:"result_timeout"`
	TriggerSelector string        `mapstructure:"trigger_selector" yaml:"trigger_selector"`
	ResultSelector  string        `mapstructure:"result_selector" yaml:"result_selector"`
	CaptureSelector string        `mapstructure:"capture_selector" yaml:"capture_selector"`
	HideSelectors   []string      `mapstructure:"hide_selectors" yaml:"hide_selectors"`
}

// CompressionConfig selects JPEG output and its quality for image mode.
type CompressionConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Quality int  `mapstructure:"quality" yaml:"quality"`
}

// RetryConfig is the policy applied to every network-dependent step.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
}

// DiagnosticConfig configures the quote side channel logged on retry failures.
type DiagnosticConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Field   string        `mapstructure:"field" yaml:"field"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// ServerConfig configures the HTTP host used by the serve command.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst           int           `mapstructure:"burst" yaml:"burst"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Defaults for the answer page.
const (
	DefaultAnswerURL       = "https://www.myanswersbook.com/zh-cn.html"
	DefaultSentText        = "在心中默念你的问题，等待答案之书给你答案。"
	DefaultTriggerSelector = "a.book-box"
	DefaultResultSelector  = ".content-en"
	DefaultCaptureSelector = ".content-box"
	DefaultDiagnosticURL   = "https://v1.hitokoto.cn/"
)

// DefaultHideSelectors are overlays removed before an image capture.
var DefaultHideSelectors = []string{".layui-layer-content.layui-layer-padding"}

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
	v.SetDefault("logger.service_name", "answerbook")
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
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.max_pages", 0)
	v.SetDefault("browser.viewport.width", 1200)
	v.SetDefault("browser.viewport.height", 800)
	v.SetDefault("browser.navigation_timeout", "60s")
	v.SetDefault("browser.languages", []string{"zh-CN", "zh"})

	// -- Answer --
	v.SetDefault("answer.url", DefaultAnswerURL)
	v.SetDefault("answer.mode", "image")
	v.SetDefault("answer.wait", "0s")
	v.SetDefault("answer.send_text", true)
	v.SetDefault("answer.sent_text", DefaultSentText)
	v.SetDefault("answer.compression.enabled", true)
	v.SetDefault("answer.compression.quality", 80)
	v.SetDefault("answer.result_timeout", "60s")
	v.SetDefault("answer.trigger_selector", DefaultTriggerSelector)
	v.SetDefault("answer.result_selector", DefaultResultSelector)
	v.SetDefault("answer.capture_selector", DefaultCaptureSelector)
	v.SetDefault("answer.hide_selectors", DefaultHideSelectors)

	// -- Retry --
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.base_delay", "500ms")

	// -- Diagnostic --
	v.SetDefault("diagnostic.enabled", true)
	v.SetDefault("diagnostic.url", DefaultDiagnosticURL)
	v.SetDefault("diagnostic.field", "hitokoto")
	v.SetDefault("diagnostic.timeout", "10s")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.rate_limit", 2.0)
	v.SetDefault("server.burst", 4)
	v.SetDefault("server.shutdown_timeout", "15s")
}

// Load reads configuration from the given file (or the default search path),
// the environment and the defaults, in that order of precedence reversed.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		expanded, err := homedir.Expand(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path %q: %w", cfgFile, err)
		}
		v.SetConfigFile(expanded)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.answerbook")
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("ANSWERBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes paths and rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative, got %s", c.Retry.BaseDelay)
	}
	if c.Answer.Compression.Enabled && (c.Answer.Compression.Quality < 1 || c.Answer.Compression.Quality > 100) {
		return fmt.Errorf("answer.compression.quality must be within 1-100, got %d", c.Answer.Compression.Quality)
	}
	if c.Browser.MaxPages < 0 {
		return fmt.Errorf("browser.max_pages must not be negative, got %d", c.Browser.MaxPages)
	}
	if c.Answer.URL == "" {
		return fmt.Errorf("answer.url must be set")
	}

	var err error
	if c.Browser.ExecPath, err = homedir.Expand(c.Browser.ExecPath); err != nil {
		return fmt.Errorf("invalid browser.exec_path: %w", err)
	}
	if c.Logger.LogFile, err = homedir.Expand(c.Logger.LogFile); err != nil {
		return fmt.Errorf("invalid logger.log_file: %w", err)
	}
	return nil
}
