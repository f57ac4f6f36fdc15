package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Logging     LoggingConfig   `toml:"logging"`
	Browser     BrowserConfig   `toml:"browser"`
	Sessions    SessionsConfig  `toml:"sessions"`
	Captcha     CaptchaConfig   `toml:"captcha"`
	State       StateConfig     `toml:"state"`
	Storage     StorageConfig   `toml:"storage"`
	Pipeline    PipelineConfig  `toml:"pipeline"`
	Limits      LimitsConfig    `toml:"limits"`
	ATS         ATSConfig       `toml:"ats"`
	LLM         LLMConfig       `toml:"llm"`
	Mail        MailConfig      `toml:"mail"`
	API         APIConfig       `toml:"api"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

// BrowserConfig controls how browser sessions are launched
type BrowserConfig struct {
	Backend           string   `toml:"backend" validate:"oneof=chromedp devtools-mcp"` // Default automation backend
	Headless          bool     `toml:"headless"`
	ViewportWidth     int      `toml:"viewport_width" validate:"gt=0"`
	ViewportHeight    int      `toml:"viewport_height" validate:"gt=0"`
	SlowMoMs          int      `toml:"slow_mo_ms"`          // Per-action slowdown in milliseconds
	UserAgent         string   `toml:"user_agent"`          // Optional user agent override
	DefaultTimeoutSec int      `toml:"default_timeout_sec"` // Per-operation timeout
	NavTimeoutSec     int      `toml:"nav_timeout_sec"`     // Navigation timeout (extended, >= 60s)
	DevtoolsCommand   string   `toml:"devtools_command"`    // Sidecar binary for the devtools-mcp backend
	DevtoolsArgs      []string `toml:"devtools_args"`
	ScreenshotDir     string   `toml:"screenshot_dir"`
}

type SessionsConfig struct {
	IdleTimeoutSec     int `toml:"idle_timeout_sec"`     // Close sessions idle longer than this (default 1800)
	CleanupIntervalSec int `toml:"cleanup_interval_sec"` // Idle sweep interval (default 300)
}

type CaptchaConfig struct {
	APIKey    string `toml:"api_key"`
	APIBase   string `toml:"api_base"` // 2captcha-compatible endpoint base
	AutoSolve bool   `toml:"auto_solve"`
}

// StateConfig controls the resumable session-state store
type StateConfig struct {
	Dir            string `toml:"dir"`              // One JSON document per session
	GraceHours     int    `toml:"grace_hours"`      // GC terminal records older than this (default 48)
	ResumableHours int    `toml:"resumable_hours"`  // Max pause age for resumption (default 24)
	GCSchedule     string `toml:"gc_cron_schedule"` // Cron schedule for cleanup (default "@hourly")
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type PipelineConfig struct {
	MaxApplications  int    `toml:"max_applications" validate:"gte=0"`
	DelayBetweenSec  int    `toml:"delay_between_sec"`
	MaxRetries       int    `toml:"max_retries" validate:"gte=0"`
	RetryDelayBase   int    `toml:"retry_delay_base_sec"`
	AutoSubmit       bool   `toml:"auto_submit"`
	ReportsDir       string `toml:"reports_dir"`
	RenderPDFReports bool   `toml:"render_pdf_reports"`
}

type LimitsConfig struct {
	MaxAutomatedPerDay int `toml:"max_automated_per_day" validate:"gte=0"` // semi_auto + auto combined
	MaxAutoPerDay      int `toml:"max_auto_per_day" validate:"gte=0"`      // auto only
}

type ATSConfig struct {
	SelectorOverrides string `toml:"selector_overrides"` // Optional YAML file with selector overrides per strategy
}

type LLMConfig struct {
	Provider string       `toml:"provider"` // "claude", "gemini", or "" (disabled)
	Claude   ClaudeConfig `toml:"claude"`
	Gemini   GeminiConfig `toml:"gemini"`
}

type ClaudeConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// MailConfig configures the IMAP confirmation-email scanner
type MailConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Mailbox  string `toml:"mailbox"`
}

type APIConfig struct {
	BaseURL string `toml:"base_url"` // Base URL of the external job/user stores
}

// WebSocketConfig contains configuration for the notification fan-out
type WebSocketConfig struct {
	MinLevel         string `toml:"min_level"`
	ThrottleInterval string `toml:"throttle_interval"` // Throttle for progress events, e.g. "500ms"
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8177,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Browser: BrowserConfig{
			Backend:           "chromedp",
			Headless:          true,
			ViewportWidth:     1280,
			ViewportHeight:    900,
			SlowMoMs:          0,
			DefaultTimeoutSec: 30,
			NavTimeoutSec:     60,
			DevtoolsCommand:   "npx",
			DevtoolsArgs:      []string{"chrome-devtools-mcp@latest"},
			ScreenshotDir:     "./data/screenshots",
		},
		Sessions: SessionsConfig{
			IdleTimeoutSec:     1800,
			CleanupIntervalSec: 300,
		},
		Captcha: CaptchaConfig{
			APIBase:   "https://2captcha.com",
			AutoSolve: true,
		},
		State: StateConfig{
			Dir:            "./data/sessions",
			GraceHours:     48,
			ResumableHours: 24,
			GCSchedule:     "@hourly",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/badger"},
		},
		Pipeline: PipelineConfig{
			MaxApplications:  5,
			DelayBetweenSec:  60,
			MaxRetries:       3,
			RetryDelayBase:   120,
			ReportsDir:       "./data/reports",
			RenderPDFReports: true,
		},
		Limits: LimitsConfig{
			MaxAutomatedPerDay: 10,
			MaxAutoPerDay:      5,
		},
		LLM: LLMConfig{
			Claude: ClaudeConfig{Model: "claude-sonnet-4-20250514"},
			Gemini: GeminiConfig{Model: "gemini-2.0-flash"},
		},
		Mail: MailConfig{
			Port:    993,
			Mailbox: "INBOX",
		},
		API: APIConfig{
			BaseURL: "http://localhost:8080",
		},
		WebSocket: WebSocketConfig{
			MinLevel:         "info",
			ThrottleInterval: "500ms",
		},
	}
}

// LoadFromFiles loads configuration from TOML files in order (later files
// override earlier ones), then applies environment variable overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural constraints on the configuration
func Validate(config *Config) error {
	v := validator.New()
	if err := v.Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyEnvOverrides applies PETO_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("PETO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("PETO_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("PETO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("PETO_BROWSER_BACKEND"); v != "" {
		config.Browser.Backend = v
	}
	if v := os.Getenv("PETO_HEADLESS"); v != "" {
		config.Browser.Headless = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("PETO_CAPTCHA_API_KEY"); v != "" {
		config.Captcha.APIKey = v
	}
	if v := os.Getenv("PETO_API_URL"); v != "" {
		config.API.BaseURL = v
	}
	if v := os.Getenv("PETO_CLAUDE_API_KEY"); v != "" {
		config.LLM.Claude.APIKey = v
	}
	if v := os.Getenv("PETO_GEMINI_API_KEY"); v != "" {
		config.LLM.Gemini.APIKey = v
	}
	if v := os.Getenv("PETO_IMAP_PASSWORD"); v != "" {
		config.Mail.Password = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
