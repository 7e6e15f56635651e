package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1/"
	DefaultModel   = "mixtral-8x7b-32768"

	DefaultTemperature = 0.3
)

// Config holds everything the CLI and the web server need.
type Config struct {
	ServerAddr string         `json:"server_addr,omitempty" yaml:"server_addr,omitempty"`
	LogMode    string         `json:"log_mode,omitempty" yaml:"log_mode,omitempty"`
	LLM        LLMConfig      `json:"llm" yaml:"llm"`
	RateLimit  RateLimit      `json:"rate_limit" yaml:"rate_limit"`
	Retry      Retry          `json:"retry" yaml:"retry"`
	Recovery   Recovery       `json:"recovery" yaml:"recovery"`
	Server     ServerSettings `json:"server" yaml:"server"`
}

// LLMConfig 上游模型配置，provider 为 OpenAI 兼容接口（groq/deepseek/openai）或本地 mock。
type LLMConfig struct {
	Provider    string  `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model       string  `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	// Temperature 为 nil 时取默认 0.3；显式的 0 会保留。
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int64   `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// RateLimit configures the per-caller limiter. RedisAddr switches to the shared tracker.
type RateLimit struct {
	MaxRequests int    `json:"max_requests,omitempty" yaml:"max_requests,omitempty"`
	WindowMS    int64  `json:"window_ms,omitempty" yaml:"window_ms,omitempty"`
	CooldownMS  int64  `json:"cooldown_ms,omitempty" yaml:"cooldown_ms,omitempty"`
	Capacity    int    `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	SweepSpec   string `json:"sweep_spec,omitempty" yaml:"sweep_spec,omitempty"`
	RedisAddr   string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
}

type Retry struct {
	MaxAttempts int     `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	BaseDelayMS int64   `json:"base_delay_ms,omitempty" yaml:"base_delay_ms,omitempty"`
	MaxDelayMS  int64   `json:"max_delay_ms,omitempty" yaml:"max_delay_ms,omitempty"`
	Jitter      float64 `json:"jitter,omitempty" yaml:"jitter,omitempty"`
}

// Recovery.RequireChapters 为 true 时，chapters 为空对象的回复视为失败。
type Recovery struct {
	RequireChapters bool `json:"require_chapters,omitempty" yaml:"require_chapters,omitempty"`
}

type ServerSettings struct {
	RequestTimeoutMS int64    `json:"request_timeout_ms,omitempty" yaml:"request_timeout_ms,omitempty"`
	SessionCapacity  int      `json:"session_capacity,omitempty" yaml:"session_capacity,omitempty"`
	CORSOrigins      []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`

	// TrustedProxies lists the proxy IPs/CIDRs whose X-Forwarded-For is believed.
	// Empty means the socket address is the caller identity.
	TrustedProxies []string `json:"trusted_proxies,omitempty" yaml:"trusted_proxies,omitempty"`
}

func (r RateLimit) Window() time.Duration   { return time.Duration(r.WindowMS) * time.Millisecond }
func (r RateLimit) Cooldown() time.Duration { return time.Duration(r.CooldownMS) * time.Millisecond }
func (r Retry) BaseDelay() time.Duration    { return time.Duration(r.BaseDelayMS) * time.Millisecond }
func (r Retry) MaxDelay() time.Duration     { return time.Duration(r.MaxDelayMS) * time.Millisecond }
func (s ServerSettings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMS) * time.Millisecond
}

// Load reads the config file (JSON or YAML by extension), applies defaults and
// environment overrides, then validates. An empty path means env + defaults only.
func Load(path string) (Config, error) {
	// .env 不存在时忽略。
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := decode(path, data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

func applyEnv(cfg *Config) {
	if v := firstNonEmpty(os.Getenv("THESIS_LLM_API_KEY"), os.Getenv("GROQ_API_KEY")); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("THESIS_LLM_BASE_URL")); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("THESIS_LLM_MODEL")); v != "" {
		cfg.LLM.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("THESIS_LLM_PROVIDER")); v != "" {
		cfg.LLM.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("THESIS_SERVER_ADDR")); v != "" {
		cfg.ServerAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("THESIS_REDIS_ADDR")); v != "" {
		cfg.RateLimit.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("THESIS_LOG_MODE")); v != "" {
		cfg.LogMode = v
	}
}

func applyDefaults(cfg *Config) {
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "groq"
	}
	if cfg.LLM.Provider == "groq" && cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = DefaultBaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel
	}
	if cfg.LLM.Temperature == nil {
		t := DefaultTemperature
		cfg.LLM.Temperature = &t
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 32768
	}
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":8080"
	}

	rl := &cfg.RateLimit
	if rl.MaxRequests == 0 {
		rl.MaxRequests = 5
	}
	if rl.WindowMS == 0 {
		rl.WindowMS = 60_000
	}
	if rl.CooldownMS == 0 {
		rl.CooldownMS = 300_000
	}
	if rl.Capacity == 0 {
		rl.Capacity = 10_000
	}
	if rl.SweepSpec == "" {
		rl.SweepSpec = "@every 1m"
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.BaseDelayMS == 0 {
		cfg.Retry.BaseDelayMS = 2000
	}
	if cfg.Retry.MaxDelayMS == 0 {
		cfg.Retry.MaxDelayMS = 60_000
	}

	if cfg.Server.RequestTimeoutMS == 0 {
		cfg.Server.RequestTimeoutMS = 180_000
	}
	if cfg.Server.SessionCapacity == 0 {
		cfg.Server.SessionCapacity = 256
	}
}

// Validate checks the fields that cannot be defaulted.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "openai", "groq":
	case "deepseek":
		// DeepSeek 提供 OpenAI 兼容接口，需填写 base_url。
		if c.LLM.BaseURL == "" {
			return errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
	case "mock":
		return c.validateLimits()
	default:
		return fmt.Errorf("llm provider %s not supported", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		return errors.New("llm api key missing; set llm.api_key or THESIS_LLM_API_KEY")
	}
	return c.validateLimits()
}

func (c Config) validateLimits() error {
	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		return errors.New("llm.temperature must be in [0, 2]")
	}
	if c.RateLimit.MaxRequests < 0 || c.RateLimit.WindowMS < 0 || c.RateLimit.CooldownMS < 0 {
		return errors.New("rate_limit values must not be negative")
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.BaseDelayMS < 0 {
		return errors.New("retry values must not be negative")
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter >= 1 {
		return errors.New("retry.jitter must be in [0, 1)")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
