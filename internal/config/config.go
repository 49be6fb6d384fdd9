package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	DefaultFastModel            = "claude-haiku-4-5-20251001"
	DefaultStandardModel        = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens            = 8192
	DefaultMaxIterations        = 15
	DefaultCompletionTimeout    = 300
	DefaultLongMeetingThreshold = 50000
	DefaultChunkTokens          = 15000
	DefaultExtractionMaxTokens  = 2048
	DefaultDurationUnit         = "seconds"
	DefaultClassifierMinutes    = 15
	DefaultClassifierUtterances = 50
	DefaultClassifierActions    = 3
	DefaultBackendURL           = "http://localhost:3000"
	DefaultBackendTimeout       = 30
	DefaultHost                 = "0.0.0.0"
	DefaultPort                 = 8000
	DefaultWorkers              = 2
	DefaultQueueSize            = 100
	DefaultRetentionDays        = 30
	DefaultFirefliesEndpoint    = "https://api.fireflies.ai/graphql"
	DefaultLogMaxSizeMB         = 20
	DefaultLogMaxBackups        = 5
)

type Config struct {
	Provider   ProviderConfig   `json:"provider"`
	Models     ModelsConfig     `json:"models"`
	Agent      AgentConfig      `json:"agent"`
	Processing ProcessingConfig `json:"processing"`
	Classifier ClassifierConfig `json:"classifier"`
	Backend    BackendConfig    `json:"backend"`
	Gateway    GatewayConfig    `json:"gateway"`
	Fireflies  FirefliesConfig  `json:"fireflies"`
	Notify     NotifyConfig     `json:"notify"`
	Log        LogConfig        `json:"log"`
	Pricing    PricingConfig    `json:"pricing"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

// ModelsConfig maps each tier to a concrete model name.
type ModelsConfig struct {
	Fast     string `json:"fast"`
	Standard string `json:"standard"`
}

type AgentConfig struct {
	MaxTokens            int  `json:"maxTokens"`
	MaxIterations        int  `json:"maxIterations"`
	CacheSystemPrompt    bool `json:"cacheSystemPrompt"`
	CompletionTimeoutSec int  `json:"completionTimeoutSec"`
}

type ProcessingConfig struct {
	LongMeetingThreshold int    `json:"longMeetingThreshold"`
	ChunkTokens          int    `json:"chunkTokens"`
	ExtractionMaxTokens  int    `json:"extractionMaxTokens"`
	DurationUnit         string `json:"durationUnit,omitempty"`
}

type ClassifierConfig struct {
	MaxMinutes     float64 `json:"maxMinutes"`
	MaxUtterances  int     `json:"maxUtterances"`
	MaxActionItems int     `json:"maxActionItems"`
}

type BackendConfig struct {
	BaseURL    string `json:"baseUrl"`
	TimeoutSec int    `json:"timeoutSec"`
}

type GatewayConfig struct {
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queueSize"`
	WebhookSecret string `json:"webhookSecret,omitempty"`
	RetentionDays int    `json:"retentionDays"`
	DBPath        string `json:"dbPath,omitempty"`
}

type FirefliesConfig struct {
	APIKey   string `json:"apiKey,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool    `json:"enabled"`
	Token   string  `json:"token"`
	ChatIDs []int64 `json:"chatIds"`
	Proxy   string  `json:"proxy,omitempty"`
}

type LogConfig struct {
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"maxSizeMB,omitempty"`
	MaxBackups int    `json:"maxBackups,omitempty"`
}

type PricingConfig struct {
	File string `json:"file,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{},
		Models: ModelsConfig{
			Fast:     DefaultFastModel,
			Standard: DefaultStandardModel,
		},
		Agent: AgentConfig{
			MaxTokens:            DefaultMaxTokens,
			MaxIterations:        DefaultMaxIterations,
			CacheSystemPrompt:    true,
			CompletionTimeoutSec: DefaultCompletionTimeout,
		},
		Processing: ProcessingConfig{
			LongMeetingThreshold: DefaultLongMeetingThreshold,
			ChunkTokens:          DefaultChunkTokens,
			ExtractionMaxTokens:  DefaultExtractionMaxTokens,
			DurationUnit:         DefaultDurationUnit,
		},
		Classifier: ClassifierConfig{
			MaxMinutes:     DefaultClassifierMinutes,
			MaxUtterances:  DefaultClassifierUtterances,
			MaxActionItems: DefaultClassifierActions,
		},
		Backend: BackendConfig{
			BaseURL:    DefaultBackendURL,
			TimeoutSec: DefaultBackendTimeout,
		},
		Gateway: GatewayConfig{
			Host:          DefaultHost,
			Port:          DefaultPort,
			Workers:       DefaultWorkers,
			QueueSize:     DefaultQueueSize,
			RetentionDays: DefaultRetentionDays,
		},
		Fireflies: FirefliesConfig{
			Endpoint: DefaultFirefliesEndpoint,
		},
		Log: LogConfig{
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".meetclaw")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DBPath returns the job store location, defaulting under the config dir.
func (c *Config) DBPath() string {
	if p := strings.TrimSpace(c.Gateway.DBPath); p != "" {
		return p
	}
	return filepath.Join(ConfigDir(), "data", "jobs.db")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("MEETCLAW_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("MEETCLAW_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("MEETCLAW_BACKEND_URL"); url != "" {
		cfg.Backend.BaseURL = url
	}
	if model := os.Getenv("MEETCLAW_FAST_MODEL"); model != "" {
		cfg.Models.Fast = model
	}
	if model := os.Getenv("MEETCLAW_STANDARD_MODEL"); model != "" {
		cfg.Models.Standard = model
	}
	if secret := os.Getenv("MEETCLAW_WEBHOOK_SECRET"); secret != "" {
		cfg.Gateway.WebhookSecret = secret
	}
	if key := os.Getenv("FIREFLIES_API_KEY"); key != "" {
		cfg.Fireflies.APIKey = key
	}
	if token := os.Getenv("MEETCLAW_TELEGRAM_TOKEN"); token != "" {
		cfg.Notify.Telegram.Token = token
	}
	if path := os.Getenv("MEETCLAW_PRICING_FILE"); path != "" {
		cfg.Pricing.File = path
	}
	if iters := os.Getenv("MEETCLAW_MAX_ITERATIONS"); iters != "" {
		if parsed, err := strconv.Atoi(iters); err == nil {
			cfg.Agent.MaxIterations = parsed
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Models.Fast == "" {
		c.Models.Fast = def.Models.Fast
	}
	if c.Models.Standard == "" {
		c.Models.Standard = def.Models.Standard
	}
	if c.Agent.MaxTokens <= 0 {
		c.Agent.MaxTokens = def.Agent.MaxTokens
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = def.Agent.MaxIterations
	}
	if c.Agent.CompletionTimeoutSec <= 0 {
		c.Agent.CompletionTimeoutSec = def.Agent.CompletionTimeoutSec
	}
	if c.Processing.LongMeetingThreshold <= 0 {
		c.Processing.LongMeetingThreshold = def.Processing.LongMeetingThreshold
	}
	if c.Processing.ChunkTokens <= 0 {
		c.Processing.ChunkTokens = def.Processing.ChunkTokens
	}
	if c.Processing.ExtractionMaxTokens <= 0 {
		c.Processing.ExtractionMaxTokens = def.Processing.ExtractionMaxTokens
	}
	if c.Processing.DurationUnit == "" {
		c.Processing.DurationUnit = def.Processing.DurationUnit
	}
	if c.Classifier.MaxMinutes <= 0 {
		c.Classifier.MaxMinutes = def.Classifier.MaxMinutes
	}
	if c.Classifier.MaxUtterances <= 0 {
		c.Classifier.MaxUtterances = def.Classifier.MaxUtterances
	}
	if c.Classifier.MaxActionItems <= 0 {
		c.Classifier.MaxActionItems = def.Classifier.MaxActionItems
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = def.Backend.BaseURL
	}
	if c.Backend.TimeoutSec <= 0 {
		c.Backend.TimeoutSec = def.Backend.TimeoutSec
	}
	if c.Gateway.Port <= 0 {
		c.Gateway.Port = def.Gateway.Port
	}
	if c.Gateway.Workers <= 0 {
		c.Gateway.Workers = def.Gateway.Workers
	}
	if c.Gateway.QueueSize <= 0 {
		c.Gateway.QueueSize = def.Gateway.QueueSize
	}
	if c.Gateway.RetentionDays <= 0 {
		c.Gateway.RetentionDays = def.Gateway.RetentionDays
	}
	if c.Fireflies.Endpoint == "" {
		c.Fireflies.Endpoint = def.Fireflies.Endpoint
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = def.Log.MaxBackups
	}
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
