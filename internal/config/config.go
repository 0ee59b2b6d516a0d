package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type StorageBackend string

const (
	StorageMemory    StorageBackend = "memory"
	StorageRedis     StorageBackend = "redis"
	StorageFirestore StorageBackend = "firestore"
)

type LLMProvider string

const (
	LLMOpenAI LLMProvider = "openai"
	LLMVertex LLMProvider = "vertex"
	LLMMock   LLMProvider = "mock"
)

type Config struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "json" or "text"

	Relay struct {
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"relay"`

	// Summarizer is "relay" (external endpoint) or "llm" (ask the provider).
	Summarizer string `yaml:"summarizer"`

	LLM struct {
		Provider    LLMProvider `yaml:"provider"`
		OpenAIKey   string      `yaml:"openai_api_key"`
		OpenAIURL   string      `yaml:"openai_base_url"`
		Model       string      `yaml:"model"`
		GCPProject  string      `yaml:"gcp_project"`
		GCPLocation string      `yaml:"gcp_location"`
	} `yaml:"llm"`

	Storage struct {
		Backend       StorageBackend `yaml:"backend"`
		RedisAddr     string         `yaml:"redis_addr"`
		RedisPassword string         `yaml:"redis_password"`
		RedisDB       int            `yaml:"redis_db"`
		RedisPrefix   string         `yaml:"redis_prefix"`
		GCPProject    string         `yaml:"gcp_project"`
	} `yaml:"storage"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	SideEffectTimeout time.Duration `yaml:"side_effect_timeout"`

	Console struct {
		APIBaseURL          string        `yaml:"api_base_url"`
		Recipient           string        `yaml:"recipient"`
		AlertPollInterval   time.Duration `yaml:"alert_poll_interval"`
		MessagePollInterval time.Duration `yaml:"message_poll_interval"`
		// STTCommand is run through the shell; each stdout line is a
		// recognition result. Dictation is disabled when empty.
		STTCommand string `yaml:"stt_command"`
		LogFile    string `yaml:"log_file"`
	} `yaml:"console"`
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if v == "1" || v == "true" || v == "TRUE" {
		return true
	}
	return false
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// Defaults returns the configuration used when neither a file nor the
// environment says otherwise.
func Defaults() *Config {
	cfg := &Config{
		Port:       "8080",
		LogLevel:   "info",
		LogFormat:  "json",
		Summarizer: "relay",
	}
	cfg.Relay.Timeout = 10 * time.Second
	cfg.LLM.Provider = LLMOpenAI
	cfg.LLM.OpenAIURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o"
	cfg.LLM.GCPLocation = "us-central1"
	cfg.Storage.Backend = StorageMemory
	cfg.Storage.RedisPrefix = "clara:"
	cfg.RateLimit.RPS = 20
	cfg.RateLimit.Burst = 40
	cfg.SideEffectTimeout = 15 * time.Second
	cfg.Console.APIBaseURL = "http://localhost:8080"
	cfg.Console.Recipient = "6138000000"
	cfg.Console.AlertPollInterval = 10 * time.Second
	cfg.Console.MessagePollInterval = 3 * time.Second
	return cfg
}

// Load reads .env (if present), the optional YAML file named by
// CLARA_CONFIG_FILE, then environment overrides, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := Defaults()
	if path := os.Getenv("CLARA_CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = getEnv("CLARA_PORT", getEnv("PORT", cfg.Port))
	cfg.LogLevel = getEnv("CLARA_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("CLARA_LOG_FORMAT", cfg.LogFormat)

	cfg.Relay.BaseURL = strings.TrimRight(getEnv("CLARA_RELAY_URL", cfg.Relay.BaseURL), "/")
	cfg.Relay.APIKey = getEnv("CLARA_RELAY_API_KEY", cfg.Relay.APIKey)
	cfg.Relay.Timeout = getDurationEnv("CLARA_RELAY_TIMEOUT", cfg.Relay.Timeout)
	cfg.Summarizer = getEnv("CLARA_SUMMARIZER", cfg.Summarizer)

	cfg.LLM.Provider = LLMProvider(getEnv("CLARA_LLM_PROVIDER", string(cfg.LLM.Provider)))
	if getBoolEnv("CLARA_USE_MOCK_LLM", false) {
		cfg.LLM.Provider = LLMMock
	}
	cfg.LLM.OpenAIKey = getEnv("OPENAI_API_KEY", cfg.LLM.OpenAIKey)
	cfg.LLM.OpenAIURL = strings.TrimRight(getEnv("CLARA_OPENAI_BASE_URL", cfg.LLM.OpenAIURL), "/")
	cfg.LLM.Model = getEnv("CLARA_MODEL_NAME", cfg.LLM.Model)
	cfg.LLM.GCPProject = getEnv("CLARA_GCP_PROJECT", cfg.LLM.GCPProject)
	cfg.LLM.GCPLocation = getEnv("CLARA_GCP_LOCATION", cfg.LLM.GCPLocation)

	cfg.Storage.Backend = StorageBackend(getEnv("CLARA_STORAGE_BACKEND", string(cfg.Storage.Backend)))
	cfg.Storage.RedisAddr = getEnv("CLARA_REDIS_ADDR", cfg.Storage.RedisAddr)
	cfg.Storage.RedisPassword = getEnv("CLARA_REDIS_PASSWORD", cfg.Storage.RedisPassword)
	cfg.Storage.RedisDB = getIntEnv("CLARA_REDIS_DB", cfg.Storage.RedisDB)
	cfg.Storage.RedisPrefix = getEnv("CLARA_REDIS_PREFIX", cfg.Storage.RedisPrefix)
	cfg.Storage.GCPProject = getEnv("CLARA_GCP_PROJECT", cfg.Storage.GCPProject)

	cfg.RateLimit.RPS = getFloatEnv("CLARA_RATE_LIMIT_RPS", cfg.RateLimit.RPS)
	cfg.RateLimit.Burst = getIntEnv("CLARA_RATE_LIMIT_BURST", cfg.RateLimit.Burst)
	cfg.SideEffectTimeout = getDurationEnv("CLARA_SIDE_EFFECT_TIMEOUT", cfg.SideEffectTimeout)

	cfg.Console.APIBaseURL = strings.TrimRight(getEnv("CLARA_API_URL", cfg.Console.APIBaseURL), "/")
	cfg.Console.Recipient = getEnv("CLARA_RECIPIENT", cfg.Console.Recipient)
	cfg.Console.AlertPollInterval = getDurationEnv("CLARA_ALERT_POLL_INTERVAL", cfg.Console.AlertPollInterval)
	cfg.Console.MessagePollInterval = getDurationEnv("CLARA_MESSAGE_POLL_INTERVAL", cfg.Console.MessagePollInterval)
	cfg.Console.STTCommand = getEnv("CLARA_STT_COMMAND", cfg.Console.STTCommand)
	cfg.Console.LogFile = getEnv("CLARA_CONSOLE_LOG", cfg.Console.LogFile)
}

// Validate reports settings that cannot work together. A missing provider
// key is not an error: /gptchat answers 500 until one is configured.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageRedis:
		if c.Storage.RedisAddr == "" {
			errs = append(errs, errors.New("CLARA_REDIS_ADDR is required for the redis storage backend"))
		}
	case StorageFirestore:
		if c.Storage.GCPProject == "" {
			errs = append(errs, errors.New("CLARA_GCP_PROJECT is required for the firestore storage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}

	switch c.LLM.Provider {
	case LLMOpenAI, LLMMock:
	case LLMVertex:
		if c.LLM.GCPProject == "" || c.LLM.GCPLocation == "" {
			errs = append(errs, errors.New("CLARA_GCP_PROJECT and CLARA_GCP_LOCATION must be set for the vertex provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
	}

	if c.Summarizer != "relay" && c.Summarizer != "llm" {
		errs = append(errs, fmt.Errorf("unknown summarizer %q", c.Summarizer))
	}
	if c.SideEffectTimeout <= 0 {
		errs = append(errs, errors.New("side effect timeout must be positive"))
	}

	return errors.Join(errs...)
}
