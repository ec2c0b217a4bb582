package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// PlaceholderToken is the token value shipped in example configs.
const PlaceholderToken = "YOUR_BOT_TOKEN_HERE"

const defaultSystemPrompt = "You are an assistant with an excellent memory. " +
	"IMPORTANT: carefully remember the information the user shares with you " +
	"and use it in your answers. " +
	"Answer in Russian."

// RelayConfig holds configuration for the relay process.
type RelayConfig struct {
	Platform        string `yaml:"platform"`
	TelegramAPIBase string `yaml:"telegram_api_base"`
	TelegramToken   string `yaml:"telegram_token"`
	PollTimeout     int    `yaml:"poll_timeout_seconds"`
	SleepSeconds    int    `yaml:"sleep_seconds"`
	DropPending     bool   `yaml:"drop_pending"`
	Concurrency     int    `yaml:"concurrency"`

	ModelProvider           string  `yaml:"model_provider"`
	InferenceURL            string  `yaml:"inference_url"`
	InferenceAPIKey         string  `yaml:"inference_api_key"`
	Model                   string  `yaml:"model"`
	Temperature             float64 `yaml:"temperature"`
	InferenceTimeoutSeconds int     `yaml:"inference_timeout_seconds"`
	SystemPrompt            string  `yaml:"system_prompt"`

	DBPath      string `yaml:"db_path"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`

	DummyProviderScript  string `yaml:"dummy_provider_script"`
	DummyCommanderScript string `yaml:"dummy_commander_script"`
	DummySendScript      string `yaml:"dummy_send_script"`
}

// DefaultRelayConfig returns the settings used when nothing is configured:
// a local LM Studio server and no event log or metrics listener.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		Platform:                "telegram",
		TelegramAPIBase:         "https://api.telegram.org",
		PollTimeout:             30,
		SleepSeconds:            1,
		DropPending:             false,
		Concurrency:             8,
		ModelProvider:           "openai",
		InferenceURL:            "http://localhost:1234/v1/chat/completions",
		Model:                   "qwen2.5-1.5b-instruct",
		Temperature:             0.7,
		InferenceTimeoutSeconds: 60,
		SystemPrompt:            defaultSystemPrompt,
		LogLevel:                "info",
		LogFormat:               "console",
		DummyProviderScript:     "ok",
		DummyCommanderScript:    "ok",
		DummySendScript:         "ok",
	}
}

// LoadRelayConfig builds the configuration from defaults, the optional YAML
// file named by RELAY_CONFIG_FILE, and environment variables, in that order
// of increasing precedence.
func LoadRelayConfig() (RelayConfig, error) {
	cfg := DefaultRelayConfig()
	if path := os.Getenv("RELAY_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return RelayConfig{}, err
		}
	}

	cfg.Platform = envOrDefault("RELAY_PLATFORM", cfg.Platform)
	cfg.TelegramAPIBase = envOrDefault("TELEGRAM_API_BASE", cfg.TelegramAPIBase)
	cfg.TelegramToken = envOrDefault("TELEGRAM_BOT_TOKEN", cfg.TelegramToken)
	cfg.PollTimeout = envIntOrDefault("TG_TIMEOUT", cfg.PollTimeout)
	cfg.SleepSeconds = envIntOrDefault("TG_SLEEP_SECONDS", cfg.SleepSeconds)
	cfg.DropPending = envBoolOrDefault("TG_DROP_PENDING", cfg.DropPending)
	cfg.Concurrency = envIntOrDefault("RELAY_CONCURRENCY", cfg.Concurrency)

	cfg.ModelProvider = envOrDefault("RELAY_MODEL_PROVIDER", cfg.ModelProvider)
	cfg.InferenceURL = envOrDefault("LM_STUDIO_API_URL", cfg.InferenceURL)
	cfg.InferenceAPIKey = envOrDefault("LM_STUDIO_API_KEY", cfg.InferenceAPIKey)
	cfg.Model = envOrDefault("LM_STUDIO_MODEL", cfg.Model)
	cfg.Temperature = envFloatOrDefault("LM_STUDIO_TEMPERATURE", cfg.Temperature)
	cfg.InferenceTimeoutSeconds = envIntOrDefault("LM_STUDIO_TIMEOUT_SECONDS", cfg.InferenceTimeoutSeconds)
	cfg.SystemPrompt = envOrDefault("RELAY_SYSTEM_PROMPT", cfg.SystemPrompt)

	cfg.DBPath = envOrDefault("RELAY_DB_PATH", cfg.DBPath)
	cfg.MetricsAddr = envOrDefault("RELAY_METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = envOrDefault("RELAY_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = envOrDefault("RELAY_LOG_FORMAT", cfg.LogFormat)

	cfg.DummyProviderScript = envOrDefault("RELAY_DUMMY_PROVIDER_SCRIPT", cfg.DummyProviderScript)
	cfg.DummyCommanderScript = envOrDefault("RELAY_DUMMY_COMMANDER_SCRIPT", cfg.DummyCommanderScript)
	cfg.DummySendScript = envOrDefault("RELAY_DUMMY_COMMANDER_SEND_SCRIPT", cfg.DummySendScript)

	if err := cfg.Validate(); err != nil {
		return RelayConfig{}, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks that the configuration can start a relay.
func (c RelayConfig) Validate() error {
	switch c.Platform {
	case "telegram":
		token := strings.TrimSpace(c.TelegramToken)
		if token == "" || token == PlaceholderToken {
			return errors.New("TELEGRAM_BOT_TOKEN is required when RELAY_PLATFORM=telegram")
		}
	case "dummy":
	default:
		return errors.Newf("unsupported RELAY_PLATFORM: %s", c.Platform)
	}
	switch c.ModelProvider {
	case "openai", "dummy":
	default:
		return errors.Newf("unsupported RELAY_MODEL_PROVIDER: %s", c.ModelProvider)
	}
	if c.ModelProvider == "openai" && c.InferenceURL == "" {
		return errors.New("LM_STUDIO_API_URL cannot be empty")
	}
	if c.InferenceTimeoutSeconds <= 0 {
		return errors.New("LM_STUDIO_TIMEOUT_SECONDS must be > 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("LM_STUDIO_TEMPERATURE must be within [0, 2]")
	}
	if c.Concurrency <= 0 {
		return errors.New("RELAY_CONCURRENCY must be > 0")
	}
	if c.PollTimeout < 0 {
		return errors.New("TG_TIMEOUT must be >= 0")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return errors.Newf("RELAY_LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// TelegramBotURL returns the Bot API base including the token path segment.
func (c RelayConfig) TelegramBotURL() string {
	return strings.TrimRight(c.TelegramAPIBase, "/") + "/bot" + c.TelegramToken
}

func loadFile(path string, cfg *RelayConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "failed to parse config file %s", path)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func envFloatOrDefault(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBoolOrDefault(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v == "1" || strings.EqualFold(v, "true")
}
