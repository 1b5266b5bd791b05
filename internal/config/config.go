// Package config loads runtime settings from an optional YAML file, a .env file and the environment.
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

// DefaultScriptStyle is handed to the script prompt verbatim.
const DefaultScriptStyle = `Write like a real UK football fan, not a corporate AI.
Use banter, rivalry references and self-deprecating humour.
Reference memes, chants and football culture.
Keep it punchy: these are 15-30 second videos.
Use emojis sparingly and only where they add to the joke.
Avoid bland lines such as "Exciting match results today!" or "The team showed great determination".
Good examples: "Arsenal fans at halftime vs full time", "United fans explaining why THIS is the year".`

type Config struct {
	// Telegram settings
	TelegramToken  string `yaml:"telegram_token"`
	TelegramChatID string `yaml:"telegram_chat_id"`
	StateFilePath  string `yaml:"state_file_path"`

	// Oracle settings
	GeminiAPIKey      string        `yaml:"gemini_api_key"`
	GeminiModel       string        `yaml:"gemini_model"`
	OpenAIAPIKey      string        `yaml:"openai_api_key"`
	OpenAIModel       string        `yaml:"openai_model"`
	MaxGeminiRequests int           `yaml:"max_gemini_requests"` // per day, 0 = unlimited
	MaxOpenAIRequests int           `yaml:"max_openai_requests"` // per day, 0 = unlimited
	OracleTimeout     time.Duration `yaml:"oracle_timeout"`
	OracleCacheTTL    time.Duration `yaml:"oracle_cache_ttl"`
	ScriptStyle       string        `yaml:"script_style"`

	// Trend source
	TwitterAPIKey     string        `yaml:"twitter_api_key"`
	TwitterQueries    []string      `yaml:"twitter_queries"`
	TwitterMaxResults int           `yaml:"twitter_max_results"`
	TwitterQueryDelay time.Duration `yaml:"twitter_query_delay"`
	TwitterMaxAge     time.Duration `yaml:"twitter_max_age"`

	// News source
	RapidAPIKey     string `yaml:"rapidapi_key"`
	NewsMaxResults  int    `yaml:"news_max_results"`
	FeedsConfigPath string `yaml:"feeds_config_path"`

	// Sinks
	GoogleSheetsID           string   `yaml:"google_sheets_id"`
	GoogleServiceAccountFile string   `yaml:"google_service_account_file"`
	DatabaseURL              string   `yaml:"database_url"`
	KafkaBrokers             []string `yaml:"kafka_brokers"`
	KafkaTopic               string   `yaml:"kafka_topic"`

	// Shared oracle cache; empty RedisAddr keeps the cache in process
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// App settings
	Debug             bool          `yaml:"debug"`
	LogLevel          string        `yaml:"log_level"`
	ProducerTimeout   time.Duration `yaml:"producer_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	MonitoringEnabled bool          `yaml:"monitoring_enabled"`
	MonitoringPort    string        `yaml:"monitoring_port"`
}

// Defaults returns a Config populated with built-in values only.
func Defaults() *Config {
	return &Config{
		StateFilePath:            "bot_state.json",
		GeminiModel:              "gemini-1.5-flash",
		OpenAIModel:              "gpt-4o-mini",
		MaxGeminiRequests:        50,
		MaxOpenAIRequests:        50,
		OracleTimeout:            60 * time.Second,
		OracleCacheTTL:           30 * time.Minute,
		ScriptStyle:              DefaultScriptStyle,
		TwitterQueries:           []string{"Premier League news lang:en", "Premier League lang:en", "EPL lang:en"},
		TwitterMaxResults:        40,
		TwitterQueryDelay:        4 * time.Second,
		TwitterMaxAge:            72 * time.Hour,
		NewsMaxResults:           30,
		FeedsConfigPath:          "configs/feeds.yaml",
		GoogleServiceAccountFile: "credentials.json",
		KafkaTopic:               "banterbot.runs",
		LogLevel:                 "info",
		ProducerTimeout:          30 * time.Second,
		RequestTimeout:           30 * time.Second,
		RetryAttempts:            3,
		RetryDelay:               2 * time.Second,
		MonitoringPort:           "8080",
	}
}

// Load builds the Config. Precedence: environment, then the YAML file at path, then defaults.
// A missing .env file is not an error; a missing YAML file is, when path is set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.TelegramToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", getEnvOrDefault("TELEGRAM_TOKEN", c.TelegramToken))
	c.TelegramChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", c.TelegramChatID)
	c.StateFilePath = getEnvOrDefault("STATE_FILE_PATH", c.StateFilePath)

	c.GeminiAPIKey = getEnvOrDefault("GEMINI_API_KEY", c.GeminiAPIKey)
	c.GeminiModel = getEnvOrDefault("GEMINI_MODEL", c.GeminiModel)
	c.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIModel = getEnvOrDefault("OPENAI_MODEL", c.OpenAIModel)
	c.MaxGeminiRequests = getEnvIntOrDefault("MAX_GEMINI_REQUESTS", c.MaxGeminiRequests)
	c.MaxOpenAIRequests = getEnvIntOrDefault("MAX_OPENAI_REQUESTS", c.MaxOpenAIRequests)
	c.OracleTimeout = getEnvSecondsOrDefault("ORACLE_TIMEOUT_SECONDS", c.OracleTimeout)
	if v := getEnvIntOrDefault("ORACLE_CACHE_TTL_MINUTES", -1); v >= 0 {
		c.OracleCacheTTL = time.Duration(v) * time.Minute
	}

	c.TwitterAPIKey = getEnvOrDefault("TWITTER_API_KEY", c.TwitterAPIKey)
	if q := os.Getenv("TWITTER_QUERIES"); q != "" {
		c.TwitterQueries = splitList(q)
	}
	c.TwitterMaxResults = getEnvIntOrDefault("TWITTER_MAX_RESULTS", c.TwitterMaxResults)

	c.RapidAPIKey = getEnvOrDefault("RAPIDAPI_KEY", c.RapidAPIKey)
	c.NewsMaxResults = getEnvIntOrDefault("NEWS_MAX_RESULTS", c.NewsMaxResults)
	c.FeedsConfigPath = getEnvOrDefault("FEEDS_CONFIG_PATH", c.FeedsConfigPath)

	c.GoogleSheetsID = getEnvOrDefault("GOOGLE_SHEETS_ID", c.GoogleSheetsID)
	c.GoogleServiceAccountFile = getEnvOrDefault("GOOGLE_SERVICE_ACCOUNT_FILE", c.GoogleServiceAccountFile)
	c.DatabaseURL = getEnvOrDefault("DATABASE_URL", c.DatabaseURL)
	if b := os.Getenv("KAFKA_BROKERS"); b != "" {
		c.KafkaBrokers = splitList(b)
	}
	c.KafkaTopic = getEnvOrDefault("KAFKA_TOPIC", c.KafkaTopic)
	c.RedisAddr = getEnvOrDefault("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = getEnvIntOrDefault("REDIS_DB", c.RedisDB)

	if os.Getenv("DEBUG") == "true" {
		c.Debug = true
	}
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)
	c.ProducerTimeout = getEnvSecondsOrDefault("PRODUCER_TIMEOUT_SECONDS", c.ProducerTimeout)
	c.RequestTimeout = getEnvSecondsOrDefault("REQUEST_TIMEOUT_SECONDS", c.RequestTimeout)
	c.RetryAttempts = getEnvIntOrDefault("RETRY_ATTEMPTS", c.RetryAttempts)
	if os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		c.MonitoringEnabled = true
	}
	c.MonitoringPort = getEnvOrDefault("MONITORING_PORT", c.MonitoringPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvSecondsOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := getEnvIntOrDefault(key, 0); v > 0 {
		return time.Duration(v) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks what a pipeline run needs. Feeds and sinks are optional.
func (c *Config) Validate() error {
	var errs []error
	if c.GeminiAPIKey == "" && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY or OPENAI_API_KEY is required"))
	}
	if c.ProducerTimeout <= 0 {
		errs = append(errs, errors.New("producer timeout must be positive"))
	}
	if c.RetryAttempts < 1 {
		errs = append(errs, errors.New("RETRY_ATTEMPTS must be at least 1"))
	}
	if strings.TrimSpace(c.ScriptStyle) == "" {
		errs = append(errs, errors.New("script style must not be empty"))
	}
	return errors.Join(errs...)
}

// ValidateBot adds the Telegram requirements of the command loop.
func (c *Config) ValidateBot() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

// MissingSources lists unconfigured optional integrations, for startup logging.
func (c *Config) MissingSources() []string {
	var missing []string
	if c.TwitterAPIKey == "" {
		missing = append(missing, "TWITTER_API_KEY")
	}
	if c.RapidAPIKey == "" {
		missing = append(missing, "RAPIDAPI_KEY")
	}
	if c.GoogleSheetsID == "" {
		missing = append(missing, "GOOGLE_SHEETS_ID")
	}
	if c.TelegramToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	return missing
}
