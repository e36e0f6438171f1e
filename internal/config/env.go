package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	DBPath            string
	Port              string
	SessionSecret     string
	SessionTTL        time.Duration
	CompletionTimeout time.Duration
	LogLevel          string
	AllowedOrigins    []string
}

// LoadConfig reads .env (when present) and the environment. A missing
// OPENAI_API_KEY is an error.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:            getEnv("OPENAI_API_KEY", ""),
		BaseURL:           getEnv("OPENAI_BASE_URL", ""),
		Model:             getEnv("CHAT_MODEL", "gpt-3.5-turbo"),
		DBPath:            getEnv("DB_PATH", "chat_history.db"),
		Port:              getEnv("PORT", "8100"),
		SessionSecret:     getEnv("SESSION_SECRET", ""),
		SessionTTL:        getEnvDuration("SESSION_TTL", 24*time.Hour),
		CompletionTimeout: getEnvDuration("COMPLETION_TIMEOUT", 60*time.Second),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AllowedOrigins:    splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:8100")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return errors.New("OPENAI_API_KEY not found, create a .env file with your key")
	}
	if c.DBPath == "" {
		return errors.New("DB_PATH must not be empty")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return errors.Wrapf(err, "invalid PORT %q", c.Port)
	}
	if c.SessionSecret == "" {
		// tokens from a previous run stop validating after a restart
		c.SessionSecret = uuid.NewString()
	}
	return nil
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
