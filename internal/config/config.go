package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string        `mapstructure:"PORT"`
	Env           string        `mapstructure:"ENV"`
	DatabaseURL   string        `mapstructure:"DATABASE_URL"`
	MigrationsDir string        `mapstructure:"MIGRATIONS_DIR"`
	CasesFile     string        `mapstructure:"CASES_FILE"`
	GradingDelay  time.Duration `mapstructure:"GRADING_DELAY"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	CORSOrigins   []string      `mapstructure:"CORS_ORIGINS"`

	// Remote grader (chat-completions compatible endpoint).
	AIAPIKey  string `mapstructure:"AI_API_KEY"`
	AIBaseURL string `mapstructure:"AI_BASE_URL"`
	AIModel   string `mapstructure:"AI_MODEL"`

	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN"`
	InstructorChatID int64  `mapstructure:"INSTRUCTOR_CHAT_ID"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "MIGRATIONS_DIR", "CASES_FILE",
	"GRADING_DELAY", "SESSION_TTL", "CORS_ORIGINS",
	"AI_API_KEY", "AI_BASE_URL", "AI_MODEL",
	"TELEGRAM_BOT_TOKEN", "INSTRUCTOR_CHAT_ID",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("MIGRATIONS_DIR", "migrations")
	v.SetDefault("GRADING_DELAY", 1500*time.Millisecond)
	v.SetDefault("SESSION_TTL", 2*time.Hour)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("AI_BASE_URL", "https://api.deepseek.com")
	v.SetDefault("AI_MODEL", "deepseek-chat")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// A missing .env is fine; the environment still applies.
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// HasDatabase reports whether patient-backed cases can be served.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// HasRemoteGrader reports whether patient cases are graded by the AI endpoint.
func (c *Config) HasRemoteGrader() bool {
	return c.AIAPIKey != ""
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.GradingDelay < 0 {
		return fmt.Errorf("GRADING_DELAY must not be negative, got %s", c.GradingDelay)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.TelegramBotToken != "" && c.InstructorChatID == 0 {
		return fmt.Errorf("INSTRUCTOR_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	return nil
}
