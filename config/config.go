package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "speaktoheaven"
	configType = "yaml"

	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderEcho       = "echo"
)

type Config struct {
	Port          string
	DatabaseURL   string
	StorageDriver string
	LogMode       string

	JWTSecret      string
	OperatorAPIKey string

	FreeQuota          int
	HistoryLimit       int
	SignupBonusCredits int

	Completion CompletionConfig
	Stripe     StripeConfig
	Alerts     AlertsConfig

	RedisAddr    string
	RedisChannel string

	PersonasFile   string
	EventRetention time.Duration
	FrontendURL    string
}

type CompletionConfig struct {
	Provider          string
	OpenRouterAPIKey  string
	OpenRouterBaseURL string
	GeminiAPIKey      string
	Model             string
	Temperature       float64
	MaxTokens         int
	Timeout           time.Duration
}

type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	PriceSubscription string
	PriceCredits      string
	CreditsPerPack    int
	PriceLifetime     string
}

type AlertsConfig struct {
	SendgridAPIKey string
	FromEmail      string
	AlertEmail     string
	SlackWebhook   string
}

// Load reads defaults, an optional speaktoheaven.yaml and the environment, in
// increasing priority. It does not validate; commands call Validate for what
// they need.
func Load() (Config, error) {
	return LoadWith(viper.New())
}

func LoadWith(v *viper.Viper) (Config, error) {
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/speaktoheaven")
	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Port:          v.GetString("PORT"),
		DatabaseURL:   v.GetString("DATABASE_URL"),
		StorageDriver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LogMode:       v.GetString("LOG_MODE"),

		JWTSecret:      v.GetString("JWT_SECRET"),
		OperatorAPIKey: v.GetString("OPERATOR_API_KEY"),

		FreeQuota:          v.GetInt("FREE_QUOTA"),
		HistoryLimit:       v.GetInt("HISTORY_LIMIT"),
		SignupBonusCredits: v.GetInt("SIGNUP_BONUS_CREDITS"),

		Completion: CompletionConfig{
			Provider:          strings.ToLower(v.GetString("COMPLETION_PROVIDER")),
			OpenRouterAPIKey:  v.GetString("OPENROUTER_API_KEY"),
			OpenRouterBaseURL: v.GetString("OPENROUTER_BASE_URL"),
			GeminiAPIKey:      v.GetString("GEMINI_API_KEY"),
			Model:             v.GetString("COMPLETION_MODEL"),
			Temperature:       v.GetFloat64("COMPLETION_TEMPERATURE"),
			MaxTokens:         v.GetInt("COMPLETION_MAX_TOKENS"),
			Timeout:           v.GetDuration("COMPLETION_TIMEOUT"),
		},
		Stripe: StripeConfig{
			SecretKey:         v.GetString("STRIPE_SECRET_KEY"),
			WebhookSecret:     v.GetString("STRIPE_WEBHOOK_SECRET"),
			PriceSubscription: v.GetString("STRIPE_PRICE_SUBSCRIPTION"),
			PriceCredits:      v.GetString("STRIPE_PRICE_CREDITS"),
			CreditsPerPack:    v.GetInt("STRIPE_CREDITS_PER_PACK"),
			PriceLifetime:     v.GetString("STRIPE_PRICE_LIFETIME"),
		},
		Alerts: AlertsConfig{
			SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
			FromEmail:      v.GetString("SENDGRID_FROM_EMAIL"),
			AlertEmail:     v.GetString("ALERT_EMAIL"),
			SlackWebhook:   v.GetString("SLACK_WEBHOOK_URL"),
		},

		RedisAddr:    v.GetString("REDIS_ADDR"),
		RedisChannel: v.GetString("REDIS_CHANNEL"),

		PersonasFile:   v.GetString("PERSONAS_FILE"),
		EventRetention: v.GetDuration("EVENT_RETENTION"),
		FrontendURL:    v.GetString("FRONTEND_URL"),
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("STORAGE_DRIVER", StoragePostgres)
	v.SetDefault("LOG_MODE", "prod")
	v.SetDefault("FREE_QUOTA", 5)
	v.SetDefault("HISTORY_LIMIT", 20)
	v.SetDefault("SIGNUP_BONUS_CREDITS", 10)
	v.SetDefault("COMPLETION_PROVIDER", ProviderOpenRouter)
	v.SetDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1")
	v.SetDefault("COMPLETION_MODEL", "openai/gpt-4.1-mini")
	v.SetDefault("COMPLETION_TEMPERATURE", 0.85)
	v.SetDefault("COMPLETION_MAX_TOKENS", 250)
	v.SetDefault("COMPLETION_TIMEOUT", "30s")
	v.SetDefault("STRIPE_CREDITS_PER_PACK", 10)
	v.SetDefault("REDIS_CHANNEL", "conversation-events")
	v.SetDefault("EVENT_RETENTION", "720h")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("SENDGRID_FROM_EMAIL", "noreply@speaktoheaven.app")
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL must be set when STORAGE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	switch c.Completion.Provider {
	case ProviderOpenRouter:
		if c.Completion.OpenRouterAPIKey == "" {
			return errors.New("OPENROUTER_API_KEY must be set when COMPLETION_PROVIDER=openrouter")
		}
	case ProviderGemini:
		if c.Completion.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY must be set when COMPLETION_PROVIDER=gemini")
		}
	case ProviderEcho:
	default:
		return fmt.Errorf("unknown COMPLETION_PROVIDER %q", c.Completion.Provider)
	}
	if c.FreeQuota < 0 {
		return fmt.Errorf("FREE_QUOTA must not be negative, got %d", c.FreeQuota)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be positive")
	}
	return nil
}
