package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string

	ServerHost    string
	ServerPort    string
	JWTSigningKey string
	LogLevel      string

	OpenAIKey          string
	OpenAIBaseURL      string
	DefaultModel       string
	DefaultTemperature float64
	DefaultPrompt      string
	DefaultMaxTokens   int
	ReplyLanguage      string
	CompletionTimeout  time.Duration

	HistoryLimit int

	CoordinatorPromptID int64
	ProductsPromptID    int64
	OrdersPromptID      int64
	LogisticPromptID    int64
	AppointmentPromptID int64

	QueryEndpoint string
	QueryToken    string

	UsagePricePerTurn string

	WebhookEnabled        bool
	WebhookVerifyToken    string
	WebhookPromptID       int64
	WebhookUserID         int64
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppAPIURL        string

	TelegramToken      string
	TelegramWebhookURL string

	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Warn(".env file not found, using process environment")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "postgres"),
		PostgresDB:       getEnv("POSTGRES_DB", "chatengine"),

		ServerHost:    getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:    getEnv("SERVER_PORT", "8080"),
		JWTSigningKey: getEnv("JWT_SIGNING_KEY", "your-secret-signing-key"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		OpenAIKey:          getEnv("OPENAI_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", ""),
		DefaultModel:       getEnv("DEFAULT_MODEL", "gpt-4.1"),
		DefaultTemperature: getEnvFloat("DEFAULT_TEMPERATURE", 0.2),
		DefaultPrompt: getEnv("DEFAULT_PROMPT",
			"You are a helpful assistant for a retail business. Answer briefly and politely."),
		DefaultMaxTokens:  getEnvInt("DEFAULT_MAX_TOKENS", 1024),
		ReplyLanguage:     getEnv("REPLY_LANGUAGE", "English"),
		CompletionTimeout: getEnvDuration("COMPLETION_TIMEOUT", 30*time.Second),

		HistoryLimit: getEnvInt("HISTORY_LIMIT", 100),

		CoordinatorPromptID: getEnvInt64("COORDINATOR_PROMPT_ID", 0),
		ProductsPromptID:    getEnvInt64("PRODUCTS_PROMPT_ID", 0),
		OrdersPromptID:      getEnvInt64("ORDERS_PROMPT_ID", 0),
		LogisticPromptID:    getEnvInt64("LOGISTIC_PROMPT_ID", 0),
		AppointmentPromptID: getEnvInt64("APPOINTMENT_PROMPT_ID", 0),

		QueryEndpoint: getEnv("QUERY_ENDPOINT", ""),
		QueryToken:    getEnv("QUERY_TOKEN", ""),

		UsagePricePerTurn: getEnv("USAGE_PRICE_PER_TURN", "0.2"),

		WebhookEnabled:        getEnvBool("WEBHOOK_ENABLED", true),
		WebhookVerifyToken:    getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		WebhookPromptID:       getEnvInt64("WEBHOOK_PROMPT_ID", 1),
		WebhookUserID:         getEnvInt64("WEBHOOK_USER_ID", 0),
		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAPIURL:        getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v18.0"),

		TelegramToken:      getEnv("TELEGRAM_TOKEN", ""),
		TelegramWebhookURL: getEnv("TELEGRAM_WEBHOOK_URL", ""),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", 10),
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvInt64(key string, defaultValue int64) int64 {
	n, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return d
}
