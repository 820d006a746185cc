package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the voice gateway configuration.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string

	// Private API (tenant config, calls, contacts, callbacks).
	PrivateAPIURL     string
	PrivateAPITimeout time.Duration

	// Realtime conversational engine.
	OpenAIAPIKey         string
	RealtimeModel        string
	CallbackModel        string
	DefaultVoice         string
	DefaultTemperature   float64
	MaxOutputTokens      int
	VADThreshold         float64
	VADPrefixPaddingMs   int
	VADSilenceDurationMs int

	// Transfer destinations consulted when tenant config is absent.
	AgentNumber   string
	SalesNumber   string
	SupportNumber string
	BillingNumber string
	TransferTrunk string
	CallerID      string

	// Transfer orchestration timing.
	TransferSettleDelay time.Duration
	PreDialPauseSecs    int

	// Session housekeeping.
	IdleTimeout       time.Duration
	KeepAliveInterval time.Duration

	// Redis live-call state store.
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:          getEnv("WS_PORT", "3000"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOGLEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		PrivateAPIURL:     getEnv("PRIVATE_API_URL", "http://private-api:3000"),
		PrivateAPITimeout: getEnvAsDuration("PRIVATE_API_TIMEOUT", 10*time.Second),

		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		RealtimeModel:        getEnv("REALTIME_MODEL", "gpt-realtime"),
		CallbackModel:        getEnv("CALLBACK_MODEL", "gpt-4o-realtime-preview-2025-06-03"),
		DefaultVoice:         getEnv("DEFAULT_VOICE", "alloy"),
		DefaultTemperature:   getEnvAsFloat("DEFAULT_TEMPERATURE", 0.8),
		MaxOutputTokens:      getEnvAsInt("MAX_OUTPUT_TOKENS", 4096),
		VADThreshold:         getEnvAsFloat("VAD_THRESHOLD", 0.8),
		VADPrefixPaddingMs:   getEnvAsInt("VAD_PREFIX_PADDING_MS", 600),
		VADSilenceDurationMs: getEnvAsInt("VAD_SILENCE_DURATION_MS", 1100),

		AgentNumber:   getEnv("AGENT_NUMBER", "8811001"),
		SalesNumber:   getEnv("SALES_NUMBER", ""),
		SupportNumber: getEnv("SUPPORT_NUMBER", ""),
		BillingNumber: getEnv("BILLING_NUMBER", ""),
		TransferTrunk: getEnv("TRANSFER_TRUNK", ""),
		CallerID:      getEnv("CALLER_ID", ""),

		TransferSettleDelay: getEnvAsDuration("TRANSFER_SETTLE_DELAY", 5*time.Second),
		PreDialPauseSecs:    getEnvAsInt("PRE_DIAL_PAUSE_SECS", 1),

		IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 5*time.Minute),
		KeepAliveInterval: getEnvAsDuration("KEEPALIVE_INTERVAL", 25*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
	}
}

// DepartmentNumber returns the environment-configured transfer destination
// for a department, falling back to the generic agent number.
func (c *Config) DepartmentNumber(department string) string {
	var number string
	switch department {
	case "sales":
		number = c.SalesNumber
	case "support", "technical":
		number = c.SupportNumber
	case "billing":
		number = c.BillingNumber
	}
	if number == "" {
		number = c.AgentNumber
	}
	return number
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
