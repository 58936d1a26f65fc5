package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultDeactivationPhrases are the message fragments the backend uses when an
// account has been switched off. Matching is case-insensitive.
var DefaultDeactivationPhrases = []string{
	"desactivado",
	"desactivada",
	"deactivated",
	"account disabled",
}

// Config holds application configuration
type Config struct {
	Env      string
	LogLevel string

	// Backend REST API
	APIBaseURL          string
	RequestTimeout      time.Duration
	DeactivationPhrases []string

	// Session persistence
	SessionBackend string // "memory" or "redis"
	SessionKey     string
	SessionTTL     time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool

	// CLI credentials
	Username string
	Password string

	// Sandbox backend
	SandboxPort      string
	SandboxJWTSecret string
	SandboxTokenTTL  time.Duration
	SandboxSeed      int
	SandboxClinics   int
	SandboxCustomers int
	SandboxOpenHour  int
	SandboxCloseHour int
	SandboxEnvelope  string
	MetricsEnabled   bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is honoured when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		APIBaseURL:          strings.TrimRight(getEnv("VET_API_BASE_URL", "http://localhost:8080/api"), "/"),
		RequestTimeout:      getEnvAsDuration("VET_API_TIMEOUT", 15*time.Second),
		DeactivationPhrases: getEnvAsList("VET_DEACTIVATION_PHRASES", DefaultDeactivationPhrases),

		SessionBackend: strings.ToLower(strings.TrimSpace(getEnv("SESSION_BACKEND", "memory"))),
		SessionKey:     getEnv("SESSION_KEY", "vetclinic:session"),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 0),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),

		Username: getEnv("VET_USERNAME", ""),
		Password: getEnv("VET_PASSWORD", ""),

		SandboxPort:      getEnv("SANDBOX_PORT", "8080"),
		SandboxJWTSecret: getEnv("SANDBOX_JWT_SECRET", "sandbox-secret"),
		SandboxTokenTTL:  getEnvAsDuration("SANDBOX_TOKEN_TTL", 8*time.Hour),
		SandboxSeed:      getEnvAsInt("SANDBOX_SEED", 42),
		SandboxClinics:   getEnvAsInt("SANDBOX_CLINICS", 3),
		SandboxCustomers: getEnvAsInt("SANDBOX_CUSTOMERS", 10),
		SandboxOpenHour:  getEnvAsInt("SANDBOX_OPEN_HOUR", 8),
		SandboxCloseHour: getEnvAsInt("SANDBOX_CLOSE_HOUR", 17),
		SandboxEnvelope:  strings.ToLower(getEnv("SANDBOX_ENVELOPE", "data")),
		MetricsEnabled:   getEnvAsBool("METRICS_ENABLED", true),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if strings.TrimSpace(valueStr) == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return append([]string(nil), defaultValue...)
	}
	return out
}
