package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFirestore = "firestore"
	StoreSQLite    = "sqlite"

	BusMemory = "memory"
	BusNATS   = "nats"
	BusValkey = "valkey"

	ScopeListing = "listing"
	ScopePair    = "pair"

	EnvironmentDevelopment = "development"

	// DefaultJWTSecret is only acceptable for local development.
	DefaultJWTSecret = "your-secret-key"
)

type Config struct {
	ServerPort     string
	Environment    string
	AllowedOrigins []string

	FirebaseProject            string
	FirebaseServiceAccountPath string
	FirebaseServiceAccountJSON string
	JWTSecret                  string
	JWTExpiry                  int64

	StoreBackend string
	SQLitePath   string
	StoreTimeout time.Duration

	BusBackend          string
	NatsURL             string
	NatsStream          string
	NatsSubjectPrefix   string
	ValkeyAddr          string
	ValkeyChannelPrefix string
	SubscriptionBuffer  int

	// ConversationScope decides whether a conversation is identified by
	// (buyer, seller, listing) or by the participant pair alone.
	ConversationScope string
}

func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", EnvironmentDevelopment),
		AllowedOrigins: getEnvAsList("WS_ALLOWED_ORIGINS"),

		FirebaseProject:            getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseServiceAccountPath: getEnv("FIREBASE_SERVICE_ACCOUNT_PATH", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		JWTSecret:                  getEnv("JWT_SECRET", DefaultJWTSecret),
		JWTExpiry:                  getEnvAsInt64("JWT_EXPIRY", 24*60*60), // 24 hours

		StoreBackend: getEnv("STORE_BACKEND", StoreSQLite),
		SQLitePath:   getEnv("SQLITE_PATH", "campusmarket.db"),
		StoreTimeout: getEnvAsDuration("STORE_TIMEOUT", 10*time.Second),

		BusBackend:          getEnv("BUS_BACKEND", BusMemory),
		NatsURL:             getEnv("NATS_URL", "nats://127.0.0.1:4222"),
		NatsStream:          getEnv("NATS_STREAM", "CHAT_MESSAGES"),
		NatsSubjectPrefix:   getEnv("NATS_SUBJECT_PREFIX", "chat.messages"),
		ValkeyAddr:          getEnv("VALKEY_ADDR", "127.0.0.1:6379"),
		ValkeyChannelPrefix: getEnv("VALKEY_CHANNEL_PREFIX", "chat:messages"),
		SubscriptionBuffer:  int(getEnvAsInt64("SUBSCRIPTION_BUFFER", 256)),

		ConversationScope: getEnv("CONVERSATION_SCOPE", ScopeListing),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	// Without Firebase every request is authenticated with JWT_SECRET.
	if c.FirebaseProject == "" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when FIREBASE_PROJECT_ID is not set")
		}
		if c.JWTSecret == DefaultJWTSecret && c.Environment != EnvironmentDevelopment {
			return fmt.Errorf("JWT_SECRET must be changed from the default outside %s", EnvironmentDevelopment)
		}
	}

	switch c.StoreBackend {
	case StoreFirestore:
		if c.FirebaseProject == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required when STORE_BACKEND=%s", StoreFirestore)
		}
	case StoreSQLite:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.BusBackend {
	case BusMemory, BusNATS, BusValkey:
	default:
		return fmt.Errorf("unknown BUS_BACKEND %q", c.BusBackend)
	}

	if c.ConversationScope != ScopeListing && c.ConversationScope != ScopePair {
		return fmt.Errorf("CONVERSATION_SCOPE must be %q or %q", ScopeListing, ScopePair)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.SubscriptionBuffer <= 0 {
		return fmt.Errorf("SUBSCRIPTION_BUFFER must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var values []string
	for _, value := range strings.Split(os.Getenv(key), ",") {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}
	return values
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
