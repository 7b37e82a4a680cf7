package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

type Config struct {
	Port         string
	DatabaseURL  string
	RedisURL     string
	KafkaBrokers string
	NatsURL      string

	// Daraja provider credentials. Required; the process refuses to start
	// without them so they can never regress into source literals.
	DarajaBaseURL        string
	DarajaConsumerKey    string
	DarajaConsumerSecret string
	DarajaShortcode      string
	DarajaPasskey        string
	DarajaCallbackURL    string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                 envOr("PORT", "8084"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RedisURL:             envOr("REDIS_URL", "localhost:6379"),
		KafkaBrokers:         envOr("KAFKA_BROKERS", "localhost:9092"),
		NatsURL:              envOr("NATS_URL", "nats://localhost:4222"),
		DarajaBaseURL:        envOr("DARAJA_BASE_URL", "https://sandbox.safaricom.co.ke"),
		DarajaConsumerKey:    os.Getenv("DARAJA_CONSUMER_KEY"),
		DarajaConsumerSecret: os.Getenv("DARAJA_CONSUMER_SECRET"),
		DarajaShortcode:      os.Getenv("DARAJA_SHORTCODE"),
		DarajaPasskey:        os.Getenv("DARAJA_PASSKEY"),
		DarajaCallbackURL:    os.Getenv("DARAJA_CALLBACK_URL"),
	}

	var missing []string
	for name, val := range map[string]string{
		"DATABASE_URL":           cfg.DatabaseURL,
		"DARAJA_CONSUMER_KEY":    cfg.DarajaConsumerKey,
		"DARAJA_CONSUMER_SECRET": cfg.DarajaConsumerSecret,
		"DARAJA_SHORTCODE":       cfg.DarajaShortcode,
		"DARAJA_PASSKEY":         cfg.DarajaPasskey,
		"DARAJA_CALLBACK_URL":    cfg.DarajaCallbackURL,
	} {
		if val == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
