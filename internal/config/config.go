package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	LogLevel    string
	APIToken    string

	// Optional collaborators. Empty values switch the feature off.
	RedisURL    string
	CacheTTL    time.Duration
	ChainRPCURL string
	ChainKey    string

	WeightsFile string
	Issuer      string
}

func Load() Config {
	return Config{
		Port:        envInt("VOUCH_PORT", 8760),
		NatsURL:     envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIToken:    envStr("VOUCH_API_TOKEN", ""),
		RedisURL:    envStr("REDIS_URL", ""),
		CacheTTL:    time.Duration(envInt("VOUCH_CACHE_TTL_SECONDS", 300)) * time.Second,
		ChainRPCURL: envStr("CHAIN_RPC_URL", ""),
		ChainKey:    envStr("CHAIN_KEY_FILE", "data/vouch.key"),
		WeightsFile: envStr("VOUCH_WEIGHTS_FILE", ""),
		Issuer:      envStr("VOUCH_ISSUER", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
