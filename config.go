package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all environment-derived tunables for the relay, per the
// configuration table in the specification. Every field has a documented
// default and is safe to leave unset.
type Config struct {
	Port string

	MinQuorum          int
	FetchTimeout       time.Duration
	FetchRetries       int
	CacheTTL           time.Duration
	MaxRequestMaxAge   time.Duration
	MaxEventBytes      int
	MaxStoredEvents    int
	RateIPRPS          float64
	RatePubkeyRPS      float64
	RateBurst          int
	RelayPrivkeyHex    string
	RelayPubkeyHex     string
	LogLevel           string
	LogFile            string
}

// LoadConfig loads a .env file if present (ignored if missing, matching
// yetaxyz-oracle/api/server.go's godotenv.Load usage) and then builds a
// Config from the process environment, falling back to spec defaults.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Port:             envOr("PORT", "8090"),
		MinQuorum:        envInt("MIN_QUORUM", 3),
		FetchTimeout:     envMillis("FETCH_TIMEOUT_MS", 2500),
		FetchRetries:     envInt("FETCH_RETRIES", 1),
		CacheTTL:         envMillis("CACHE_TTL_MS", 2000),
		MaxRequestMaxAge: envMillis("MAX_REQUEST_MAXAGE_MS", 60000),
		MaxEventBytes:    envInt("MAX_EVENT_BYTES", 64000),
		MaxStoredEvents:  envInt("MAX_STORED_EVENTS", 10000),
		RateIPRPS:        envFloat("RATE_IP_RPS", 3),
		RatePubkeyRPS:    envFloat("RATE_PUBKEY_RPS", 2),
		RateBurst:        envInt("RATE_BURST", 10),
		RelayPrivkeyHex:  strings.TrimSpace(os.Getenv("RELAY_PRIVKEY_HEX")),
		RelayPubkeyHex:   strings.TrimSpace(os.Getenv("RELAY_PUBKEY_HEX")),
		LogLevel:         envOr("LOG_LEVEL", "info"),
		LogFile:          os.Getenv("LOG_FILE"),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envMillis(key string, defMs int) time.Duration {
	return time.Duration(envInt(key, defMs)) * time.Millisecond
}
