package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"voyage-payment-api/database"
	"voyage-payment-api/security"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Server    ServerConfig
	Payment   PaymentConfig
	ThreeDS   ThreeDSConfig
	RateLimit RateLimitConfig
	Store     StoreConfig
	AuthNet   AuthNetConfig
	BINLookup BINLookupConfig
	Database  database.DatabaseConfig
	Redis     RedisConfig
}

type ServerConfig struct {
	Port           string
	LogLevel       string
	AllowedOrigin  string
	// TrustedProxies are IPs or CIDRs whose forwarding headers are believed.
	TrustedProxies []string
}

// ProxyPrefixes parses TrustedProxies. A bare IP stands for itself.
func (s ServerConfig) ProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(s.TrustedProxies))
	for _, entry := range s.TrustedProxies {
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

type PaymentConfig struct {
	TokenTTL time.Duration
}

type ThreeDSConfig struct {
	SessionTTL time.Duration
	AcsURL     string
	Supported  bool
	// RequiredAbove is only consulted by the offline BIN lookup.
	RequiredAbove decimal.Decimal
}

type RateLimitConfig struct {
	Window      time.Duration
	MaxAttempts int
}

type StoreConfig struct {
	Backend       string
	MaxEntries    int
	SweepInterval time.Duration
}

type AuthNetConfig struct {
	APILoginID     string
	TransactionKey string
	Environment    string
	Endpoint       string
}

type BINLookupConfig struct {
	URL     string
	Timeout time.Duration
}

type RedisConfig struct {
	URL               string
	WorkerConcurrency int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", slog.String("error", err.Error()))
	}

	return &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigin:  getEnv("CORS_ALLOWED_ORIGIN", "*"),
			TrustedProxies: getList("TRUSTED_PROXIES"),
		},
		Payment: PaymentConfig{
			TokenTTL: getDuration("TOKEN_TTL", time.Hour),
		},
		ThreeDS: ThreeDSConfig{
			SessionTTL:    getDuration("THREEDS_SESSION_TTL", 10*time.Minute),
			AcsURL:        os.Getenv("THREEDS_ACS_URL"),
			Supported:     getBool("THREEDS_SUPPORTED", true),
			RequiredAbove: getDecimal("THREEDS_REQUIRED_ABOVE"),
		},
		RateLimit: RateLimitConfig{
			Window:      getDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			MaxAttempts: getInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
		},
		Store: StoreConfig{
			Backend:       strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
			MaxEntries:    getInt("STORE_MAX_ENTRIES", 10000),
			SweepInterval: getDuration("STORE_SWEEP_INTERVAL", 0),
		},
		AuthNet: AuthNetConfig{
			APILoginID:     os.Getenv("AUTHNET_API_LOGIN_ID"),
			TransactionKey: os.Getenv("AUTHNET_TRANSACTION_KEY"),
			Environment:    getEnv("AUTHNET_ENVIRONMENT", "sandbox"),
			Endpoint:       os.Getenv("AUTHNET_ENDPOINT"),
		},
		BINLookup: BINLookupConfig{
			URL:     os.Getenv("BINLOOKUP_URL"),
			Timeout: getDuration("BINLOOKUP_TIMEOUT", 5*time.Second),
		},
		Database: database.DatabaseConfig{
			Host:     os.Getenv("DB_HOST"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			DBName:   os.Getenv("DB_NAME"),
		},
		Redis: RedisConfig{
			URL:               os.Getenv("REDIS_URL"),
			WorkerConcurrency: getInt("WORKER_CONCURRENCY", 2),
		},
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("STORE_BACKEND=redis requires REDIS_URL"))
		}
	default:
		errs = append(errs, errors.New("STORE_BACKEND must be memory or redis"))
	}
	if _, err := c.Server.ProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}
	if c.AuthNet.APILoginID == "" || c.AuthNet.TransactionKey == "" {
		errs = append(errs, errors.New("AUTHNET_API_LOGIN_ID and AUTHNET_TRANSACTION_KEY are required"))
	}
	return errors.Join(errs...)
}

// LedgerEnabled reports whether both the queue and the database are set.
func (c *Config) LedgerEnabled() bool {
	return c.Redis.URL != "" && c.Database.Host != ""
}

// Summary is the config as it may appear in logs.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"port":                 c.Server.Port,
		"logLevel":             c.Server.LogLevel,
		"trustedProxies":       c.Server.TrustedProxies,
		"tokenTtl":             c.Payment.TokenTTL.String(),
		"threeDSSessionTtl":    c.ThreeDS.SessionTTL.String(),
		"threeDSSupported":     c.ThreeDS.Supported,
		"threeDSRequiredAbove": c.ThreeDS.RequiredAbove.String(),
		"rateLimitWindow":      c.RateLimit.Window.String(),
		"rateLimitMax":         c.RateLimit.MaxAttempts,
		"storeBackend":         c.Store.Backend,
		"storeMaxEntries":      c.Store.MaxEntries,
		"authnetEnvironment":   c.AuthNet.Environment,
		"authnetLoginId":       security.MaskSensitiveData(c.AuthNet.APILoginID, security.MaskToken),
		"authnetKeySet":        c.AuthNet.TransactionKey != "",
		"binLookupUrl":         c.BINLookup.URL,
		"dbHost":               c.Database.Host,
		"dbName":               c.Database.DBName,
		"redisConfigured":      c.Redis.URL != "",
		"workerConcurrency":    c.Redis.WorkerConcurrency,
	}
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		slog.Warn("invalid duration, using default", slog.String("key", key), slog.String("default", fallback.String()))
		return fallback
	}
	return d
}

func getInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		slog.Warn("invalid integer, using default", slog.String("key", key), slog.Int("default", fallback))
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid boolean, using default", slog.String("key", key), slog.Bool("default", fallback))
		return fallback
	}
	return b
}

// getDecimal returns zero when key is unset or malformed.
func getDecimal(key string) decimal.Decimal {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		slog.Warn("invalid amount, ignoring", slog.String("key", key))
		return decimal.Zero
	}
	return d
}
