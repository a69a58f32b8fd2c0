// Package config loads runtime configuration from the environment (with an
// optional .env file) and an optional YAML override file for the static
// provider-cap and quota-tier tables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable the probe engine and orchestrator need.
type Config struct {
	OmkarURL    string
	OmkarAPIKey string

	DNSTimeout time.Duration
	DNSLife    time.Duration
	SMTPTimeout time.Duration

	HeloDomain string
	MailFrom   string

	MaxWorkers int
	ProbePause time.Duration

	RedisHost string
	RedisPort string
	RedisDB   int

	IPPool           []string
	ProxyConcurrency int
	SMTPProxyEnabled bool

	BreakerThreshold int
	BreakerCooldown  time.Duration

	ProviderCaps map[string]int
	QuotaTiers   map[string]TierLimits
}

// TierLimits is the per-tier quota pair.
type TierLimits struct {
	PerCustomerHour int `yaml:"per_customer_hour"`
	GlobalHour      int `yaml:"global_hour"`
}

// yamlOverrides is the shape of the optional config.yaml file.
type yamlOverrides struct {
	ProviderCaps map[string]int        `yaml:"provider_caps"`
	QuotaTiers   map[string]TierLimits `yaml:"quota_tiers"`
}

func defaultProviderCaps() map[string]int {
	return map[string]int{
		"gmail.com":      70,
		"googlemail.com": 70,
		"yahoo.com":      65,
		"aol.com":        65,
		"outlook.com":    75,
		"hotmail.com":    75,
		"live.com":       75,
		"microsoft.com":  85,
		"apple.com":      85,
		"default":        85,
	}
}

func defaultQuotaTiers() map[string]TierLimits {
	return map[string]TierLimits{
		"default":   {PerCustomerHour: 500, GlobalHour: 5000},
		"high_tier": {PerCustomerHour: 5000, GlobalHour: 50000},
	}
}

// Load reads .env (if present), environment variables, and an optional
// YAML override file into a Config. Missing .env or YAML files are not
// errors — the documented defaults apply.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("⚠️  no .env file found, using process environment: %v\n", err)
	}

	cfg := &Config{
		OmkarURL:    getEnv("OMKAR_URL", "https://email-verification-api.omkar.cloud/verify"),
		OmkarAPIKey: getEnv("OMKAR_API_KEY", ""),

		DNSTimeout:  getEnvSeconds("DNS_TIMEOUT", 3),
		DNSLife:     getEnvSeconds("DNS_LIFETIME", 5),
		SMTPTimeout: getEnvSeconds("SMTP_TIMEOUT", 15),

		HeloDomain: getEnv("HELO_DOMAIN", "mta1.mailvetter.com"),
		MailFrom:   getEnv("MAIL_FROM", "verify@mailvetter.com"),

		MaxWorkers: getEnvInt("MAX_WORKERS", 24),
		ProbePause: getEnvSeconds("PROBE_PAUSE", 0.08),

		RedisHost: getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort: getEnv("REDIS_PORT", "6379"),
		RedisDB:   getEnvInt("REDIS_DB", 0),

		IPPool:           splitNonEmpty(getEnv("IP_POOL", "")),
		ProxyConcurrency: getEnvInt("PROXY_CONCURRENCY", 0),
		SMTPProxyEnabled: getEnvBool("SMTP_PROXY_ENABLED", false),

		BreakerThreshold: 3,
		BreakerCooldown:  300 * time.Second,

		ProviderCaps: defaultProviderCaps(),
		QuotaTiers:   defaultQuotaTiers(),
	}

	yamlPath := getEnv("MAILVETTER_CONFIG_PATH", "./config.yaml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		var ov yamlOverrides
		if err := yaml.Unmarshal(data, &ov); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", yamlPath, err)
		}
		for k, v := range ov.ProviderCaps {
			cfg.ProviderCaps[strings.ToLower(k)] = v
		}
		for k, v := range ov.QuotaTiers {
			cfg.QuotaTiers[k] = v
		}
	}

	return cfg, nil
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvSeconds(key string, defSeconds float64) time.Duration {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(f * float64(time.Second))
		}
	}
	return time.Duration(defSeconds * float64(time.Second))
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
