package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/revaspay/mpesa-relay/internal/mpesa"
	"github.com/revaspay/mpesa-relay/internal/secrets"
)

// Runtime modes
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Mpesa       MpesaConfig
	Merchant    MerchantConfig
	Security    SecurityConfig
	FrontendURL string
	Environment string

	dopplerClient   *secrets.DopplerClient
	dopplerInitOnce sync.Once
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	ReadTimeout    int
	WriteTimeout   int
	TrustedProxies []string
}

// DatabaseConfig holds database configuration. An empty URL keeps transactions
// in memory.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MaxIdle  int
}

// RedisConfig holds Redis configuration. An empty URL disables the idempotency
// cache and the merchant forwarding queue.
type RedisConfig struct {
	URL string
}

// MpesaConfig holds Daraja API configuration
type MpesaConfig struct {
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	CallbackBaseURL string
	Environment     string // sandbox or production
	BaseURL         string
	AllowedIPs      []string
	RequestTimeout  time.Duration
	RefreshInterval time.Duration
}

// MerchantConfig holds the merchant backend that confirmed transactions are
// forwarded to
type MerchantConfig struct {
	CallbackURL   string
	SigningSecret string
	Workers       int
}

// LoadConfig creates a new Config instance with values from environment variables.
// It loads a .env file first, then resolves credentials from Doppler if available.
func LoadConfig() *Config {
	_ = godotenv.Load()

	mpesaEnv := getEnv("MPESA_ENV", "sandbox")
	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "3000"),
			ReadTimeout:    getEnvInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout:   getEnvInt("SERVER_WRITE_TIMEOUT", 10),
			TrustedProxies: getEnvList("TRUSTED_PROXIES"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt("DATABASE_MAX_CONNS", 20),
			MaxIdle:  getEnvInt("DATABASE_MAX_IDLE", 5),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		Mpesa: MpesaConfig{
			CallbackBaseURL: getEnv("MPESA_CALLBACK_BASE_URL", ""),
			Environment:     mpesaEnv,
			BaseURL:         getEnv("MPESA_BASE_URL", mpesa.BaseURLFor(mpesaEnv)),
			AllowedIPs:      getEnvList("MPESA_ALLOWED_IPS"),
			RequestTimeout:  time.Duration(getEnvInt("MPESA_REQUEST_TIMEOUT", 10)) * time.Second,
			RefreshInterval: time.Duration(getEnvInt("MPESA_TOKEN_REFRESH_INTERVAL", 50)) * time.Minute,
		},
		Merchant: MerchantConfig{
			CallbackURL: getEnv("MERCHANT_CALLBACK_URL", ""),
			Workers:     getEnvInt("MERCHANT_FORWARD_WORKERS", 4),
		},
		Security:    DefaultSecurityConfig(),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		Environment: getEnv("ENVIRONMENT", EnvDevelopment),

		dopplerClient: secrets.NewDopplerClient(
			getEnv("DOPPLER_PROJECT", "mpesa-relay"),
			getEnv("DOPPLER_CONFIG", "dev"),
		),
	}

	config.initSecrets()
	return config
}

// IsProduction reports whether the relay runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// Validate checks the settings production cannot run without
func (c *Config) Validate() error {
	var errs []error
	if !c.IsProduction() && !strings.EqualFold(c.Environment, EnvDevelopment) {
		errs = append(errs, fmt.Errorf("ENVIRONMENT: unknown mode %q (want %s or %s)", c.Environment, EnvDevelopment, EnvProduction))
	}
	for _, ip := range c.Mpesa.AllowedIPs {
		if _, err := netip.ParsePrefix(ip); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(ip); err != nil {
			errs = append(errs, fmt.Errorf("MPESA_ALLOWED_IPS: invalid address %q", ip))
		}
	}

	if !c.IsProduction() {
		return errors.Join(errs...)
	}

	required := []struct{ key, value string }{
		{"MPESA_CONSUMER_KEY", c.Mpesa.ConsumerKey},
		{"MPESA_CONSUMER_SECRET", c.Mpesa.ConsumerSecret},
		{"MPESA_SHORT_CODE", c.Mpesa.ShortCode},
		{"MPESA_CALLBACK_BASE_URL", c.Mpesa.CallbackBaseURL},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required in production", r.key))
		}
	}
	if len(c.Mpesa.AllowedIPs) == 0 {
		errs = append(errs, errors.New("MPESA_ALLOWED_IPS is required in production"))
	}
	return errors.Join(errs...)
}

// initSecrets initializes sensitive configuration values from Doppler, falling
// back to the environment
func (c *Config) initSecrets() {
	c.dopplerInitOnce.Do(func() {
		if err := c.dopplerClient.Initialize(); err != nil {
			c.Mpesa.ConsumerKey = getEnv("MPESA_CONSUMER_KEY", "")
			c.Mpesa.ConsumerSecret = getEnv("MPESA_CONSUMER_SECRET", "")
			c.Mpesa.ShortCode = getEnv("MPESA_SHORT_CODE", "")
			c.Merchant.SigningSecret = getEnv("MERCHANT_SIGNING_SECRET", "")
			c.Security.OperatorAPIKey = getEnv("OPERATOR_API_KEY", "")
			return
		}

		c.Mpesa.ConsumerKey = c.dopplerClient.GetSecretWithFallback("MPESA_CONSUMER_KEY", "")
		c.Mpesa.ConsumerSecret = c.dopplerClient.GetSecretWithFallback("MPESA_CONSUMER_SECRET", "")
		c.Mpesa.ShortCode = c.dopplerClient.GetSecretWithFallback("MPESA_SHORT_CODE", "")
		c.Merchant.SigningSecret = c.dopplerClient.GetSecretWithFallback("MERCHANT_SIGNING_SECRET", "")
		c.Security.OperatorAPIKey = c.dopplerClient.GetSecretWithFallback("OPERATOR_API_KEY", "")
	})
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string) []string {
	var values []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
