package config

import (
	"strconv"
	"time"
)

// SecurityConfig holds HTTP hardening settings
type SecurityConfig struct {
	// OperatorAPIKey, when set, is required as a bearer token on operator routes
	OperatorAPIKey string

	// Rate limiting for the operator endpoint
	OperatorRateLimit float64
	OperatorRateBurst int
	RateLimitCleanup  time.Duration

	// Secure headers
	HSTSMaxAge    time.Duration
	CSPDirectives map[string]string
}

// DefaultSecurityConfig returns the default security configuration
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		OperatorRateLimit: getEnvFloat("OPERATOR_RATE_LIMIT", 0.2),
		OperatorRateBurst: getEnvInt("OPERATOR_RATE_BURST", 3),
		RateLimitCleanup:  5 * time.Minute,

		HSTSMaxAge: 180 * 24 * time.Hour,
		CSPDirectives: map[string]string{
			"default-src": "'self'",
			"font-src":    "'self' https://fonts.gstatic.com",
			"style-src":   "'self' 'unsafe-inline' https://fonts.googleapis.com",
			"script-src":  "'self' 'unsafe-inline'",
			"connect-src": "'self' https://sandbox.safaricom.co.ke",
			"img-src":     "'self' data:",
		},
	}
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return f
}
