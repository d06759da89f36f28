// Package config loads this service's environment-driven configuration:
// plain os.Getenv reads with documented defaults, no configuration
// library.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is every environment-driven knob this process reads.
type Config struct {
	Env         string
	Addr        string
	FrontendURL string

	JWTSecret     string
	JWTAlgorithm  string
	JWTExpiration time.Duration

	RedisURL string
}

const (
	defaultPort          = "8000"
	defaultJWTAlgorithm  = "HS256"
	defaultJWTExpiration = 24 * time.Hour
	// devSecret is used when JWT_SECRET is unset. Running with it is a
	// startup warning, not a fatal error.
	devSecret = "dev-secret-key-change-in-production"
)

// FromEnv builds a Config from the process environment.
func FromEnv() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	algorithm := os.Getenv("JWT_ALGORITHM")
	if algorithm == "" {
		algorithm = defaultJWTAlgorithm
	}

	expiration := defaultJWTExpiration
	if raw := os.Getenv("JWT_EXPIRATION"); raw != "" {
		if hours, err := strconv.Atoi(raw); err == nil && hours > 0 {
			expiration = time.Duration(hours) * time.Hour
		}
	}

	secret := os.Getenv("JWT_SECRET")
	usingDevSecret := secret == ""
	if usingDevSecret {
		secret = devSecret
	}

	return Config{
		Env:           envOrDefault("ENV", "development"),
		Addr:          ":" + port,
		FrontendURL:   os.Getenv("FRONTEND_URL"),
		JWTSecret:     secret,
		JWTAlgorithm:  algorithm,
		JWTExpiration: expiration,
		RedisURL:      os.Getenv("REDIS_URL"),
	}
}

// UsingDevSecret reports whether JWT_SECRET was unset and the built-in
// development placeholder is in effect — worth a startup warning log, not
// a fatal error.
func (c Config) UsingDevSecret() bool { return c.JWTSecret == devSecret }

// CORSOrigins is FRONTEND_URL plus the fixed allowlist entries.
func (c Config) CORSOrigins() []string {
	origins := []string{
		"https://trivector.ai",
		"https://www.trivector.ai",
		"http://localhost:3000",
		"http://localhost:3001",
	}
	if c.FrontendURL != "" {
		origins = append([]string{c.FrontendURL}, origins...)
	}
	return origins
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
