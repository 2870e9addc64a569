package config

import (
	"os"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr            string
	DatabaseURL     string
	JWTSigningKey   string
	OutboxInterval  time.Duration
	ShutdownTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("MEALFLOW_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	dbURL := os.Getenv("MEALFLOW_DATABASE_URL")

	jwtSigningKey := os.Getenv("MEALFLOW_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	interval := 5 * time.Second
	if raw := os.Getenv("MEALFLOW_OUTBOX_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			interval = d
		}
	}

	return Server{
		Addr:            addr,
		DatabaseURL:     dbURL,
		JWTSigningKey:   jwtSigningKey,
		OutboxInterval:  interval,
		ShutdownTimeout: 10 * time.Second,
	}
}
