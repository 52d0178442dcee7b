package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime parameters of the service.
type Config struct {
	DatabaseURL       string
	RedisURL          string
	JWTSecretKey      string
	ServerPort        int
	RendezvousTimeout time.Duration
}

// Load reads configuration from environment variables, optionally seeded
// from a .env file (useful for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	rendezvousTimeout := 60 * time.Second
	if s := os.Getenv("RENDEZVOUS_TIMEOUT_SECONDS"); s != "" {
		secs, err := strconv.Atoi(s)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid RENDEZVOUS_TIMEOUT_SECONDS environment variable: %q", s)
		}
		rendezvousTimeout = time.Duration(secs) * time.Second
	}

	return &Config{
		DatabaseURL:       dbURL,
		RedisURL:          redisURL,
		JWTSecretKey:      jwtKey,
		ServerPort:        port,
		RendezvousTimeout: rendezvousTimeout,
	}, nil
}
