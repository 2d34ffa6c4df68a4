// Package config loads process configuration from flags and
// environment variables: flag.String with sensible defaults for local
// overrides, environment variables for secrets and anything that
// should never be passed as plain CLI argv.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

type Config struct {
	BindAddr     string
	DatabaseURL  string
	JWTSecret    string
	HMACSecret   string
	CORSOrigins  []string

	WebAuthnRPID     string
	WebAuthnRPOrigin string

	AnnouncedIP string

	StorageBackend string
	StoragePath    string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string

	IdleTimeout time.Duration
}

// Load parses flags (for local overrides) and environment variables
// (for anything that must not leak into process argv).
func Load(args []string) *Config {
	fs := flag.NewFlagSet("echora-server", flag.ContinueOnError)

	bindAddr := fs.String("addr", envOr("BIND_ADDR", ":8080"), "listen address")
	idleTimeout := fs.Duration("idle-timeout", 30*time.Second, "HTTP idle timeout")
	_ = fs.Parse(args)

	cfg := &Config{
		BindAddr:         *bindAddr,
		DatabaseURL:      mustEnv("DATABASE_URL", "echora.db"),
		JWTSecret:        mustEnv("JWT_SECRET", ""),
		CORSOrigins:      splitCSV(os.Getenv("CORS_ORIGINS")),
		WebAuthnRPID:     envOr("WEBAUTHN_RP_ID", "localhost"),
		WebAuthnRPOrigin: envOr("WEBAUTHN_RP_ORIGIN", "http://localhost:8080"),
		AnnouncedIP:      os.Getenv("MEDIASOUP_ANNOUNCED_IP"),
		StorageBackend:   os.Getenv("STORAGE_BACKEND"),
		StoragePath:      envOr("STORAGE_PATH", "./uploads"),
		S3Bucket:         os.Getenv("S3_BUCKET"),
		S3Region:         os.Getenv("S3_REGION"),
		S3Endpoint:       os.Getenv("S3_ENDPOINT"),
		IdleTimeout:      *idleTimeout,
	}
	cfg.HMACSecret = envOr("HMAC_SECRET", cfg.JWTSecret)
	return cfg
}

func mustEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// IntEnv reads an integer environment variable or returns fallback.
func IntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
