// README: Config loader with env defaults for HTTP, upstream, Redis, Postgres, Firebase and logging.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTP struct {
		Addr        string
		CORSOrigins []string
	}
	Upstream struct {
		URL     string
		Timeout time.Duration
	}
	Redis struct {
		Addr string
	}
	Session struct {
		TTL          time.Duration
		FeedPageSize int
	}
	DB struct {
		// DSN is optional; empty disables the match action journal.
		DSN string
	}
	Firebase struct {
		ProjectID       string
		CredentialsFile string
	}
	Log struct {
		Level string
		Dev   bool
	}
}

func Load() (Config, error) {
	var cfg Config
	cfg.HTTP.Addr = envOrDefault("TRIPMATE_HTTP_ADDR", ":8080")
	cfg.HTTP.CORSOrigins = envOrDefaultList("TRIPMATE_CORS_ORIGINS", []string{"*"})
	cfg.Upstream.URL = os.Getenv("TRIPMATE_UPSTREAM_URL")
	cfg.Upstream.Timeout = envOrDefaultDuration("TRIPMATE_UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.Redis.Addr = envOrDefault("TRIPMATE_REDIS_ADDR", "localhost:6379")
	cfg.Session.TTL = envOrDefaultDuration("TRIPMATE_SESSION_TTL", 30*time.Minute)
	cfg.Session.FeedPageSize = envOrDefaultInt("TRIPMATE_FEED_PAGE_SIZE", 20)
	cfg.DB.DSN = os.Getenv("TRIPMATE_DB_DSN")
	cfg.Firebase.ProjectID = os.Getenv("TRIPMATE_FIREBASE_PROJECT_ID")
	cfg.Firebase.CredentialsFile = os.Getenv("TRIPMATE_FIREBASE_CREDENTIALS")
	cfg.Log.Level = envOrDefault("TRIPMATE_LOG_LEVEL", "info")
	cfg.Log.Dev = envOrDefaultBool("TRIPMATE_LOG_DEV", false)

	var missing []string
	if cfg.Upstream.URL == "" {
		missing = append(missing, "TRIPMATE_UPSTREAM_URL")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "TRIPMATE_FIREBASE_PROJECT_ID")
	}
	if len(missing) > 0 {
		return cfg, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
