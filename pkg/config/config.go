// Package config loads the process configuration from the environment, the
// way the teacher's cmd/hostapp always has — no config file, no flags, just
// env vars with sane dev defaults and a Validate pass before boot.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// PublishStrategyKind selects how internal/strategy delivers a compiled page.
type PublishStrategyKind string

const (
	StrategyLocal PublishStrategyKind = "local"
	StrategyTurso PublishStrategyKind = "turso"
)

// Config is the fully-resolved process configuration, read once at boot.
type Config struct {
	DatabaseURL     string
	EdgeURL         string
	EdgeEngineURL   string
	PublishStrategy PublishStrategyKind
	TursoDBURL      string
	TursoDBToken    string
	UpstashRedisURL string
	UpstashToken    string
	EncryptionKey   string
	AdminEmail      string
	AdminPassword   string
	CORSOrigins     []string
	ListenAddr      string
	StateDir        string
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

func baseDir() string { return filepath.Join(homeDir(), ".pagebase") }

func defaultStateDir() string { return filepath.Join(baseDir(), "data") }

// Load reads every env var named in spec.md §6, applying documented
// defaults, and persists a generated ENCRYPTION_KEY to data/encryption_key.txt
// when one wasn't supplied so restarts keep decrypting existing secrets.
func Load() (*Config, error) {
	c := &Config{
		DatabaseURL:     firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("DATABASE")),
		EdgeURL:         envOr("EDGE_URL", "http://localhost:3002"),
		EdgeEngineURL:   os.Getenv("EDGE_ENGINE_URL"),
		PublishStrategy: PublishStrategyKind(envOr("PUBLISH_STRATEGY", string(StrategyLocal))),
		TursoDBURL:      os.Getenv("TURSO_DB_URL"),
		TursoDBToken:    os.Getenv("TURSO_DB_TOKEN"),
		UpstashRedisURL: os.Getenv("UPSTASH_REDIS_URL"),
		UpstashToken:    os.Getenv("UPSTASH_REDIS_TOKEN"),
		EncryptionKey:   os.Getenv("ENCRYPTION_KEY"),
		AdminEmail:      os.Getenv("ADMIN_EMAIL"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		ListenAddr:      envOr("LISTEN_ADDR", "127.0.0.1:8090"),
		StateDir:        envOr("STATE_DIR", defaultStateDir()),
	}
	if raw := os.Getenv("CORS_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}
	if c.EncryptionKey == "" {
		key, err := loadOrGenerateKey(c.StateDir)
		if err != nil {
			return nil, err
		}
		c.EncryptionKey = key
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL required")
	}
	if c.PublishStrategy != StrategyLocal && c.PublishStrategy != StrategyTurso {
		return errors.New("PUBLISH_STRATEGY must be 'local' or 'turso'")
	}
	if c.PublishStrategy == StrategyTurso && (c.TursoDBURL == "" || c.TursoDBToken == "") {
		return errors.New("TURSO_DB_URL and TURSO_DB_TOKEN required when PUBLISH_STRATEGY=turso")
	}
	return nil
}

func loadOrGenerateKey(stateDir string) (string, error) {
	path := filepath.Join(stateDir, "encryption_key.txt")
	if b, err := os.ReadFile(path); err == nil {
		if k := strings.TrimSpace(string(b)); k != "" {
			return k, nil
		}
	}
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return "", err
	}
	key := randomKey(32)
	if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
		return "", err
	}
	return key, nil
}

func randomKey(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
