package database

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds the postgres connection settings.
type Config struct {
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	MigrationsDir  string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
	WaitSeconds    int    `yaml:"wait_seconds" envconfig:"DB_WAIT_SECONDS"`
}

// Normalize fills defaults and rejects configs that cannot be dialed.
// A relative MigrationsDir is resolved against the working directory.
func (c *Config) Normalize() error {
	if c == nil {
		return errors.New("database: nil config")
	}
	c.Host = strings.TrimSpace(c.Host)
	c.Name = strings.TrimSpace(c.Name)
	if c.Host == "" || c.Name == "" {
		return errors.New("database: host and name are required")
	}
	if c.Port == "" {
		c.Port = "5432"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = 5
	}
	if c.MigrationsDir == "" {
		c.MigrationsDir = "migrations"
	}
	if c.WaitSeconds <= 0 {
		c.WaitSeconds = 30
	}
	return nil
}

// Wait is how long startup waits for postgres to accept connections.
func (c Config) Wait() time.Duration {
	return time.Duration(c.WaitSeconds) * time.Second
}

// DSN is the lib/pq keyword form. Values are quoted so passwords with
// spaces or quotes survive.
func (c Config) DSN() string {
	pairs := []struct{ k, v string }{
		{"host", c.Host},
		{"port", c.Port},
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Name},
		{"sslmode", c.SSLMode},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.v == "" {
			continue
		}
		v := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(p.v)
		parts = append(parts, fmt.Sprintf("%s='%s'", p.k, v))
	}
	return strings.Join(parts, " ")
}

// URL is the postgres:// form golang-migrate expects.
func (c Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String()
}
