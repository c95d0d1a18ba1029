package store

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/sitepulse/core/factory"
)

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string `json:"path"`
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	DSN            string `json:"dsn"`
	ConnectTimeout int    `json:"connect_timeout_seconds"`
	MaxOpenConns   int    `json:"max_open_conns"`
}

var registry = factory.NewRegistry[*Store]()

func init() {
	_ = registry.Register("sqlite", func(conf map[string]any) (*Store, error) {
		var c SQLiteConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "sitepulse.db"
		}
		return NewSQLiteStore(c.Path)
	})
	_ = registry.Register("postgres", func(conf map[string]any) (*Store, error) {
		var c PostgresConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.DSN == "" {
			return nil, errors.New("postgres: dsn required")
		}
		timeout := time.Duration(c.ConnectTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s, err := NewPostgresStore(ctx, c.DSN)
		if err != nil {
			return nil, err
		}
		if c.MaxOpenConns > 0 {
			s.db.SetMaxOpenConns(c.MaxOpenConns)
		}
		return s, nil
	})
}

// Register adds a backend factory.
func Register(name string, f factory.Factory[*Store]) error {
	return registry.Register(name, f)
}

// New opens the backend named by cfg.Type.
func New(cfg factory.ModuleConfig) (*Store, error) {
	return registry.Create(cfg)
}
