package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Client wraps a single-writer SQLite database.
type Client struct {
	db   *sql.DB
	path string
}

// ClientConfig holds SQLite connection settings.
type ClientConfig struct {
	Path        string
	BusyTimeout time.Duration
	Synchronous string
}

// ClientOption configures ClientConfig.
type ClientOption func(*ClientConfig)

// WithPath sets the database file path.
func WithPath(path string) ClientOption {
	return func(c *ClientConfig) {
		c.Path = path
	}
}

// WithBusyTimeout sets how long a writer waits on a locked database.
func WithBusyTimeout(d time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if d > 0 {
			c.BusyTimeout = d
		}
	}
}

// WithSynchronous sets the synchronous pragma (OFF, NORMAL, FULL).
func WithSynchronous(mode string) ClientOption {
	return func(c *ClientConfig) {
		if mode != "" {
			c.Synchronous = mode
		}
	}
}

// Open opens the database in WAL mode with one connection.
func Open(ctx context.Context, opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		BusyTimeout: 5 * time.Second,
		Synchronous: "NORMAL",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	if dir := filepath.Dir(cfg.Path); cfg.Path != ":memory:" && !strings.HasPrefix(cfg.Path, "file:") && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", buildDSN(*cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	// sqlite supports a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	return &Client{db: db, path: cfg.Path}, nil
}

// DB returns *sql.DB for direct use.
func (c *Client) DB() *sql.DB { return c.db }

// Path returns the database file path.
func (c *Client) Path() string { return c.path }

// Health pings the database.
func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// InitSchema runs idempotent DDL statements.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func buildDSN(cfg ClientConfig) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", cfg.Synchronous)
	q.Set("_busy_timeout", strconv.FormatInt(cfg.BusyTimeout.Milliseconds(), 10))
	return cfg.Path + "?" + q.Encode()
}
