// Package clickhouse wraps a database/sql pool on the clickhouse-go driver.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

var ErrNoHost = errors.New("clickhouse: host is required")

type Client struct {
	db       *sql.DB
	database string
}

// NewClient opens the pool and pings the server within ctx.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	o := Options{
		Port:            9000,
		Database:        "default",
		User:            "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Host == "" {
		return nil, ErrNoHost
	}

	db, err := sql.Open("clickhouse", o.dsn())
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(o.MaxOpenConns)
	db.SetMaxIdleConns(o.MaxIdleConns)
	db.SetConnMaxLifetime(o.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, o.DialTimeout+time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", net.JoinHostPort(o.Host, strconv.Itoa(o.Port)), err)
	}
	return &Client{db: db, database: o.Database}, nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Database() string { return c.database }

func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Exec runs each DDL statement in order and stops at the first failure.
func (c *Client) Exec(ctx context.Context, stmts ...string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clickhouse statement %d: %w", i, err)
		}
	}
	return nil
}

func (o Options) dsn() string {
	scheme := "clickhouse"
	if o.HTTP {
		scheme = "http"
	}
	q := url.Values{}
	if o.DialTimeout > 0 {
		q.Set("dial_timeout", o.DialTimeout.String())
	}
	if o.ReadTimeout > 0 {
		q.Set("read_timeout", o.ReadTimeout.String())
	}
	if o.MaxExecTime > 0 {
		q.Set("max_execution_time", strconv.Itoa(int(o.MaxExecTime.Seconds())))
	}
	if o.AsyncInsert {
		q.Set("async_insert", "1")
		if o.WaitForAsync {
			q.Set("wait_for_async_insert", "1")
		}
	}
	u := url.URL{
		Scheme:   scheme,
		User:     url.UserPassword(o.User, o.Password),
		Host:     net.JoinHostPort(o.Host, strconv.Itoa(o.Port)),
		Path:     "/" + o.Database,
		RawQuery: q.Encode(),
	}
	return u.String()
}
