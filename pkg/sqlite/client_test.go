package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN(ClientConfig{Path: "/tmp/x.db", BusyTimeout: 2 * time.Second, Synchronous: "FULL"})
	assert.Equal(t, "/tmp/x.db?_busy_timeout=2000&_journal_mode=WAL&_synchronous=FULL", dsn)
}

func TestOpenAndInitSchema(t *testing.T) {
	ctx := t.Context()
	c, err := Open(ctx, WithPath(filepath.Join(t.TempDir(), "j.db")))
	require.NoError(t, err)
	defer c.Close()

	stmts := []string{`CREATE TABLE IF NOT EXISTS t (id INTEGER PRIMARY KEY, v TEXT)`}
	require.NoError(t, c.InitSchema(ctx, stmts))
	require.NoError(t, c.InitSchema(ctx, stmts))

	_, err = c.DB().ExecContext(ctx, `INSERT INTO t (v) VALUES (?)`, "a")
	require.NoError(t, err)

	var mode string
	require.NoError(t, c.DB().QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
	assert.NoError(t, c.Health(ctx))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(t.Context())
	assert.EqualError(t, err, "path is required")
}
