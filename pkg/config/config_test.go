package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "trend", c.Forecast.Strategy)
	assert.Equal(t, "none", c.Journal.Backend)
	assert.Equal(t, []string{"open", "high", "low"}, c.Forecast.Sequence.Features)
}

func TestLoadKeepsDefaultsForOmittedKeys(t *testing.T) {
	p := writeConfig(t, `
environment: test
server:
  port: 9090
forecast:
  strategy: sequence
  sequence:
    epochs: 5
`)
	c, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "sequence", c.Forecast.Strategy)
	assert.Equal(t, 5, c.Forecast.Sequence.Epochs)
	assert.Equal(t, 2, c.Forecast.Sequence.NSteps)
	assert.Equal(t, 15*time.Minute, c.Cache.HistoryTTL)
}

func TestLoadRejectsBadEnums(t *testing.T) {
	cases := map[string]string{
		"strategy": "forecast:\n  strategy: arima\n",
		"journal":  "journal:\n  backend: postgres\n",
		"cache":    "cache:\n  backend: disk\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadWithEnvOverridesYAML(t *testing.T) {
	p := writeConfig(t, "server:\n  port: 9090\n")
	t.Chdir(t.TempDir())
	t.Setenv("FINCAST_SERVER_PORT", "7070")
	t.Setenv("FINCAST_FORECAST_STRATEGY", "sequence")
	t.Setenv("FINCAST_KAFKA_BROKERS", "a:9092,b:9092")

	c, err := LoadWithEnv(p)
	require.NoError(t, err)
	assert.Equal(t, 7070, c.Server.Port)
	assert.Equal(t, "sequence", c.Forecast.Strategy)
	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	// untouched by env
	assert.Equal(t, "memory", c.Cache.Backend)
}

func TestLoadWithEnvReadsDotEnv(t *testing.T) {
	p := writeConfig(t, "")
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FINCAST_JOURNAL_BACKEND=sqlite\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("FINCAST_JOURNAL_BACKEND") })

	c, err := LoadWithEnv(p)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.Journal.Backend)
}

func TestValidateCrossSection(t *testing.T) {
	c := Default()
	c.Journal.Backend = "clickhouse"
	assert.Error(t, c.Validate(), "clickhouse journal needs a host")

	c = Default()
	c.Log.Collector.Enabled = true
	assert.Error(t, c.Validate(), "collector needs kafka")

	c = Default()
	c.Kafka.Enabled = true
	c.Kafka.Consumer.Enabled = true
	c.Kafka.JobsTopic = ""
	assert.Error(t, c.Validate())
}
