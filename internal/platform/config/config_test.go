package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 256, cfg.Connection.QueueCapacity)
	assert.Equal(t, 800*time.Millisecond, cfg.Moderation.Timeout)
	assert.Empty(t, cfg.Postgres.DSN)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chaperone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
connection:
  queue_capacity: 8
approval:
  reviewers: ["6f1c2d7e-1b7a-4a8e-9a55-0d5c7a1f9e21"]
`), 0o600))

	t.Setenv("CHAPERONE_CONNECTION_QUEUE_CAPACITY", "16")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 16, cfg.Connection.QueueCapacity)
	assert.Len(t, cfg.Approval.Reviewers, 1)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("CHAPERONE_POLICY_DEFAULT_TIMEZONE", "Mars/Olympus")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy.default_timezone")
}
