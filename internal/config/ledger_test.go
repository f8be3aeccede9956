package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLedgerConfigHolder_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	holder, err := NewLedgerConfigHolder(Config{LedgerConfigPath: filepath.Join(dir, "missing.yml")}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultLedgerConfig(), holder.Get())
}

func TestNewLedgerConfigHolder_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yml")
	content := []byte(`ledger:
  requireApproval: true
  posting:
    maxAttempts: 3
    initialInterval: 5ms
    maxInterval: 50ms
  lock:
    enabled: true
    ttl: 3s
    wait: 1s
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewLedgerConfigHolder(Config{LedgerConfigPath: path}, zap.NewNop())
	require.NoError(t, err)

	cfg := holder.Get()
	assert.True(t, cfg.RequireApproval)
	assert.Equal(t, 3, cfg.Posting.MaxAttempts)
	assert.Equal(t, 5*time.Millisecond, cfg.Posting.InitialInterval)
	assert.Equal(t, 50*time.Millisecond, cfg.Posting.MaxInterval)
	assert.True(t, cfg.Lock.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Lock.TTL)
}

func TestNewLedgerConfigHolder_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.yml")
	require.NoError(t, os.WriteFile(path, []byte("ledger:\n  posting:\n    maxAttempts: 0\n"), 0o600))

	_, err := NewLedgerConfigHolder(Config{LedgerConfigPath: path}, zap.NewNop())
	assert.Error(t, err)
}

func TestLedgerConfigHolder_NilFallsBackToDefaults(t *testing.T) {
	var holder *LedgerConfigHolder
	assert.Equal(t, DefaultLedgerConfig(), holder.Get())
}
