package sched

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load("")
	assert.Equal(t, 4, cfg.Cores)
	assert.Equal(t, 10, cfg.QuantumMS)
	assert.Equal(t, []int32{59, 59, 59, 63}, cfg.PreemptionPriorities)

	// missing file falls back to defaults as well
	assert.Equal(t, cfg, Load("does-not-exist.yml"))
}

func TestLoadOverridesAndPads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("cores: 3\nquantum_ms: 5\npreemption_priorities: [40]\n"), 0o644))

	cfg := Load(path)
	assert.Equal(t, 3, cfg.Cores)
	assert.Equal(t, 5, cfg.QuantumMS)
	// threshold list padded to the core count with its last entry
	assert.Equal(t, []int32{40, 40, 40}, cfg.PreemptionPriorities)
}

func TestLoadClampsNonsense(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("cores: -1\nquantum_ms: 0\nevent_buffer: -5\n"), 0o644))

	cfg := Load(path)
	assert.Equal(t, 4, cfg.Cores)
	assert.Equal(t, 10, cfg.QuantumMS)
	assert.Equal(t, 256, cfg.EventBuffer)
}
