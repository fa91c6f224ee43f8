package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	return writeNamed(t, "qfactor.yaml", body)
}

func writeNamed(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultConfidence, cfg.Confidence)
	assert.Equal(t, "4GB", cfg.MaxMem)
	assert.Equal(t, uint64(4<<30), cfg.MaxMemBytes())
	assert.Equal(t, 1, cfg.Parallelism)
	assert.Equal(t, 1024, cfg.CacheSize)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "-", cfg.Out)
	assert.False(t, cfg.JSON)
}

func TestLoadNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().CacheSize, cfg.CacheSize)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
confidence: 0.99
seed: 7
max_mem: 512MB
parallelism: 4
log_format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.99, cfg.Confidence)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, uint64(512<<20), cfg.MaxMemBytes())
	assert.Equal(t, 4, cfg.Parallelism)
	assert.Equal(t, "json", cfg.LogFormat)
	// untouched keys keep their defaults
	assert.Equal(t, 1024, cfg.CacheSize)
}

func TestLoadTOML(t *testing.T) {
	path := writeNamed(t, "qfactor.toml", `
confidence = 0.9
max_mem = "2GB"
parallelism = 2
json = true
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Confidence)
	assert.Equal(t, uint64(2<<30), cfg.MaxMemBytes())
	assert.Equal(t, 2, cfg.Parallelism)
	assert.True(t, cfg.JSON)
}

func TestMaxMemAuto(t *testing.T) {
	cfg, err := Load(writeConfig(t, "max_mem: auto\n"))
	require.NoError(t, err)
	assert.Positive(t, cfg.MaxMemBytes())
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "max_mem: 512MB\nparallelism: 4\n")
	t.Setenv("QFACTOR_MAX_MEM", "1G")
	t.Setenv("QFACTOR_CONFIDENCE", "0.5")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<30), cfg.MaxMemBytes())
	assert.Equal(t, 0.5, cfg.Confidence)
	assert.Equal(t, 4, cfg.Parallelism)
}

func TestLoadRejects(t *testing.T) {
	for name, body := range map[string]string{
		"confidence": "confidence: 1.5\n",
		"max_mem":    "max_mem: lots\n",
		"parallel":   "parallelism: 0\n",
		"format":     "log_format: xml\n",
		"qubits":     "max_qubits: 40\n",
		"yaml":       "confidence: [\n",
	} {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, name)
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseBytes(t *testing.T) {
	cases := map[string]uint64{
		"1024":  1024,
		"10B":   10,
		"2KB":   2 << 10,
		"2k":    2 << 10,
		"500MB": 500 << 20,
		"1.5G":  3 << 29,
		"48GB":  48 << 30,
		"1TB":   1 << 40,
		" 3M ":  3 << 20,
	}
	for in, want := range cases {
		got, err := ParseBytes(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "GB", "-1G", "twelve"} {
		_, err := ParseBytes(in)
		assert.Error(t, err, in)
	}
}
