package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/illarion/lrzlock/internal/crypto"
)

func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{"ENCLOOPS", "BLOCK_SIZE", "WORKERS", "REQUIRE_PINNED", "STRICT_RANDOM", "RANDOM_DEVICE", "VERBOSITY"} {
		t.Setenv(EnvPrefix+"_"+key, "")
		os.Unsetenv(EnvPrefix + "_" + key)
	}
	return t.TempDir()
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(0), cfg.EncLoops)
	assert.Equal(t, DefaultBlocks, cfg.BlockSize)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers)
	assert.Equal(t, crypto.DefaultRandomDevice, cfg.RandomDevice)
	assert.Equal(t, "info", cfg.Verbosity)
	assert.False(t, cfg.RequirePinned)
	assert.False(t, cfg.StrictRandom)
}

func TestLoadFile(t *testing.T) {
	dir := isolate(t)
	yaml := "encloops: 1000000\nblock_size: 4096\nworkers: 3\nstrict_random: true\nverbosity: max\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName+".yaml"), []byte(yaml), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(1000000), cfg.EncLoops)
	assert.Equal(t, 4096, cfg.BlockSize)
	assert.Equal(t, 3, cfg.Workers)
	assert.True(t, cfg.StrictRandom)
	assert.Equal(t, "max", cfg.Verbosity)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName+".yaml"), []byte("workers: 3\n"), 0600))
	t.Setenv("LRZLOCK_WORKERS", "7")
	t.Setenv("LRZLOCK_REQUIRE_PINNED", "true")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Workers)
	assert.True(t, cfg.RequirePinned)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative loops", "encloops: -5\n"},
		{"tiny block", "block_size: 10\n"},
		{"huge block", "block_size: 1073741824\n"},
		{"no workers", "workers: 0\n"},
		{"verbosity", "verbosity: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			require.NoError(t, os.WriteFile(filepath.Join(dir, FileName+".yaml"), []byte(tt.yaml), 0600))

			_, err := Load(dir)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestLoadBrokenFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName+".yaml"), []byte("workers: [\n"), 0600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalidConfig))
}

func TestLoops(t *testing.T) {
	cfg := Default()
	at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, crypto.LoopsForTime(at), cfg.Loops(at))

	cfg.EncLoops = 1000000
	assert.Equal(t, int64(999424), cfg.Loops(at))
}

func TestCryptoOptions(t *testing.T) {
	cfg := Default()
	cfg.RequirePinned = true
	cfg.RandomDevice = "/dev/null"
	log := logrus.New()

	opts := cfg.CryptoOptions(4096, log)
	assert.Equal(t, int64(4096), opts.EncLoops)
	assert.True(t, opts.RequirePinned)
	assert.False(t, opts.StrictRandom)
	assert.Equal(t, "/dev/null", opts.RandomDevice)
	assert.Same(t, log, opts.Logger)
}

func TestLoggerLevels(t *testing.T) {
	tests := map[string]logrus.Level{
		"":      logrus.InfoLevel,
		"info":  logrus.InfoLevel,
		"quiet": logrus.WarnLevel,
		"debug": logrus.DebugLevel,
		"MAX":   logrus.DebugLevel,
	}
	for verbosity, want := range tests {
		cfg := Default()
		cfg.Verbosity = verbosity
		var buf bytes.Buffer
		log := cfg.LoggerTo(&buf)
		assert.Equal(t, want, log.GetLevel(), "verbosity %q", verbosity)
	}

	cfg := Default()
	cfg.Verbosity = "max"
	var buf bytes.Buffer
	cfg.LoggerTo(&buf).Debug("Encrypting data")
	assert.Contains(t, buf.String(), "Encrypting data")
}

func TestValidateLoopsRange(t *testing.T) {
	cfg := Default()
	cfg.EncLoops = 1 << 62
	assert.True(t, errors.Is(cfg.Validate(), ErrInvalidConfig))

	cfg.EncLoops = 255 << 40
	assert.NoError(t, cfg.Validate())
}
