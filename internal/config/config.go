// Package config loads lrzlock settings from lrzlock.yaml and LRZLOCK_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/illarion/lrzlock/internal/crypto"
)

const (
	FileName      = "lrzlock"
	EnvPrefix     = "LRZLOCK"
	PasswordEnv   = EnvPrefix + "_PASSWORD"
	MinBlockSize  = 1 << 10
	MaxBlockSize  = 64 << 20
	DefaultBlocks = 256 << 10
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the settings that used to be process-wide flags.
type Config struct {
	// EncLoops is the stretch difficulty for new vaults. Zero picks a value
	// from the current date.
	EncLoops      int64  `mapstructure:"encloops"`
	BlockSize     int    `mapstructure:"block_size"`
	Workers       int    `mapstructure:"workers"`
	RequirePinned bool   `mapstructure:"require_pinned"`
	StrictRandom  bool   `mapstructure:"strict_random"`
	RandomDevice  string `mapstructure:"random_device"`
	Verbosity     string `mapstructure:"verbosity"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		BlockSize:    DefaultBlocks,
		Workers:      runtime.NumCPU(),
		RandomDevice: crypto.DefaultRandomDevice,
		Verbosity:    "info",
	}
}

// Load reads lrzlock.yaml from dir, $HOME/.lrzlock or /etc/lrzlock, in that
// order, and applies LRZLOCK_* overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	def := Default()

	v := viper.New()
	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	if dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("$HOME/.lrzlock")
	v.AddConfigPath("/etc/lrzlock")

	v.SetDefault("encloops", def.EncLoops)
	v.SetDefault("block_size", def.BlockSize)
	v.SetDefault("workers", def.Workers)
	v.SetDefault("require_pinned", def.RequirePinned)
	v.SetDefault("strict_random", def.StrictRandom)
	v.SetDefault("random_device", def.RandomDevice)
	v.SetDefault("verbosity", def.Verbosity)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.EncLoops < 0 {
		return fmt.Errorf("%w: encloops must not be negative, got %d", ErrInvalidConfig, c.EncLoops)
	}
	if c.EncLoops > 0 {
		b1, b2, _ := crypto.EncodeLoops(c.EncLoops)
		if _, err := crypto.DecodeLoops(b1, b2); err != nil {
			return fmt.Errorf("%w: encloops %d: %v", ErrInvalidConfig, c.EncLoops, err)
		}
	}
	if c.BlockSize < MinBlockSize || c.BlockSize > MaxBlockSize {
		return fmt.Errorf("%w: block_size must be between %d and %d, got %d",
			ErrInvalidConfig, MinBlockSize, MaxBlockSize, c.BlockSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, c.Workers)
	}
	if _, err := parseVerbosity(c.Verbosity); err != nil {
		return err
	}
	return nil
}

// Loops returns the stretch loop count for a vault created at now, rounded
// to what the two-byte encoding can store.
func (c *Config) Loops(now time.Time) int64 {
	if c.EncLoops == 0 {
		return crypto.LoopsForTime(now)
	}
	_, _, actual := crypto.EncodeLoops(c.EncLoops)
	return actual
}

// CryptoOptions builds session options for a vault stretched with loops.
func (c *Config) CryptoOptions(loops int64, log *logrus.Logger) crypto.Options {
	return crypto.Options{
		EncLoops:      loops,
		RequirePinned: c.RequirePinned,
		StrictRandom:  c.StrictRandom,
		RandomDevice:  c.RandomDevice,
		Logger:        log,
	}
}

// Logger returns a logger writing to stderr at the configured verbosity.
func (c *Config) Logger() *logrus.Logger {
	return c.LoggerTo(os.Stderr)
}

// LoggerTo is Logger with an explicit destination.
func (c *Config) LoggerTo(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	level, err := parseVerbosity(c.Verbosity)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func parseVerbosity(s string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return logrus.InfoLevel, nil
	case "quiet":
		return logrus.WarnLevel, nil
	case "debug", "max":
		return logrus.DebugLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("%w: unknown verbosity %q", ErrInvalidConfig, s)
	}
}
