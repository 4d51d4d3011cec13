// Package config loads nanocat settings from defaults, the config file,
// NANOCAT_ environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/coffersTech/nanocat/internal/adb"
	"github.com/coffersTech/nanocat/internal/parser"
	"github.com/coffersTech/nanocat/internal/pipeline"
	"github.com/coffersTech/nanocat/internal/source"
)

// EnvPrefix prefixes every environment override, e.g. NANOCAT_RESTART
// or NANOCAT_TERMINAL_COLOR.
const EnvPrefix = "NANOCAT"

// Settings is the resolved configuration.
type Settings struct {
	Restart       bool          `mapstructure:"restart"`
	Buffer        []string      `mapstructure:"buffer"`
	Terminal      Terminal      `mapstructure:"terminal"`
	Retry         Retry         `mapstructure:"retry"`
	QueueSize     int           `mapstructure:"queue_size"`
	MaxLineLength int           `mapstructure:"max_line_length"`
	IdleFlush     time.Duration `mapstructure:"idle_flush"`
}

type Terminal struct {
	Color         string `mapstructure:"color"`
	TagWidth      int    `mapstructure:"tag_width"`
	HideTimestamp bool   `mapstructure:"hide_timestamp"`
	ShowDate      bool   `mapstructure:"show_date"`
	BrightColors  bool   `mapstructure:"bright_colors"`
	NoDimm        bool   `mapstructure:"no_dimm"`
}

// Retry mirrors source.Policy.
type Retry struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	Jitter       bool          `mapstructure:"jitter"`
}

// Policy converts r to a validated source.Policy.
func (r Retry) Policy() (source.Policy, error) {
	p := source.Policy{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: r.InitialDelay,
		MaxDelay:     r.MaxDelay,
		Multiplier:   r.Multiplier,
		Jitter:       r.Jitter,
	}
	return p, p.Validate()
}

// Dir is the per user configuration directory.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "nanocat")
	}
	return filepath.Join(home, ".config", "nanocat")
}

// DefaultPath is where the config file is looked up when none is given.
func DefaultPath() string { return filepath.Join(Dir(), "config.yaml") }

// New returns a viper instance with defaults and environment binding
// in place. Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every known key so environment overrides apply
// to all of them.
func SetDefaults(v *viper.Viper) {
	policy := source.DefaultPolicy()
	v.SetDefault("restart", true)
	v.SetDefault("buffer", adb.DefaultBuffers)
	v.SetDefault("terminal.color", "auto")
	v.SetDefault("terminal.tag_width", 0)
	v.SetDefault("terminal.hide_timestamp", false)
	v.SetDefault("terminal.show_date", false)
	v.SetDefault("terminal.bright_colors", false)
	v.SetDefault("terminal.no_dimm", false)
	v.SetDefault("retry.max_attempts", policy.MaxAttempts)
	v.SetDefault("retry.initial_delay", policy.InitialDelay)
	v.SetDefault("retry.max_delay", policy.MaxDelay)
	v.SetDefault("retry.multiplier", policy.Multiplier)
	v.SetDefault("retry.jitter", policy.Jitter)
	v.SetDefault("queue_size", pipeline.DefaultQueueSize)
	v.SetDefault("max_line_length", parser.DefaultMaxLineLength)
	v.SetDefault("idle_flush", pipeline.DefaultIdleFlush)
}

// ReadFile merges the config file at path into v. An empty path reads
// DefaultPath, which may be absent; an explicit path must exist.
func ReadFile(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config %s: %w", path, err)
	}
	return nil
}

// Decode resolves v into Settings.
func Decode(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("config: %w", err)
	}
	if s.QueueSize <= 0 {
		return Settings{}, fmt.Errorf("config: queue_size must be positive, got %d", s.QueueSize)
	}
	if s.IdleFlush < 0 {
		return Settings{}, fmt.Errorf("config: idle_flush cannot be negative")
	}
	return s, nil
}
