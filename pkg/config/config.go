package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// Built-in defaults.
const (
	DefaultDBTimeout   = 5000 * time.Millisecond
	DefaultChunkSize   = 5000
	DefaultCallTimeout = 5000 * time.Millisecond
	DefaultCacheSize   = 20
)

// Config holds all sqlactor configuration.
type Config struct {
	DBPath     string `yaml:"db_path"`
	DBPassword string `yaml:"db_password"`
	Listen     string `yaml:"listen"`
	LogLevel   string `yaml:"log_level"`

	Options `yaml:",inline"`
}

// Options are the tunables that can be set per call, per process or in the
// config file. A zero field is unset and falls through to the next level.
type Options struct {
	DBTimeout   Duration `yaml:"db_timeout"`
	ChunkSize   int      `yaml:"db_chunk_size"`
	CallTimeout Duration `yaml:"call_timeout"`
	// Timeout is the legacy name of CallTimeout. It is only consulted
	// when CallTimeout is unset at the same level.
	Timeout   Duration `yaml:"timeout"`
	CacheSize int      `yaml:"stmt_cache_size"`
}

// Settings are fully resolved Options. Every field is positive.
type Settings struct {
	DBTimeout   time.Duration
	ChunkSize   int
	CallTimeout time.Duration
	CacheSize   int
}

// Duration is a time.Duration that reads from YAML either as a Go duration
// string ("5s", "250ms") or as a plain integer number of milliseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if ms, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, node.Value, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath:   "sqlactor.db",
		Listen:   ":8080",
		LogLevel: "info",
		Options: Options{
			DBTimeout:   Duration(DefaultDBTimeout),
			ChunkSize:   DefaultChunkSize,
			CallTimeout: Duration(DefaultCallTimeout),
			CacheSize:   DefaultCacheSize,
		},
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	// A file that only sets the legacy timeout must not be shadowed by
	// the default call_timeout.
	cfg.CallTimeout = 0
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.CallTimeout == 0 && cfg.Timeout == 0 {
		cfg.CallTimeout = Duration(DefaultCallTimeout)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects negative tunables. Zero means "use the default".
func (c *Config) Validate() error {
	var errs []error
	if c.DBTimeout < 0 {
		errs = append(errs, fmt.Errorf("db_timeout must not be negative, got %v", c.DBTimeout.Std()))
	}
	if c.ChunkSize < 0 {
		errs = append(errs, fmt.Errorf("db_chunk_size must not be negative, got %d", c.ChunkSize))
	}
	if c.CallTimeout < 0 || c.Timeout < 0 {
		errs = append(errs, errors.New("call_timeout must not be negative"))
	}
	if c.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("stmt_cache_size must not be negative, got %d", c.CacheSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

var processDefaults atomic.Pointer[Options]

// SetProcessDefaults installs process-wide defaults that apply to every
// call which does not override them. Passing the zero Options clears them.
func SetProcessDefaults(o Options) {
	processDefaults.Store(&o)
}

// ProcessDefaults returns the current process-wide defaults.
func ProcessDefaults() Options {
	if o := processDefaults.Load(); o != nil {
		return *o
	}
	return Options{}
}

// Merge returns o with every unset field taken from fallback.
func (o Options) Merge(fallback Options) Options {
	if o.DBTimeout <= 0 {
		o.DBTimeout = fallback.DBTimeout
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = fallback.ChunkSize
	}
	if o.callTimeout() <= 0 {
		o.CallTimeout = fallback.callTimeout()
		o.Timeout = 0
	}
	if o.CacheSize <= 0 {
		o.CacheSize = fallback.CacheSize
	}
	return o
}

func (o Options) callTimeout() Duration {
	if o.CallTimeout > 0 {
		return o.CallTimeout
	}
	return o.Timeout
}

// Resolve applies the resolution order call-site > process-wide >
// built-in and returns positive settings.
func Resolve(call Options) Settings {
	o := call.Merge(ProcessDefaults())
	s := Settings{
		DBTimeout:   o.DBTimeout.Std(),
		ChunkSize:   o.ChunkSize,
		CallTimeout: o.callTimeout().Std(),
		CacheSize:   o.CacheSize,
	}
	if s.DBTimeout <= 0 {
		s.DBTimeout = DefaultDBTimeout
	}
	if s.ChunkSize <= 0 {
		s.ChunkSize = DefaultChunkSize
	}
	if s.CallTimeout <= 0 {
		s.CallTimeout = DefaultCallTimeout
	}
	if s.CacheSize <= 0 {
		s.CacheSize = DefaultCacheSize
	}
	return s
}

// Override returns s with the non-zero fields of call applied on top.
// It is used for per-call options against an actor's already resolved
// settings.
func (s Settings) Override(call Options) Settings {
	if call.DBTimeout > 0 {
		s.DBTimeout = call.DBTimeout.Std()
	}
	if call.ChunkSize > 0 {
		s.ChunkSize = call.ChunkSize
	}
	if t := call.callTimeout(); t > 0 {
		s.CallTimeout = t.Std()
	}
	return s
}
