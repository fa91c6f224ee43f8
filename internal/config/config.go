// Package config loads qfactor settings.
//
// Precedence (highest to lowest):
//  1. Command-line flags (applied by the caller after Load)
//  2. Environment variables with the QFACTOR_ prefix
//  3. YAML config file
//  4. Built-in defaults
//
// Environment variables map to keys by dropping the prefix and lowercasing:
//
//	QFACTOR_MAX_MEM     -> max_mem
//	QFACTOR_CONFIDENCE  -> confidence
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/pbnjay/memory"
	"github.com/pkg/errors"
)

const (
	EnvPrefix = "QFACTOR_"

	// MaxMemAuto sizes the simulator from half of the physical memory.
	MaxMemAuto = "auto"

	// DefaultConfidence is the primality confidence at which factoring gives up.
	DefaultConfidence = 0.95

	maxConfigFileSize = 1024 * 1024 // 1MB
)

var defaults = []byte(`
confidence: 0.95
seed: 0
max_mem: 4GB
max_qubits: 0
parallelism: 1
cache_size: 1024
max_attempts: 0
debug: false
log_format: console
log_file: ""
metrics_file: ""
out: "-"
json: false
`)

type Config struct {
	Confidence  float64 `koanf:"confidence" validate:"gte=0,lte=1"`
	Seed        uint64  `koanf:"seed"` // 0: seed from the clock
	MaxMem      string  `koanf:"max_mem" validate:"required,bytesize"`
	MaxQubits   int     `koanf:"max_qubits" validate:"gte=0,lte=34"` // 0: derived from max_mem
	Parallelism int     `koanf:"parallelism" validate:"gte=1,lte=256"`
	CacheSize   int     `koanf:"cache_size" validate:"gte=1"`
	MaxAttempts int     `koanf:"max_attempts" validate:"gte=0"` // 0: unbounded
	Debug       bool    `koanf:"debug"`
	LogFormat   string  `koanf:"log_format" validate:"oneof=console json"`
	LogFile     string  `koanf:"log_file"`                // empty: stderr
	MetricsFile string  `koanf:"metrics_file"`            // Prometheus text dump after each command; empty: none
	Out         string  `koanf:"out" validate:"required"` // "-" for stdout
	JSON        bool    `koanf:"json"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("bytesize", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		if v == MaxMemAuto {
			return true
		}
		_, err := ParseBytes(v)
		return err == nil
	})
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// MaxMemBytes is MaxMem in bytes. Call after Validate.
func (c *Config) MaxMemBytes() uint64 {
	if c.MaxMem == MaxMemAuto {
		return memory.TotalMemory() / 2
	}
	b, _ := ParseBytes(c.MaxMem)
	return b
}

// tomlParser lets koanf read .toml config files.
type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var m map[string]interface{}
	if err := toml.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (tomlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	err := toml.NewEncoder(&buf).Encode(m)
	return buf.Bytes(), err
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return tomlParser{}
	}
	return yaml.Parser()
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := load(nil, nil, false)
	if err != nil {
		panic(err) // built-in defaults must load
	}
	return cfg
}

// Load reads defaults, then the config file at path (skipped when path is
// empty; YAML, or TOML for a .toml extension), then QFACTOR_* environment
// variables.
func Load(path string) (*Config, error) {
	var content []byte
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrap(err, "open config file")
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return nil, errors.Wrap(err, "stat config file")
		}
		if info.Size() > maxConfigFileSize {
			return nil, errors.Errorf("config file %s is larger than %d bytes", path, maxConfigFileSize)
		}
		content, err = io.ReadAll(f)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
	}
	return load(content, parserFor(path), true)
}

func load(file []byte, parser koanf.Parser, withEnv bool) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(defaults), yaml.Parser()); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}
	if len(file) > 0 {
		if err := k.Load(rawbytes.Provider(file), parser); err != nil {
			return nil, errors.Wrap(err, "load config file")
		}
	}
	if withEnv {
		// keys are flat, so QFACTOR_MAX_MEM is max_mem rather than max.mem
		transform := func(s string) string {
			return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		}
		if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
			return nil, errors.Wrap(err, "load environment")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseBytes parses sizes such as "48GB", "500MB", "1.5G" or a plain byte
// count.
func ParseBytes(s string) (uint64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, errors.New("empty size")
	}
	orig := s
	s = strings.TrimSpace(strings.ToUpper(s))
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "KB"):
		mult, s = 1<<10, strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "MB"):
		mult, s = 1<<20, strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "GB"):
		mult, s = 1<<30, strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "TB"):
		mult, s = 1<<40, strings.TrimSuffix(s, "TB")
	case strings.HasSuffix(s, "K"):
		mult, s = 1<<10, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1<<20, strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		mult, s = 1<<30, strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}
	s = strings.TrimSpace(s)
	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "parse size %q", orig)
	}
	if val < 0 {
		return 0, errors.Errorf("negative size %q", orig)
	}
	return uint64(val * float64(mult)), nil
}
