// Package config loads the gateway configuration from YAML and the
// environment and flattens it into the structured source list the engine
// consumes.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/lost-woods/entropyd/src/rng"
)

// Config represents the gateway configuration file.
type Config struct {
	Listen          string         `yaml:"listen"`
	MaxRequestBytes uint64         `yaml:"max_request_bytes"`
	StragglerGrace  time.Duration  `yaml:"straggler_grace"`
	HealthInterval  time.Duration  `yaml:"health_interval"`
	LogLevel        string         `yaml:"log_level"`
	APIKey          string         `yaml:"api_key"`
	Sources         []SourcesGroup `yaml:"sources"`
}

// SourcesGroup is one aggregation group. All groups are combined into a
// single source set.
type SourcesGroup struct {
	Combine string         `yaml:"combine"`
	Lrng    []LrngConfig   `yaml:"lrng"`
	File    []FileConfig   `yaml:"file"`
	Serial  []SerialConfig `yaml:"serial"`
}

// LrngConfig is a kernel RNG source.
type LrngConfig struct {
	ID         string `yaml:"id"`
	Enabled    bool   `yaml:"enabled"`
	BufferSize int    `yaml:"buffer_size"`
}

// FileConfig is a file or device stream source.
type FileConfig struct {
	ID         string `yaml:"id"`
	Path       string `yaml:"path"`
	Loop       bool   `yaml:"loop"`
	Enabled    bool   `yaml:"enabled"`
	BufferSize int    `yaml:"buffer_size"`
}

// SerialConfig is a hardware TRNG on a serial port.
type SerialConfig struct {
	ID          string        `yaml:"id"`
	Device      string        `yaml:"device"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	Enabled     bool          `yaml:"enabled"`
	BufferSize  int           `yaml:"buffer_size"`
}

// Defaults returns a configuration with every optional field filled in.
func Defaults() *Config {
	return &Config{
		Listen:          "127.0.0.1:7770",
		MaxRequestBytes: rng.DefaultMaxRequestBytes,
		StragglerGrace:  rng.DefaultStragglerGrace,
		HealthInterval:  10 * time.Second,
		LogLevel:        "info",
	}
}

// Load reads configuration from the specified file and applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	ApplyEnvironment(cfg)
	return cfg, nil
}

// Parse decodes YAML into a Config on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	for i, g := range cfg.Sources {
		if g.Combine != "" && !strings.EqualFold(g.Combine, "xor") {
			return nil, fmt.Errorf("sources[%d]: unsupported combine mode %q", i, g.Combine)
		}
	}
	return cfg, nil
}

// Default buffer sizes per kind when the entry leaves buffer_size unset.
var defaultBufferSize = map[rng.Kind]int{
	rng.KindKernel: 0,
	rng.KindFile:   0,
	rng.KindSerial: 4096,
}

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

var errMalformed = errors.New("malformed source entry")

// Specs flattens every group into the ordered list of enabled sources.
// Disabled entries are dropped silently; entries with an invalid or duplicate
// id, or missing a required field, are logged and skipped.
func (c *Config) Specs(log *zap.SugaredLogger) []rng.SourceSpec {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var specs []rng.SourceSpec
	seen := make(map[string]bool)
	add := func(spec rng.SourceSpec, bufferSize int) {
		if err := validate(spec, seen); err != nil {
			log.Errorw("skipping entropy source", "source", spec.Key, "kind", spec.Kind, "error", err)
			return
		}
		seen[spec.Key] = true
		spec.BufferSize = bufferSize
		if bufferSize == 0 {
			spec.BufferSize = defaultBufferSize[spec.Kind]
		}
		if bufferSize < 0 {
			spec.BufferSize = 0
		}
		specs = append(specs, spec)
	}

	total := 0
	for _, g := range c.Sources {
		total += len(g.Lrng) + len(g.File) + len(g.Serial)
		for _, s := range g.Lrng {
			if s.Enabled {
				add(rng.SourceSpec{Key: s.ID, Kind: rng.KindKernel}, s.BufferSize)
			}
		}
		for _, s := range g.File {
			if s.Enabled {
				add(rng.SourceSpec{Key: s.ID, Kind: rng.KindFile, Path: s.Path, Loop: s.Loop}, s.BufferSize)
			}
		}
		for _, s := range g.Serial {
			if s.Enabled {
				timeout := s.ReadTimeout
				if timeout <= 0 {
					timeout = rng.DefaultSerialReadTimeout
				}
				add(rng.SourceSpec{
					Key:  s.ID,
					Kind: rng.KindSerial,
					Serial: rng.SerialConfig{
						Device:      s.Device,
						Baud:        s.Baud,
						ReadTimeout: timeout,
					},
				}, s.BufferSize)
			}
		}
	}

	log.Infow("entropy sources configured", "total", total, "enabled", len(specs))
	switch len(specs) {
	case 0:
		log.Warn("no enabled entropy sources found in config - requests will fail")
	case 1:
		log.Warn("only one entropy source enabled - consider enabling multiple sources")
	}
	return specs
}

func validate(spec rng.SourceSpec, seen map[string]bool) error {
	if !idPattern.MatchString(spec.Key) {
		return fmt.Errorf("%w: invalid id %q, use [a-z0-9][a-z0-9_-]*", errMalformed, spec.Key)
	}
	if seen[spec.Key] {
		return fmt.Errorf("%w: duplicate id %q", errMalformed, spec.Key)
	}
	switch spec.Kind {
	case rng.KindFile:
		if spec.Path == "" {
			return fmt.Errorf("%w: file source requires a path", errMalformed)
		}
	case rng.KindSerial:
		if spec.Serial.Device == "" {
			return fmt.Errorf("%w: serial source requires a device", errMalformed)
		}
		if spec.Serial.Baud <= 0 {
			return fmt.Errorf("%w: serial source requires a positive baud rate", errMalformed)
		}
	}
	return nil
}
