package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in the fixed numeric constants and candidate paths a
// bare-bones config omits.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 57110
	}
	if cfg.Server.LogDir == "" {
		cfg.Server.LogDir = defaultConfigDir()
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.HealthPollIntervalMs == 0 {
		cfg.Server.HealthPollIntervalMs = 1000
	}
	if cfg.Server.HealthAddr == "" {
		cfg.Server.HealthAddr = ":8080"
	}
	if len(cfg.Server.ExecutableCandidates) == 0 {
		cfg.Server.ExecutableCandidates = []string{
			"/usr/local/bin/scsynth",
			"/usr/bin/scsynth",
			"/Applications/SuperCollider.app/Contents/Resources/scsynth",
		}
	}
	if len(cfg.Synth.CompilerCandidates) == 0 {
		cfg.Synth.CompilerCandidates = []string{
			"/usr/local/bin/sclang",
			"/usr/bin/sclang",
			"/Applications/SuperCollider.app/Contents/MacOS/sclang",
		}
	}
	if cfg.Synth.CompiledDir == "" {
		cfg.Synth.CompiledDir = defaultConfigDir() + "/synthdefs"
	}
}

func defaultConfigDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return dir + "/imbolc"
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [0, 65535]", cfg.Server.Port))
	}
	if cfg.Server.HealthPollIntervalMs < 0 {
		errs = append(errs, fmt.Errorf("server.health_poll_interval_ms must be non-negative, got %d", cfg.Server.HealthPollIntervalMs))
	}
	if len(cfg.Server.ExecutableCandidates) == 0 {
		errs = append(errs, errors.New("server.executable_candidates must not be empty"))
	}

	return errors.Join(errs...)
}
