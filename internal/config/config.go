// Package config provides the configuration schema, loader, and file watcher
// for the audio engine orchestrator.
package config

// Config is the root configuration structure for the engine daemon.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Audio  AudioConfig  `yaml:"audio"`
	Synth  SynthConfig  `yaml:"synth"`
}

// ServerConfig holds process-lifecycle and logging settings for the external
// synthesis server the supervisor spawns and controls.
type ServerConfig struct {
	// Port is the UDP control port passed to the server as `-u <port>`.
	Port int `yaml:"port"`

	// ExecutableCandidates is a fixed, ordered list of paths searched for the
	// server binary. The first one that exists is used.
	ExecutableCandidates []string `yaml:"executable_candidates"`

	// LogDir is the directory the supervisor writes scsynth.log into,
	// overwritten on each start.
	LogDir string `yaml:"log_dir"`

	// LogLevel controls daemon-wide log verbosity. Valid values: debug, info,
	// warn, error.
	LogLevel LogLevel `yaml:"log_level"`

	// HealthPollIntervalMs is loaded, defaulted, and validated, in
	// milliseconds, but the engine does not read it: the server health check
	// runs once per AudioHandle.Tick.
	HealthPollIntervalMs int `yaml:"health_poll_interval_ms"`

	// HealthAddr is the listen address for the daemon's /healthz, /readyz,
	// and /metrics HTTP endpoints.
	HealthAddr string `yaml:"health_addr"`
}

// AudioConfig names the input/output audio devices passed to the server at
// start time. Both empty means no -H argument is passed at all; the host's
// default devices are not looked up, and device choice is left to the
// server.
type AudioConfig struct {
	InputDevice  string `yaml:"input_device"`
	OutputDevice string `yaml:"output_device"`
}

// SynthConfig locates the synth-definition source and its compiled output,
// and selects the compiler executable used for async compilation.
type SynthConfig struct {
	// SourcePath is the .sc (or equivalent) file containing SynthDef
	// declarations to compile.
	SourcePath string `yaml:"source_path"`

	// CompiledDir is where compiled <name>.scsyndef artifacts are written and
	// checked for staleness against SourcePath.
	CompiledDir string `yaml:"compiled_dir"`

	// CompilerCandidates is a fixed, ordered list of paths searched for the
	// compiler executable.
	CompilerCandidates []string `yaml:"compiler_candidates"`
}

// LogLevel names a daemon log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case "", LogDebug, LogInfo, LogWarn, LogError:
		return true
	default:
		return false
	}
}
