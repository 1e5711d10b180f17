package config_test

import (
	"strings"
	"testing"

	"github.com/mohsenil85/imbolc-engine/internal/config"
)

const sampleYAML = `
server:
  port: 57110
  log_level: info
  executable_candidates:
    - /usr/local/bin/scsynth
audio:
  input_device: "Built-in Microphone"
  output_device: "Built-in Output"
synth:
  source_path: /etc/imbolc/synthdefs.sc
  compiled_dir: /var/lib/imbolc/synthdefs
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 57110 {
		t.Errorf("server.port: got %d, want 57110", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Audio.InputDevice != "Built-in Microphone" {
		t.Errorf("audio.input_device: got %q", cfg.Audio.InputDevice)
	}
	if cfg.Synth.SourcePath != "/etc/imbolc/synthdefs.sc" {
		t.Errorf("synth.source_path: got %q", cfg.Synth.SourcePath)
	}
}

func TestLoadFromReader_EmptyAppliesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
	if cfg.Server.Port == 0 {
		t.Error("expected a default port to be applied")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("expected default log level info, got %q", cfg.Server.LogLevel)
	}
	if len(cfg.Server.ExecutableCandidates) == 0 {
		t.Error("expected default executable candidates to be applied")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_PortOutOfRange(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  port: 99999
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range port, got nil")
	}
	if !strings.Contains(err.Error(), "port") {
		t.Errorf("error should mention port, got: %v", err)
	}
}

func TestValidate_NegativeHealthPollInterval(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  health_poll_interval_ms: -5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative health_poll_interval_ms, got nil")
	}
}
