package config_test

import (
	"testing"

	"github.com/mohsenil85/imbolc-engine/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo, Port: 57110}}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged || d.ServerRestartRequired || d.SynthSourceChanged {
		t.Errorf("expected no changes for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.ServerRestartRequired {
		t.Error("a log level change alone should not require a restart")
	}
}

func TestDiff_PortChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{Port: 57110}}
	new := &config.Config{Server: config.ServerConfig{Port: 57111}}

	d := config.Diff(old, new)
	if !d.ServerRestartRequired {
		t.Error("expected ServerRestartRequired=true on port change")
	}
}

func TestDiff_AudioDeviceChangeRequiresRestart(t *testing.T) {
	t.Parallel()
	old := &config.Config{Audio: config.AudioConfig{InputDevice: "Mic A"}}
	new := &config.Config{Audio: config.AudioConfig{InputDevice: "Mic B"}}

	d := config.Diff(old, new)
	if !d.ServerRestartRequired {
		t.Error("expected ServerRestartRequired=true on input device change")
	}
}

func TestDiff_SynthSourceChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Synth: config.SynthConfig{SourcePath: "/a.sc"}}
	new := &config.Config{Synth: config.SynthConfig{SourcePath: "/b.sc"}}

	d := config.Diff(old, new)
	if !d.SynthSourceChanged {
		t.Error("expected SynthSourceChanged=true")
	}
	if d.ServerRestartRequired {
		t.Error("a synth source change alone should not require a server restart")
	}
}
