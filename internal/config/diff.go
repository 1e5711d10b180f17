package config

// ConfigDiff describes what changed between two configs, so a running
// daemon can decide what to react to on a reload instead of restarting
// wholesale.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// ServerRestartRequired is true when a field that can only take effect on
	// the next server start changed (port, executable candidates, devices).
	ServerRestartRequired bool

	// SynthSourceChanged is true when the synth-def source path or compiled
	// directory changed, meaning a recompile should be triggered.
	SynthSourceChanged bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.Port != new.Server.Port ||
		old.Audio.InputDevice != new.Audio.InputDevice ||
		old.Audio.OutputDevice != new.Audio.OutputDevice ||
		!stringsEqual(old.Server.ExecutableCandidates, new.Server.ExecutableCandidates) {
		d.ServerRestartRequired = true
	}

	if old.Synth.SourcePath != new.Synth.SourcePath || old.Synth.CompiledDir != new.Synth.CompiledDir {
		d.SynthSourceChanged = true
	}

	return d
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
