package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohsenil85/imbolc-engine/internal/config"
)

func TestLoad_ReadsFileFromDisk(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7400\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 7400 {
		t.Errorf("server.port: got %d, want 7400", cfg.Server.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load("/nonexistent/engine.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadFromReader_DefaultCompilerCandidates(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Synth.CompilerCandidates) == 0 {
		t.Error("expected default compiler candidates to be applied")
	}
	if cfg.Synth.CompiledDir == "" {
		t.Error("expected a default compiled_dir to be applied")
	}
}
