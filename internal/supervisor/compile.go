package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"

	"golang.org/x/sync/singleflight"
)

// synthDefNameRe matches SynthDef("name", ...) and SynthDef(\name, ...)
// declarations inside a .sc source file.
var synthDefNameRe = regexp.MustCompile(`SynthDef\s*\(\s*[\\"]([\w]+)`)

// CompileResult is delivered by PollCompileResult once a compile completes.
type CompileResult struct {
	OK      bool
	Message string
}

// CompileSynthDefs starts compiling sourcePath's SynthDef declarations into
// compiledDir if any are stale, or completes immediately if every declared
// SynthDef already has a compiled artifact newer than the source. A call
// made while an earlier compile's result has not yet been collected by
// PollCompileResult fails with "compilation already in progress"; the worker
// runs the compiler through singleflight keyed on sourcePath.
func (s *Supervisor) CompileSynthDefs(sourcePath string) error {
	s.mu.Lock()
	if s.compiling {
		s.mu.Unlock()
		return fmt.Errorf("compilation already in progress")
	}
	if _, err := os.Stat(sourcePath); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("file not found: %s", sourcePath)
	}
	s.compiling = true
	ch := make(chan CompileResult, 1)
	s.compileCh = ch
	s.mu.Unlock()

	if synthDefsAreFresh(sourcePath, s.cfg.Synth.CompiledDir) {
		ch <- CompileResult{OK: true, Message: "Synthdefs up-to-date, skipped compilation"}
		return nil
	}

	go func() {
		_, err, _ := s.compileGroup.Do(sourcePath, func() (interface{}, error) {
			return nil, runCompiler(s.cfg.Synth.CompilerCandidates, sourcePath)
		})
		if err != nil {
			ch <- CompileResult{OK: false, Message: err.Error()}
			return
		}
		ch <- CompileResult{OK: true, Message: "Synthdefs compiled successfully"}
	}()

	return nil
}

// PollCompileResult returns the most recent compile outcome without
// blocking. The second return value is false when no compile is in flight
// or none has finished yet.
func (s *Supervisor) PollCompileResult() (CompileResult, bool) {
	s.mu.Lock()
	ch := s.compileCh
	s.mu.Unlock()

	if ch == nil {
		return CompileResult{}, false
	}

	select {
	case res, ok := <-ch:
		s.mu.Lock()
		s.compiling = false
		s.compileCh = nil
		s.mu.Unlock()
		if !ok {
			return CompileResult{OK: false, Message: "compilation channel closed unexpectedly"}, true
		}
		return res, true
	default:
		return CompileResult{}, false
	}
}

// synthDefsAreFresh reports whether every SynthDef declared in sourcePath
// has a .scsyndef artifact in compiledDir newer than sourcePath itself.
func synthDefsAreFresh(sourcePath, compiledDir string) bool {
	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return false
	}

	content, err := os.ReadFile(sourcePath)
	if err != nil {
		return false
	}

	matches := synthDefNameRe.FindAllStringSubmatch(string(content), -1)
	if len(matches) == 0 {
		return false
	}

	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		seen[m[1]] = true
	}

	for name := range seen {
		defPath := filepath.Join(compiledDir, name+".scsyndef")
		defInfo, err := os.Stat(defPath)
		if err != nil {
			return false
		}
		if !defInfo.ModTime().After(srcInfo.ModTime()) {
			return false
		}
	}

	return true
}

// runCompiler searches candidates for an sclang-equivalent executable and
// runs it against sourcePath, returning an error describing the failure
// (including compiler stderr) if every candidate fails or none is found.
func runCompiler(candidates []string, sourcePath string) error {
	var lastErr error
	for _, candidate := range candidates {
		cmd := exec.Command(candidate, sourcePath)
		out, err := cmd.CombinedOutput()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("compilation failed: %s", string(out))
	}
	if lastErr != nil {
		return lastErr
	}
	return fmt.Errorf("could not find a synth-def compiler executable")
}
