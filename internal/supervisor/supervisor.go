// Package supervisor owns the synthesis server's process lifecycle: spawn,
// health polling, connect/disconnect of the control transport, and graceful
// stop. It never talks to the routing or voice layers directly; callers
// that need to free nodes or buffers on disconnect pass a [backend.AudioBackend]
// and a [registry.Registry] in explicitly.
package supervisor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/mohsenil85/imbolc-engine/internal/backend"
	"github.com/mohsenil85/imbolc-engine/internal/config"
	"github.com/mohsenil85/imbolc-engine/internal/enginerr"
	"github.com/mohsenil85/imbolc-engine/internal/registry"
	"github.com/mohsenil85/imbolc-engine/internal/resilience"
	"github.com/mohsenil85/imbolc-engine/pkg/control"
	"github.com/mohsenil85/imbolc-engine/pkg/control/scnet"
	"golang.org/x/sync/singleflight"
)

// State is the supervisor's lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// startupSettle is how long Start waits before checking whether the child
// exited immediately (a fast crash, typically a bad device argument).
const startupSettle = 500 * time.Millisecond

// dialFunc abstracts control.Transport construction so tests can substitute
// a fake without opening a real socket.
type dialFunc func(addr string) (control.Transport, error)

// Supervisor manages the scsynth child process and, once connected, the
// control transport talking to it.
type Supervisor struct {
	cfg  *config.Config
	dial dialFunc

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	exitCh    chan error
	logFile   *os.File
	transport control.Transport

	compileGroup singleflight.Group
	compiling    bool
	compileCh    chan CompileResult

	connectBreaker *resilience.CircuitBreaker
}

// New creates a Supervisor in [StateStopped] using cfg's server settings.
func New(cfg *config.Config) *Supervisor {
	return &Supervisor{
		cfg:  cfg,
		dial: func(addr string) (control.Transport, error) { return scnet.Dial(addr) },
		connectBreaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name: "synth-server-connect",
		}),
		state: StateStopped,
	}
}

// State reports the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start spawns the scsynth child process. inputDevice/outputDevice are
// passed through as -H arguments when non-empty; device resolution and
// enumeration are the caller's responsibility. Returns [enginerr.ServerBusy]
// if a process already exists, [enginerr.ExecutableNotFound] if no candidate
// path could be spawned, and [enginerr.ServerCrashed] if the child exited
// within the startup settle window.
func (s *Supervisor) Start(inputDevice, outputDevice string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		return enginerr.New(enginerr.ServerBusy, "server already running")
	}
	s.state = StateStarting

	args := []string{"-u", fmt.Sprintf("%d", s.cfg.Server.Port)}
	switch {
	case inputDevice != "" && outputDevice != "" && inputDevice != outputDevice:
		args = append(args, "-H", inputDevice, outputDevice)
	case inputDevice != "":
		args = append(args, "-H", inputDevice)
	case outputDevice != "":
		args = append(args, "-H", outputDevice)
	}

	logPath := filepath.Join(s.cfg.Server.LogDir, "scsynth.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		s.state = StateError
		return enginerr.Wrap(enginerr.ExecutableNotFound, "create log dir", err)
	}
	logFile, err := os.Create(logPath)
	if err != nil {
		s.state = StateError
		return enginerr.Wrap(enginerr.ExecutableNotFound, "create log file", err)
	}

	var cmd *exec.Cmd
	for _, candidate := range s.cfg.Server.ExecutableCandidates {
		c := exec.Command(candidate, args...)
		c.Stdout = logFile
		c.Stderr = logFile
		if err := c.Start(); err == nil {
			cmd = c
			break
		}
	}
	if cmd == nil {
		logFile.Close()
		s.state = StateError
		return enginerr.New(enginerr.ExecutableNotFound,
			"could not start scsynth from any candidate path")
	}

	exitCh := make(chan error, 1)
	go func() { exitCh <- cmd.Wait() }()

	time.Sleep(startupSettle)

	select {
	case err := <-exitCh:
		s.state = StateError
		logFile.Close()
		return enginerr.Wrap(enginerr.ServerCrashed,
			fmt.Sprintf("scsynth exited during startup, see %s", logPath), err)
	default:
	}

	s.cmd = cmd
	s.exitCh = exitCh
	s.logFile = logFile
	s.state = StateRunning
	return nil
}

// CheckHealth polls the child process without blocking. It reports whether
// the process has exited since the last call; on a true return the
// supervisor has already torn down its own process and transport state, but
// the caller (the audio owner) is still responsible for invalidating the
// node registry and emitting a crash feedback event.
func (s *Supervisor) CheckHealth() (crashed bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil {
		return false, ""
	}

	select {
	case err := <-s.exitCh:
		s.cmd = nil
		s.exitCh = nil
		if s.logFile != nil {
			s.logFile.Close()
			s.logFile = nil
		}
		if s.transport != nil {
			s.transport.Close()
			s.transport = nil
		}
		s.state = StateError
		return true, fmt.Sprintf("scsynth exited: %v", err)
	default:
		return false, ""
	}
}

// Connect opens the control transport to addr and registers for node
// lifecycle and meter notifications. Repeated dial/notify failures trip a
// circuit breaker so a server that is down or unreachable does not get
// hammered with reconnect attempts; while the breaker is open, Connect
// fails fast with [enginerr.TransportError] instead of dialing.
func (s *Supervisor) Connect(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var transport control.Transport
	err := s.connectBreaker.Execute(func() error {
		t, dialErr := s.dial(addr)
		if dialErr != nil {
			return dialErr
		}
		if notifyErr := t.Notify(); notifyErr != nil {
			t.Close()
			return notifyErr
		}
		transport = t
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return enginerr.Wrap(enginerr.TransportError, "connect "+addr+" (circuit open)", err)
		}
		return enginerr.Wrap(enginerr.TransportError, "dial "+addr, err)
	}

	s.transport = transport
	s.state = StateConnected
	return nil
}

// Transport returns the current control transport, or nil if not connected.
func (s *Supervisor) Transport() control.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// Disconnect frees every tracked node and buffer through be, resets reg,
// closes the transport, and falls back to [StateRunning] if the child
// process is still alive or [StateStopped] otherwise. Disconnecting when
// already disconnected is a no-op.
func (s *Supervisor) Disconnect(be backend.AudioBackend, reg *registry.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.transport == nil {
		return
	}

	if reg.MeterNode != nil {
		_ = be.FreeNode(*reg.MeterNode)
	}
	for _, n := range reg.AnalysisNodes {
		_ = be.FreeNode(n)
	}
	for _, nodes := range reg.Instruments {
		for _, n := range nodes.AllNodeIDs() {
			_ = be.FreeNode(n)
		}
	}
	for _, n := range reg.BusNodes {
		_ = be.FreeNode(n)
	}
	for _, n := range reg.SendNodes {
		_ = be.FreeNode(n)
	}
	for _, v := range reg.Voices {
		_ = be.FreeNode(v.SourceNode)
		_ = be.FreeNode(v.GroupID)
	}
	for _, bufnum := range reg.Buffers {
		_ = be.FreeBuffer(bufnum)
	}

	reg.Reset()

	s.transport.Close()
	s.transport = nil

	if s.cmd != nil {
		s.state = StateRunning
	} else {
		s.state = StateStopped
	}
}

// Stop disconnects (if connected) and kills the child process, reaping it.
// The caller is responsible for stopping any active recording first.
func (s *Supervisor) Stop(be backend.AudioBackend, reg *registry.Registry) {
	s.Disconnect(be, reg)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil {
		_ = s.cmd.Process.Kill()
		<-s.exitCh
		s.cmd = nil
		s.exitCh = nil
	}
	if s.logFile != nil {
		s.logFile.Close()
		s.logFile = nil
	}
	s.state = StateStopped
}
