package handle

import (
	"sync"
	"time"

	"github.com/mohsenil85/imbolc-engine/internal/backend"
	"github.com/mohsenil85/imbolc-engine/internal/enginerr"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// liveBackend lets the routing builder, voice allocator, automation engine,
// recorder, and ticker be constructed once, at owner start-up, while the
// underlying transport comes and goes across connect/disconnect cycles. Set
// installs or clears the live backend; every other method delegates to it or
// reports [enginerr.NotConnected] when none is installed.
type liveBackend struct {
	mu      sync.Mutex
	current backend.AudioBackend
}

var _ backend.AudioBackend = (*liveBackend)(nil)

// Set installs be as the live backend, or clears it when be is nil.
func (l *liveBackend) Set(be backend.AudioBackend) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.current = be
}

func (l *liveBackend) get() (backend.AudioBackend, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil, enginerr.New(enginerr.NotConnected, "no backend installed")
	}
	return l.current, nil
}

func (l *liveBackend) CreateGroup(node types.NodeId, target types.NodeId, addAfter bool) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.CreateGroup(node, target, addAfter)
}

func (l *liveBackend) CreateSynth(def string, node types.NodeId, group types.GroupId, params []backend.Param) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.CreateSynth(def, node, group, params)
}

func (l *liveBackend) FreeNode(node types.NodeId) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.FreeNode(node)
}

func (l *liveBackend) SetParam(node types.NodeId, name string, value float32) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.SetParam(node, name, value)
}

func (l *liveBackend) SetParams(node types.NodeId, params []backend.Param) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.SetParams(node, params)
}

func (l *liveBackend) AllocBuffer(bufnum int32, frames int32, channels int32) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.AllocBuffer(bufnum, frames, channels)
}

func (l *liveBackend) LoadBuffer(bufnum int32, path string) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.LoadBuffer(bufnum, path)
}

func (l *liveBackend) FreeBuffer(bufnum int32) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.FreeBuffer(bufnum)
}

func (l *liveBackend) SendRaw(address string, args []backend.RawArg) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.SendRaw(address, args)
}

func (l *liveBackend) SendUnitCmd(node types.NodeId, ugenIndex int32, cmd string, args []backend.RawArg) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.SendUnitCmd(node, ugenIndex, cmd, args)
}

func (l *liveBackend) SendBundle(ops []backend.Op, at time.Time) error {
	be, err := l.get()
	if err != nil {
		return err
	}
	return be.SendBundle(ops, at)
}
