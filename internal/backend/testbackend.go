package backend

import (
	"sync"
	"time"

	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// Compile-time interface assertions.
var (
	_ AudioBackend = (*TestBackend)(nil)
	_ AudioBackend = (*NullBackend)(nil)
)

// TestOp is one recorded call against a [TestBackend].
type TestOp struct {
	Kind     OpKind
	Group    types.GroupId
	Node     types.NodeId
	Target   types.NodeId
	AddAfter bool
	Def      string
	Params   []Param
	Bufnum   int32
	Frames   int32
	Channels int32
	Path     string
	Name     string
	Value    float32
	Address  string
	Args     []RawArg
	At       time.Time
	UgenIndex int32
}

// TestBackend records every call it receives instead of dispatching to a
// real server, so routing/voice/automation/playback tests can assert
// against the exact sequence and shape of operations issued.
type TestBackend struct {
	mu  sync.Mutex
	ops []TestOp
}

// NewTestBackend returns a ready-to-use [TestBackend].
func NewTestBackend() *TestBackend {
	return &TestBackend{}
}

func (b *TestBackend) record(op TestOp) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, op)
}

func (b *TestBackend) CreateGroup(node types.NodeId, target types.NodeId, addAfter bool) error {
	b.record(TestOp{Kind: OpCreateGroup, Node: node, Target: target, AddAfter: addAfter})
	return nil
}

func (b *TestBackend) CreateSynth(def string, node types.NodeId, group types.GroupId, params []Param) error {
	b.record(TestOp{Kind: OpCreateSynth, Def: def, Node: node, Group: group, Params: params})
	return nil
}

func (b *TestBackend) FreeNode(node types.NodeId) error {
	b.record(TestOp{Kind: OpFreeNode, Node: node})
	return nil
}

func (b *TestBackend) SetParam(node types.NodeId, name string, value float32) error {
	b.record(TestOp{Kind: OpSetParam, Node: node, Name: name, Value: value})
	return nil
}

func (b *TestBackend) SetParams(node types.NodeId, params []Param) error {
	b.record(TestOp{Kind: OpSetParams, Node: node, Params: params})
	return nil
}

func (b *TestBackend) AllocBuffer(bufnum int32, frames int32, channels int32) error {
	b.record(TestOp{Kind: OpAllocBuffer, Bufnum: bufnum, Frames: frames, Channels: channels})
	return nil
}

func (b *TestBackend) LoadBuffer(bufnum int32, path string) error {
	b.record(TestOp{Kind: OpLoadBuffer, Bufnum: bufnum, Path: path})
	return nil
}

func (b *TestBackend) FreeBuffer(bufnum int32) error {
	b.record(TestOp{Kind: OpFreeBuffer, Bufnum: bufnum})
	return nil
}

func (b *TestBackend) SendRaw(address string, args []RawArg) error {
	b.record(TestOp{Kind: OpSendRaw, Address: address, Args: args})
	return nil
}

func (b *TestBackend) SendUnitCmd(node types.NodeId, ugenIndex int32, cmd string, args []RawArg) error {
	b.record(TestOp{Kind: OpSendUnitCmd, Node: node, UgenIndex: ugenIndex, Name: cmd, Args: args})
	return nil
}

func (b *TestBackend) SendBundle(ops []Op, at time.Time) error {
	for _, op := range ops {
		b.record(TestOp{
			Kind: op.Kind, Group: op.Group, Node: op.Node, Target: op.Target, AddAfter: op.AddAfter,
			Def: op.Def, Params: op.Params, Bufnum: op.Bufnum, Frames: op.Frames, Channels: op.Channels,
			Path: op.Path, Name: op.Name, Value: op.Value, Address: op.Address, Args: op.Args, At: at,
		})
	}
	return nil
}

// Operations returns a snapshot of every recorded operation, in call order.
func (b *TestBackend) Operations() []TestOp {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]TestOp, len(b.ops))
	copy(out, b.ops)
	return out
}

// Clear discards every recorded operation.
func (b *TestBackend) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = nil
}

// Count returns how many recorded operations satisfy predicate.
func (b *TestBackend) Count(predicate func(TestOp) bool) int {
	n := 0
	for _, op := range b.Operations() {
		if predicate(op) {
			n++
		}
	}
	return n
}

// Find returns the first recorded operation satisfying predicate, if any.
func (b *TestBackend) Find(predicate func(TestOp) bool) (TestOp, bool) {
	for _, op := range b.Operations() {
		if predicate(op) {
			return op, true
		}
	}
	return TestOp{}, false
}

// SynthsCreated returns every CreateSynth operation, in call order.
func (b *TestBackend) SynthsCreated() []TestOp {
	var out []TestOp
	for _, op := range b.Operations() {
		if op.Kind == OpCreateSynth {
			out = append(out, op)
		}
	}
	return out
}

// NodesFreed returns the node id of every FreeNode operation, in call order.
func (b *TestBackend) NodesFreed() []types.NodeId {
	var out []types.NodeId
	for _, op := range b.Operations() {
		if op.Kind == OpFreeNode {
			out = append(out, op.Node)
		}
	}
	return out
}

// NullBackend accepts and discards every operation. Used where a backend is
// required but observation is unnecessary (e.g. a disconnected handle).
type NullBackend struct{}

func (NullBackend) CreateGroup(types.NodeId, types.NodeId, bool) error                  { return nil }
func (NullBackend) CreateSynth(string, types.NodeId, types.GroupId, []Param) error      { return nil }
func (NullBackend) FreeNode(types.NodeId) error                                         { return nil }
func (NullBackend) SetParam(types.NodeId, string, float32) error                        { return nil }
func (NullBackend) SetParams(types.NodeId, []Param) error                               { return nil }
func (NullBackend) AllocBuffer(int32, int32, int32) error                               { return nil }
func (NullBackend) LoadBuffer(int32, string) error                                      { return nil }
func (NullBackend) FreeBuffer(int32) error                                              { return nil }
func (NullBackend) SendRaw(string, []RawArg) error                                      { return nil }
func (NullBackend) SendUnitCmd(types.NodeId, int32, string, []RawArg) error             { return nil }
func (NullBackend) SendBundle([]Op, time.Time) error                                    { return nil }
