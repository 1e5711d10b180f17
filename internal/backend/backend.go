// Package backend exposes the semantic server operations used by the
// routing builder, voice allocator, automation engine, and playback ticker.
// None of those packages talk to a [control.Transport] directly; they talk
// only to an [AudioBackend], which keeps them testable without a socket.
package backend

import (
	"time"

	"github.com/mohsenil85/imbolc-engine/pkg/control"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// RawArg is a backend-level argument, mirroring [control.Atom] without
// importing the transport package's wire concerns into call sites.
type RawArg = control.Atom

// Param is one keyword parameter passed to create_synth/set_param.
type Param struct {
	Name  string
	Value float32
}

// AudioBackend is the polymorphic interface every subsystem above the
// transport depends on.
type AudioBackend interface {
	// CreateGroup creates a new group node under target, executing after it
	// if addAfter is set, else at its tail. Unlike the other creation
	// calls, the caller supplies the node id: the four fixed execution
	// groups use their well-known [types.GroupId] values as node ids, while
	// dynamically created groups (one per voice) use freshly allocated ids.
	CreateGroup(node types.NodeId, target types.NodeId, addAfter bool) error

	// CreateSynth instantiates def in group with the given keyword params.
	CreateSynth(def string, node types.NodeId, group types.GroupId, params []Param) error

	// FreeNode frees a node. Freeing an already-freed or unknown node is not
	// an error: the server may have already reaped it on crash.
	FreeNode(node types.NodeId) error

	// SetParam sets a single parameter on a live node.
	SetParam(node types.NodeId, name string, value float32) error

	// SetParams sets a batch of parameters on a live node in one operation.
	SetParams(node types.NodeId, params []Param) error

	// AllocBuffer reserves a buffer of the given frame/channel size at bufnum.
	AllocBuffer(bufnum int32, frames int32, channels int32) error

	// LoadBuffer loads a sample file into bufnum.
	LoadBuffer(bufnum int32, path string) error

	// FreeBuffer releases a previously allocated or loaded buffer.
	FreeBuffer(bufnum int32) error

	// SendRaw transmits an arbitrary addressed message, for operations with
	// no dedicated method (notify registration and similar one-offs).
	SendRaw(address string, args []RawArg) error

	// SendUnitCmd targets a command at one DSP unit within a running synth,
	// used for VST parameter automation.
	SendUnitCmd(node types.NodeId, ugenIndex int32, cmd string, args []RawArg) error

	// SendBundle transmits a set of operations for atomic application at
	// the given dispatch time. A zero Time means "immediate".
	SendBundle(ops []Op, at time.Time) error
}

// OpKind tags the operation carried by an [Op] inside a bundle.
type OpKind int

const (
	OpCreateGroup OpKind = iota
	OpCreateSynth
	OpFreeNode
	OpSetParam
	OpSetParams
	OpAllocBuffer
	OpLoadBuffer
	OpFreeBuffer
	OpSendRaw
	OpSendUnitCmd
)

// Op is one bundled operation, used so a sequence of heterogeneous calls
// (alloc+write+create-synth, free+close, a frame's worth of note-ons) can be
// dispatched atomically via [AudioBackend.SendBundle].
type Op struct {
	Kind    OpKind
	Group   types.GroupId
	Node    types.NodeId
	Target  types.NodeId
	AddAfter bool
	Def     string
	Params  []Param
	Bufnum  int32
	Frames  int32
	Channels int32
	Path    string
	Name    string
	Value   float32
	Address string
	Args    []RawArg
}
