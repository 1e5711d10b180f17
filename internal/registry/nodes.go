// Package registry holds the engine's central node/bus/buffer identity
// maps: the single source of truth for which server-side handles back which
// instrument, bus, send, and voice. Every other package refers to these
// entities by stable id and resolves live node handles only through here.
package registry

import "github.com/mohsenil85/imbolc-engine/pkg/types"

// InstrumentNodes is the set of live node handles backing one instrument.
// A nil pointer means the stage is absent for this instrument's declared
// chain; Output is always present once the instrument has been routed.
type InstrumentNodes struct {
	Source  *types.NodeId
	Lfo     *types.NodeId
	Filter  *types.NodeId
	Eq      *types.NodeId
	Effects []types.NodeId // enabled effects only, in declared order
	Output  types.NodeId
}

// AllNodeIDs returns every live node id in this instrument's chain.
func (n InstrumentNodes) AllNodeIDs() []types.NodeId {
	ids := make([]types.NodeId, 0, 4+len(n.Effects))
	if n.Source != nil {
		ids = append(ids, *n.Source)
	}
	if n.Lfo != nil {
		ids = append(ids, *n.Lfo)
	}
	if n.Filter != nil {
		ids = append(ids, *n.Filter)
	}
	if n.Eq != nil {
		ids = append(ids, *n.Eq)
	}
	ids = append(ids, n.Effects...)
	ids = append(ids, n.Output)
	return ids
}

// sendKey identifies one send synth by its source instrument and
// destination bus.
type sendKey struct {
	inst types.InstrumentId
	bus  types.BusId
}

// VoiceChain is one active or releasing polyphonic instance.
type VoiceChain struct {
	InstrumentID  types.InstrumentId
	Pitch         uint8
	Velocity      float32
	GroupID       types.NodeId // the voice's private group
	SourceNode    types.NodeId
	SpawnTime     int64 // unix nanoseconds
	ReleaseState  *ReleaseState
}

// ReleaseState records when a voice entered release and for how long its
// tail should ring before being reaped.
type ReleaseState struct {
	ReleasedAt      int64 // unix nanoseconds
	ReleaseSeconds  float32
}

// Released reports whether the voice has begun its release tail.
func (v VoiceChain) Released() bool { return v.ReleaseState != nil }
