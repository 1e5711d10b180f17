package registry

import (
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// Registry is the central map of everything the routing builder, voice
// allocator, and automation engine must agree on: which nodes back which
// instrument, which audio bus a [types.BusId] resolves to, which node a
// send or bus mixer lives at, and which server bufnum a [types.BufferId]
// was loaded into.
//
// Registry is not safe for concurrent use; it is owned exclusively by the
// audio-owner goroutine.
type Registry struct {
	Instruments        map[types.InstrumentId]InstrumentNodes
	BusNodes           map[types.BusId]types.NodeId
	SendNodes          map[sendKey]types.NodeId
	BusAudioIndex      map[types.BusId]int32
	InstrumentFinalBus map[types.InstrumentId]int32
	Buffers            map[types.BufferId]int32

	Voices []VoiceChain

	GroupsCreated      bool
	WavetablesLoaded   bool
	MeterNode          *types.NodeId
	AnalysisNodes      []types.NodeId

	Bus BusAllocator
}

// New returns an empty, ready-to-use [Registry].
func New() *Registry {
	return &Registry{
		Instruments:        make(map[types.InstrumentId]InstrumentNodes),
		BusNodes:           make(map[types.BusId]types.NodeId),
		SendNodes:          make(map[sendKey]types.NodeId),
		BusAudioIndex:      make(map[types.BusId]int32),
		InstrumentFinalBus: make(map[types.InstrumentId]int32),
		Buffers:            make(map[types.BufferId]int32),
		Bus:                NewBusAllocator(),
	}
}

// SendNode returns the send synth's node id for (inst, bus), if one exists.
func (r *Registry) SendNode(inst types.InstrumentId, bus types.BusId) (types.NodeId, bool) {
	n, ok := r.SendNodes[sendKey{inst, bus}]
	return n, ok
}

// SetSendNode records the send synth's node id for (inst, bus).
func (r *Registry) SetSendNode(inst types.InstrumentId, bus types.BusId, node types.NodeId) {
	r.SendNodes[sendKey{inst, bus}] = node
}

// ResetRouting clears only the routing-derived maps and the bus allocator,
// used between rebuilds. Unlike Reset, it preserves voices and the
// groups-created/wavetables-loaded flags, since a routing rebuild does not
// imply a disconnect.
func (r *Registry) ResetRouting() {
	r.Instruments = make(map[types.InstrumentId]InstrumentNodes)
	r.BusNodes = make(map[types.BusId]types.NodeId)
	r.SendNodes = make(map[sendKey]types.NodeId)
	r.BusAudioIndex = make(map[types.BusId]int32)
	r.InstrumentFinalBus = make(map[types.InstrumentId]int32)
	r.Bus = NewBusAllocator()
}

// Reset clears every map and resets the bus allocator, as happens on
// disconnect: all node identity the registry held is no longer valid.
func (r *Registry) Reset() {
	r.Instruments = make(map[types.InstrumentId]InstrumentNodes)
	r.BusNodes = make(map[types.BusId]types.NodeId)
	r.SendNodes = make(map[sendKey]types.NodeId)
	r.BusAudioIndex = make(map[types.BusId]int32)
	r.InstrumentFinalBus = make(map[types.InstrumentId]int32)
	r.Buffers = make(map[types.BufferId]int32)
	r.Voices = nil
	r.GroupsCreated = false
	r.WavetablesLoaded = false
	r.MeterNode = nil
	r.AnalysisNodes = nil
	r.Bus = NewBusAllocator()
}

// ActiveVoiceCount returns the number of non-released voices for inst.
func (r *Registry) ActiveVoiceCount(inst types.InstrumentId) int {
	n := 0
	for _, v := range r.Voices {
		if v.InstrumentID == inst && !v.Released() {
			n++
		}
	}
	return n
}

// VoicesForInstrument returns every voice (active or releasing) for inst.
func (r *Registry) VoicesForInstrument(inst types.InstrumentId) []VoiceChain {
	var out []VoiceChain
	for _, v := range r.Voices {
		if v.InstrumentID == inst {
			out = append(out, v)
		}
	}
	return out
}
