// Package voice implements bounded polyphony per instrument with a
// deterministic steal policy, release-tail bookkeeping, and expired-voice
// cleanup.
package voice

import (
	"math"
	"time"

	"github.com/mohsenil85/imbolc-engine/internal/backend"
	"github.com/mohsenil85/imbolc-engine/internal/enginerr"
	"github.com/mohsenil85/imbolc-engine/internal/registry"
	"github.com/mohsenil85/imbolc-engine/pkg/session"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// Allocator owns spawn/release/steal/cleanup for every instrument's voices.
// It does not itself track wall-clock time: callers supply `now` so tests
// can drive deterministic scenarios.
type Allocator struct {
	backend  backend.AudioBackend
	registry *registry.Registry

	nextNodeID int32

	// ShortReleaseTail is the fixed release duration release_all_voices
	// assigns so the server naturally silences every voice.
	ShortReleaseTail float32
}

// New returns an [Allocator] writing into reg via be.
func New(be backend.AudioBackend, reg *registry.Registry) *Allocator {
	return &Allocator{backend: be, registry: reg, nextNodeID: 1000, ShortReleaseTail: 0.05}
}

func (a *Allocator) allocNode() types.NodeId {
	id := types.NodeId(a.nextNodeID)
	a.nextNodeID++
	return id
}

// SpawnVoice allocates a private group and source node for a new voice,
// applying the steal policy first if the instrument is at capacity or a
// same-pitch retrigger exists. offsetSeconds schedules the bundle's
// dispatch time as now+offsetSeconds so a batch of notes discovered in one
// frame land with correct relative sub-frame timing.
func (a *Allocator) SpawnVoice(inst *session.Instrument, pitch uint8, velocity float32, now time.Time, offsetSeconds float64) error {
	// In the real wiring a.backend is always the owner's liveBackend wrapper,
	// which is never nil and reports enginerr.NotConnected itself while no
	// backend is installed; this guard only matters for tests that construct
	// an Allocator directly with a nil backend.
	if a.backend == nil {
		return enginerr.New(enginerr.NotConnected, "spawn_voice: no backend installed")
	}

	if a.shouldSteal(inst.ID, pitch) {
		a.steal(inst.ID, pitch, now)
	}

	groupNode := a.allocNode()
	if err := a.backend.CreateGroup(groupNode, types.NodeId(types.GroupSources), false); err != nil {
		return classify(enginerr.BackendError, "spawn_voice: create group", err)
	}

	sourceNode := a.allocNode()
	params := envelopeParams(inst.Envelope)
	params = append(params,
		backend.Param{Name: "freq", Value: pitchToFreq(pitch)},
		backend.Param{Name: "amp", Value: velocity},
	)

	dispatchTime := now.Add(time.Duration(offsetSeconds * float64(time.Second)))
	ops := []backend.Op{{
		Kind: backend.OpCreateSynth, Def: inst.SourceDef, Node: sourceNode, Group: types.GroupSources, Params: params,
	}}
	if err := a.backend.SendBundle(ops, dispatchTime); err != nil {
		return classify(enginerr.BackendError, "spawn_voice: create synth", err)
	}

	a.registry.Voices = append(a.registry.Voices, registry.VoiceChain{
		InstrumentID: inst.ID,
		Pitch:        pitch,
		Velocity:     velocity,
		GroupID:      groupNode,
		SourceNode:   sourceNode,
		SpawnTime:    now.UnixNano(),
	})
	return nil
}

// shouldSteal reports whether capacity or a same-pitch retrigger requires
// freeing a voice before this spawn.
func (a *Allocator) shouldSteal(inst types.InstrumentId, pitch uint8) bool {
	if a.registry.ActiveVoiceCount(inst) >= types.MaxVoicesPerInstrument {
		return true
	}
	for _, v := range a.registry.VoicesForInstrument(inst) {
		if v.Pitch == pitch && !v.Released() {
			return true
		}
	}
	return false
}

// steal applies the deterministic steal policy for inst, freeing exactly
// one voice: same-pitch retrigger, else the released voice closest to the
// end of its tail, else the lowest-velocity active voice, ties broken by
// oldest spawn_time.
func (a *Allocator) steal(inst types.InstrumentId, pitch uint8, now time.Time) {
	voices := a.registry.VoicesForInstrument(inst)
	if len(voices) == 0 {
		return
	}

	victim := -1

	for i, v := range voices {
		if v.Pitch == pitch && !v.Released() {
			victim = i
			break
		}
	}

	if victim < 0 {
		bestRemaining := float64(0)
		found := false
		for i, v := range voices {
			if !v.Released() {
				continue
			}
			remaining := float64(v.ReleaseState.ReleaseSeconds) - now.Sub(time.Unix(0, v.ReleaseState.ReleasedAt)).Seconds()
			if !found || remaining < bestRemaining {
				bestRemaining = remaining
				victim = i
				found = true
			}
		}
	}

	if victim < 0 {
		bestVelocity := float32(0)
		bestSpawn := int64(0)
		found := false
		for i, v := range voices {
			if v.Released() {
				continue
			}
			if !found || v.Velocity < bestVelocity || (v.Velocity == bestVelocity && v.SpawnTime < bestSpawn) {
				bestVelocity = v.Velocity
				bestSpawn = v.SpawnTime
				victim = i
				found = true
			}
		}
	}

	if victim < 0 {
		return
	}

	target := voices[victim]
	a.freeVoiceByIdentity(target)
}

func (a *Allocator) freeVoiceByIdentity(target registry.VoiceChain) {
	all := a.registry.Voices
	for i, v := range all {
		if v.InstrumentID == target.InstrumentID && v.SourceNode == target.SourceNode {
			_ = a.backend.FreeNode(v.SourceNode)
			_ = a.backend.FreeNode(v.GroupID)
			a.registry.Voices = append(all[:i], all[i+1:]...)
			return
		}
	}
}

// ReleaseVoice finds the matching active voice for (inst, pitch) and moves
// it into its release tail, scheduling the gate-off message as a bundle
// dispatched at now+offsetSeconds so notes discovered in the same frame
// keep correct relative sub-frame timing.
func (a *Allocator) ReleaseVoice(inst types.InstrumentId, pitch uint8, releaseSeconds float32, now time.Time, offsetSeconds float64) error {
	for i := range a.registry.Voices {
		v := &a.registry.Voices[i]
		if v.InstrumentID == inst && v.Pitch == pitch && !v.Released() {
			v.ReleaseState = &registry.ReleaseState{ReleasedAt: now.UnixNano(), ReleaseSeconds: releaseSeconds}
			dispatchTime := now.Add(time.Duration(offsetSeconds * float64(time.Second)))
			ops := []backend.Op{{Kind: backend.OpSetParam, Node: v.SourceNode, Name: "gate", Value: 0}}
			return a.backend.SendBundle(ops, dispatchTime)
		}
	}
	return nil
}

// ReleaseAllVoices forces every active voice into a short fixed release
// tail so the server naturally silences them, used on stop/shutdown.
func (a *Allocator) ReleaseAllVoices(now time.Time) {
	for i := range a.registry.Voices {
		v := &a.registry.Voices[i]
		if !v.Released() {
			v.ReleaseState = &registry.ReleaseState{ReleasedAt: now.UnixNano(), ReleaseSeconds: a.ShortReleaseTail}
			_ = a.backend.SetParam(v.SourceNode, "gate", 0)
		}
	}
}

// Cleanup reaps every voice whose release tail has fully elapsed as of now.
func (a *Allocator) Cleanup(now time.Time) {
	kept := a.registry.Voices[:0]
	for _, v := range a.registry.Voices {
		if v.Released() {
			expiry := time.Unix(0, v.ReleaseState.ReleasedAt).Add(time.Duration(v.ReleaseState.ReleaseSeconds * float32(time.Second)))
			if !now.Before(expiry) {
				_ = a.backend.FreeNode(v.SourceNode)
				_ = a.backend.FreeNode(v.GroupID)
				continue
			}
		}
		kept = append(kept, v)
	}
	a.registry.Voices = kept
}

// classify wraps err as kind unless it is already enginerr.NotConnected, in
// which case it is returned unwrapped so callers (and ticker.go's active-note
// tracking) can still detect a disconnected backend through enginerr.Is
// instead of seeing it masked as a generic backend failure.
func classify(kind enginerr.Kind, message string, err error) error {
	if enginerr.Is(err, enginerr.NotConnected) {
		return err
	}
	return enginerr.Wrap(kind, message, err)
}

func envelopeParams(e session.Envelope) []backend.Param {
	return []backend.Param{
		{Name: "attack", Value: e.Attack},
		{Name: "decay", Value: e.Decay},
		{Name: "sustain", Value: e.Sustain},
		{Name: "release", Value: e.Release},
	}
}

// pitchToFreq converts a MIDI pitch to frequency in Hz (A4 = 69 = 440Hz).
func pitchToFreq(pitch uint8) float32 {
	return float32(440.0 * math.Pow(2, (float64(pitch)-69.0)/12.0))
}
