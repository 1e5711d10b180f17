package registry

import (
	"testing"

	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

func TestSendNode_RoundTrips(t *testing.T) {
	t.Parallel()
	r := New()
	r.SetSendNode(1, 2, types.NodeId(50))

	node, ok := r.SendNode(1, 2)
	if !ok || node != 50 {
		t.Errorf("got (%v, %v), want (50, true)", node, ok)
	}

	if _, ok := r.SendNode(1, 3); ok {
		t.Error("expected no send node for an unconfigured (inst, bus) pair")
	}
}

func TestResetRouting_PreservesVoicesAndFlags(t *testing.T) {
	t.Parallel()
	r := New()
	r.Instruments[1] = InstrumentNodes{Output: types.NodeId(1)}
	r.GroupsCreated = true
	r.WavetablesLoaded = true
	r.Voices = append(r.Voices, VoiceChain{InstrumentID: 1, Pitch: 60})

	r.ResetRouting()

	if len(r.Instruments) != 0 {
		t.Error("expected routing maps to be cleared")
	}
	if !r.GroupsCreated || !r.WavetablesLoaded {
		t.Error("expected groups-created/wavetables-loaded flags to survive a routing reset")
	}
	if len(r.Voices) != 1 {
		t.Error("expected voices to survive a routing reset")
	}
}

func TestReset_ClearsEverything(t *testing.T) {
	t.Parallel()
	r := New()
	r.Instruments[1] = InstrumentNodes{Output: types.NodeId(1)}
	r.GroupsCreated = true
	r.Voices = append(r.Voices, VoiceChain{InstrumentID: 1, Pitch: 60})
	meter := types.NodeId(9)
	r.MeterNode = &meter

	r.Reset()

	if len(r.Instruments) != 0 || r.GroupsCreated || len(r.Voices) != 0 || r.MeterNode != nil {
		t.Errorf("expected a full reset, got %+v", r)
	}
}

func TestActiveVoiceCount_ExcludesReleased(t *testing.T) {
	t.Parallel()
	r := New()
	r.Voices = []VoiceChain{
		{InstrumentID: 1, Pitch: 60},
		{InstrumentID: 1, Pitch: 62, ReleaseState: &ReleaseState{ReleaseSeconds: 0.2}},
		{InstrumentID: 2, Pitch: 64},
	}

	if got := r.ActiveVoiceCount(1); got != 1 {
		t.Errorf("got %d active voices, want 1", got)
	}
}

func TestVoicesForInstrument_IncludesReleased(t *testing.T) {
	t.Parallel()
	r := New()
	r.Voices = []VoiceChain{
		{InstrumentID: 1, Pitch: 60},
		{InstrumentID: 1, Pitch: 62, ReleaseState: &ReleaseState{ReleaseSeconds: 0.2}},
		{InstrumentID: 2, Pitch: 64},
	}

	got := r.VoicesForInstrument(1)
	if len(got) != 2 {
		t.Fatalf("got %d voices, want 2", len(got))
	}
}
