package voice

import (
	"testing"
	"time"

	"github.com/mohsenil85/imbolc-engine/internal/backend"
	"github.com/mohsenil85/imbolc-engine/internal/enginerr"
	"github.com/mohsenil85/imbolc-engine/internal/registry"
	"github.com/mohsenil85/imbolc-engine/pkg/session"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

func testInstrument() *session.Instrument {
	return &session.Instrument{ID: 1, SourceDef: "imbolc_osc", Envelope: session.Envelope{Attack: 0.01, Decay: 0.1, Sustain: 0.8, Release: 0.2}}
}

// disconnectedBackend mirrors handle.liveBackend with no backend installed
// for the first call SpawnVoice makes: CreateGroup reports
// enginerr.NotConnected; every other method is NullBackend's.
type disconnectedBackend struct{ backend.NullBackend }

func (disconnectedBackend) CreateGroup(types.NodeId, types.NodeId, bool) error {
	return enginerr.New(enginerr.NotConnected, "no backend installed")
}

func TestSpawnVoice_NoBackendReturnsNotConnected(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	a := New(nil, reg)

	err := a.SpawnVoice(testInstrument(), 60, 1.0, time.Unix(0, 0), 0)
	if !enginerr.Is(err, enginerr.NotConnected) {
		t.Errorf("got %v, want NotConnected", err)
	}
}

func TestSpawnVoice_DisconnectedBackendPropagatesNotConnectedUnwrapped(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	a := New(disconnectedBackend{}, reg)

	err := a.SpawnVoice(testInstrument(), 60, 0.9, time.Unix(0, 0), 0)
	if !enginerr.Is(err, enginerr.NotConnected) {
		t.Errorf("got %v, want an unwrapped NotConnected error", err)
	}
}

func TestSpawnVoice_RecordsVoiceAndCreatesNodes(t *testing.T) {
	t.Parallel()
	be := backend.NewTestBackend()
	reg := registry.New()
	a := New(be, reg)
	now := time.Unix(100, 0)

	if err := a.SpawnVoice(testInstrument(), 60, 0.9, now, 0); err != nil {
		t.Fatalf("SpawnVoice: %v", err)
	}
	if len(reg.Voices) != 1 {
		t.Fatalf("got %d voices, want 1", len(reg.Voices))
	}
	v := reg.Voices[0]
	if v.InstrumentID != 1 || v.Pitch != 60 || v.Velocity != 0.9 {
		t.Errorf("unexpected voice: %+v", v)
	}
	if n := be.Count(func(op backend.TestOp) bool { return op.Kind == backend.OpCreateGroup }); n != 1 {
		t.Errorf("got %d CreateGroup ops, want 1", n)
	}
	synths := be.SynthsCreated()
	if len(synths) != 1 || synths[0].Def != "imbolc_osc" {
		t.Errorf("unexpected synths created: %+v", synths)
	}
}

func TestSpawnVoice_SamePitchRetriggerSteals(t *testing.T) {
	t.Parallel()
	be := backend.NewTestBackend()
	reg := registry.New()
	a := New(be, reg)
	now := time.Unix(100, 0)

	if err := a.SpawnVoice(testInstrument(), 60, 0.9, now, 0); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if err := a.SpawnVoice(testInstrument(), 60, 0.9, now.Add(time.Millisecond), 0); err != nil {
		t.Fatalf("second spawn: %v", err)
	}

	if len(reg.Voices) != 1 {
		t.Fatalf("got %d voices after retrigger, want 1 (old one stolen)", len(reg.Voices))
	}
	if n := be.Count(func(op backend.TestOp) bool { return op.Kind == backend.OpFreeNode }); n != 2 {
		t.Errorf("got %d FreeNode ops, want 2 (group + source of stolen voice)", n)
	}
}

func TestSpawnVoice_AtCapacityStealsLowestVelocity(t *testing.T) {
	t.Parallel()
	be := backend.NewTestBackend()
	reg := registry.New()
	a := New(be, reg)
	now := time.Unix(100, 0)

	inst := testInstrument()
	for i := 0; i < types.MaxVoicesPerInstrument; i++ {
		velocity := float32(0.5)
		if i == 3 {
			velocity = 0.1
		}
		if err := a.SpawnVoice(inst, uint8(40+i), velocity, now.Add(time.Duration(i)*time.Millisecond), 0); err != nil {
			t.Fatalf("spawn %d: %v", i, err)
		}
	}
	if len(reg.Voices) != types.MaxVoicesPerInstrument {
		t.Fatalf("got %d voices, want %d", len(reg.Voices), types.MaxVoicesPerInstrument)
	}

	be.Clear()
	if err := a.SpawnVoice(inst, 90, 0.9, now.Add(100*time.Millisecond), 0); err != nil {
		t.Fatalf("spawn at capacity: %v", err)
	}
	if len(reg.Voices) != types.MaxVoicesPerInstrument {
		t.Fatalf("got %d voices after steal+spawn, want capacity preserved at %d", len(reg.Voices), types.MaxVoicesPerInstrument)
	}
	for _, v := range reg.Voices {
		if v.Pitch == 43 {
			t.Error("expected the lowest-velocity voice (pitch 43) to have been stolen")
		}
	}
}

func TestReleaseVoice_MarksReleasedAndSendsGateOff(t *testing.T) {
	t.Parallel()
	be := backend.NewTestBackend()
	reg := registry.New()
	a := New(be, reg)
	now := time.Unix(100, 0)

	if err := a.SpawnVoice(testInstrument(), 60, 0.9, now, 0); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	be.Clear()

	if err := a.ReleaseVoice(1, 60, 0.3, now.Add(time.Second), 0); err != nil {
		t.Fatalf("ReleaseVoice: %v", err)
	}
	if !reg.Voices[0].Released() {
		t.Error("expected the voice to be marked released")
	}
	op, found := be.Find(func(op backend.TestOp) bool { return op.Kind == backend.OpSetParam && op.Name == "gate" })
	if !found {
		t.Fatal("expected a gate set-param op")
	}
	if op.Value != 0 {
		t.Errorf("gate value = %v, want 0", op.Value)
	}
}

func TestReleaseAllVoices_ReleasesEveryActiveVoice(t *testing.T) {
	t.Parallel()
	be := backend.NewTestBackend()
	reg := registry.New()
	a := New(be, reg)
	now := time.Unix(100, 0)

	inst := testInstrument()
	_ = a.SpawnVoice(inst, 60, 0.9, now, 0)
	_ = a.SpawnVoice(inst, 62, 0.9, now.Add(time.Millisecond), 0)

	a.ReleaseAllVoices(now.Add(time.Second))

	for _, v := range reg.Voices {
		if !v.Released() {
			t.Errorf("expected voice %+v to be released", v)
		}
		if v.ReleaseState.ReleaseSeconds != a.ShortReleaseTail {
			t.Errorf("release tail = %v, want %v", v.ReleaseState.ReleaseSeconds, a.ShortReleaseTail)
		}
	}
}

func TestCleanup_ReapsExpiredReleasedVoices(t *testing.T) {
	t.Parallel()
	be := backend.NewTestBackend()
	reg := registry.New()
	a := New(be, reg)
	now := time.Unix(100, 0)

	inst := testInstrument()
	_ = a.SpawnVoice(inst, 60, 0.9, now, 0)
	_ = a.ReleaseVoice(1, 60, 0.2, now, 0)

	a.Cleanup(now.Add(50 * time.Millisecond))
	if len(reg.Voices) != 1 {
		t.Fatalf("got %d voices before tail elapsed, want 1 (not reaped yet)", len(reg.Voices))
	}

	a.Cleanup(now.Add(300 * time.Millisecond))
	if len(reg.Voices) != 0 {
		t.Fatalf("got %d voices after tail elapsed, want 0 (reaped)", len(reg.Voices))
	}
	if n := be.Count(func(op backend.TestOp) bool { return op.Kind == backend.OpFreeNode }); n != 2 {
		t.Errorf("got %d FreeNode ops, want 2 (group + source)", n)
	}
}
