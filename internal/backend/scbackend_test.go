package backend

import (
	"testing"
	"time"

	"github.com/mohsenil85/imbolc-engine/pkg/control"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// recordingTransport is a minimal control.Transport stub that records every
// message/bundle it was asked to send.
type recordingTransport struct {
	sent    []control.Message
	bundles []control.Bundle
}

func (r *recordingTransport) Send(msg control.Message) error {
	r.sent = append(r.sent, msg)
	return nil
}
func (r *recordingTransport) SendBundle(b control.Bundle) error {
	r.bundles = append(r.bundles, b)
	return nil
}
func (r *recordingTransport) SendUnitCmd(types.NodeId, int32, string, []control.Atom) error {
	return nil
}
func (r *recordingTransport) Notify() error                                 { return nil }
func (r *recordingTransport) MasterPeak() control.PeakLevels                { return control.PeakLevels{} }
func (r *recordingTransport) InputWaveform(types.InstrumentId) []float32    { return nil }
func (r *recordingTransport) Close() error                                 { return nil }

func TestScBackend_CreateSynth_SendsExpectedMessage(t *testing.T) {
	t.Parallel()
	rt := &recordingTransport{}
	b := NewScBackend(rt)

	err := b.CreateSynth("imbolc_osc", types.NodeId(10), types.GroupId(1), []Param{
		{Name: "freq", Value: 440},
	})
	if err != nil {
		t.Fatalf("CreateSynth: %v", err)
	}
	if len(rt.sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(rt.sent))
	}
	msg := rt.sent[0]
	if msg.Address != "/s_new" {
		t.Errorf("address = %q, want /s_new", msg.Address)
	}
	if msg.Args[0].S != "imbolc_osc" || msg.Args[1].I != 10 || msg.Args[3].I != 1 {
		t.Errorf("unexpected args: %+v", msg.Args)
	}
}

func TestScBackend_CreateGroup_AddAfterSelectsAddAction(t *testing.T) {
	t.Parallel()
	rt := &recordingTransport{}
	b := NewScBackend(rt)

	if err := b.CreateGroup(types.NodeId(5), types.NodeId(1), true); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if got := rt.sent[0].Args[1].I; got != 3 {
		t.Errorf("add action = %d, want 3 (addAfter)", got)
	}

	rt.sent = nil
	if err := b.CreateGroup(types.NodeId(5), types.NodeId(1), false); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if got := rt.sent[0].Args[1].I; got != 1 {
		t.Errorf("add action = %d, want 1 (addToTail)", got)
	}
}

func TestScBackend_SendBundle_TranslatesEachOp(t *testing.T) {
	t.Parallel()
	rt := &recordingTransport{}
	b := NewScBackend(rt)
	now := time.Unix(0, 0)

	ops := []Op{
		{Kind: OpAllocBuffer, Bufnum: 900, Frames: 1024, Channels: 2},
		{Kind: OpFreeNode, Node: types.NodeId(3)},
		{Kind: OpSendRaw, Address: "/b_close", Args: []RawArg{control.Int(900)}},
	}
	if err := b.SendBundle(ops, now); err != nil {
		t.Fatalf("SendBundle: %v", err)
	}
	if len(rt.bundles) != 1 {
		t.Fatalf("got %d bundles, want 1", len(rt.bundles))
	}
	msgs := rt.bundles[0].Messages
	if len(msgs) != 3 {
		t.Fatalf("got %d messages in bundle, want 3", len(msgs))
	}
	if msgs[0].Address != "/b_alloc" || msgs[1].Address != "/n_free" || msgs[2].Address != "/b_close" {
		t.Errorf("unexpected bundle addresses: %q %q %q", msgs[0].Address, msgs[1].Address, msgs[2].Address)
	}
}

func TestScBackend_SendBundle_UnknownOpKindErrors(t *testing.T) {
	t.Parallel()
	rt := &recordingTransport{}
	b := NewScBackend(rt)

	err := b.SendBundle([]Op{{Kind: OpKind(99)}}, time.Unix(0, 0))
	if err == nil {
		t.Fatal("expected an error for an unknown op kind")
	}
}

func TestScBackend_SetParams_EncodesNameValuePairs(t *testing.T) {
	t.Parallel()
	rt := &recordingTransport{}
	b := NewScBackend(rt)

	err := b.SetParams(types.NodeId(7), []Param{{Name: "amp", Value: 0.5}, {Name: "pan", Value: -1}})
	if err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	args := rt.sent[0].Args
	if args[1].S != "amp" || args[2].F != 0.5 || args[3].S != "pan" || args[4].F != -1 {
		t.Errorf("unexpected args: %+v", args)
	}
}
