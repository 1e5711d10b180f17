// Package routing rebuilds the registry's node graph from a declarative
// session snapshot: it is the only package that creates or frees signal-
// chain nodes, bus mixers, sends, and analysis synths.
package routing

import (
	"fmt"
	"sort"

	"github.com/mohsenil85/imbolc-engine/internal/backend"
	"github.com/mohsenil85/imbolc-engine/internal/registry"
	"github.com/mohsenil85/imbolc-engine/pkg/session"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// SynthDef names for the fixed analysis chain, created after every other
// output-group node on each rebuild.
const (
	defMeter    = "imbolc_meter"
	defSpectrum = "imbolc_spectrum"
	defLufs     = "imbolc_lufs_meter"
	defScope    = "imbolc_scope"
)

// Builder rebuilds per-instrument chains and bus/master/analysis nodes.
type Builder struct {
	backend  backend.AudioBackend
	registry *registry.Registry

	nextNodeID int32
}

// New returns a [Builder] writing into reg via backend.
func New(be backend.AudioBackend, reg *registry.Registry) *Builder {
	return &Builder{backend: be, registry: reg, nextNodeID: 1000}
}

func (b *Builder) allocNode() types.NodeId {
	id := types.NodeId(b.nextNodeID)
	b.nextNodeID++
	return id
}

// EnsureGroups creates the four fixed execution groups once, guarded by
// registry.GroupsCreated.
func (b *Builder) EnsureGroups() error {
	if b.registry.GroupsCreated {
		return nil
	}
	order := []types.GroupId{types.GroupSources, types.GroupProcessing, types.GroupOutput, types.GroupRecord}
	var prev types.NodeId
	for i, g := range order {
		node := types.NodeId(g)
		if err := b.backend.CreateGroup(node, prev, i > 0); err != nil {
			return fmt.Errorf("routing: create group %s: %w", g, err)
		}
		prev = node
	}
	b.registry.GroupsCreated = true
	return nil
}

// Rebuild frees every currently tracked node (ignoring failures, since the
// server may have already reaped them on crash) and recreates the entire
// chain for every instrument plus bus/master/analysis nodes.
func (b *Builder) Rebuild(sess *session.Session) error {
	if err := b.EnsureGroups(); err != nil {
		return err
	}
	b.freeAllTracked()
	b.registry.ResetRouting()

	ids := make([]types.InstrumentId, 0, len(sess.Instruments))
	for id := range sess.Instruments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := b.rebuildInstrument(sess, id, sess.Instruments[id]); err != nil {
			return fmt.Errorf("routing: instrument %d: %w", id, err)
		}
	}

	if err := b.rebuildBuses(sess); err != nil {
		return err
	}
	if err := b.RebuildAnalysis(); err != nil {
		return err
	}
	return nil
}

func (b *Builder) freeAllTracked() {
	for _, nodes := range b.registry.Instruments {
		for _, n := range nodes.AllNodeIDs() {
			_ = b.backend.FreeNode(n)
		}
	}
	for _, n := range b.registry.BusNodes {
		_ = b.backend.FreeNode(n)
	}
	if b.registry.MeterNode != nil {
		_ = b.backend.FreeNode(*b.registry.MeterNode)
	}
	for _, n := range b.registry.AnalysisNodes {
		_ = b.backend.FreeNode(n)
	}
}

func (b *Builder) rebuildInstrument(sess *session.Session, id types.InstrumentId, inst *session.Instrument) error {
	finalBus := b.registry.Bus.AllocAudioBus()
	b.registry.InstrumentFinalBus[id] = finalBus

	var nodes registry.InstrumentNodes
	currentBus := finalBus
	hasProcessing := inst.LfoEnabled || inst.HasFilter || inst.EqEnabled || enabledEffectCount(inst.Effects) > 0
	if hasProcessing {
		currentBus = b.registry.Bus.AllocAudioBus()
	}

	sourceNode := b.allocNode()
	sourceParams := paramMap(inst.Params)
	sourceParams = append(sourceParams, backend.Param{Name: "out", Value: float32(currentBus)})
	if err := b.backend.CreateSynth(inst.SourceDef, sourceNode, types.GroupSources, sourceParams); err != nil {
		return err
	}
	nodes.Source = &sourceNode

	readBus := currentBus
	writeBus := func(isLast bool) int32 {
		if isLast {
			return finalBus
		}
		return b.registry.Bus.AllocAudioBus()
	}

	if inst.LfoEnabled {
		node := b.allocNode()
		last := !(inst.HasFilter || inst.EqEnabled || enabledEffectCount(inst.Effects) > 0)
		out := writeBus(last)
		params := append(paramMap(inst.LfoParams), backend.Param{Name: "in", Value: float32(readBus)}, backend.Param{Name: "out", Value: float32(out)})
		if err := b.backend.CreateSynth("imbolc_lfo", node, types.GroupProcessing, params); err != nil {
			return err
		}
		nodes.Lfo = &node
		readBus = out
	}

	if inst.HasFilter {
		node := b.allocNode()
		last := !(inst.EqEnabled || enabledEffectCount(inst.Effects) > 0)
		out := writeBus(last)
		params := append(paramMap(inst.FilterParams), backend.Param{Name: "in", Value: float32(readBus)}, backend.Param{Name: "out", Value: float32(out)})
		if err := b.backend.CreateSynth(inst.FilterDef, node, types.GroupProcessing, params); err != nil {
			return err
		}
		nodes.Filter = &node
		readBus = out
	}

	if inst.EqEnabled {
		node := b.allocNode()
		last := enabledEffectCount(inst.Effects) == 0
		out := writeBus(last)
		params := append(paramMap(inst.EqParams), backend.Param{Name: "in", Value: float32(readBus)}, backend.Param{Name: "out", Value: float32(out)})
		if err := b.backend.CreateSynth("imbolc_eq", node, types.GroupProcessing, params); err != nil {
			return err
		}
		nodes.Eq = &node
		readBus = out
	}

	enabled := enabledEffects(inst.Effects)
	for i, eff := range enabled {
		node := b.allocNode()
		last := i == len(enabled)-1
		out := writeBus(last)
		params := b.effectParams(eff)
		params = append(params, backend.Param{Name: "in", Value: float32(readBus)}, backend.Param{Name: "out", Value: float32(out)})
		if err := b.backend.CreateSynth(eff.Def, node, types.GroupProcessing, params); err != nil {
			return err
		}
		nodes.Effects = append(nodes.Effects, node)
		readBus = out
	}

	for _, send := range inst.Sends {
		node := b.allocNode()
		destAudioBus := b.audioBusFor(send.Bus)
		params := []backend.Param{
			{Name: "in", Value: float32(finalBus)},
			{Name: "out", Value: float32(destAudioBus)},
			{Name: "level", Value: send.Level},
		}
		if err := b.backend.CreateSynth("imbolc_send", node, types.GroupProcessing, params); err != nil {
			return err
		}
		b.registry.SetSendNode(id, send.Bus, node)
	}

	outNode := b.allocNode()
	mute := float32(0)
	if inst.Mute {
		mute = 1
	}
	params := []backend.Param{
		{Name: "in", Value: float32(finalBus)},
		{Name: "level", Value: inst.Level},
		{Name: "pan", Value: inst.Pan},
		{Name: "mute", Value: mute},
	}
	if err := b.backend.CreateSynth("imbolc_inst_out", outNode, types.GroupOutput, params); err != nil {
		return err
	}
	nodes.Output = outNode

	b.registry.Instruments[id] = nodes
	return nil
}

// audioBusFor returns the audio bus index backing bus, allocating one if
// this is the first reference seen during this rebuild.
func (b *Builder) audioBusFor(bus types.BusId) int32 {
	if idx, ok := b.registry.BusAudioIndex[bus]; ok {
		return idx
	}
	idx := b.registry.Bus.AllocAudioBus()
	b.registry.BusAudioIndex[bus] = idx
	return idx
}

func (b *Builder) rebuildBuses(sess *session.Session) error {
	ids := make([]types.BusId, 0, len(sess.Buses))
	for id := range sess.Buses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		busState := sess.Buses[id]
		audioIdx := b.audioBusFor(id)
		node := b.allocNode()
		mute := float32(0)
		if busState.Mute {
			mute = 1
		}
		params := []backend.Param{
			{Name: "in", Value: float32(audioIdx)},
			{Name: "level", Value: busState.Level},
			{Name: "mute", Value: mute},
		}
		if err := b.backend.CreateSynth("imbolc_bus_out", node, types.GroupOutput, params); err != nil {
			return err
		}
		b.registry.BusNodes[id] = node
	}
	return nil
}

// RebuildAnalysis frees and recreates the meter/spectrum/LUFS/scope chain.
// Separated from Rebuild so it can also run standalone after a reconnect
// that does not otherwise change routing.
func (b *Builder) RebuildAnalysis() error {
	if b.registry.MeterNode != nil {
		_ = b.backend.FreeNode(*b.registry.MeterNode)
	}
	for _, n := range b.registry.AnalysisNodes {
		_ = b.backend.FreeNode(n)
	}
	b.registry.AnalysisNodes = nil

	meter := b.allocNode()
	if err := b.backend.CreateSynth(defMeter, meter, types.GroupOutput, nil); err != nil {
		return err
	}
	b.registry.MeterNode = &meter

	for _, def := range []string{defSpectrum, defLufs, defScope} {
		node := b.allocNode()
		if err := b.backend.CreateSynth(def, node, types.GroupOutput, nil); err != nil {
			return err
		}
		b.registry.AnalysisNodes = append(b.registry.AnalysisNodes, node)
	}
	return nil
}

func enabledEffectCount(effects []session.EffectSlot) int {
	n := 0
	for _, e := range effects {
		if e.Enabled {
			n++
		}
	}
	return n
}

func enabledEffects(effects []session.EffectSlot) []session.EffectSlot {
	var out []session.EffectSlot
	for _, e := range effects {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

func paramMap(m map[string]float32) []backend.Param {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]backend.Param, 0, len(keys))
	for _, k := range keys {
		out = append(out, backend.Param{Name: k, Value: m[k]})
	}
	return out
}

// effectParams resolves an effect's declared parameters, substituting the
// audio bus index allocated to sc_bus's named [types.BusId] when present.
func (b *Builder) effectParams(eff session.EffectSlot) []backend.Param {
	params := paramMap(eff.Params)
	if eff.SidechainBus != nil {
		params = append(params, backend.Param{Name: "sc_bus", Value: float32(b.audioBusFor(*eff.SidechainBus))})
	}
	return params
}
