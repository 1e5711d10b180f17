// Package session defines the session-state snapshot the engine consumes
// from its external collaborators: the declared instrument graph, the
// musical clock, automation lanes, and piano-roll/drum-sequencer content.
// Persistence, editing, and the action/dispatch layer are out of scope
// (spec §1) and own these structures. The core writes only playback state
// into them: the ticker advances Clock.PlayheadTick and each drum
// sequencer's step fields, and the automation engine sets Clock.BPM and
// instrument envelope values.
package session

import "github.com/mohsenil85/imbolc-engine/pkg/types"

// SourceKind names an instrument's oscillator/input source type.
type SourceKind int

const (
	SourceOscillator SourceKind = iota
	SourceWavetable
	SourceSample
	SourceAudioIn
	SourceBusIn
)

// EffectSlot is one declared effect on an instrument, including disabled
// slots: position and [types.EffectId] are stable regardless of Enabled.
type EffectSlot struct {
	ID      types.EffectId
	Def     string
	Enabled bool
	Params  map[string]float32
	// SidechainBus, if non-nil, names another instrument's final bus that
	// this effect reads as a sidechain input.
	SidechainBus *types.BusId
}

// Envelope holds the ADSR parameters captured at voice-spawn time.
type Envelope struct {
	Attack  float32
	Decay   float32
	Sustain float32
	Release float32
}

// SendSlot is one configured send from an instrument's final bus into
// another bus.
type SendSlot struct {
	Bus   types.BusId
	Level float32
}

// Instrument is the declared, edited state of one instrument in the graph.
type Instrument struct {
	ID         types.InstrumentId
	Source     SourceKind
	SourceDef  string
	Params     map[string]float32
	HasFilter  bool
	FilterDef  string
	FilterParams map[string]float32
	LfoEnabled bool
	LfoParams  map[string]float32
	EqEnabled  bool
	EqParams   map[string]float32 // b<i>_freq / b<i>_gain / b<i>_q
	Effects    []EffectSlot
	Envelope   Envelope
	Polyphonic bool
	Sends      []SendSlot
	OutputBus  types.BusId
	Level      float32
	Pan        float32
	Mute       bool
	Solo       bool
	Drums      *DrumSequencer
}

// Bus is one mix bus's declared state.
type Bus struct {
	ID    types.BusId
	Level float32
	Mute  bool
}

// Note is one piano-roll event on a track.
type Note struct {
	Tick     uint32
	Pitch    uint8
	Velocity uint8
	Duration uint32 // in ticks
}

// Track is one instrument's piano-roll lane.
type Track struct {
	InstrumentID types.InstrumentId
	Notes        []Note // must be kept sorted by Tick for scan-window queries
}

// CurveType names an automation interpolation shape between two points.
type CurveType int

const (
	CurveLinear CurveType = iota
	CurveExponential
	CurveStep
	CurveSCurve
)

// AutomationPoint is one recorded point on a lane.
type AutomationPoint struct {
	Tick  uint32
	Value float32
	Curve CurveType
}

// TargetKind names which [AutomationTarget] variant a lane drives.
type TargetKind int

const (
	TargetInstrumentLevel TargetKind = iota
	TargetInstrumentPan
	TargetFilterCutoff
	TargetFilterResonance
	TargetEffectParam
	TargetSampleRate
	TargetSampleAmp
	TargetLfoRate
	TargetLfoDepth
	TargetEnvelopeAttack
	TargetEnvelopeDecay
	TargetEnvelopeSustain
	TargetEnvelopeRelease
	TargetSendLevel
	TargetBusLevel
	TargetBpm
	TargetVstParam
	TargetEqBandParam
)

// EqParam names which part of an EQ band a [AutomationTarget] addresses.
type EqParam int

const (
	EqFreq EqParam = iota
	EqGain
	EqQ
)

// AutomationTarget identifies what one lane drives, carrying the extra
// indices each variant needs to resolve to a node/parameter.
type AutomationTarget struct {
	Kind         TargetKind
	Instrument   types.InstrumentId
	EffectID     types.EffectId
	EffectParam  string
	SendIndex    types.SendIndex
	Bus          types.BusId
	VstIndex     int32
	EqBand       int
	EqParam      EqParam
}

// AutomationLane is one ordered sequence of points driving one target.
type AutomationLane struct {
	Target  AutomationTarget
	Points  []AutomationPoint // sorted by Tick
	Enabled bool
}

// Pad is one drum-sequencer pad (sample slot).
type Pad struct {
	Buffer     *types.BufferId
	Level      float32
	SliceStart float32
	SliceEnd   float32
}

// Step is one step of a drum pattern for one pad.
type Step struct {
	Active   bool
	Velocity uint8
}

// Pattern is one drum pattern: a grid of steps per pad.
type Pattern struct {
	Steps [][]Step // Steps[padIndex][stepIndex]
}

// DrumSequencer is the per-instrument drum-machine state.
type DrumSequencer struct {
	Patterns        []Pattern
	CurrentPattern  int
	Pads            []Pad
	Chain           []int // pattern indices to play in sequence
	ChainEnabled    bool
	CurrentStep     int
	StepAccumulator float32
	LastPlayedStep  *int
	Playing         bool
	SwingAmount     float32
	PatternLength   int
}

// Clock is the musical clock's declared state.
type Clock struct {
	BPM          float32
	TicksPerBeat uint32
	PlayheadTick uint32
	LoopStart    uint32
	LoopEnd      uint32
	Playing      bool
	Looping      bool
}

// SecondsPerTick returns 60 / (bpm * ticksPerBeat).
func (c Clock) SecondsPerTick() float64 {
	return 60.0 / (float64(c.BPM) * float64(c.TicksPerBeat))
}

// Session is the full snapshot consumed by the playback ticker, routing
// builder, and automation engine.
type Session struct {
	Instruments  map[types.InstrumentId]*Instrument
	TrackOrder   []types.InstrumentId // deterministic iteration order
	Buses        map[types.BusId]*Bus
	MasterLevel  float32
	MasterMute   bool
	Automation   []AutomationLane
	Tracks       map[types.InstrumentId]*Track
	Clock        Clock
}
