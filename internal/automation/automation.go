// Package automation resolves automation targets to live nodes/parameters,
// evaluates lane curves, and applies live values through the backend.
package automation

import (
	"fmt"

	"github.com/mohsenil85/imbolc-engine/internal/backend"
	"github.com/mohsenil85/imbolc-engine/internal/enginerr"
	"github.com/mohsenil85/imbolc-engine/internal/registry"
	"github.com/mohsenil85/imbolc-engine/pkg/control"
	"github.com/mohsenil85/imbolc-engine/pkg/session"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// Engine applies automation values to live nodes via a backend, or mutates
// session state directly for targets with no corresponding node (BPM,
// envelope parameters).
type Engine struct {
	backend  backend.AudioBackend
	registry *registry.Registry
}

// New returns an [Engine] writing into reg via be.
func New(be backend.AudioBackend, reg *registry.Registry) *Engine {
	return &Engine{backend: be, registry: reg}
}

// Apply resolves target against sess/registry and pushes value to the
// server, or mutates sess for state-only targets. NotConnected on this path
// is always degraded to a silent no-op per the error handling design.
func (e *Engine) Apply(target session.AutomationTarget, value float32, sess *session.Session) error {
	if e.backend == nil {
		return nil
	}

	switch target.Kind {
	case session.TargetInstrumentLevel:
		nodes, ok := e.registry.Instruments[target.Instrument]
		if !ok {
			return nil
		}
		return e.set(nodes.Output, types.ParamLevel, value*sess.MasterLevel)

	case session.TargetInstrumentPan:
		nodes, ok := e.registry.Instruments[target.Instrument]
		if !ok {
			return nil
		}
		return e.set(nodes.Output, types.ParamPan, value)

	case session.TargetFilterCutoff:
		nodes, ok := e.registry.Instruments[target.Instrument]
		if !ok || nodes.Filter == nil {
			return nil
		}
		return e.set(*nodes.Filter, types.ParamCutoff, value)

	case session.TargetFilterResonance:
		nodes, ok := e.registry.Instruments[target.Instrument]
		if !ok || nodes.Filter == nil {
			return nil
		}
		return e.set(*nodes.Filter, types.ParamResonance, value)

	case session.TargetEffectParam:
		return e.applyEffectParam(target, value, sess)

	case session.TargetSampleRate:
		return e.setAllVoices(target.Instrument, "rate", value)

	case session.TargetSampleAmp:
		return e.setAllVoices(target.Instrument, types.ParamAmp, value)

	case session.TargetLfoRate:
		nodes, ok := e.registry.Instruments[target.Instrument]
		if !ok || nodes.Lfo == nil {
			return nil
		}
		return e.set(*nodes.Lfo, types.ParamRate, value)

	case session.TargetLfoDepth:
		nodes, ok := e.registry.Instruments[target.Instrument]
		if !ok || nodes.Lfo == nil {
			return nil
		}
		return e.set(*nodes.Lfo, types.ParamDepth, value)

	case session.TargetEnvelopeAttack:
		return e.captureEnvelope(target.Instrument, sess, func(env *session.Envelope) { env.Attack = value })
	case session.TargetEnvelopeDecay:
		return e.captureEnvelope(target.Instrument, sess, func(env *session.Envelope) { env.Decay = value })
	case session.TargetEnvelopeSustain:
		return e.captureEnvelope(target.Instrument, sess, func(env *session.Envelope) { env.Sustain = value })
	case session.TargetEnvelopeRelease:
		return e.captureEnvelope(target.Instrument, sess, func(env *session.Envelope) { env.Release = value })

	case session.TargetSendLevel:
		return e.applySendLevel(target, value, sess)

	case session.TargetBusLevel:
		node, ok := e.registry.BusNodes[target.Bus]
		if !ok {
			return nil
		}
		return e.set(node, types.ParamLevel, value)

	case session.TargetBpm:
		sess.Clock.BPM = value
		return nil

	case session.TargetVstParam:
		nodes, ok := e.registry.Instruments[target.Instrument]
		if !ok || nodes.Source == nil {
			return nil
		}
		err := e.backend.SendUnitCmd(*nodes.Source, types.VstUgenIndex, "/n_set", []backend.RawArg{
			control.Int(target.VstIndex), control.Float(value),
		})
		return e.classify(err)

	case session.TargetEqBandParam:
		nodes, ok := e.registry.Instruments[target.Instrument]
		if !ok || nodes.Eq == nil {
			return nil
		}
		paramValue := value
		if target.EqParam == session.EqQ && value != 0 {
			paramValue = 1 / value
		}
		return e.set(*nodes.Eq, eqParamName(target.EqBand, target.EqParam), paramValue)

	default:
		return fmt.Errorf("automation: unknown target kind %d", target.Kind)
	}
}

func (e *Engine) set(node types.NodeId, name string, value float32) error {
	return e.classify(e.backend.SetParam(node, name, value))
}

func (e *Engine) setAllVoices(inst types.InstrumentId, name string, value float32) error {
	for _, v := range e.registry.VoicesForInstrument(inst) {
		if err := e.backend.SetParam(v.SourceNode, name, value); err != nil {
			return e.classify(err)
		}
	}
	return nil
}

// captureEnvelope updates the instrument's declared envelope in sess so the
// new value is used at the next voice spawn. Per the design notes, these
// targets are advisory: they never reach the backend.
func (e *Engine) captureEnvelope(inst types.InstrumentId, sess *session.Session, mutate func(*session.Envelope)) error {
	declared, ok := sess.Instruments[inst]
	if !ok {
		return nil
	}
	mutate(&declared.Envelope)
	return nil
}

// applyEffectParam translates a stable EffectId to its position among
// currently-enabled effects and pushes the parameter to that live node.
func (e *Engine) applyEffectParam(target session.AutomationTarget, value float32, sess *session.Session) error {
	declared, ok := sess.Instruments[target.Instrument]
	if !ok {
		return nil
	}
	pos := -1
	enabledSeen := 0
	for _, eff := range declared.Effects {
		if !eff.Enabled {
			continue
		}
		if eff.ID == target.EffectID {
			pos = enabledSeen
			break
		}
		enabledSeen++
	}
	if pos < 0 {
		return nil
	}
	nodes, ok := e.registry.Instruments[target.Instrument]
	if !ok || pos >= len(nodes.Effects) {
		return nil
	}
	return e.set(nodes.Effects[pos], target.EffectParam, value)
}

func (e *Engine) applySendLevel(target session.AutomationTarget, value float32, sess *session.Session) error {
	declared, ok := sess.Instruments[target.Instrument]
	if !ok || int(target.SendIndex) >= len(declared.Sends) {
		return nil
	}
	bus := declared.Sends[target.SendIndex].Bus
	node, ok := e.registry.SendNode(target.Instrument, bus)
	if !ok {
		return nil
	}
	return e.set(node, types.ParamLevel, value)
}

func eqParamName(band int, p session.EqParam) string {
	switch p {
	case session.EqFreq:
		return fmt.Sprintf("b%d_freq", band)
	case session.EqGain:
		return fmt.Sprintf("b%d_gain", band)
	case session.EqQ:
		return fmt.Sprintf("b%d_q", band)
	default:
		return fmt.Sprintf("b%d_unknown", band)
	}
}

// classify degrades NotConnected to a silent success, matching the error
// handling design's treatment of the automation path.
func (e *Engine) classify(err error) error {
	if err == nil {
		return nil
	}
	if enginerr.Is(err, enginerr.NotConnected) {
		return nil
	}
	return err
}
