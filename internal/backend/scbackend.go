package backend

import (
	"fmt"
	"time"

	"github.com/mohsenil85/imbolc-engine/pkg/control"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// Compile-time interface assertion.
var _ AudioBackend = (*ScBackend)(nil)

// ScBackend is the production [AudioBackend], dispatching every operation
// through a [control.Transport].
type ScBackend struct {
	transport control.Transport
}

// NewScBackend wraps transport as an [AudioBackend].
func NewScBackend(transport control.Transport) *ScBackend {
	return &ScBackend{transport: transport}
}

func (b *ScBackend) CreateGroup(node types.NodeId, target types.NodeId, addAfter bool) error {
	addAction := int32(1) // addToTail
	if addAfter {
		addAction = 3 // addAfter
	}
	return b.transport.Send(control.Msg("/g_new",
		control.Int(int32(node)), control.Int(addAction), control.Int(int32(target))))
}

func (b *ScBackend) CreateSynth(def string, node types.NodeId, group types.GroupId, params []Param) error {
	args := []control.Atom{control.String(def), control.Int(int32(node)), control.Int(1), control.Int(int32(group))}
	args = append(args, paramArgs(params)...)
	return b.transport.Send(control.Msg("/s_new", args...))
}

func (b *ScBackend) FreeNode(node types.NodeId) error {
	return b.transport.Send(control.Msg("/n_free", control.Int(int32(node))))
}

func (b *ScBackend) SetParam(node types.NodeId, name string, value float32) error {
	return b.transport.Send(control.Msg("/n_set", control.Int(int32(node)), control.String(name), control.Float(value)))
}

func (b *ScBackend) SetParams(node types.NodeId, params []Param) error {
	args := []control.Atom{control.Int(int32(node))}
	args = append(args, paramArgs(params)...)
	return b.transport.Send(control.Msg("/n_set", args...))
}

func (b *ScBackend) AllocBuffer(bufnum int32, frames int32, channels int32) error {
	return b.transport.Send(control.Msg("/b_alloc", control.Int(bufnum), control.Int(frames), control.Int(channels)))
}

func (b *ScBackend) LoadBuffer(bufnum int32, path string) error {
	return b.transport.Send(control.Msg("/b_allocRead", control.Int(bufnum), control.String(path)))
}

func (b *ScBackend) FreeBuffer(bufnum int32) error {
	return b.transport.Send(control.Msg("/b_free", control.Int(bufnum)))
}

func (b *ScBackend) SendRaw(address string, args []RawArg) error {
	return b.transport.Send(control.Msg(address, args...))
}

func (b *ScBackend) SendUnitCmd(node types.NodeId, ugenIndex int32, cmd string, args []RawArg) error {
	return b.transport.SendUnitCmd(node, ugenIndex, cmd, args)
}

func (b *ScBackend) SendBundle(ops []Op, at time.Time) error {
	msgs := make([]control.Message, 0, len(ops))
	for _, op := range ops {
		msg, err := opToMessage(op)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return b.transport.SendBundle(control.Bundle{Time: at, Messages: msgs})
}

func opToMessage(op Op) (control.Message, error) {
	switch op.Kind {
	case OpCreateGroup:
		addAction := int32(1)
		if op.AddAfter {
			addAction = 3
		}
		return control.Msg("/g_new", control.Int(int32(op.Node)), control.Int(addAction), control.Int(int32(op.Target))), nil
	case OpCreateSynth:
		args := []control.Atom{control.String(op.Def), control.Int(int32(op.Node)), control.Int(1), control.Int(int32(op.Group))}
		args = append(args, paramArgs(op.Params)...)
		return control.Msg("/s_new", args...), nil
	case OpFreeNode:
		return control.Msg("/n_free", control.Int(int32(op.Node))), nil
	case OpSetParam:
		return control.Msg("/n_set", control.Int(int32(op.Node)), control.String(op.Name), control.Float(op.Value)), nil
	case OpSetParams:
		args := []control.Atom{control.Int(int32(op.Node))}
		args = append(args, paramArgs(op.Params)...)
		return control.Msg("/n_set", args...), nil
	case OpAllocBuffer:
		return control.Msg("/b_alloc", control.Int(op.Bufnum), control.Int(op.Frames), control.Int(op.Channels)), nil
	case OpLoadBuffer:
		return control.Msg("/b_allocRead", control.Int(op.Bufnum), control.String(op.Path)), nil
	case OpFreeBuffer:
		return control.Msg("/b_free", control.Int(op.Bufnum)), nil
	case OpSendRaw:
		return control.Msg(op.Address, op.Args...), nil
	default:
		return control.Message{}, fmt.Errorf("backend: unknown op kind %d", op.Kind)
	}
}

func paramArgs(params []Param) []control.Atom {
	args := make([]control.Atom, 0, len(params)*2)
	for _, p := range params {
		args = append(args, control.String(p.Name), control.Float(p.Value))
	}
	return args
}
