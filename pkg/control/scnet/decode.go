package scnet

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/mohsenil85/imbolc-engine/pkg/control"
)

// decodeMessage reads one non-bundle message from r, mirroring writeMessage.
func decodeMessage(r io.Reader) (control.Message, error) {
	addr, err := readString(r)
	if err != nil {
		return control.Message{}, err
	}
	var argc int32
	if err := binary.Read(r, binary.BigEndian, &argc); err != nil {
		return control.Message{}, err
	}
	args := make([]control.Atom, 0, argc)
	for i := int32(0); i < argc; i++ {
		a, err := readAtom(r)
		if err != nil {
			return control.Message{}, err
		}
		args = append(args, a)
	}
	return control.Message{Address: addr, Args: args}, nil
}

func readAtom(r io.Reader) (control.Atom, error) {
	var kind [1]byte
	if _, err := io.ReadFull(r, kind[:]); err != nil {
		return control.Atom{}, err
	}
	switch control.AtomKind(kind[0]) {
	case control.AtomInt:
		var v int32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return control.Atom{}, err
		}
		return control.Int(v), nil
	case control.AtomFloat:
		var v float32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return control.Atom{}, err
		}
		return control.Float(v), nil
	case control.AtomString:
		s, err := readString(r)
		if err != nil {
			return control.Atom{}, err
		}
		return control.String(s), nil
	case control.AtomBlob:
		var n int32
		if err := binary.Read(r, binary.BigEndian, &n); err != nil {
			return control.Atom{}, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return control.Atom{}, err
		}
		return control.Blob(b), nil
	default:
		return control.Atom{}, fmt.Errorf("scnet: unknown atom kind %d", kind[0])
	}
}

func readString(r io.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
