// Package control defines the wire-level contract between the audio engine
// orchestrator and an external synthesis server: typed arguments, messages,
// atomically-dispatched bundles, and the [Transport] interface every other
// package talks to instead of touching a socket directly.
package control

import (
	"time"

	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// AtomKind tags the dynamic type carried by an [Atom].
type AtomKind int

const (
	AtomInt AtomKind = iota
	AtomFloat
	AtomString
	AtomBlob
)

// Atom is one typed value in a [Message]'s argument list.
type Atom struct {
	Kind AtomKind
	I    int32
	F    float32
	S    string
	B    []byte
}

// Int builds an integer atom.
func Int(v int32) Atom { return Atom{Kind: AtomInt, I: v} }

// Float builds a float atom.
func Float(v float32) Atom { return Atom{Kind: AtomFloat, F: v} }

// String builds a string atom.
func String(v string) Atom { return Atom{Kind: AtomString, S: v} }

// Blob builds an opaque byte-blob atom.
func Blob(v []byte) Atom { return Atom{Kind: AtomBlob, B: v} }

// Message is one addressed command with its argument list.
type Message struct {
	Address string
	Args    []Atom
}

// Msg is shorthand for building a [Message].
func Msg(address string, args ...Atom) Message {
	return Message{Address: address, Args: args}
}

// Bundle groups messages for atomic, in-order application on the server.
// A zero Time means "dispatch immediately".
type Bundle struct {
	Time     time.Time
	Messages []Message
}

// NowBundle builds a bundle with immediate dispatch time.
func NowBundle(messages ...Message) Bundle {
	return Bundle{Messages: messages}
}

// PeakLevels reports the aggregated master output peak.
type PeakLevels struct {
	Left  float32
	Right float32
}

// Transport is the connection-oriented, non-blocking datagram client every
// higher-level package depends on. Implementations must never block the
// caller: Send/SendBundle/SendUnitCmd enqueue or write-without-waiting, and
// errors are reported as [ErrTransport]-classified values rather than
// by panicking or retrying internally.
type Transport interface {
	// Send transmits a single fire-and-forget message.
	Send(msg Message) error

	// SendBundle transmits a set of messages for atomic application.
	SendBundle(b Bundle) error

	// SendUnitCmd targets a command at one DSP unit within a running synth.
	SendUnitCmd(node types.NodeId, ugenIndex int32, cmd string, args []Atom) error

	// Notify registers for node-lifecycle and meter notifications. Called
	// once per connect.
	Notify() error

	// MasterPeak returns the most recently received aggregated master peak.
	// Non-blocking; returns the zero value until the first report arrives.
	MasterPeak() PeakLevels

	// InputWaveform returns the most recently received waveform samples for
	// the given instrument's monitored input, or nil if none have arrived.
	InputWaveform(inst types.InstrumentId) []float32

	// Close releases the underlying socket and stops background goroutines.
	Close() error
}
