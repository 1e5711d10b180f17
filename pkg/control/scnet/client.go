// Package scnet implements [control.Transport] over a UDP datagram socket,
// encoding messages and bundles with a compact length-prefixed binary
// framing. It is the production transport used by the supervisor once a
// synthesis server process is listening.
package scnet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mohsenil85/imbolc-engine/pkg/control"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

const (
	recvChannelBuffer = 64
	sendChannelBuffer = 64
)

// Compile-time interface assertion.
var _ control.Transport = (*Client)(nil)

// Client is a UDP-backed [control.Transport]. Safe for concurrent use.
type Client struct {
	conn *net.UDPConn

	peak atomic.Pointer[control.PeakLevels]

	wavesMu sync.RWMutex
	waves   map[types.InstrumentId][]float32

	outbox chan []byte

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial opens a UDP connection to the synthesis server listening on addr
// (host:port) and starts the background send/receive loops.
func Dial(addr string) (*Client, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("scnet: resolve %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("scnet: dial %q: %w", addr, err)
	}

	c := &Client{
		conn:   conn,
		waves:  make(map[types.InstrumentId][]float32),
		outbox: make(chan []byte, sendChannelBuffer),
		done:   make(chan struct{}),
	}
	c.peak.Store(&control.PeakLevels{})

	c.wg.Add(2)
	go c.sendLoop()
	go c.recvLoop()

	return c, nil
}

// Send encodes and enqueues a single message.
func (c *Client) Send(msg control.Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("scnet: encode message: %w", err)
	}
	return c.enqueue(data)
}

// SendBundle encodes and enqueues an atomic set of messages.
func (c *Client) SendBundle(b control.Bundle) error {
	data, err := encodeBundle(b)
	if err != nil {
		return fmt.Errorf("scnet: encode bundle: %w", err)
	}
	return c.enqueue(data)
}

// SendUnitCmd targets a single DSP unit within a running synth node.
func (c *Client) SendUnitCmd(node types.NodeId, ugenIndex int32, cmd string, args []control.Atom) error {
	msgArgs := append([]control.Atom{
		control.Int(int32(node)),
		control.Int(ugenIndex),
		control.String(cmd),
	}, args...)
	return c.Send(control.Msg("/u_cmd", msgArgs...))
}

// Notify registers the client for node lifecycle and meter notifications.
func (c *Client) Notify() error {
	return c.Send(control.Msg("/notify", control.Int(1)))
}

// MasterPeak returns the most recently observed aggregated master peak.
func (c *Client) MasterPeak() control.PeakLevels {
	return *c.peak.Load()
}

// InputWaveform returns the most recently observed waveform samples for the
// given instrument's monitored input, or nil if none have arrived yet.
func (c *Client) InputWaveform(inst types.InstrumentId) []float32 {
	c.wavesMu.RLock()
	defer c.wavesMu.RUnlock()
	w := c.waves[inst]
	if w == nil {
		return nil
	}
	out := make([]float32, len(w))
	copy(out, w)
	return out
}

// Close stops the background loops and releases the socket. Safe to call
// more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		close(c.outbox)
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

// enqueue is non-blocking: a full outbox drops the datagram and returns an
// error wrapping control.ErrTransport, since
// the transport contract requires every operation to return immediately.
func (c *Client) enqueue(data []byte) error {
	select {
	case c.outbox <- data:
		return nil
	default:
		return fmt.Errorf("scnet: %w: outbox full", control.ErrTransport)
	}
}

func (c *Client) sendLoop() {
	defer c.wg.Done()
	for data := range c.outbox {
		if _, err := c.conn.Write(data); err != nil {
			slog.Warn("scnet: send failed", "err", err)
		}
	}
}

func (c *Client) recvLoop() {
	defer c.wg.Done()
	buf := make([]byte, 65536)
	for {
		c.conn.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
		n, err := c.conn.Read(buf)
		select {
		case <-c.done:
			return
		default:
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			slog.Warn("scnet: recv failed", "err", err)
			continue
		}
		c.handleIncoming(buf[:n])
	}
}

// handleIncoming dispatches a single received notification to the cached
// peak/waveform state. Unknown addresses are ignored.
func (c *Client) handleIncoming(data []byte) {
	msg, err := decodeMessage(bytes.NewReader(data))
	if err != nil {
		slog.Warn("scnet: decode incoming", "err", err)
		return
	}
	switch msg.Address {
	case "/meter/master":
		if len(msg.Args) >= 2 {
			c.peak.Store(&control.PeakLevels{Left: msg.Args[0].F, Right: msg.Args[1].F})
		}
	case "/meter/waveform":
		if len(msg.Args) >= 1 && msg.Args[0].Kind == control.AtomInt {
			inst := types.InstrumentId(msg.Args[0].I)
			samples := make([]float32, 0, len(msg.Args)-1)
			for _, a := range msg.Args[1:] {
				samples = append(samples, a.F)
			}
			c.wavesMu.Lock()
			c.waves[inst] = samples
			c.wavesMu.Unlock()
		}
	}
}

func encodeMessage(msg control.Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeMessage(&buf, msg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeBundle(b control.Bundle) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('#')
	var ts int64
	if !b.Time.IsZero() {
		ts = b.Time.UnixNano()
	}
	if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, int32(len(b.Messages))); err != nil {
		return nil, err
	}
	for _, m := range b.Messages {
		if err := writeMessage(&buf, m); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func writeMessage(buf *bytes.Buffer, msg control.Message) error {
	writeString(buf, msg.Address)
	if err := binary.Write(buf, binary.BigEndian, int32(len(msg.Args))); err != nil {
		return err
	}
	for _, a := range msg.Args {
		if err := writeAtom(buf, a); err != nil {
			return err
		}
	}
	return nil
}

func writeAtom(buf *bytes.Buffer, a control.Atom) error {
	if err := buf.WriteByte(byte(a.Kind)); err != nil {
		return err
	}
	switch a.Kind {
	case control.AtomInt:
		return binary.Write(buf, binary.BigEndian, a.I)
	case control.AtomFloat:
		return binary.Write(buf, binary.BigEndian, a.F)
	case control.AtomString:
		writeString(buf, a.S)
		return nil
	case control.AtomBlob:
		if err := binary.Write(buf, binary.BigEndian, int32(len(a.B))); err != nil {
			return err
		}
		_, err := buf.Write(a.B)
		return err
	default:
		return fmt.Errorf("scnet: unknown atom kind %d", a.Kind)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, int32(len(s)))
	buf.WriteString(s)
}
