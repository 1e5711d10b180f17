// Package record drives disk recording: a single capture of one bus, or a
// multi-stream export that writes several buses to separate files in one
// atomic bundle. Buffers are freed on a short delay after stop so the
// server has time to flush the file to disk before its memory is reclaimed.
package record

import (
	"time"

	"github.com/mohsenil85/imbolc-engine/internal/backend"
	"github.com/mohsenil85/imbolc-engine/internal/enginerr"
	"github.com/mohsenil85/imbolc-engine/pkg/control"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

const diskRecordDef = "imbolc_disk_record"

// stream is one active disk-recording synth/buffer pair.
type stream struct {
	bufnum  int32
	node    types.NodeId
	path    string
	started time.Time
}

// pendingFree is a buffer awaiting [types.PendingFreeDelayMs] before it is
// safe to free, giving the server time to flush the write to disk.
type pendingFree struct {
	bufnum  int32
	closeAt time.Time
}

// Recorder owns at most one single-stream recording and at most one
// multi-stream export at a time.
type Recorder struct {
	backend backend.AudioBackend

	nextNodeID int32

	recording *stream
	export    []stream

	pendingFrees       []pendingFree
	pendingExportFrees []pendingFree
}

// New returns a [Recorder] dispatching through be.
func New(be backend.AudioBackend) *Recorder {
	return &Recorder{backend: be, nextNodeID: 1000}
}

func (r *Recorder) allocNode() types.NodeId {
	id := types.NodeId(r.nextNodeID)
	r.nextNodeID++
	return id
}

// StartRecording begins capturing bus to path as a WAV file. Fails with
// [enginerr.ServerBusy] if a recording is already active.
func (r *Recorder) StartRecording(bus types.BusId, path string, now time.Time) error {
	if r.recording != nil {
		return enginerr.New(enginerr.ServerBusy, "already recording")
	}
	node := r.allocNode()
	ops := diskWriteOps(types.RecordBufnum, node, int32(bus), path)
	if err := r.backend.SendBundle(ops, now); err != nil {
		return enginerr.Wrap(enginerr.BackendError, "start_recording", err)
	}
	r.recording = &stream{bufnum: types.RecordBufnum, node: node, path: path, started: now}
	return nil
}

// StopRecording closes the active recording's file and returns its path.
// The buffer is not freed immediately; call PollPendingFrees on subsequent
// frames until it reports the free has happened.
func (r *Recorder) StopRecording(now time.Time) (string, bool) {
	if r.recording == nil {
		return "", false
	}
	rec := r.recording
	r.recording = nil

	ops := closeOps(rec.node, rec.bufnum)
	_ = r.backend.SendBundle(ops, now)
	r.pendingFrees = append(r.pendingFrees, pendingFree{bufnum: rec.bufnum, closeAt: now})
	return rec.path, true
}

// IsRecording reports whether a single-stream recording is active.
func (r *Recorder) IsRecording() bool { return r.recording != nil }

// RecordingElapsed returns how long the active recording has run, or false
// if none is active.
func (r *Recorder) RecordingElapsed(now time.Time) (time.Duration, bool) {
	if r.recording == nil {
		return 0, false
	}
	return now.Sub(r.recording.started), true
}

// RecordingPath returns the active recording's destination path, or false
// if none is active.
func (r *Recorder) RecordingPath() (string, bool) {
	if r.recording == nil {
		return "", false
	}
	return r.recording.path, true
}

// StartExportMaster bounces the hardware output bus (bus 0, the stereo mix)
// to a single WAV file.
func (r *Recorder) StartExportMaster(path string, now time.Time) error {
	return r.StartExportStems([]ExportTarget{{Bus: 0, Path: path}}, now)
}

// ExportTarget names one bus/path pair for a stem export.
type ExportTarget struct {
	Bus  types.BusId
	Path string
}

// StartExportStems begins a multi-stream export, one DiskOut synth per
// target, dispatched in a single atomic bundle. Fails if an export or a
// single-stream recording is already active, or if targets is empty.
func (r *Recorder) StartExportStems(targets []ExportTarget, now time.Time) error {
	if r.export != nil {
		return enginerr.New(enginerr.ServerBusy, "already exporting")
	}
	if r.recording != nil {
		return enginerr.New(enginerr.ServerBusy, "already recording")
	}
	if len(targets) == 0 {
		return enginerr.New(enginerr.BackendError, "no targets to export")
	}

	var ops []backend.Op
	streams := make([]stream, 0, len(targets))
	for i, t := range targets {
		bufnum := types.ExportBufnumStart + int32(i)
		node := r.allocNode()
		ops = append(ops, diskWriteOps(bufnum, node, int32(t.Bus), t.Path)...)
		streams = append(streams, stream{bufnum: bufnum, node: node, path: t.Path, started: now})
	}

	if err := r.backend.SendBundle(ops, now); err != nil {
		return enginerr.Wrap(enginerr.BackendError, "start_export", err)
	}
	r.export = streams
	return nil
}

// StopExport closes every active export stream and returns their paths.
// Buffers are freed later via PollPendingFrees.
func (r *Recorder) StopExport(now time.Time) []string {
	if r.export == nil {
		return nil
	}
	streams := r.export
	r.export = nil

	paths := make([]string, 0, len(streams))
	var ops []backend.Op
	for _, s := range streams {
		ops = append(ops, closeOps(s.node, s.bufnum)...)
		r.pendingExportFrees = append(r.pendingExportFrees, pendingFree{bufnum: s.bufnum, closeAt: now})
		paths = append(paths, s.path)
	}
	_ = r.backend.SendBundle(ops, now)
	return paths
}

// IsExporting reports whether a multi-stream export is active.
func (r *Recorder) IsExporting() bool { return r.export != nil }

// PollPendingFrees frees any single-stream recording buffer whose delay has
// elapsed. Returns true if a buffer was freed this call.
func (r *Recorder) PollPendingFrees(now time.Time) bool {
	freed := false
	kept := r.pendingFrees[:0]
	for _, p := range r.pendingFrees {
		if now.Sub(p.closeAt) >= time.Duration(types.PendingFreeDelayMs)*time.Millisecond {
			_ = r.backend.FreeBuffer(p.bufnum)
			freed = true
			continue
		}
		kept = append(kept, p)
	}
	r.pendingFrees = kept
	return freed
}

// PollPendingExportFrees frees any export buffer whose delay has elapsed.
func (r *Recorder) PollPendingExportFrees(now time.Time) {
	kept := r.pendingExportFrees[:0]
	for _, p := range r.pendingExportFrees {
		if now.Sub(p.closeAt) >= time.Duration(types.PendingFreeDelayMs)*time.Millisecond {
			_ = r.backend.FreeBuffer(p.bufnum)
			continue
		}
		kept = append(kept, p)
	}
	r.pendingExportFrees = kept
}

// diskWriteOps builds the alloc+write+create-synth sequence for one
// DiskOut stream, meant to be dispatched atomically.
func diskWriteOps(bufnum int32, node types.NodeId, bus int32, path string) []backend.Op {
	return []backend.Op{
		{Kind: backend.OpAllocBuffer, Bufnum: bufnum, Frames: types.RecordingRingFrames, Channels: types.RecordingRingChannels},
		{
			Kind:    backend.OpSendRaw,
			Address: "/b_write",
			Args: []backend.RawArg{
				control.Int(bufnum),
				control.String(path),
				control.String("wav"),
				control.String("float"),
				control.Int(0),
				control.Int(0),
				control.Int(1),
			},
		},
		{
			Kind: backend.OpCreateSynth,
			Def:  diskRecordDef,
			Node: node,
			Group: types.GroupRecord,
			Params: []backend.Param{
				{Name: "bufnum", Value: float32(bufnum)},
				{Name: "in", Value: float32(bus)},
			},
		},
	}
}

// closeOps builds the free-node+close-buffer sequence for stopping one
// DiskOut stream, meant to be dispatched atomically.
func closeOps(node types.NodeId, bufnum int32) []backend.Op {
	return []backend.Op{
		{Kind: backend.OpFreeNode, Node: node},
		{Kind: backend.OpSendRaw, Address: "/b_close", Args: []backend.RawArg{control.Int(bufnum)}},
	}
}
