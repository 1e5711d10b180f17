// Package handle is the engine's single cross-thread boundary: the main
// thread constructs one AudioHandle and talks to the audio-owner goroutine
// only through it. Every other package in this module (supervisor, registry,
// routing, voice, automation, record, playback) is safe to use only from a
// single goroutine, and that goroutine is the one running inside AudioHandle.
//
// The forward channel carries typed commands; most are fire-and-forget, but
// Connect, StartServer, CompileSynthDefs, LoadSample, StartRecording, and
// StopRecording carry a single-use reply channel so the caller can observe
// the outcome synchronously. The feedback channel carries the audio owner's
// asynchronous events (playhead position, compile results, crashes) back to
// the main thread, drained once per frame rather than blocked on.
package handle

import (
	"log/slog"
	"time"

	"github.com/mohsenil85/imbolc-engine/internal/automation"
	"github.com/mohsenil85/imbolc-engine/internal/backend"
	"github.com/mohsenil85/imbolc-engine/internal/config"
	"github.com/mohsenil85/imbolc-engine/internal/enginerr"
	"github.com/mohsenil85/imbolc-engine/internal/feedback"
	"github.com/mohsenil85/imbolc-engine/internal/playback"
	"github.com/mohsenil85/imbolc-engine/internal/record"
	"github.com/mohsenil85/imbolc-engine/internal/registry"
	"github.com/mohsenil85/imbolc-engine/internal/routing"
	"github.com/mohsenil85/imbolc-engine/internal/supervisor"
	"github.com/mohsenil85/imbolc-engine/internal/voice"
	"github.com/mohsenil85/imbolc-engine/pkg/control"
	"github.com/mohsenil85/imbolc-engine/pkg/session"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// forwardChannelCapacity bounds the forward channel so a burst of
// fire-and-forget commands (note-ons from a MIDI controller, say) does not
// make the caller block on a full channel under normal operation.
const forwardChannelCapacity = 256

// sampleBufnumBase is the first bufnum handed out for load_sample calls,
// chosen clear of the wavetable, recording, and export reserved ranges.
const sampleBufnumBase = 2000

// AudioHandle is the main thread's interface to the audio engine. The zero
// value is not usable; construct with New.
type AudioHandle struct {
	cmdCh    chan command
	done     chan struct{}
	feedback *feedback.Queue

	// sup is shared with the owner goroutine. Its exported methods guard
	// their own state with an internal mutex, so reading status/transport
	// from the main thread without going through the command channel is
	// safe and avoids a round trip for cheap, frequent queries.
	sup *supervisor.Supervisor

	recordingCached  bool
	recordingElapsed time.Duration
}

// New constructs an AudioHandle and starts its audio-owner goroutine. cfg is
// owned by the owner goroutine from this point on; callers must not mutate
// it further.
func New(cfg *config.Config) *AudioHandle {
	fq := feedback.NewQueue(feedback.DefaultCapacity)
	sup := supervisor.New(cfg)
	o := newOwner(cfg, sup, fq)

	h := &AudioHandle{
		cmdCh:    make(chan command, forwardChannelCapacity),
		done:     make(chan struct{}),
		feedback: fq,
		sup:      sup,
	}
	go func() {
		o.run(h.cmdCh)
		close(h.done)
	}()
	return h
}

// send delivers a fire-and-forget command without waiting for processing.
func (h *AudioHandle) send(c command) {
	h.cmdCh <- c
}

// call delivers a command carrying a reply channel and blocks for the
// result. The reply channel is single-use and buffered so the owner never
// blocks delivering it, even if the caller already gave up on the call.
func (h *AudioHandle) call(c command) reply {
	c.replyCh = make(chan reply, 1)
	h.cmdCh <- c
	return <-c.replyCh
}

// ── State accessors ────────────────────────────────────────────────

// State reports the supervisor's lifecycle state.
func (h *AudioHandle) State() supervisor.State { return h.sup.State() }

// ServerRunning reports whether the child process is currently alive.
func (h *AudioHandle) ServerRunning() bool {
	switch h.sup.State() {
	case supervisor.StateRunning, supervisor.StateConnected:
		return true
	default:
		return false
	}
}

// MasterPeak returns the most recently received master output peak, or the
// zero value if not connected.
func (h *AudioHandle) MasterPeak() control.PeakLevels {
	t := h.sup.Transport()
	if t == nil {
		return control.PeakLevels{}
	}
	return t.MasterPeak()
}

// InputWaveform returns the most recently received monitored-input waveform
// for inst, or nil if not connected.
func (h *AudioHandle) InputWaveform(inst types.InstrumentId) []float32 {
	t := h.sup.Transport()
	if t == nil {
		return nil
	}
	return t.InputWaveform(inst)
}

// IsRecording and RecordingElapsed report the last state observed through
// DrainFeedback's RecordingState events; call DrainFeedback once per frame
// to keep them current.
func (h *AudioHandle) IsRecording() bool             { return h.recordingCached }
func (h *AudioHandle) RecordingElapsed() time.Duration { return h.recordingElapsed }

// DrainFeedback removes and returns every queued feedback event, updating
// the handle's small cache of recording state along the way. Call once per
// frame from the main thread.
func (h *AudioHandle) DrainFeedback() []feedback.Event {
	events := h.feedback.Drain()
	for _, ev := range events {
		if ev.Kind == feedback.RecordingState {
			h.recordingCached = ev.IsRecording
			h.recordingElapsed = time.Duration(ev.ElapsedSecs * float64(time.Second))
		}
	}
	return events
}

// ── Server lifecycle ──────────────────────────────────────────────

// Connect opens the control transport to addr.
func (h *AudioHandle) Connect(addr string) error {
	r := h.call(command{kind: cmdConnect, addr: addr})
	return r.err
}

// Disconnect tears down the control transport and frees every tracked node.
func (h *AudioHandle) Disconnect() { h.send(command{kind: cmdDisconnect}) }

// StartServer spawns the synthesis server child process with the given
// input/output device names (either may be empty for "use host default").
func (h *AudioHandle) StartServer(inputDevice, outputDevice string) error {
	r := h.call(command{kind: cmdStartServer, inputDevice: inputDevice, outputDevice: outputDevice})
	return r.err
}

// StopServer disconnects (if connected) and stops the server process.
func (h *AudioHandle) StopServer() { h.send(command{kind: cmdStopServer}) }

// CompileSynthDefs triggers asynchronous synth-def compilation from
// sourcePath. The returned error reports only a failure to start the
// compile (e.g. a missing source file); the eventual success or failure of
// the compile itself arrives later as a CompileResult feedback event.
func (h *AudioHandle) CompileSynthDefs(sourcePath string) error {
	r := h.call(command{kind: cmdCompileSynthDefs, sourcePath: sourcePath})
	return r.err
}

// LoadSynthDefs tells the running server to load every compiled synth-def
// in dir.
func (h *AudioHandle) LoadSynthDefs(dir string) {
	h.send(command{kind: cmdLoadSynthDefs, synthDefsDir: dir})
}

// LoadSample loads the sample file at path into a fresh server buffer and
// registers it under bufferID.
func (h *AudioHandle) LoadSample(bufferID types.BufferId, path string) error {
	r := h.call(command{kind: cmdLoadSample, bufferID: bufferID, samplePath: path})
	return r.err
}

// ── Routing & mixing ──────────────────────────────────────────────

// RebuildRouting tears down and recreates every instrument's signal chain
// plus the bus/master/analysis nodes from sess.
func (h *AudioHandle) RebuildRouting(sess *session.Session) {
	h.send(command{kind: cmdRebuildRouting, sess: sess})
}

// SetBusMixerParams updates one bus mixer node's level/mute in place.
func (h *AudioHandle) SetBusMixerParams(bus types.BusId, level float32, mute bool) {
	h.send(command{kind: cmdSetBusMixerParams, bus: bus, level: level, mute: mute})
}

// SetSourceParam sets a single live parameter on an instrument's source
// synth.
func (h *AudioHandle) SetSourceParam(inst types.InstrumentId, name string, value float32) {
	h.send(command{kind: cmdSetSourceParam, instrumentID: inst, paramName: name, paramValue: value})
}

// ── Voice management ───────────────────────────────────────────────

// SpawnVoice triggers a new voice for inst, scheduled offsetSecs ahead of
// the moment the owner processes this command. Used for direct (e.g. MIDI
// keyboard) note-on events outside the piano roll.
func (h *AudioHandle) SpawnVoice(inst *session.Instrument, pitch uint8, velocity float32, offsetSecs float64) {
	h.send(command{kind: cmdSpawnVoice, instrument: inst, pitch: pitch, velocity: velocity, offsetSecs: offsetSecs})
}

// ReleaseVoice releases the active voice at (inst, pitch), if any.
func (h *AudioHandle) ReleaseVoice(inst types.InstrumentId, pitch uint8, releaseSeconds float32, offsetSecs float64) {
	h.send(command{kind: cmdReleaseVoice, instrumentID: inst, pitch: pitch, releaseSeconds: releaseSeconds, offsetSecs: offsetSecs})
}

// ReleaseAllVoices forces every active voice into its release tail.
func (h *AudioHandle) ReleaseAllVoices() { h.send(command{kind: cmdReleaseAllVoices}) }

// PlayDrumHit triggers a one-shot sample playback synth feeding into inst's
// final bus.
func (h *AudioHandle) PlayDrumHit(bufferID types.BufferId, amp float32, inst types.InstrumentId, sliceStart, sliceEnd float32) {
	h.send(command{
		kind: cmdPlayDrumHit, drumBufferID: bufferID, drumAmp: amp,
		instrumentID: inst, drumSliceStart: sliceStart, drumSliceEnd: sliceEnd,
	})
}

// ── Recording ──────────────────────────────────────────────────────

// StartRecording begins capturing bus to path as a WAV file.
func (h *AudioHandle) StartRecording(bus types.BusId, path string) error {
	r := h.call(command{kind: cmdStartRecording, bus: bus, recordPath: path})
	return r.err
}

// StopRecording closes the active recording and returns its path.
func (h *AudioHandle) StopRecording() (string, bool) {
	r := h.call(command{kind: cmdStopRecording})
	return r.path, r.ok
}

// StartExportMaster bounces the hardware stereo mix to a single WAV file.
func (h *AudioHandle) StartExportMaster(path string) {
	h.send(command{kind: cmdStartExportMaster, exportPath: path})
}

// StartExportStems begins a multi-stream export, one file per target.
func (h *AudioHandle) StartExportStems(targets []record.ExportTarget) {
	h.send(command{kind: cmdStartExportStems, exportTargets: targets})
}

// StopExport closes every active export stream; completed paths arrive as
// RenderComplete feedback events.
func (h *AudioHandle) StopExport() { h.send(command{kind: cmdStopExport}) }

// CancelExport aborts the active export and frees its disk-recording nodes
// without emitting completion feedback for the discarded files.
func (h *AudioHandle) CancelExport() { h.send(command{kind: cmdCancelExport}) }

// ── Automation ─────────────────────────────────────────────────────

// ApplyAutomation pushes a single live automation value outside the normal
// per-frame lane evaluation, e.g. a UI control dragged by hand.
func (h *AudioHandle) ApplyAutomation(target session.AutomationTarget, value float32, sess *session.Session) {
	h.send(command{kind: cmdApplyAutomation, automationTarget: target, automationValue: value, sess: sess})
}

// ── Frame tick ─────────────────────────────────────────────────────

// Tick drives one frame's worth of work: health polling, compile-result
// polling, piano-roll/automation/drum-sequencer advance, and pending buffer
// frees. Call once per frame from the main loop.
func (h *AudioHandle) Tick(sess *session.Session, elapsed time.Duration) {
	h.send(command{kind: cmdTick, sess: sess, elapsed: elapsed})
}

// ── Shutdown ───────────────────────────────────────────────────────

// Shutdown gracefully unwinds the audio owner: stop any active recording,
// disconnect, stop the server process, then drain the feedback queue. It
// blocks until the owner goroutine has exited. In-flight compile workers
// are detached; their eventual result is simply dropped.
func (h *AudioHandle) Shutdown() {
	h.send(command{kind: cmdShutdown})
	<-h.done
	h.DrainFeedback()
}

// ── Owner (audio-owner goroutine) ─────────────────────────────────

// owner holds every subsystem safe for single-goroutine use only. It is
// never touched from outside run's goroutine.
type owner struct {
	cfg *config.Config
	sup *supervisor.Supervisor
	reg *registry.Registry
	fq  *feedback.Queue

	live *liveBackend

	routingBuilder   *routing.Builder
	voices           *voice.Allocator
	automationEngine *automation.Engine
	recorder         *record.Recorder
	ticker           *playback.Ticker

	nextSampleBufnum int32
	nextNodeID       int32
}

func newOwner(cfg *config.Config, sup *supervisor.Supervisor, fq *feedback.Queue) *owner {
	reg := registry.New()
	live := &liveBackend{}
	voices := voice.New(live, reg)
	autoEngine := automation.New(live, reg)

	return &owner{
		cfg:              cfg,
		sup:              sup,
		reg:              reg,
		fq:               fq,
		live:             live,
		routingBuilder:   routing.New(live, reg),
		voices:           voices,
		automationEngine: autoEngine,
		recorder:         record.New(live),
		ticker:           playback.New(voices, autoEngine, reg, live),
		nextSampleBufnum: sampleBufnumBase,
		nextNodeID:       1000,
	}
}

func (o *owner) run(cmdCh <-chan command) {
	for c := range cmdCh {
		if c.kind == cmdShutdown {
			o.shutdown()
			deliver(c, reply{})
			return
		}
		o.handle(c)
	}
}

func (o *owner) handle(c command) {
	switch c.kind {
	case cmdStartServer:
		err := o.sup.Start(c.inputDevice, c.outputDevice)
		o.replyErr(c, err)

	case cmdStopServer:
		o.recorder.StopRecording(time.Now())
		o.sup.Stop(o.live, o.reg)

	case cmdConnect:
		err := o.sup.Connect(c.addr)
		if err == nil {
			o.live.Set(backend.NewScBackend(o.sup.Transport()))
		}
		o.replyErr(c, err)

	case cmdDisconnect:
		o.sup.Disconnect(o.live, o.reg)
		o.live.Set(nil)

	case cmdCompileSynthDefs:
		err := o.sup.CompileSynthDefs(c.sourcePath)
		o.replyErr(c, err)

	case cmdLoadSynthDefs:
		if err := o.live.SendRaw("/d_loadDir", []backend.RawArg{control.String(c.synthDefsDir)}); err != nil {
			o.fq.Push(feedback.Status("load synthdefs: "+err.Error(), o.sup.State() != supervisor.StateStopped))
		}

	case cmdLoadSample:
		bufnum := o.nextSampleBufnum
		o.nextSampleBufnum++
		err := o.live.LoadBuffer(bufnum, c.samplePath)
		if err == nil {
			o.reg.Buffers[c.bufferID] = bufnum
		}
		o.replyErr(c, err)

	case cmdRebuildRouting:
		if err := o.routingBuilder.Rebuild(c.sess); err != nil {
			o.fq.Push(feedback.Status("rebuild routing: "+err.Error(), true))
		}

	case cmdSetBusMixerParams:
		if node, ok := o.reg.BusNodes[c.bus]; ok {
			mute := float32(0)
			if c.mute {
				mute = 1
			}
			_ = o.live.SetParams(node, []backend.Param{
				{Name: "level", Value: c.level},
				{Name: "mute", Value: mute},
			})
		}

	case cmdSetSourceParam:
		if nodes, ok := o.reg.Instruments[c.instrumentID]; ok && nodes.Source != nil {
			_ = o.live.SetParam(*nodes.Source, c.paramName, c.paramValue)
		}

	case cmdSpawnVoice:
		err := o.voices.SpawnVoice(c.instrument, c.pitch, c.velocity, time.Now(), c.offsetSecs)
		if err != nil && !enginerr.Is(err, enginerr.NotConnected) {
			slog.Warn("spawn_voice failed", "error", err)
		}

	case cmdReleaseVoice:
		_ = o.voices.ReleaseVoice(c.instrumentID, c.pitch, c.releaseSeconds, time.Now(), c.offsetSecs)

	case cmdReleaseAllVoices:
		o.voices.ReleaseAllVoices(time.Now())

	case cmdPlayDrumHit:
		o.playDrumHit(c)

	case cmdStartRecording:
		err := o.recorder.StartRecording(c.bus, c.recordPath, time.Now())
		if err == nil {
			o.fq.Push(feedback.Recording(true, 0))
		}
		o.replyErr(c, err)

	case cmdStopRecording:
		path, ok := o.recorder.StopRecording(time.Now())
		if ok {
			o.fq.Push(feedback.Stopped(path))
			o.fq.Push(feedback.Recording(false, 0))
		}
		deliver(c, reply{path: path, ok: ok})

	case cmdStartExportMaster:
		if err := o.recorder.StartExportMaster(c.exportPath, time.Now()); err != nil {
			o.fq.Push(feedback.Status("start export: "+err.Error(), true))
		}

	case cmdStartExportStems:
		if err := o.recorder.StartExportStems(c.exportTargets, time.Now()); err != nil {
			o.fq.Push(feedback.Status("start export: "+err.Error(), true))
		}

	case cmdStopExport:
		for _, path := range o.recorder.StopExport(time.Now()) {
			o.fq.Push(feedback.Rendered(0, path))
		}

	case cmdCancelExport:
		o.recorder.StopExport(time.Now())

	case cmdApplyAutomation:
		_ = o.automationEngine.Apply(c.automationTarget, c.automationValue, c.sess)

	case cmdTick:
		o.tick(c.sess, c.elapsed)
	}
}

// replyErr delivers a plain error result over c's reply channel, if present.
func (o *owner) replyErr(c command, err error) { deliver(c, reply{err: err}) }

// deliver is a free function rather than an owner method since it only
// needs the command's own channel.
func deliver(c command, r reply) {
	if c.replyCh == nil {
		return
	}
	c.replyCh <- r
}

func (o *owner) playDrumHit(c command) {
	bufnum, ok := o.reg.Buffers[c.drumBufferID]
	if !ok {
		return
	}
	bus, ok := o.reg.InstrumentFinalBus[c.instrumentID]
	if !ok {
		return
	}
	node := types.NodeId(o.nextNodeID)
	o.nextNodeID++
	_ = o.live.CreateSynth("imbolc_drum_hit", node, types.GroupSources, []backend.Param{
		{Name: "bufnum", Value: float32(bufnum)},
		{Name: "amp", Value: c.drumAmp},
		{Name: "start", Value: c.drumSliceStart},
		{Name: "end", Value: c.drumSliceEnd},
		{Name: "out", Value: float32(bus)},
	})
}

func (o *owner) tick(sess *session.Session, elapsed time.Duration) {
	now := time.Now()

	if crashed, msg := o.sup.CheckHealth(); crashed {
		o.reg.Reset()
		o.live.Set(nil)
		o.fq.Push(feedback.Crashed())
		o.fq.Push(feedback.Status(msg, false))
	}

	if res, ok := o.sup.PollCompileResult(); ok {
		if res.OK {
			o.fq.Push(feedback.CompileOK(res.Message))
		} else {
			o.fq.Push(feedback.CompileFailed(res.Message))
		}
	}

	if sess != nil {
		o.ticker.Tick(sess, elapsed, now)
		o.fq.Push(feedback.Playhead(int64(sess.Clock.PlayheadTick)))
		o.fq.Push(feedback.Bpm(sess.Clock.BPM))
	}

	o.recorder.PollPendingFrees(now)
	o.recorder.PollPendingExportFrees(now)

	if recElapsed, ok := o.recorder.RecordingElapsed(now); ok {
		o.fq.Push(feedback.Recording(true, recElapsed.Seconds()))
	}
}

// shutdown unwinds the owner's state in order: stop any recording and
// export, disconnect, stop the server process, and leave the feedback queue
// for the final drain in [AudioHandle.Shutdown].
func (o *owner) shutdown() {
	o.recorder.StopExport(time.Now())
	o.recorder.StopRecording(time.Now())
	o.voices.ReleaseAllVoices(time.Now())
	o.sup.Stop(o.live, o.reg)
	o.live.Set(nil)
	o.fq.Push(feedback.Status("shutdown complete", false))
}
