// Package playback implements the per-frame musical clock advance: piano
// roll note scheduling, active-note release, automation sampling, and drum
// sequencer stepping.
package playback

import (
	"time"

	"github.com/mohsenil85/imbolc-engine/internal/automation"
	"github.com/mohsenil85/imbolc-engine/internal/backend"
	"github.com/mohsenil85/imbolc-engine/internal/enginerr"
	"github.com/mohsenil85/imbolc-engine/internal/registry"
	"github.com/mohsenil85/imbolc-engine/internal/voice"
	"github.com/mohsenil85/imbolc-engine/pkg/session"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// activeNote is one spawned-but-not-yet-released note the ticker is
// tracking for its scheduled note-off.
type activeNote struct {
	instrument types.InstrumentId
	pitch      uint8
	remaining  int64 // ticks; may be transiently negative at the frame it's released
}

// Ticker owns the active-notes list and the per-instrument drum sequencer
// accumulators, driving the voice allocator and automation engine once per
// frame.
type Ticker struct {
	voices     *voice.Allocator
	automation *automation.Engine
	registry   *registry.Registry
	backend    backend.AudioBackend

	activeNotes []activeNote

	nextNodeID int32
}

// New returns a [Ticker] driving voices/autoEngine/reg via be.
func New(voices *voice.Allocator, autoEngine *automation.Engine, reg *registry.Registry, be backend.AudioBackend) *Ticker {
	return &Ticker{voices: voices, automation: autoEngine, registry: reg, backend: be, nextNodeID: 1000}
}

// Tick advances sess by elapsed wall-clock time: piano-roll scan, active
// note release, automation sampling, drum sequencer stepping, then reaps
// expired voices.
func (t *Ticker) Tick(sess *session.Session, elapsed time.Duration, now time.Time) {
	t.tickPlayback(sess, elapsed, now)
	t.tickAutomation(sess)
	t.tickDrumSequencer(sess, elapsed)
	t.voices.Cleanup(now)
}

func (t *Ticker) tickPlayback(sess *session.Session, elapsed time.Duration, now time.Time) {
	if !sess.Clock.Playing {
		return
	}

	bpm := float64(sess.Clock.BPM)
	tpb := float64(sess.Clock.TicksPerBeat)
	ticksF := elapsed.Seconds() * (bpm / 60.0) * tpb
	deltaTicks := uint32(ticksF)
	if deltaTicks == 0 {
		return
	}

	oldPlayhead := sess.Clock.PlayheadTick
	newPlayhead := oldPlayhead + deltaTicks
	secsPerTick := sess.Clock.SecondsPerTick()

	if sess.Clock.Looping && sess.Clock.LoopEnd > sess.Clock.LoopStart && newPlayhead >= sess.Clock.LoopEnd {
		wrappedPlayhead := sess.Clock.LoopStart + (newPlayhead-sess.Clock.LoopEnd)%(sess.Clock.LoopEnd-sess.Clock.LoopStart)
		// Tail window: notes between the old playhead and the loop boundary,
		// traversed before the wrap.
		t.scanWindow(sess, oldPlayhead, sess.Clock.LoopEnd, 0, secsPerTick, now)
		// Wrapped window: notes after the loop restarts, offset by however
		// many ticks the tail already consumed this frame.
		tailTicks := sess.Clock.LoopEnd - oldPlayhead
		t.scanWindow(sess, sess.Clock.LoopStart, wrappedPlayhead, tailTicks, secsPerTick, now)
		newPlayhead = wrappedPlayhead
	} else {
		t.scanWindow(sess, oldPlayhead, newPlayhead, 0, secsPerTick, now)
	}
	sess.Clock.PlayheadTick = newPlayhead

	kept := t.activeNotes[:0]
	for _, n := range t.activeNotes {
		n.remaining -= int64(deltaTicks)
		if n.remaining <= 0 {
			offset := float64(n.remaining) * secsPerTick
			if offset < 0 {
				offset = 0
			}
			inst, ok := sess.Instruments[n.instrument]
			releaseSeconds := float32(0)
			if ok {
				releaseSeconds = inst.Envelope.Release
			}
			_ = t.voices.ReleaseVoice(n.instrument, n.pitch, releaseSeconds, now, offset)
			continue
		}
		kept = append(kept, n)
	}
	t.activeNotes = kept
}

// scanWindow spawns voices for every note-on in [windowStart, windowEnd)
// across all tracks. baseTicks is how many ticks have already elapsed
// between now and windowStart — nonzero only for the wrapped half of a
// looped scan — so offsets stay relative to the tick the frame started at.
func (t *Ticker) scanWindow(sess *session.Session, windowStart, windowEnd uint32, baseTicks uint32, secsPerTick float64, now time.Time) {
	for _, instID := range sess.TrackOrder {
		track, ok := sess.Tracks[instID]
		if !ok {
			continue
		}
		inst, ok := sess.Instruments[instID]
		if !ok {
			continue
		}
		for _, note := range track.Notes {
			if note.Tick < windowStart || note.Tick >= windowEnd {
				continue
			}
			ticksFromNow := baseTicks + (note.Tick - windowStart)
			offset := float64(ticksFromNow) * secsPerTick
			velocity := float32(note.Velocity) / 127.0
			err := t.voices.SpawnVoice(inst, note.Pitch, velocity, now, offset)
			if err != nil && !enginerr.Is(err, enginerr.NotConnected) {
				continue
			}
			t.activeNotes = append(t.activeNotes, activeNote{
				instrument: instID,
				pitch:      note.Pitch,
				remaining:  int64(note.Duration),
			})
		}
	}
}

func (t *Ticker) tickAutomation(sess *session.Session) {
	for i := range sess.Automation {
		lane := &sess.Automation[i]
		if !lane.Enabled {
			continue
		}
		value, ok := automation.EvaluateLane(*lane, sess.Clock.PlayheadTick)
		if !ok {
			continue
		}
		_ = t.automation.Apply(lane.Target, value, sess)
	}
}

func (t *Ticker) allocNode() types.NodeId {
	id := types.NodeId(t.nextNodeID)
	t.nextNodeID++
	return id
}

func (t *Ticker) tickDrumSequencer(sess *session.Session, elapsed time.Duration) {
	for _, instID := range sess.TrackOrder {
		inst, ok := sess.Instruments[instID]
		if !ok || inst.Drums == nil {
			continue
		}
		d := inst.Drums
		if !d.Playing {
			d.LastPlayedStep = nil
			continue
		}
		if d.PatternLength <= 0 {
			continue
		}

		stepsPerSecond := (float64(sess.Clock.BPM) / 60.0) * 4.0
		d.StepAccumulator += float32(elapsed.Seconds() * stepsPerSecond)
		for d.StepAccumulator >= 1.0 {
			d.StepAccumulator -= 1.0
			d.CurrentStep = (d.CurrentStep + 1) % d.PatternLength
		}

		if d.LastPlayedStep != nil && *d.LastPlayedStep == d.CurrentStep {
			continue
		}

		if d.CurrentPattern >= 0 && d.CurrentPattern < len(d.Patterns) {
			pattern := d.Patterns[d.CurrentPattern]
			for padIdx, pad := range d.Pads {
				if pad.Buffer == nil || padIdx >= len(pattern.Steps) {
					continue
				}
				steps := pattern.Steps[padIdx]
				if d.CurrentStep >= len(steps) {
					continue
				}
				step := steps[d.CurrentStep]
				if !step.Active {
					continue
				}
				amp := (float32(step.Velocity) / 127.0) * pad.Level
				t.playDrumHit(*pad.Buffer, amp, pad.SliceStart, pad.SliceEnd)
			}
		}

		step := d.CurrentStep
		d.LastPlayedStep = &step
	}
}

// playDrumHit triggers a one-shot sample playback synth. Unlike a voice, a
// drum hit is not tracked for release: the synth is expected to free itself
// on completion via the server's doneAction mechanism.
func (t *Ticker) playDrumHit(buf types.BufferId, amp float32, sliceStart, sliceEnd float32) {
	bufnum, ok := t.registry.Buffers[buf]
	if !ok {
		return
	}
	node := t.allocNode()
	_ = t.backend.CreateSynth("imbolc_drum_hit", node, types.GroupSources, []backend.Param{
		{Name: "bufnum", Value: float32(bufnum)},
		{Name: "amp", Value: amp},
		{Name: "start", Value: sliceStart},
		{Name: "end", Value: sliceEnd},
	})
}
