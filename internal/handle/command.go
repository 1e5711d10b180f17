package handle

import (
	"time"

	"github.com/mohsenil85/imbolc-engine/internal/record"
	"github.com/mohsenil85/imbolc-engine/pkg/session"
	"github.com/mohsenil85/imbolc-engine/pkg/types"
)

// commandKind tags the variant carried by a command. Only the handful sent
// through AudioHandle.call (listed on command below) carry a replyCh; every
// other command is fire-and-forget from the caller's point of view.
type commandKind int

const (
	cmdStartServer commandKind = iota
	cmdStopServer
	cmdConnect
	cmdDisconnect
	cmdCompileSynthDefs
	cmdLoadSynthDefs
	cmdLoadSample
	cmdRebuildRouting
	cmdSetBusMixerParams
	cmdSetSourceParam
	cmdSpawnVoice
	cmdReleaseVoice
	cmdReleaseAllVoices
	cmdPlayDrumHit
	cmdStartRecording
	cmdStopRecording
	cmdStartExportMaster
	cmdStartExportStems
	cmdStopExport
	cmdCancelExport
	cmdApplyAutomation
	cmdTick
	cmdShutdown
)

// reply is the single result shape returned over a command's reply channel.
// Only the fields relevant to the issuing command are populated.
type reply struct {
	err  error
	path string
	ok   bool
}

// command is the forward-channel envelope: a tagged union of every payload
// the audio owner understands, plus an optional single-use reply channel.
// Only Connect, StartServer, CompileSynthDefs, LoadSample, StartRecording,
// and StopRecording populate replyCh; every other kind is processed without
// the caller waiting on a result.
type command struct {
	kind commandKind

	addr         string
	inputDevice  string
	outputDevice string
	sourcePath   string
	synthDefsDir string

	bufferID types.BufferId
	samplePath string

	sess *session.Session

	bus   types.BusId
	level float32
	mute  bool

	instrumentID types.InstrumentId
	paramName    string
	paramValue   float32

	instrument     *session.Instrument
	pitch          uint8
	velocity       float32
	releaseSeconds float32
	offsetSecs     float64

	drumBufferID   types.BufferId
	drumAmp        float32
	drumSliceStart float32
	drumSliceEnd   float32

	recordPath string

	exportPath    string
	exportTargets []record.ExportTarget

	automationTarget session.AutomationTarget
	automationValue  float32

	elapsed time.Duration

	replyCh chan reply
}
