package automation

import (
	"math"
	"testing"

	"github.com/mohsenil85/imbolc-engine/pkg/session"
)

func TestEvaluate_Linear(t *testing.T) {
	t.Parallel()
	got := Evaluate(session.CurveLinear, 0, 0, 100, 10, 50)
	if got != 5 {
		t.Errorf("got %v, want 5", got)
	}
}

func TestEvaluate_Step_HoldsFirstValue(t *testing.T) {
	t.Parallel()
	got := Evaluate(session.CurveStep, 0, 1, 100, 5, 99)
	if got != 1 {
		t.Errorf("got %v, want 1", got)
	}
}

func TestEvaluate_SCurve_MidpointIsHalfway(t *testing.T) {
	t.Parallel()
	got := Evaluate(session.CurveSCurve, 0, 0, 100, 10, 50)
	if math.Abs(float64(got-5)) > 1e-4 {
		t.Errorf("got %v, want ~5 at the midpoint", got)
	}
}

func TestEvaluate_SCurve_EasesInAndOut(t *testing.T) {
	t.Parallel()
	// at 25% of the way, an s-curve should have moved less than a linear
	// ramp would (ease-in).
	linear := Evaluate(session.CurveLinear, 0, 0, 100, 10, 25)
	s := Evaluate(session.CurveSCurve, 0, 0, 100, 10, 25)
	if s >= linear {
		t.Errorf("s-curve value %v should ease in below the linear value %v", s, linear)
	}
}

func TestEvaluate_Exponential_InterpolatesInLogSpace(t *testing.T) {
	t.Parallel()
	got := Evaluate(session.CurveExponential, 0, 100, 100, 10000, 50)
	want := float32(1000) // geometric midpoint of 100 and 10000
	if math.Abs(float64(got-want)) > 1 {
		t.Errorf("got %v, want ~%v", got, want)
	}
}

func TestEvaluate_DegenerateSpan_ReturnsStartValue(t *testing.T) {
	t.Parallel()
	got := Evaluate(session.CurveLinear, 50, 3, 50, 9, 50)
	if got != 3 {
		t.Errorf("got %v, want 3 (t1 <= t0)", got)
	}
}

func TestEvaluateLane_EmptyLaneReportsFalse(t *testing.T) {
	t.Parallel()
	_, ok := EvaluateLane(session.AutomationLane{}, 10)
	if ok {
		t.Error("expected ok=false for an empty lane")
	}
}

func TestEvaluateLane_HoldsBoundaryValues(t *testing.T) {
	t.Parallel()
	lane := session.AutomationLane{Points: []session.AutomationPoint{
		{Tick: 10, Value: 1, Curve: session.CurveLinear},
		{Tick: 20, Value: 2, Curve: session.CurveLinear},
	}}

	if v, ok := EvaluateLane(lane, 0); !ok || v != 1 {
		t.Errorf("before first point: got (%v, %v), want (1, true)", v, ok)
	}
	if v, ok := EvaluateLane(lane, 100); !ok || v != 2 {
		t.Errorf("after last point: got (%v, %v), want (2, true)", v, ok)
	}
}

func TestEvaluateLane_InterpolatesBetweenSegments(t *testing.T) {
	t.Parallel()
	lane := session.AutomationLane{Points: []session.AutomationPoint{
		{Tick: 0, Value: 0, Curve: session.CurveLinear},
		{Tick: 10, Value: 1, Curve: session.CurveLinear},
		{Tick: 20, Value: 0, Curve: session.CurveLinear},
	}}

	v, ok := EvaluateLane(lane, 15)
	if !ok || v != 0.5 {
		t.Errorf("got (%v, %v), want (0.5, true)", v, ok)
	}
}

func TestShouldRecordPoint_FirstPointAlwaysRecords(t *testing.T) {
	t.Parallel()
	var s LaneRecordState
	if !s.ShouldRecordPoint(0, 0.1) {
		t.Error("expected the first point to always be recorded")
	}
}

func TestShouldRecordPoint_RejectsBelowThreshold(t *testing.T) {
	t.Parallel()
	s := LaneRecordState{HasPoint: true, LastTick: 0, LastValue: 0.5}
	if s.ShouldRecordPoint(ThinningMinTicks, 0.501) {
		t.Error("expected a sub-threshold value change to be rejected")
	}
}

func TestShouldRecordPoint_RejectsTooSoon(t *testing.T) {
	t.Parallel()
	s := LaneRecordState{HasPoint: true, LastTick: 0, LastValue: 0.5}
	if s.ShouldRecordPoint(ThinningMinTicks-1, 0.9) {
		t.Error("expected a point before ThinningMinTicks has elapsed to be rejected")
	}
}

func TestShouldRecordPoint_AcceptsWhenBothConditionsClear(t *testing.T) {
	t.Parallel()
	s := LaneRecordState{HasPoint: true, LastTick: 0, LastValue: 0.5}
	if !s.ShouldRecordPoint(ThinningMinTicks, 0.9) {
		t.Error("expected the point to be recorded once both thresholds clear")
	}
	if s.LastTick != ThinningMinTicks || s.LastValue != 0.9 {
		t.Errorf("state not updated: %+v", s)
	}
}

func TestShouldRecordPoint_UsesAbsoluteDelta(t *testing.T) {
	t.Parallel()
	s := LaneRecordState{HasPoint: true, LastTick: 0, LastValue: 0.5}
	if !s.ShouldRecordPoint(ThinningMinTicks, 0.5-ThinningThreshold-0.001) {
		t.Error("expected a downward change past the threshold to be recorded")
	}
}
