package automation

import (
	"math"

	"github.com/mohsenil85/imbolc-engine/pkg/session"
)

const curveEpsilon = 1e-6

// Evaluate interpolates between two points per the curve type on the first
// point. Outside the first/last point of a lane, callers should hold the
// boundary value rather than call Evaluate.
func Evaluate(curve session.CurveType, t0 uint32, v0 float32, t1 uint32, v1 float32, t uint32) float32 {
	if t1 <= t0 {
		return v0
	}
	frac := float64(t-t0) / float64(t1-t0)
	switch curve {
	case session.CurveStep:
		return v0
	case session.CurveExponential:
		a := math.Max(float64(v0), curveEpsilon)
		b := math.Max(float64(v1), curveEpsilon)
		logv := math.Log(a) + frac*(math.Log(b)-math.Log(a))
		return float32(math.Exp(logv))
	case session.CurveSCurve:
		s := frac * frac * (3 - 2*frac)
		return v0 + float32(s)*(v1-v0)
	case session.CurveLinear:
		fallthrough
	default:
		return v0 + float32(frac)*(v1-v0)
	}
}

// EvaluateLane samples a lane at tick t, holding the boundary value outside
// the lane's first/last point and returning (0, false) for an empty lane.
func EvaluateLane(lane session.AutomationLane, t uint32) (float32, bool) {
	pts := lane.Points
	if len(pts) == 0 {
		return 0, false
	}
	if t <= pts[0].Tick {
		return pts[0].Value, true
	}
	if t >= pts[len(pts)-1].Tick {
		return pts[len(pts)-1].Value, true
	}
	for i := 0; i < len(pts)-1; i++ {
		if t >= pts[i].Tick && t <= pts[i+1].Tick {
			return Evaluate(pts[i].Curve, pts[i].Tick, pts[i].Value, pts[i+1].Tick, pts[i+1].Value, t), true
		}
	}
	return pts[len(pts)-1].Value, true
}
