package automation

// ThinningThreshold and ThinningMinTicks implement the recording thinning
// rule: a new point is inserted only if the value has moved by at least
// 0.5% of the [0,1] range and at least 48 ticks have passed since the
// previous point on that lane.
const (
	ThinningThreshold = 0.005
	ThinningMinTicks  = 48
)

// LaneRecordState tracks the last point actually recorded on one lane, so
// ShouldRecordPoint can thin a stream of in-progress parameter adjustments.
type LaneRecordState struct {
	HasPoint  bool
	LastTick  uint32
	LastValue float32
}

// ShouldRecordPoint reports whether a new point at (tick, value) clears the
// thinning threshold against the lane's last recorded point, and if so
// updates the state to reflect the new point.
func (s *LaneRecordState) ShouldRecordPoint(tick uint32, value float32) bool {
	if !s.HasPoint {
		s.HasPoint = true
		s.LastTick = tick
		s.LastValue = value
		return true
	}

	delta := value - s.LastValue
	if delta < 0 {
		delta = -delta
	}
	elapsed := tick - s.LastTick

	if delta >= ThinningThreshold && elapsed >= ThinningMinTicks {
		s.LastTick = tick
		s.LastValue = value
		return true
	}
	return false
}
