package domain

// PoolStats is a snapshot of one pool's state.
type PoolStats struct {
	Name       string `json:"name"`
	Idle       int    `json:"idle"`        // Connections in the pool, available
	CheckedOut int    `json:"checked_out"` // Connections held by callers
	Live       int    `json:"live"`        // Idle + checked out (including reserved slots)
	MinIdle    int    `json:"min_idle"`
	SoftMax    int    `json:"soft_max"`
	HardMax    int    `json:"hard_max"`
}

// Availability returns the percentage (0..100) of hard-max capacity not
// currently checked out, rounded toward zero. A pool with no capacity
// reports 0.
func (s *PoolStats) Availability() int {
	return AvailabilityPercent(s.HardMax, s.CheckedOut)
}

// AvailabilityPercent derives a saturation percentage from a hard maximum
// and a checked-out count.
func AvailabilityPercent(hardMax, checkedOut int) int {
	if hardMax <= 0 {
		return 0
	}
	pct := ((hardMax - checkedOut) * 100) / hardMax
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
