package artifact

import "time"

// Clock stamps completion markers. Tests substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock implements Clock with a constant time.
type FixedClock struct {
	Time time.Time
}

// Now returns the fixed time.
func (f FixedClock) Now() time.Time {
	return f.Time
}
