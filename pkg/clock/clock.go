package clock

import "time"

// Clock supplies the current time. Components take a Clock instead of
// calling time.Now so tests can simulate elapsed time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// New returns a Clock backed by the system time.
func New() Clock {
	return systemClock{}
}
