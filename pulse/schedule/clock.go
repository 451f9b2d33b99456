package schedule

import "time"

// Timer is a pending one-shot callback
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer, as time.Timer.Stop does.
	Stop() bool
}

// Clock supplies the current time and one-shot timers. Periodic entries run
// on cron; the initial and retry runs go through the Clock so tests can
// drive them.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

// RealClock returns the wall clock
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
