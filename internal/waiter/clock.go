package waiter

import "time"

// Clock abstracts sleeping and time reads so the polling state machines can
// be driven in tests without real delays.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// RealClock is the production clock.
var RealClock Clock = realClock{}
