package domain

import "github.com/jonboulle/clockwork"

// clock stamps prediction updates. Tests swap it for a fake via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source used for prediction timestamps. Pass nil to
// reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
