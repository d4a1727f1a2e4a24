package normalize

import "github.com/jonboulle/clockwork"

// clock supplies the default observation time for tabular rows that carry no
// timestamp column. Tests freeze it via SetClock for deterministic records.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
