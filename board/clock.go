package board

import (
	"sync/atomic"
	"time"
)

var eventClock atomic.Int64

// nextTimestamp returns a strictly increasing nanosecond timestamp so event
// ordering survives same-tick mutations.
func nextTimestamp() int64 {
	for {
		prev := eventClock.Load()
		ts := time.Now().UnixNano()
		if ts <= prev {
			ts = prev + 1
		}
		if eventClock.CompareAndSwap(prev, ts) {
			return ts
		}
	}
}
