package lnode

import (
	"math/rand"
	"time"
)

// jitterWait picks a uniform wait in [d, 5d).  Forwarding HTLCs on a
// fixed clock edge would let an observer correlate hops through this
// node; the engine's minimum is honored but never the exact interval.
func jitterWait(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(rand.Int63n(int64(4*d)))
}

// afterJitter runs fn once after a jittered delay of at least d.
func afterJitter(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(jitterWait(d), fn)
}
