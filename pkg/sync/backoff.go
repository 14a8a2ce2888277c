package sync

import (
	"math/rand"
	"time"
)

// jitteredBackoff doubles base per attempt up to limit, then spreads the
// delay over [d/2, d] so simultaneous reconnects don't stampede.
func jitteredBackoff(base, limit time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		d = limit
	}
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half)+1))
}
