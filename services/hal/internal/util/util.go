// services/hal/internal/util/util.go
package util

import "time"

// ResetTimer re-arms t for d, draining a stale fire first. The caller
// must not have a concurrent receive pending on t.C.
func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
