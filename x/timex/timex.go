package timex

import "time"

// NowMs returns Unix milliseconds as int64.
func NowMs() int64 { return time.Now().UnixMilli() }

// MsOf converts a time.Time to Unix milliseconds.
func MsOf(t time.Time) int64 { return t.UnixMilli() }
