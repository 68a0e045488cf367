package slcache

import "time"

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func defaultCost(string, []byte) int64 { return 1 }

func systemNow() time.Time { return time.Now() }
