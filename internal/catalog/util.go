package catalog

import "time"

func waitDuration(ms int) <-chan time.Time {
	if ms <= 0 {
		ms = 1
	}
	return time.After(time.Duration(ms) * time.Millisecond)
}
