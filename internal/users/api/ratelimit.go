package api

import (
	"sync"
	"time"
)

// rateLimiter counts attempts per key over a sliding window. Keys with no
// attempts left in the window are swept by a background goroutine until
// stop is called.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		windows: make(map[string][]time.Time),
		limit:   limit,
		window:  window,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go rl.sweep()
	return rl
}

// allow records an attempt for key and reports whether it is within the limit.
// Rejected attempts are not recorded.
func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	live := rl.live(key, now.Add(-rl.window))
	if len(live) >= rl.limit {
		rl.windows[key] = live
		return false
	}
	rl.windows[key] = append(live, now)
	return true
}

// reset forgets key, e.g. after a successful sign-in.
func (rl *rateLimiter) reset(key string) {
	rl.mu.Lock()
	delete(rl.windows, key)
	rl.mu.Unlock()
}

func (rl *rateLimiter) live(key string, cutoff time.Time) []time.Time {
	entries := rl.windows[key]
	valid := entries[:0]
	for _, t := range entries {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	return valid
}

func (rl *rateLimiter) sweep() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
		}

		rl.mu.Lock()
		cutoff := rl.now().Add(-rl.window)
		for key := range rl.windows {
			if live := rl.live(key, cutoff); len(live) > 0 {
				rl.windows[key] = live
			} else {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}

func (rl *rateLimiter) stop() {
	rl.once.Do(func() { close(rl.done) })
}
