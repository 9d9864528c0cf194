package api

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()

	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	if !rl.allow("k") || !rl.allow("k") {
		t.Fatal("first two attempts rejected")
	}
	if rl.allow("k") {
		t.Fatal("third attempt allowed")
	}
	if !rl.allow("other") {
		t.Fatal("keys are not independent")
	}

	now = now.Add(61 * time.Second)
	if !rl.allow("k") {
		t.Fatal("attempt after window rejected")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)
	defer rl.stop()

	rl.allow("k")
	if rl.allow("k") {
		t.Fatal("limit not enforced")
	}
	rl.reset("k")
	if !rl.allow("k") {
		t.Fatal("reset did not clear key")
	}
}
