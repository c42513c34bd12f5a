// Package backoff computes exponential delays for polling and retry loops.
package backoff

import (
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s
	Factor  float64       // default: 2
}

// Exponential returns the delay before the given attempt.
// Attempt 1 returns initial, attempt 2 returns initial*factor, etc.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 100 * time.Millisecond
	maxBackoff := 5 * time.Second
	factor := 2.0
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxBackoff = cfg.Max
		}
		if cfg.Factor > 1 {
			factor = cfg.Factor
		}
	}

	if attempt < 1 {
		return initial
	}
	backoff := float64(initial) * math.Pow(factor, float64(attempt-1))
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}
	return time.Duration(backoff)
}

// Func returns Exponential in the shape of a retry.CallArgs BackoffFunc.
// The delay passed in by the caller is ignored so the sequence always grows
// from cfg.Initial, however the caller compounds it.
func Func(cfg *Config) func(delay time.Duration, attempt int) time.Duration {
	return func(_ time.Duration, attempt int) time.Duration {
		return Exponential(attempt, cfg)
	}
}
