// Package ratelimit implements a per-connection sliding-window admission
// counter: at most N admissions in any trailing window of length Window.
package ratelimit

import (
	"sync"
	"time"
)

// Config configures a Limiter.
type Config struct {
	// N is the admissions ceiling per Window. Default 30.
	N int
	// Window is the sliding window length. Default 60s.
	Window time.Duration
	// Enabled disables admission checking entirely when false.
	Enabled bool
}

// DefaultConfig returns the documented defaults: 30 admissions per 60s.
func DefaultConfig() Config {
	return Config{N: 30, Window: 60 * time.Second, Enabled: true}
}

// Limiter is a sliding-window admission counter for a single holder (one
// connection). It records the timestamp of every admitted call and evicts
// timestamps older than the window on each check.
type Limiter struct {
	mu         sync.Mutex
	config     Config
	timestamps []time.Time
}

// New creates a Limiter with the given config, applying defaults to
// zero-valued fields.
func New(config Config) *Limiter {
	if config.N <= 0 {
		config.N = 30
	}
	if config.Window <= 0 {
		config.Window = 60 * time.Second
	}
	return &Limiter{config: config}
}

// Allow evicts timestamps older than now-Window, then admits and records now
// if the current count is below N, else refuses without recording.
func (l *Limiter) Allow() bool {
	return l.AllowAt(time.Now())
}

// AllowAt is Allow with an explicit "now", for deterministic testing.
func (l *Limiter) AllowAt(now time.Time) bool {
	if !l.config.Enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.config.Window)
	evicted := 0
	for evicted < len(l.timestamps) && l.timestamps[evicted].Before(cutoff) {
		evicted++
	}
	if evicted > 0 {
		l.timestamps = l.timestamps[evicted:]
	}

	if len(l.timestamps) >= l.config.N {
		return false
	}
	l.timestamps = append(l.timestamps, now)
	return true
}

// Count returns the number of admissions currently inside the window,
// without evicting or recording.
func (l *Limiter) Count(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.config.Window)
	count := 0
	for _, ts := range l.timestamps {
		if !ts.Before(cutoff) {
			count++
		}
	}
	return count
}

// Reset clears all recorded admissions, as if the holder were newly created.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.timestamps = nil
}

// Factory creates one Limiter per connection, sharing a single Config.
// This mirrors spec §4.3's createRateLimiter() session-store operation.
type Factory struct {
	config Config
}

// NewFactory builds a Factory that stamps out Limiters with the given config.
func NewFactory(config Config) *Factory {
	return &Factory{config: config}
}

// New returns a fresh Limiter for a newly accepted connection.
func (f *Factory) New() *Limiter {
	return New(f.config)
}
