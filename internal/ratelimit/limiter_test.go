package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_AdmitsUpToN(t *testing.T) {
	l := New(Config{N: 3, Window: time.Minute, Enabled: true})
	for i := 0; i < 3; i++ {
		if !l.Allow() {
			t.Errorf("admission %d should be allowed", i)
		}
	}
	if l.Allow() {
		t.Error("4th admission within the window should be refused")
	}
}

func TestLimiter_SlidingWindowEvicts(t *testing.T) {
	l := New(Config{N: 2, Window: 100 * time.Millisecond, Enabled: true})
	base := time.Now()

	if !l.AllowAt(base) {
		t.Fatal("1st admission should be allowed")
	}
	if !l.AllowAt(base.Add(10 * time.Millisecond)) {
		t.Fatal("2nd admission should be allowed")
	}
	if l.AllowAt(base.Add(20 * time.Millisecond)) {
		t.Fatal("3rd admission within window should be refused")
	}

	// Past the window, the first two timestamps are evicted.
	if !l.AllowAt(base.Add(150 * time.Millisecond)) {
		t.Error("admission after window elapses should be allowed")
	}
}

func TestLimiter_RefusalDoesNotRecord(t *testing.T) {
	l := New(Config{N: 1, Window: time.Minute, Enabled: true})
	base := time.Now()

	if !l.AllowAt(base) {
		t.Fatal("1st admission should be allowed")
	}
	for i := 0; i < 5; i++ {
		if l.AllowAt(base.Add(time.Duration(i) * time.Millisecond)) {
			t.Fatalf("refused admission %d must not be recorded as allowed", i)
		}
	}
	if l.Count(base) != 1 {
		t.Errorf("Count = %d, want 1 (refusals must not record)", l.Count(base))
	}
}

func TestLimiter_Disabled(t *testing.T) {
	l := New(Config{N: 1, Window: time.Minute, Enabled: false})
	for i := 0; i < 50; i++ {
		if !l.Allow() {
			t.Error("disabled limiter should always allow")
		}
	}
}

func TestLimiter_ZeroConfigAppliesDefaults(t *testing.T) {
	l := New(Config{Enabled: true})
	if l.config.N != 30 {
		t.Errorf("N = %d, want default 30", l.config.N)
	}
	if l.config.Window != 60*time.Second {
		t.Errorf("Window = %v, want default 60s", l.config.Window)
	}
}

func TestLimiter_Reset(t *testing.T) {
	l := New(Config{N: 1, Window: time.Minute, Enabled: true})
	l.Allow()
	if l.Allow() {
		t.Fatal("should be rate limited before reset")
	}
	l.Reset()
	if !l.Allow() {
		t.Error("should be allowed after reset")
	}
}

func TestFactory_ProducesIndependentLimiters(t *testing.T) {
	factory := NewFactory(Config{N: 1, Window: time.Minute, Enabled: true})
	a := factory.New()
	b := factory.New()

	if !a.Allow() {
		t.Fatal("first connection's limiter should admit")
	}
	if a.Allow() {
		t.Fatal("first connection's limiter should now refuse")
	}
	if !b.Allow() {
		t.Error("second connection's limiter must be independent of the first")
	}
}

func TestLimiter_ThirtyPerMinuteMatchesScenarioC(t *testing.T) {
	l := New(Config{N: 30, Window: time.Minute, Enabled: true})
	base := time.Now()
	for i := 0; i < 30; i++ {
		if !l.AllowAt(base.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("admission %d within the first 30 should be allowed", i+1)
		}
	}
	if l.AllowAt(base.Add(30 * time.Second)) {
		t.Fatal("31st admission within the same 60s window should be refused")
	}
}
