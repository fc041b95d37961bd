package portfolio

import (
	"testing"
	"time"
)

func TestThrottleCanSignal(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(15 * time.Minute)

	if !th.CanSignal("BTC-USD", t0) {
		t.Fatal("never-signaled instrument must be permitted")
	}

	th.RecordSignal("BTC-USD", t0)

	tests := []struct {
		name  string
		at    time.Time
		allow bool
	}{
		{"same instant", t0, false},
		{"just before window", t0.Add(15*time.Minute - time.Second), false},
		{"exactly at window", t0.Add(15 * time.Minute), true},
		{"after window", t0.Add(time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := th.CanSignal("BTC-USD", tt.at); got != tt.allow {
				t.Errorf("expected %v, got %v", tt.allow, got)
			}
		})
	}

	if !th.CanSignal("ETH-USD", t0) {
		t.Error("other instruments must not be throttled")
	}
}

func TestThrottleRecordOverwrites(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(15 * time.Minute)

	th.RecordSignal("SOL-USD", t0)
	th.RecordSignal("SOL-USD", t0.Add(10*time.Minute))

	if th.CanSignal("SOL-USD", t0.Add(20*time.Minute)) {
		t.Error("second record must restart the window")
	}
	if !th.CanSignal("SOL-USD", t0.Add(25*time.Minute)) {
		t.Error("expected permit 15m after the latest record")
	}
}

func TestThrottleStatus(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(15 * time.Minute)

	if got := th.Status("ADA-USD", t0); got != "Ready" {
		t.Errorf("expected Ready, got %q", got)
	}
	th.RecordSignal("ADA-USD", t0)
	if got := th.Status("ADA-USD", t0.Add(30*time.Second)); got != "14m remaining" {
		t.Errorf("expected 14m remaining, got %q", got)
	}
	if got := th.Status("ADA-USD", t0.Add(16*time.Minute)); got != "Ready" {
		t.Errorf("expected Ready after window, got %q", got)
	}
}

func TestThrottleLoadKeepsNewest(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(15 * time.Minute)
	th.RecordSignal("DOT-USD", t0)

	th.Load(map[string]time.Time{
		"DOT-USD":  t0.Add(-time.Hour),
		"LINK-USD": t0,
	})

	if th.CanSignal("DOT-USD", t0.Add(5*time.Minute)) {
		t.Error("older persisted time must not replace a newer one")
	}
	if th.CanSignal("LINK-USD", t0.Add(5*time.Minute)) {
		t.Error("loaded signal must throttle")
	}
}
