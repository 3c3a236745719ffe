package metrics

import (
	"testing"
	"time"
)

func TestRecorderSnapshot(t *testing.T) {
	var m Recorder
	if snap := m.Snapshot(); snap != (Snapshot{}) {
		t.Fatalf("empty snapshot = %+v", snap)
	}
	for i := 1; i <= 20; i++ {
		m.Record(OutcomeSuccess, time.Duration(i)*100*time.Millisecond)
	}
	m.Record(OutcomeError, 0)
	m.Record(OutcomeTimeout, time.Minute)
	m.Record(OutcomeTimeout, time.Minute)

	snap := m.Snapshot()
	if snap.Successes != 20 || snap.Failures != 1 || snap.Timeouts != 2 {
		t.Fatalf("counts = %+v", snap)
	}
	if want := 20.0 / 21.0; snap.SuccessRate != want {
		t.Fatalf("success rate = %v, want %v", snap.SuccessRate, want)
	}
	if snap.P95Millis != 1900 {
		t.Fatalf("p95 = %v", snap.P95Millis)
	}
}

func TestRecorderKeepsRecentLatencies(t *testing.T) {
	var m Recorder
	for i := 0; i < MaxLatencySamples; i++ {
		m.Record(OutcomeSuccess, time.Hour)
	}
	for i := 1; i <= MaxLatencySamples+10; i++ {
		m.Record(OutcomeSuccess, time.Duration(i)*time.Millisecond)
	}

	m.mu.Lock()
	held := len(m.latencies)
	m.mu.Unlock()
	if held != MaxLatencySamples {
		t.Fatalf("held %d latencies, want %d", held, MaxLatencySamples)
	}

	snap := m.Snapshot()
	if snap.Successes != 2*MaxLatencySamples+10 {
		t.Fatalf("successes = %d", snap.Successes)
	}
	// The window holds 11..1034ms; the hour-long samples were evicted.
	if snap.P95Millis != 983 {
		t.Fatalf("p95 = %v, want 983", snap.P95Millis)
	}
}
