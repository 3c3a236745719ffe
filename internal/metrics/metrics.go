package metrics

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Outcome is how an upload service instance ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeTimeout Outcome = "timeout"
	OutcomeError   Outcome = "error"
)

// Snapshot is a point-in-time view of the recorder.
type Snapshot struct {
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	Timeouts    int     `json:"timeouts"`
	SuccessRate float64 `json:"success_rate"`
	P95Millis   float64 `json:"p95_ms"`
}

// MaxLatencySamples bounds the latency window; p95 covers the most recent
// successful uploads only.
const MaxLatencySamples = 1024

// Recorder aggregates instance outcomes in memory. Latencies are only kept for
// successful uploads, in a ring of MaxLatencySamples entries.
type Recorder struct {
	mu           sync.Mutex
	latencies    []time.Duration
	next         int
	successCount int
	failureCount int
	timeoutCount int
}

func (m *Recorder) Record(result Outcome, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch result {
	case OutcomeSuccess:
		m.successCount++
		if latency > 0 {
			m.addLatency(latency)
		}
	case OutcomeError:
		m.failureCount++
	case OutcomeTimeout:
		m.timeoutCount++
	}
}

func (m *Recorder) addLatency(latency time.Duration) {
	if len(m.latencies) < MaxLatencySamples {
		m.latencies = append(m.latencies, latency)
		return
	}
	m.latencies[m.next] = latency
	m.next = (m.next + 1) % MaxLatencySamples
}

func (m *Recorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := Snapshot{
		Successes: m.successCount,
		Failures:  m.failureCount,
		Timeouts:  m.timeoutCount,
	}
	// timeouts never reached the host, so they do not count against the rate
	if total := m.successCount + m.failureCount; total > 0 {
		snap.SuccessRate = float64(m.successCount) / float64(total)
	}
	if len(m.latencies) > 0 {
		durations := append([]time.Duration(nil), m.latencies...)
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		index := int(math.Round(0.95 * float64(len(durations)-1)))
		snap.P95Millis = float64(durations[index].Milliseconds())
	}
	return snap
}
