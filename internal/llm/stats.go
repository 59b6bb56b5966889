package llm

import (
	"time"
)

// ProviderStats summarises the outcomes one provider has produced.
type ProviderStats struct {
	Provider   ProviderID    `json:"provider"`
	Successes  int           `json:"successes"`
	Failures   int           `json:"failures"`
	AvgLatency time.Duration `json:"avg_latency"`
	LastError  string        `json:"last_error,omitempty"`
}

func (s ProviderStats) SuccessRate() float64 {
	total := s.Successes + s.Failures
	if total == 0 {
		return 0
	}
	return float64(s.Successes) / float64(total) * 100
}

type statsBook struct {
	entries map[ProviderID]*statsEntry
}

type statsEntry struct {
	successes    int
	failures     int
	totalLatency time.Duration
	lastErr      string
}

func newStatsBook() *statsBook {
	return &statsBook{entries: make(map[ProviderID]*statsEntry)}
}

func (b *statsBook) entry(p ProviderID) *statsEntry {
	e, ok := b.entries[p]
	if !ok {
		e = &statsEntry{}
		b.entries[p] = e
	}
	return e
}

func (b *statsBook) success(p ProviderID, latency time.Duration) {
	e := b.entry(p)
	e.successes++
	e.totalLatency += latency
}

func (b *statsBook) failure(p ProviderID, latency time.Duration, err error) {
	e := b.entry(p)
	e.failures++
	e.totalLatency += latency
	if err != nil {
		e.lastErr = err.Error()
	}
}

// snapshot reports every registry entry in order, including unused ones.
func (b *statsBook) snapshot(registry []ProviderID) []ProviderStats {
	out := make([]ProviderStats, 0, len(registry))
	for _, p := range registry {
		s := ProviderStats{Provider: p}
		if e, ok := b.entries[p]; ok {
			s.Successes = e.successes
			s.Failures = e.failures
			s.LastError = e.lastErr
			if n := e.successes + e.failures; n > 0 {
				s.AvgLatency = e.totalLatency / time.Duration(n)
			}
		}
		out = append(out, s)
	}
	return out
}
