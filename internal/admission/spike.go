package admission

import (
	"strings"
	"sync"
	"time"
)

// SpikeDetector tracks request instants across all callers in a sliding
// window and reports when their number exceeds a threshold.
type SpikeDetector struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	seen      []time.Time
}

// NewSpikeDetector returns a detector for the given window and threshold.
func NewSpikeDetector(window time.Duration, threshold int) *SpikeDetector {
	return &SpikeDetector{window: window, threshold: threshold}
}

// Observe records now and reports whether the window is above threshold.
func (d *SpikeDetector) Observe(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.window)
	i := 0
	for i < len(d.seen) && d.seen[i].Before(cutoff) {
		i++
	}
	d.seen = append(d.seen[i:], now)
	return len(d.seen) > d.threshold
}

var automationAgents = []string{
	"curl", "wget", "python", "httpie", "postman", "insomnia", "bot", "crawler", "spider",
}

// IsSuspiciousUserAgent reports whether ua looks like an automation client.
// An empty user agent is not flagged.
func IsSuspiciousUserAgent(ua string) bool {
	lower := strings.ToLower(ua)
	if lower == "" {
		return false
	}
	for _, p := range automationAgents {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
