package history

import (
	"sort"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/relay/packages/manager"
)

// maxLatencyUs is the histogram ceiling (60s); slower dispatches are clamped.
const maxLatencyUs = 60_000_000

// Stats summarises a set of records.
type Stats struct {
	Total     int
	Completed int
	Failed    int
	// Succeeded counts completed records with a 2xx or 3xx status.
	Succeeded int
	ByStatus  map[int]int
	ByKind    map[string]int
	Slots     []string

	P50  time.Duration
	P95  time.Duration
	P99  time.Duration
	Mean time.Duration
	Max  time.Duration
}

// ComputeStats builds latency percentiles and outcome counts.
func ComputeStats(records []*Record) Stats {
	stats := Stats{
		ByStatus: make(map[int]int),
		ByKind:   make(map[string]int),
	}
	if len(records) == 0 {
		return stats
	}

	// 1us to 60s range, 3 significant digits
	histogram := hdrhistogram.New(1, maxLatencyUs, 3)
	slots := make(map[string]bool)

	for _, r := range records {
		stats.Total++
		slots[r.SlotKey] = true

		switch r.State {
		case manager.Completed:
			stats.Completed++
			stats.ByStatus[r.StatusCode]++
			if r.Succeeded() {
				stats.Succeeded++
			}
		case manager.Failed:
			stats.Failed++
			stats.ByKind[r.FailureKind]++
		}

		latencyUs := r.Duration.Microseconds()
		if latencyUs < 1 {
			latencyUs = 1
		}
		if latencyUs > maxLatencyUs {
			latencyUs = maxLatencyUs
		}
		_ = histogram.RecordValue(latencyUs)
	}

	for slot := range slots {
		stats.Slots = append(stats.Slots, slot)
	}
	sort.Strings(stats.Slots)

	stats.P50 = time.Duration(histogram.ValueAtQuantile(50)) * time.Microsecond
	stats.P95 = time.Duration(histogram.ValueAtQuantile(95)) * time.Microsecond
	stats.P99 = time.Duration(histogram.ValueAtQuantile(99)) * time.Microsecond
	stats.Mean = time.Duration(histogram.Mean()) * time.Microsecond
	stats.Max = time.Duration(histogram.Max()) * time.Microsecond
	return stats
}

// SuccessRate is Succeeded over Total, in percent.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total) * 100
}
