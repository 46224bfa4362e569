package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// LatencyTracker keeps one DDSketch per operation name.
type LatencyTracker struct {
	mu               sync.Mutex
	sketches         map[string]*ddsketch.DDSketch
	relativeAccuracy float64
}

func NewLatencyTracker(relativeAccuracy float64) *LatencyTracker {
	return &LatencyTracker{
		sketches:         make(map[string]*ddsketch.DDSketch),
		relativeAccuracy: relativeAccuracy,
	}
}

// Record adds a duration, in milliseconds, to the operation's sketch.
func (lt *LatencyTracker) Record(operation string, d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	sketch, ok := lt.sketches[operation]
	if !ok {
		var err error
		sketch, err = ddsketch.LogUnboundedDenseDDSketch(lt.relativeAccuracy)
		if err != nil {
			sketch, _ = ddsketch.NewDefaultDDSketch(lt.relativeAccuracy)
		}
		lt.sketches[operation] = sketch
	}
	_ = sketch.Add(float64(d.Microseconds()) / 1000.0)
}

// Since is shorthand for Record(operation, time.Since(start)), meant for defer.
func (lt *LatencyTracker) Since(operation string, start time.Time) {
	lt.Record(operation, time.Since(start))
}

type Stats struct {
	Operation string
	Count     int64
	Min       float64
	P50       float64
	P90       float64
	P99       float64
	Max       float64
}

func (lt *LatencyTracker) Stats(operation string) (Stats, error) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.statsLocked(operation)
}

func (lt *LatencyTracker) statsLocked(operation string) (Stats, error) {
	sketch, ok := lt.sketches[operation]
	if !ok {
		return Stats{}, fmt.Errorf("no data for operation: %s", operation)
	}
	count := sketch.GetCount()
	if count == 0 {
		return Stats{Operation: operation}, nil
	}

	minV, _ := sketch.GetMinValue()
	p50, _ := sketch.GetValueAtQuantile(0.50)
	p90, _ := sketch.GetValueAtQuantile(0.90)
	p99, _ := sketch.GetValueAtQuantile(0.99)
	maxV, _ := sketch.GetMaxValue()
	return Stats{
		Operation: operation,
		Count:     int64(count),
		Min:       minV,
		P50:       p50,
		P90:       p90,
		P99:       p99,
		Max:       maxV,
	}, nil
}

// AllStats returns stats for every operation, sorted by name.
func (lt *LatencyTracker) AllStats() []Stats {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	names := make([]string, 0, len(lt.sketches))
	for name := range lt.sketches {
		names = append(names, name)
	}
	sort.Strings(names)

	stats := make([]Stats, 0, len(names))
	for _, name := range names {
		if s, err := lt.statsLocked(name); err == nil {
			stats = append(stats, s)
		}
	}
	return stats
}

func (s Stats) String() string {
	if s.Count == 0 {
		return fmt.Sprintf("%s: no data", s.Operation)
	}
	return fmt.Sprintf("%s (n=%d): min=%.2fms p50=%.2fms p90=%.2fms p99=%.2fms max=%.2fms",
		s.Operation, s.Count, s.Min, s.P50, s.P90, s.P99, s.Max)
}

// Handler serves AllStats as plain text, one operation per line.
func (lt *LatencyTracker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		for _, s := range lt.AllStats() {
			fmt.Fprintln(w, s.String())
		}
	})
}
