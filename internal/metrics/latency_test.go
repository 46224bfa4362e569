package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatencyTracker(t *testing.T) {
	tracker := NewLatencyTracker(0.01)

	for _, op := range []string{"strategy.static", "strategy.api"} {
		tracker.Record(op, 1*time.Millisecond)
		tracker.Record(op, 5*time.Millisecond)
		tracker.Record(op, 10*time.Millisecond)
		tracker.Record(op, 50*time.Millisecond)
		tracker.Record(op, 100*time.Millisecond)
	}

	stats, err := tracker.Stats("strategy.static")
	require.NoError(t, err)
	require.Equal(t, int64(5), stats.Count)
	require.InDelta(t, 1.0, stats.Min, 0.1)
	require.InDelta(t, 100.0, stats.Max, 1.0)
	require.InDelta(t, 10.0, stats.P50, 5.0)

	all := tracker.AllStats()
	require.Len(t, all, 2)
	require.Equal(t, "strategy.api", all[0].Operation)
	require.Equal(t, "strategy.static", all[1].Operation)

	_, err = tracker.Stats("nonexistent")
	require.Error(t, err)
}

func TestStatsString(t *testing.T) {
	s := Stats{Operation: "strategy.image", Count: 3, Min: 1.5, P50: 2, P90: 3, P99: 4, Max: 5.25}
	require.Equal(t, "strategy.image (n=3): min=1.50ms p50=2.00ms p90=3.00ms p99=4.00ms max=5.25ms", s.String())
	require.Equal(t, "empty: no data", Stats{Operation: "empty"}.String())
}

func TestHandler(t *testing.T) {
	tracker := NewLatencyTracker(0.01)
	tracker.Since("fetch", time.Now().Add(-2*time.Millisecond))

	rec := httptest.NewRecorder()
	tracker.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_kura/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.HasPrefix(rec.Body.String(), "fetch (n=1)"))
}
