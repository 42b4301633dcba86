package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jamespfennell/departures/board"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, w.Code)
	return w.Body.String()
}

func TestObserveRecompute(t *testing.T) {
	c := NewCollector(15 * time.Second)
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	c.ObserveRecompute(board.Result{
		Arrivals: []board.Arrival{
			{RouteID: "8A"},
			{RouteID: "8B", IsRealtime: true},
			{RouteID: "8A", IsRealtime: true, PairedEstimate: true},
			{RouteID: "100", IsRealtime: true},
		},
		StopErrors:    map[string]error{"999": board.ErrStopNotFound},
		FeedCreatedAt: now.Add(-90 * time.Second),
		GeneratedAt:   now,
		Stale:         true,
	}, 3, time.Millisecond)

	body := scrape(t, c)
	for _, line := range []string{
		"departures_recomputes_total 1",
		`departures_arrivals{kind="static"} 1`,
		`departures_arrivals{kind="realtime"} 2`,
		`departures_arrivals{kind="paired"} 1`,
		"departures_stop_errors 1",
		"departures_realtime_feed_age_seconds 90",
		"departures_realtime_feed_stale 1",
		"departures_monitored_stops 3",
		"departures_refresh_interval_seconds 15",
		"departures_recompute_duration_seconds_count 1",
	} {
		require.Contains(t, body, line+"\n")
	}
}

func TestFetchFailed(t *testing.T) {
	c := NewCollector(time.Second)

	c.FetchFailed("static")
	c.FetchFailed("realtime")
	c.FetchFailed("realtime")

	body := scrape(t, c)
	require.Contains(t, body, `departures_fetch_errors_total{feed="static"} 1`+"\n")
	require.Contains(t, body, `departures_fetch_errors_total{feed="realtime"} 2`+"\n")
}
