package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jamespfennell/departures/board"
	"github.com/jamespfennell/departures/gtfs"
	"github.com/jamespfennell/departures/index"
	"github.com/jamespfennell/departures/internal/testutil"
	"github.com/jamespfennell/departures/metrics"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type fakeStatic struct {
	s     *index.Static
	err   error
	calls atomic.Int32
}

func (f *fakeStatic) Latest(ctx context.Context) (*index.Static, error) {
	f.calls.Add(1)
	return f.s, f.err
}

type fakeRealtime struct {
	r     *index.Realtime
	err   error
	calls atomic.Int32
}

func (f *fakeRealtime) Latest(ctx context.Context) (*index.Realtime, error) {
	f.calls.Add(1)
	return f.r, f.err
}

func newStatic(t *testing.T) *index.Static {
	content := testutil.NewZipBuilder().Add(
		"agency.txt",
		"agency_id,agency_name,agency_url,agency_timezone",
		"a,Transit,https://example.com,UTC",
	).Add(
		"routes.txt",
		"route_id,route_short_name,route_type",
		"R8A,8A,3",
	).Add(
		"stops.txt",
		"stop_id,stop_code,stop_name",
		"S330,330,Bayfield St",
		"S400,400,Dunlop St",
	).Add(
		"trips.txt",
		"route_id,service_id,trip_id,trip_headsign",
		"R8A,weekday,T1,Georgian College",
	).Add(
		"stop_times.txt",
		"trip_id,stop_id,stop_sequence,arrival_time,departure_time",
		"T1,S330,1,08:10:00,08:10:00",
		"T1,S400,2,08:20:00,08:20:00",
	).Build()
	return index.NewStatic(testutil.MustParseStatic(t, content), index.StaticOptions{})
}

func newRealtime(t *testing.T) *index.Realtime {
	feed := testutil.MustParse(t, nil, nil, &gtfs.ParseRealtimeOptions{})
	feed.CreatedAt = now
	return index.NewRealtime(feed)
}

type harness struct {
	poller   *Poller
	static   *fakeStatic
	realtime *fakeRealtime
	results  chan board.Result
	cancel   func()
	done     chan error
}

func start(t *testing.T, static *fakeStatic, realtime *fakeRealtime, opts Options) *harness {
	results := make(chan board.Result, 10)
	opts.Now = func() time.Time { return now }
	opts.OnResult = func(r board.Result) { results <- r }
	p := New(board.New(board.Options{}), static, realtime, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	h := &harness{poller: p, static: static, realtime: realtime, results: results, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) next(t *testing.T) board.Result {
	t.Helper()
	select {
	case r := <-h.results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a recompute")
		return board.Result{}
	}
}

func (h *harness) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case r := <-h.results:
		t.Fatalf("unexpected recompute %+v", r)
	case <-time.After(d):
	}
}

func TestPoller_InitialRecompute(t *testing.T) {
	h := start(t, &fakeStatic{s: newStatic(t)}, &fakeRealtime{r: newRealtime(t)}, Options{
		RefreshInterval: time.Hour,
		Stops:           []string{"330"},
	})

	result := h.next(t)

	require.Len(t, result.Arrivals, 1)
	require.Equal(t, "8A", result.Arrivals[0].RouteID)
	require.NoError(t, result.FeedError)
	latest, ok := h.poller.Latest()
	require.True(t, ok)
	require.Equal(t, result.GeneratedAt, latest.GeneratedAt)
}

func TestPoller_Refresh(t *testing.T) {
	h := start(t, &fakeStatic{s: newStatic(t)}, &fakeRealtime{r: newRealtime(t)}, Options{
		RefreshInterval: time.Hour,
		Stops:           []string{"330"},
	})
	h.next(t)

	h.poller.Refresh()
	h.next(t)

	require.EqualValues(t, 2, h.realtime.calls.Load())
}

func TestPoller_Ticker(t *testing.T) {
	h := start(t, &fakeStatic{s: newStatic(t)}, &fakeRealtime{r: newRealtime(t)}, Options{
		RefreshInterval: 10 * time.Millisecond,
		Stops:           []string{"330"},
	})

	h.next(t)
	h.next(t)
	h.next(t)
}

func TestPoller_SetStopsIsDebounced(t *testing.T) {
	h := start(t, &fakeStatic{s: newStatic(t)}, &fakeRealtime{r: newRealtime(t)}, Options{
		RefreshInterval: time.Hour,
		DebounceDelay:   50 * time.Millisecond,
		Stops:           []string{"330"},
	})
	h.next(t)

	h.poller.SetStops([]string{"first"})
	h.poller.SetStops([]string{"second"})
	h.poller.SetStops([]string{"400", "missing"})
	result := h.next(t)
	h.expectNone(t, 150*time.Millisecond)

	require.Len(t, result.StopErrors, 1)
	require.ErrorIs(t, result.StopErrors["missing"], board.ErrStopNotFound)
	require.Len(t, result.Arrivals, 1)
	require.Equal(t, "400", result.Arrivals[0].StopCode)
	require.Equal(t, []string{"400", "missing"}, h.poller.Stops())
}

func TestPoller_SetStopsUnchanged(t *testing.T) {
	h := start(t, &fakeStatic{s: newStatic(t)}, &fakeRealtime{r: newRealtime(t)}, Options{
		RefreshInterval: time.Hour,
		DebounceDelay:   10 * time.Millisecond,
		Stops:           []string{"330"},
	})
	h.next(t)

	h.poller.SetStops([]string{"330"})
	h.expectNone(t, 100*time.Millisecond)

	require.EqualValues(t, 1, h.realtime.calls.Load())
}

func TestPoller_SetStopsEmpty(t *testing.T) {
	h := start(t, &fakeStatic{s: newStatic(t)}, &fakeRealtime{r: newRealtime(t)}, Options{
		RefreshInterval: 20 * time.Millisecond,
		DebounceDelay:   10 * time.Millisecond,
		Stops:           []string{"330"},
	})
	first := h.next(t)
	require.Len(t, first.Arrivals, 1)

	h.poller.SetStops(nil)
	// Ticks that already fired before the change may still recompute the old stops.
	var result board.Result
	for i := 0; i < 10; i++ {
		if result = h.next(t); len(result.Arrivals) == 0 {
			break
		}
	}

	require.Empty(t, result.Arrivals)
	require.Empty(t, result.StopErrors)
	latest, ok := h.poller.Latest()
	require.True(t, ok)
	require.Empty(t, latest.Arrivals)
	calls := h.realtime.calls.Load()
	h.expectNone(t, 100*time.Millisecond)
	require.Equal(t, calls, h.realtime.calls.Load())
}

func TestPoller_PausedWithoutStops(t *testing.T) {
	h := start(t, &fakeStatic{s: newStatic(t)}, &fakeRealtime{r: newRealtime(t)}, Options{
		RefreshInterval: 5 * time.Millisecond,
	})

	h.poller.Refresh()
	h.expectNone(t, 50*time.Millisecond)

	require.Zero(t, h.static.calls.Load())
	require.Zero(t, h.realtime.calls.Load())
	_, ok := h.poller.Latest()
	require.False(t, ok)
}

func TestPoller_FetchErrors(t *testing.T) {
	staticErr := errors.New("static unavailable")
	realtimeErr := errors.New("real-time unavailable")
	collector := metrics.NewCollector(time.Hour)
	h := start(t, &fakeStatic{err: staticErr}, &fakeRealtime{err: realtimeErr}, Options{
		RefreshInterval: time.Hour,
		Stops:           []string{"330"},
		Metrics:         collector,
	})

	result := h.next(t)

	require.ErrorIs(t, result.FeedError, realtimeErr)
	require.ErrorIs(t, result.StopErrors["330"], board.ErrNoStaticData)
	require.True(t, result.NoData)
	require.Empty(t, result.Arrivals)
}

func TestPoller_StopsOnCancel(t *testing.T) {
	p := New(board.New(board.Options{}), &fakeStatic{}, &fakeRealtime{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
