package snapshot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/bluele/gcache"
	"github.com/jamespfennell/departures/gtfs"
	"github.com/jamespfennell/departures/index"
	"github.com/jamespfennell/departures/internal/testutil"
	"github.com/stretchr/testify/require"
)

func staticArchive() []byte {
	return testutil.NewZipBuilder().Add(
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
	).Add(
		"trips.txt",
		"route_id,service_id,trip_id,trip_headsign",
		"R8A,weekday,T1,Georgian College",
	).Add(
		"stop_times.txt",
		"trip_id,stop_id,stop_sequence,arrival_time,departure_time",
		"T1,S330,1,08:10:00,08:10:00",
	).Build()
}

// serve returns a server that responds with the current content and counts requests.
func serve(t *testing.T, content *atomic.Value, requests *atomic.Int32) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		b, _ := content.Load().([]byte)
		if b == nil {
			http.Error(w, "no feed", http.StatusServiceUnavailable)
			return
		}
		w.Write(b)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStaticProvider(t *testing.T) {
	var content atomic.Value
	var requests atomic.Int32
	content.Store(staticArchive())
	server := serve(t, &content, &requests)
	clock := gcache.NewFakeClock()
	p := NewStaticProvider(StaticOptions{
		Source: server.URL,
		Cache:  NewCache[*index.Static](time.Hour, clock),
	})

	s, err := p.Latest(context.Background())
	require.NoError(t, err)
	stop, ok := s.FindStopByCode("330")
	require.True(t, ok)
	require.Equal(t, "Bayfield St", stop.Name)
	require.Equal(t, "UTC", s.Timezone().String())

	again, err := p.Latest(context.Background())
	require.NoError(t, err)
	require.Same(t, s, again)
	require.EqualValues(t, 1, requests.Load())

	clock.Advance(2 * time.Hour)
	content.Store([]byte(nil))
	stale, err := p.Latest(context.Background())
	require.Error(t, err)
	require.Same(t, s, stale, "the previous schedule is returned when a refresh fails")
	require.EqualValues(t, 2, requests.Load())
}

func TestStaticProvider_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gtfs.zip")
	require.NoError(t, os.WriteFile(path, staticArchive(), 0o644))
	p := NewStaticProvider(StaticOptions{Source: path, Timezone: time.UTC})

	s, err := p.Latest(context.Background())

	require.NoError(t, err)
	require.Equal(t, time.UTC, s.Timezone())
	require.False(t, p.LastFetchedAt().IsZero())
}

func TestStaticProvider_Missing(t *testing.T) {
	p := NewStaticProvider(StaticOptions{Source: filepath.Join(t.TempDir(), "missing.zip")})

	s, err := p.Latest(context.Background())

	require.Error(t, err)
	require.Nil(t, s)
}

func TestRealtimeProvider(t *testing.T) {
	createdAt := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	feed := func(createdAt time.Time, arrival time.Time) []byte {
		return testutil.MustMarshal(t, createdAt, nil, []*gtfsrt.FeedEntity{
			testutil.TripUpdate("T1", "R8A", testutil.ArrivalAt("S330", arrival, time.Minute)),
		})
	}
	var content atomic.Value
	var requests atomic.Int32
	content.Store(feed(createdAt, createdAt.Add(10*time.Minute)))
	server := serve(t, &content, &requests)
	clock := gcache.NewFakeClock()
	p := NewRealtimeProvider(RealtimeOptions{
		Source: server.URL,
		Cache:  NewCache[*index.Realtime](15*time.Second, clock),
	})

	r, err := p.Latest(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, r.NumUpdates())
	require.True(t, createdAt.Equal(r.CreatedAt()))
	updates := r.UpdatesForStop("S330")
	require.Len(t, updates, 1)
	require.True(t, createdAt.Add(10*time.Minute).Equal(updates[0].PredictedTime))

	// Same trips with a newer header: the index is reused with the new timestamp.
	clock.Advance(20 * time.Second)
	content.Store(feed(createdAt.Add(20*time.Second), createdAt.Add(10*time.Minute)))
	r, err = p.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, createdAt.Add(20*time.Second).Equal(r.CreatedAt()))
	require.Equal(t, 1, p.NumIndexed())

	clock.Advance(20 * time.Second)
	content.Store(feed(createdAt.Add(40*time.Second), createdAt.Add(11*time.Minute)))
	r, err = p.Latest(context.Background())
	require.NoError(t, err)
	require.True(t, createdAt.Add(11*time.Minute).Equal(r.UpdatesForStop("S330")[0].PredictedTime))
	require.Equal(t, 2, p.NumIndexed())
	require.EqualValues(t, 3, requests.Load())
}

func TestRealtimeProvider_JSON(t *testing.T) {
	var content atomic.Value
	var requests atomic.Int32
	content.Store([]byte(`{
		"header": {"timestamp": {"low": 1709280000, "high": 0}},
		"entity": [{"id": "1", "tripUpdate": {
			"trip": {"tripId": "T1"},
			"stopTimeUpdate": [{"stopId": "S330", "arrival": {"time": {"low": 1700000000, "high": 0}}}]
		}}]
	}`))
	server := serve(t, &content, &requests)
	p := NewRealtimeProvider(RealtimeOptions{Source: server.URL, Format: FormatJSON})

	r, err := p.Latest(context.Background())

	require.NoError(t, err)
	require.Equal(t, int64(1700000000), r.UpdatesForStop("S330")[0].PredictedTime.Unix())
}

func TestRealtimeProvider_Errors(t *testing.T) {
	var content atomic.Value
	var requests atomic.Int32
	server := serve(t, &content, &requests)
	p := NewRealtimeProvider(RealtimeOptions{Source: server.URL})

	r, err := p.Latest(context.Background())
	require.Error(t, err)
	require.Nil(t, r)

	content.Store([]byte("not a protobuf message"))
	r, err = p.Latest(context.Background())
	require.True(t, errors.Is(err, gtfs.ErrFeedDecode), "got %v", err)
	require.Nil(t, r)
}

func TestParseFormat(t *testing.T) {
	for s, want := range map[string]Format{"": FormatProtobuf, "proto": FormatProtobuf, "JSON": FormatJSON} {
		got, err := ParseFormat(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	require.Error(t, err)
}
