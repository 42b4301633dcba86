package index_test

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jamespfennell/departures/gtfs"
	"github.com/jamespfennell/departures/index"
	"github.com/jamespfennell/departures/internal/testutil"
)

func newStaticIndex(t *testing.T, opts index.StaticOptions) *index.Static {
	content := testutil.NewZipBuilder().Add(
		"agency.txt",
		"agency_id,agency_name,agency_url,agency_timezone",
		"a,Transit,http://example.com,America/Los_Angeles",
	).Add(
		"routes.txt",
		"route_id,route_short_name,route_type",
		"r47,47,3",
		"r9,,3",
	).Add(
		"stops.txt",
		"stop_id,stop_code,stop_name,location_type,parent_station,platform_code",
		"1001,5555,Main St,,,",
		"5555,,Shadowed,,,",
		"2002,,Elm St,,,",
		"station,9000,Central,1,,",
		"station_n,,Central North,0,station,N",
		"station_s,,Central South,0,station,S",
		"station_e,,Central Entrance,2,station,",
	).Add(
		"trips.txt",
		"route_id,service_id,trip_id,trip_headsign",
		"r47,wk,t1,Downtown",
		"r47,wk,t2,Downtown",
		"r9,wk,t3,Uptown",
	).Add(
		"stop_times.txt",
		"trip_id,stop_id,stop_sequence,arrival_time,departure_time",
		"t2,1001,1,10:30:00,10:30:00",
		"t1,1001,1,10:00:00,10:00:00",
		"t1,2002,2,10:05:00,10:05:00",
		"t3,station_n,1,11:00:00,11:00:00",
		"t3,station_s,2,25:00:00,25:00:00",
	).Build()
	return index.NewStatic(testutil.MustParseStatic(t, content), opts)
}

func TestFindStopByCode(t *testing.T) {
	s := newStaticIndex(t, index.StaticOptions{})

	for _, tc := range []struct {
		code   string
		wantID string
		wantOK bool
	}{
		{"5555", "1001", true},
		{"2002", "2002", true},
		{"9000", "station", true},
		{"1001", "", false},
		{"123456", "", false},
	} {
		t.Run(tc.code, func(t *testing.T) {
			stop, ok := s.FindStopByCode(tc.code)
			if ok != tc.wantOK {
				t.Fatalf("FindStopByCode(%q) ok = %t, want %t", tc.code, ok, tc.wantOK)
			}
			if ok && stop.Id != tc.wantID {
				t.Errorf("FindStopByCode(%q) = stop %q, want %q", tc.code, stop.Id, tc.wantID)
			}
		})
	}
}

func TestStopTimesForStop(t *testing.T) {
	s := newStaticIndex(t, index.StaticOptions{})

	stopTimes := s.StopTimesForStop("1001")
	var got []string
	for _, stopTime := range stopTimes {
		got = append(got, stopTime.Trip.ID)
	}
	if diff := cmp.Diff([]string{"t1", "t2"}, got); diff != "" {
		t.Errorf("trips at stop 1001 (-want +got):\n%s", diff)
	}
	if stopTimes[0].ArrivalTime != 10*time.Hour {
		t.Errorf("arrival time: got %s", stopTimes[0].ArrivalTime)
	}
	if s.StopTimesForStop("station") != nil {
		t.Errorf("expected no stop times at the station itself")
	}
	if got := s.StopTimesForStop("station_s")[0].Platform(); got != "S" {
		t.Errorf("platform: got %q, want S", got)
	}
}

func TestServedStopIDs(t *testing.T) {
	s := newStaticIndex(t, index.StaticOptions{})
	station, _ := s.FindStopByCode("9000")

	got := s.ServedStopIDs(station)

	if diff := cmp.Diff([]string{"station", "station_n", "station_s"}, got); diff != "" {
		t.Errorf("served stop IDs (-want +got):\n%s", diff)
	}
}

func TestLookups(t *testing.T) {
	s := newStaticIndex(t, index.StaticOptions{})

	trip, ok := s.Trip("t3")
	if !ok || trip.Headsign != "Uptown" {
		t.Errorf("Trip(t3) = %+v, %t", trip, ok)
	}
	route, ok := s.Route("r9")
	if !ok || route.Label() != "r9" {
		t.Errorf("Route(r9) = %+v, %t", route, ok)
	}
	if _, ok := s.Trip("missing"); ok {
		t.Errorf("expected no trip with ID missing")
	}
	want := index.Stats{NumStops: 7, NumRoutes: 2, NumTrips: 3, NumStopTimes: 5}
	if diff := cmp.Diff(want, s.Stats()); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
}

func TestTimezone(t *testing.T) {
	la, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Skipf("timezone data not available: %s", err)
	}

	if got := newStaticIndex(t, index.StaticOptions{}).Timezone(); got.String() != la.String() {
		t.Errorf("agency timezone: got %s, want %s", got, la)
	}
	if got := newStaticIndex(t, index.StaticOptions{Timezone: time.UTC}).Timezone(); got != time.UTC {
		t.Errorf("override timezone: got %s, want UTC", got)
	}
	if got := index.NewStatic(&gtfs.Static{}, index.StaticOptions{}).Timezone(); got != time.UTC {
		t.Errorf("empty feed timezone: got %s, want UTC", got)
	}
}
