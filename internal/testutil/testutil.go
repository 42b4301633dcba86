// Package testutil contains helpers for building GTFS static archives and GTFS realtime messages in tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/jamespfennell/departures/gtfs"
	"google.golang.org/protobuf/proto"
)

func Ptr[T any](t T) *T {
	return &t
}

// MustMarshal builds a GTFS realtime message and encodes it as protobuf.
//
// If header is nil a header with the given creation time is used.
func MustMarshal(t testing.TB, createdAt time.Time, header *gtfsrt.FeedHeader, entities []*gtfsrt.FeedEntity) []byte {
	t.Helper()
	if header == nil {
		header = &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: Ptr("2.0"),
		}
		if !createdAt.IsZero() {
			header.Timestamp = Ptr(uint64(createdAt.Unix()))
		}
	}
	message := gtfsrt.FeedMessage{
		Header: header,
		Entity: entities,
	}
	b, err := proto.Marshal(&message)
	if err != nil {
		t.Fatalf("failed to marshal GTFS-RT message: %s", err)
	}
	return b
}

func MustParse(t testing.TB, header *gtfsrt.FeedHeader, entities []*gtfsrt.FeedEntity, opts *gtfs.ParseRealtimeOptions) *gtfs.Realtime {
	t.Helper()
	b := MustMarshal(t, time.Time{}, header, entities)
	result, err := gtfs.ParseRealtime(b, opts)
	if err != nil {
		t.Fatalf("failed to parse GTFS-RT message: %s", err)
	}
	return result
}

// TripUpdate builds a trip update entity. The entity ID is the trip ID.
func TripUpdate(tripID, routeID string, stopTimeUpdates ...*gtfsrt.TripUpdate_StopTimeUpdate) *gtfsrt.FeedEntity {
	trip := &gtfsrt.TripDescriptor{
		TripId: Ptr(tripID),
	}
	if routeID != "" {
		trip.RouteId = Ptr(routeID)
	}
	return &gtfsrt.FeedEntity{
		Id: Ptr(tripID),
		TripUpdate: &gtfsrt.TripUpdate{
			Trip:           trip,
			StopTimeUpdate: stopTimeUpdates,
		},
	}
}

// ArrivalAt builds a stop time update with an arrival event.
func ArrivalAt(stopID string, t time.Time, delay time.Duration) *gtfsrt.TripUpdate_StopTimeUpdate {
	return &gtfsrt.TripUpdate_StopTimeUpdate{
		StopId: Ptr(stopID),
		Arrival: &gtfsrt.TripUpdate_StopTimeEvent{
			Time:  Ptr(t.Unix()),
			Delay: Ptr(int32(delay / time.Second)),
		},
	}
}

// DepartureAt builds a stop time update with only a departure event.
func DepartureAt(stopID string, t time.Time) *gtfsrt.TripUpdate_StopTimeUpdate {
	return &gtfsrt.TripUpdate_StopTimeUpdate{
		StopId: Ptr(stopID),
		Departure: &gtfsrt.TripUpdate_StopTimeEvent{
			Time: Ptr(t.Unix()),
		},
	}
}

// ZipBuilder builds GTFS static archives in memory.
type ZipBuilder struct {
	m map[string]string
}

// NewZipBuilder returns a builder containing every required file with only its header row.
func NewZipBuilder() *ZipBuilder {
	return (&ZipBuilder{m: map[string]string{}}).Add(
		"agency.txt", "agency_id,agency_name,agency_url,agency_timezone",
	).Add(
		"routes.txt", "route_id,route_type",
	).Add(
		"stops.txt", "stop_id",
	).Add(
		"trips.txt", "route_id,service_id,trip_id",
	).Add(
		"stop_times.txt", "stop_id,trip_id,stop_sequence,arrival_time,departure_time",
	)
}

// Add sets the content of a file. Each line argument is a row.
func (z *ZipBuilder) Add(fileName string, lines ...string) *ZipBuilder {
	z.m[fileName] = strings.Join(lines, "\n")
	return z
}

// Remove deletes a file from the archive.
func (z *ZipBuilder) Remove(fileName string) *ZipBuilder {
	delete(z.m, fileName)
	return z
}

func (z *ZipBuilder) Build() []byte {
	var fileNames []string
	for fileName := range z.m {
		fileNames = append(fileNames, fileName)
	}
	sort.Strings(fileNames)
	var b bytes.Buffer
	zipWriter := zip.NewWriter(&b)
	for _, fileName := range fileNames {
		fileWriter, err := zipWriter.Create(fileName)
		if err != nil {
			panic(err)
		}
		if _, err := io.Copy(fileWriter, bytes.NewBufferString(z.m[fileName])); err != nil {
			panic(err)
		}
	}
	if err := zipWriter.Close(); err != nil {
		panic(err)
	}
	return b.Bytes()
}

func MustParseStatic(t testing.TB, content []byte) *gtfs.Static {
	t.Helper()
	result, err := gtfs.ParseStatic(content, gtfs.ParseStaticOptions{Quiet: true})
	if err != nil {
		t.Fatalf("failed to parse GTFS static archive: %s", err)
	}
	return result
}
