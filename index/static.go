// Package index contains read-only lookup structures built once per feed snapshot.
//
// Both indexes are safe for concurrent use after construction.
package index

import (
	"log"
	"sort"
	"time"
	// Agency timezones must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"

	"github.com/jamespfennell/departures/gtfs"
)

// StopTime is a scheduled stop time together with the trip it belongs to.
type StopTime struct {
	Trip          *gtfs.ScheduledTrip
	Stop          *gtfs.Stop
	StopSequence  int
	ArrivalTime   time.Duration
	DepartureTime time.Duration
}

// Platform returns the platform code of the stop, which may be empty.
func (st StopTime) Platform() string {
	if st.Stop == nil {
		return ""
	}
	return st.Stop.PlatformCode
}

type Stats struct {
	NumStops     int
	NumRoutes    int
	NumTrips     int
	NumStopTimes int
}

type StaticOptions struct {
	// Timezone used to interpret scheduled times of day. If nil, the timezone of the first agency
	// is used, and UTC if that is missing or invalid.
	Timezone *time.Location
}

// Static is the static schedule index.
type Static struct {
	stopsByCode       map[string]*gtfs.Stop
	stopsByID         map[string]*gtfs.Stop
	childStopIDs      map[string][]string
	stopTimesByStopID map[string][]StopTime
	tripsByID         map[string]*gtfs.ScheduledTrip
	routesByID        map[string]*gtfs.Route
	timezone          *time.Location
	stats             Stats
}

func NewStatic(static *gtfs.Static, opts StaticOptions) *Static {
	s := &Static{
		stopsByCode:       map[string]*gtfs.Stop{},
		stopsByID:         map[string]*gtfs.Stop{},
		childStopIDs:      map[string][]string{},
		stopTimesByStopID: map[string][]StopTime{},
		tripsByID:         map[string]*gtfs.ScheduledTrip{},
		routesByID:        map[string]*gtfs.Route{},
		timezone:          resolveTimezone(static, opts),
	}
	for i := range static.Stops {
		stop := &static.Stops[i]
		s.stopsByID[stop.Id] = stop
		if stop.Code != "" {
			s.stopsByCode[stop.Code] = stop
		}
		if stop.Parent != nil && stop.Type.Boardable() {
			s.childStopIDs[stop.Parent.Id] = append(s.childStopIDs[stop.Parent.Id], stop.Id)
		}
	}
	// Many feeds have no stop codes and riders use the stop ID instead. An explicit code always wins.
	for i := range static.Stops {
		stop := &static.Stops[i]
		if stop.Code != "" {
			continue
		}
		if _, ok := s.stopsByCode[stop.Id]; !ok {
			s.stopsByCode[stop.Id] = stop
		}
	}
	for i := range static.Routes {
		s.routesByID[static.Routes[i].Id] = &static.Routes[i]
	}
	for i := range static.Trips {
		trip := &static.Trips[i]
		s.tripsByID[trip.ID] = trip
		for _, stopTime := range trip.StopTimes {
			s.stopTimesByStopID[stopTime.Stop.Id] = append(s.stopTimesByStopID[stopTime.Stop.Id], StopTime{
				Trip:          trip,
				Stop:          stopTime.Stop,
				StopSequence:  stopTime.StopSequence,
				ArrivalTime:   stopTime.ArrivalTime,
				DepartureTime: stopTime.DepartureTime,
			})
			s.stats.NumStopTimes++
		}
	}
	for _, stopTimes := range s.stopTimesByStopID {
		sort.SliceStable(stopTimes, func(i, j int) bool {
			return stopTimes[i].ArrivalTime < stopTimes[j].ArrivalTime
		})
	}
	s.stats.NumStops = len(static.Stops)
	s.stats.NumRoutes = len(static.Routes)
	s.stats.NumTrips = len(static.Trips)
	return s
}

func resolveTimezone(static *gtfs.Static, opts StaticOptions) *time.Location {
	if opts.Timezone != nil {
		return opts.Timezone
	}
	if len(static.Agencies) == 0 || static.Agencies[0].Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(static.Agencies[0].Timezone)
	if err != nil {
		log.Printf("Falling back to UTC because agency timezone %q could not be loaded: %s", static.Agencies[0].Timezone, err)
		return time.UTC
	}
	return loc
}

// FindStopByCode returns the stop riders identify by the given code.
func (s *Static) FindStopByCode(code string) (*gtfs.Stop, bool) {
	stop, ok := s.stopsByCode[code]
	return stop, ok
}

func (s *Static) Stop(id string) (*gtfs.Stop, bool) {
	stop, ok := s.stopsByID[id]
	return stop, ok
}

// ServedStopIDs returns the ID of the stop followed by the IDs of its boardable child stops.
// Stations typically have no stop times of their own; their platforms do. Entrances and generic
// nodes are left out.
func (s *Static) ServedStopIDs(stop *gtfs.Stop) []string {
	return append([]string{stop.Id}, s.childStopIDs[stop.Id]...)
}

// StopTimesForStop returns the stop times at the stop ordered by arrival time, or nil if there
// are none.
func (s *Static) StopTimesForStop(stopID string) []StopTime {
	return s.stopTimesByStopID[stopID]
}

func (s *Static) Trip(id string) (*gtfs.ScheduledTrip, bool) {
	trip, ok := s.tripsByID[id]
	return trip, ok
}

func (s *Static) Route(id string) (*gtfs.Route, bool) {
	route, ok := s.routesByID[id]
	return route, ok
}

// Timezone returns the timezone in which scheduled times of day are interpreted.
func (s *Static) Timezone() *time.Location {
	return s.timezone
}

func (s *Static) Stats() Stats {
	return s.stats
}
