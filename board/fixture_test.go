package board_test

import (
	"time"

	"github.com/jamespfennell/departures/gtfs"
	"github.com/jamespfennell/departures/index"
)

var now = time.Date(2024, time.March, 1, 8, 0, 0, 0, time.UTC)

const georgian = "Trip to Georgian College"

// newStatic builds a small network:
//
//	stop 330 (S330): 8A to Georgian College at 08:10, 8B to Downtown Terminal at 08:20,
//	                 100 to Park Place at 08:30 and 23:50
//	stop 400 (S400): 100 to Park Place at 08:05
//	stop 900 (station with platforms P1 and P2): 100 at 08:15 on P1, 8A at 08:40 on P2
func newStatic() *index.Static {
	static := &gtfs.Static{
		Agencies: []gtfs.Agency{{Id: "a", Name: "Transit", Timezone: "UTC"}},
		Routes: []gtfs.Route{
			{Id: "R8A", ShortName: "8A"},
			{Id: "R8B", ShortName: "8B"},
			{Id: "R100", ShortName: "100"},
			{Id: "R7"},
		},
		Stops: []gtfs.Stop{
			{Id: "S330", Code: "330", Name: "Bayfield St"},
			{Id: "S400", Code: "400", Name: "Dunlop St", PlatformCode: "2"},
			{Id: "S900", Code: "900", Name: "Central", Type: gtfs.StopType_Station},
			{Id: "P1", Name: "Central P1", PlatformCode: "1"},
			{Id: "P2", Name: "Central P2", PlatformCode: "2"},
		},
	}
	static.Stops[3].Parent = &static.Stops[2]
	static.Stops[4].Parent = &static.Stops[2]
	stop := func(id string) *gtfs.Stop {
		for i := range static.Stops {
			if static.Stops[i].Id == id {
				return &static.Stops[i]
			}
		}
		panic(id)
	}
	at := func(stopID string, h, m int) gtfs.ScheduledStopTime {
		d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
		return gtfs.ScheduledStopTime{Stop: stop(stopID), ArrivalTime: d, DepartureTime: d}
	}
	static.Trips = []gtfs.ScheduledTrip{
		{ID: "T8A-1", Route: &static.Routes[0], Headsign: georgian, StopTimes: []gtfs.ScheduledStopTime{at("S330", 8, 10)}},
		{ID: "T8B-1", Route: &static.Routes[1], Headsign: "Downtown Terminal", StopTimes: []gtfs.ScheduledStopTime{at("S330", 8, 20)}},
		{ID: "T100-1", Route: &static.Routes[2], Headsign: "Park Place", StopTimes: []gtfs.ScheduledStopTime{at("S400", 8, 5), at("S330", 8, 30)}},
		{ID: "T100-2", Route: &static.Routes[2], Headsign: "Park Place", StopTimes: []gtfs.ScheduledStopTime{at("S330", 23, 50)}},
		{ID: "T100-3", Route: &static.Routes[2], Headsign: "Park Place", StopTimes: []gtfs.ScheduledStopTime{at("P1", 8, 15)}},
		{ID: "T8A-2", Route: &static.Routes[0], Headsign: georgian, StopTimes: []gtfs.ScheduledStopTime{at("P2", 8, 40)}},
		{ID: "T7-1", Route: &static.Routes[3], Headsign: "Allandale", StopTimes: []gtfs.ScheduledStopTime{at("S400", 8, 12)}},
	}
	return index.NewStatic(static, index.StaticOptions{Timezone: time.UTC})
}

type update struct {
	tripID  string
	routeID string
	stopID  string
	at      time.Time
	delay   time.Duration
}

func newRealtime(createdAt time.Time, updates ...update) *index.Realtime {
	realtime := &gtfs.Realtime{CreatedAt: createdAt}
	for _, u := range updates {
		at, delay, stopID := u.at, u.delay, u.stopID
		realtime.Trips = append(realtime.Trips, gtfs.Trip{
			ID: gtfs.TripID{ID: u.tripID, RouteID: u.routeID},
			StopTimeUpdates: []gtfs.StopTimeUpdate{
				{
					StopID:  &stopID,
					Arrival: &gtfs.StopTimeEvent{Time: &at, Delay: &delay},
				},
			},
		})
	}
	return index.NewRealtime(realtime)
}

func ptr[T any](t T) *T {
	return &t
}
