package board

import (
	"errors"
	"fmt"
	"time"

	"github.com/jamespfennell/departures/gtfs"
	"github.com/jamespfennell/departures/index"
)

// ErrStopNotFound is returned when a stop code matches no stop in the static schedule.
var ErrStopNotFound = errors.New("stop not found")

// StopArrivals are the candidate arrivals for one stop before reconciliation.
type StopArrivals struct {
	Stop      *gtfs.Stop
	Scheduled []Arrival
	Realtime  []Arrival
}

// Builder produces candidate arrivals for a single stop.
type Builder struct {
	Static *index.Static
	// May be nil, in which case only scheduled arrivals are produced.
	Realtime   *index.Realtime
	Directions DirectionRules
	// Upper bound of the arrivals window in minutes.
	MaxArrivalsWindow int
}

func (b *Builder) BuildStop(now time.Time, stopCode string) (StopArrivals, error) {
	stop, ok := b.Static.FindStopByCode(stopCode)
	if !ok {
		return StopArrivals{}, fmt.Errorf("%w: %q", ErrStopNotFound, stopCode)
	}
	result := StopArrivals{Stop: stop}
	for _, stopID := range b.Static.ServedStopIDs(stop) {
		result.Scheduled = b.appendScheduled(result.Scheduled, now, stop, stopCode, stopID)
		result.Realtime = b.appendRealtime(result.Realtime, now, stop, stopCode, stopID)
	}
	return result, nil
}

func (b *Builder) appendScheduled(arrivals []Arrival, now time.Time, stop *gtfs.Stop, stopCode, stopID string) []Arrival {
	loc := b.Static.Timezone()
	for _, stopTime := range b.Static.StopTimesForStop(stopID) {
		if stopTime.Trip == nil || stopTime.Trip.Route == nil {
			continue
		}
		t := ScheduledTime(now, stopTime.ArrivalTime, loc)
		if !InWindow(now, t, b.MaxArrivalsWindow) {
			continue
		}
		routeLabel := stopTime.Trip.Route.Label()
		arrivals = append(arrivals, Arrival{
			RouteID:     routeLabel,
			TripID:      stopTime.Trip.Headsign,
			ArrivalTime: t,
			StopCode:    stopCode,
			StopName:    stop.Name,
			Platform:    stopTime.Platform(),
			Direction:   b.Directions.Infer(routeLabel, stopTime.Trip.Headsign),
		})
	}
	return arrivals
}

func (b *Builder) appendRealtime(arrivals []Arrival, now time.Time, stop *gtfs.Stop, stopCode, stopID string) []Arrival {
	for _, update := range b.Realtime.UpdatesForStop(stopID) {
		if !InWindow(now, update.PredictedTime, b.MaxArrivalsWindow) {
			continue
		}
		trip, ok := b.Static.Trip(update.TripID)
		if !ok {
			continue
		}
		routeID := update.RouteID
		if routeID == "" && trip.Route != nil {
			routeID = trip.Route.Id
		}
		route, ok := b.Static.Route(routeID)
		if !ok {
			continue
		}
		platform := update.Platform
		if platform == "" {
			if s, ok := b.Static.Stop(stopID); ok {
				platform = s.PlatformCode
			}
		}
		routeLabel := route.Label()
		arrivals = append(arrivals, Arrival{
			RouteID:     routeLabel,
			TripID:      trip.Headsign,
			ArrivalTime: update.PredictedTime,
			Delay:       update.Delay,
			StopCode:    stopCode,
			StopName:    stop.Name,
			Platform:    platform,
			IsRealtime:  true,
			Direction:   b.Directions.Infer(routeLabel, trip.Headsign),
		})
	}
	return arrivals
}
