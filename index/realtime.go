package index

import (
	"time"

	"github.com/jamespfennell/departures/gtfs"
)

// StopTimeUpdate is a single real-time prediction for a trip at a stop.
type StopTimeUpdate struct {
	TripID  string
	RouteID string
	StopID  string
	// Arrival time if the feed gives one, otherwise the departure time.
	PredictedTime time.Time
	Delay         time.Duration
	Platform      string
}

// Realtime is the real-time feed index. A nil *Realtime is valid and contains no updates.
type Realtime struct {
	createdAt       time.Time
	updatesByStopID map[string][]StopTimeUpdate
	numUpdates      int
	numDropped      int
}

func NewRealtime(realtime *gtfs.Realtime) *Realtime {
	r := &Realtime{
		createdAt:       realtime.CreatedAt,
		updatesByStopID: map[string][]StopTimeUpdate{},
	}
	for i := range realtime.Trips {
		trip := &realtime.Trips[i]
		if trip.ID.IsCanceled() {
			r.numDropped += len(trip.StopTimeUpdates)
			continue
		}
		for j := range trip.StopTimeUpdates {
			update, ok := convertStopTimeUpdate(trip, &trip.StopTimeUpdates[j])
			if !ok {
				r.numDropped++
				continue
			}
			r.updatesByStopID[update.StopID] = append(r.updatesByStopID[update.StopID], update)
			r.numUpdates++
		}
	}
	return r
}

func convertStopTimeUpdate(trip *gtfs.Trip, stu *gtfs.StopTimeUpdate) (StopTimeUpdate, bool) {
	if stu.StopID == nil || stu.ScheduleRelationship == gtfs.StopTimeUpdate_Skipped {
		return StopTimeUpdate{}, false
	}
	event := stu.Arrival
	if event == nil || event.Time == nil {
		event = stu.Departure
	}
	if event == nil || event.Time == nil {
		return StopTimeUpdate{}, false
	}
	update := StopTimeUpdate{
		TripID:        trip.ID.ID,
		RouteID:       trip.ID.RouteID,
		StopID:        *stu.StopID,
		PredictedTime: *event.Time,
	}
	if event.Delay != nil {
		update.Delay = *event.Delay
	}
	if stu.Platform != nil {
		update.Platform = *stu.Platform
	}
	return update, true
}

// UpdatesForStop returns the updates at the stop in feed order, or nil if there are none.
func (r *Realtime) UpdatesForStop(stopID string) []StopTimeUpdate {
	if r == nil {
		return nil
	}
	return r.updatesByStopID[stopID]
}

// CreatedAt returns the feed header timestamp, which is zero if the feed did not set it.
func (r *Realtime) CreatedAt() time.Time {
	if r == nil {
		return time.Time{}
	}
	return r.createdAt
}

func (r *Realtime) NumUpdates() int {
	if r == nil {
		return 0
	}
	return r.numUpdates
}

// NumDropped returns the number of stop time updates that had no usable prediction.
func (r *Realtime) NumDropped() int {
	if r == nil {
		return 0
	}
	return r.numDropped
}

// WithCreatedAt returns a copy of the index with a different feed timestamp. The copy shares the
// update lists with r.
func (r *Realtime) WithCreatedAt(createdAt time.Time) *Realtime {
	if r == nil {
		return nil
	}
	c := *r
	c.createdAt = createdAt
	return &c
}
