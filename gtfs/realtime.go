package gtfs

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/jamespfennell/departures/warnings"
	"google.golang.org/protobuf/proto"
)

// ErrFeedDecode is returned when a realtime feed cannot be decoded at all.
var ErrFeedDecode = errors.New("failed to decode GTFS realtime feed")

// Realtime contains the parsed content for a single GTFS realtime message.
type Realtime struct {
	CreatedAt time.Time

	Trips []Trip

	Warnings []warnings.RealtimeWarning
}

type Trip struct {
	ID              TripID
	StopTimeUpdates []StopTimeUpdate
	VehicleID       string
}

type TripScheduleRelationship = gtfsrt.TripDescriptor_ScheduleRelationship

type TripID struct {
	ID          string
	RouteID     string
	DirectionID DirectionID

	HasStartTime bool
	StartTime    time.Duration

	HasStartDate bool
	StartDate    time.Time

	ScheduleRelationship TripScheduleRelationship
}

// Define ordering on trip ids for test consistency
func (t1 TripID) Less(t2 TripID) bool {
	if t1.ID != t2.ID {
		return t1.ID < t2.ID
	}
	if t1.RouteID != t2.RouteID {
		return t1.RouteID < t2.RouteID
	}
	if t1.DirectionID != t2.DirectionID {
		return t1.DirectionID < t2.DirectionID
	}
	if t1.HasStartTime != t2.HasStartTime {
		return !t1.HasStartTime && t2.HasStartTime
	}
	if t1.HasStartTime && t1.StartTime != t2.StartTime {
		return t1.StartTime < t2.StartTime
	}
	if t1.HasStartDate != t2.HasStartDate {
		return !t1.HasStartDate && t2.HasStartDate
	}
	if t1.HasStartDate && !t1.StartDate.Equal(t2.StartDate) {
		return t1.StartDate.Before(t2.StartDate)
	}
	return t1.ScheduleRelationship < t2.ScheduleRelationship
}

// IsCanceled reports whether the whole trip was removed from service.
func (t TripID) IsCanceled() bool {
	return t.ScheduleRelationship == gtfsrt.TripDescriptor_CANCELED
}

type StopTimeUpdateScheduleRelationship = gtfsrt.TripUpdate_StopTimeUpdate_ScheduleRelationship

const StopTimeUpdate_Skipped = gtfsrt.TripUpdate_StopTimeUpdate_SKIPPED

type StopTimeUpdate struct {
	StopSequence         *uint32
	StopID               *string
	Arrival              *StopTimeEvent
	Departure            *StopTimeEvent
	Platform             *string
	ScheduleRelationship StopTimeUpdateScheduleRelationship
}

func (stopTimeUpdate *StopTimeUpdate) GetArrival() StopTimeEvent {
	if stopTimeUpdate != nil && stopTimeUpdate.Arrival != nil {
		return *stopTimeUpdate.Arrival
	}
	return StopTimeEvent{}
}

func (stopTimeUpdate *StopTimeUpdate) GetDeparture() StopTimeEvent {
	if stopTimeUpdate != nil && stopTimeUpdate.Departure != nil {
		return *stopTimeUpdate.Departure
	}
	return StopTimeEvent{}
}

type StopTimeEvent struct {
	Time        *time.Time
	Delay       *time.Duration
	Uncertainty *int32
}

type ParseRealtimeOptions struct {
	// The timezone to interpret date field.
	//
	// It can be nil, in which case UTC will used.
	Timezone *time.Location
}

func (opts *ParseRealtimeOptions) timezoneOrUTC() *time.Location {
	if opts != nil && opts.Timezone != nil {
		return opts.Timezone
	}
	return time.UTC
}

// ParseRealtime parses the content as a protobuf encoded GTFS realtime feed.
//
// Only trip updates are read. Errors wrap ErrFeedDecode.
func ParseRealtime(content []byte, opts *ParseRealtimeOptions) (*Realtime, error) {
	feedMessage := &gtfsrt.FeedMessage{}
	// Producers routinely omit fields marked required in the proto2 schema.
	if err := (proto.UnmarshalOptions{AllowPartial: true}).Unmarshal(content, feedMessage); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFeedDecode, err)
	}
	var b realtimeBuilder
	if t := feedMessage.GetHeader().Timestamp; t != nil {
		b.result.CreatedAt = time.Unix(int64(*t), 0).In(opts.timezoneOrUTC())
	}
	for _, entity := range feedMessage.Entity {
		if entity.GetIsDeleted() {
			continue
		}
		tripUpdate := entity.GetTripUpdate()
		if tripUpdate == nil {
			continue
		}
		if tripUpdate.Trip == nil {
			b.warn(warnings.TripUpdateMissingTrip{ID: entity.GetId()})
			continue
		}
		trip := Trip{
			ID:        parseTripDescriptor(tripUpdate.Trip, opts),
			VehicleID: tripUpdate.GetVehicle().GetId(),
		}
		for _, stopTimeUpdate := range tripUpdate.StopTimeUpdate {
			trip.StopTimeUpdates = append(trip.StopTimeUpdates, StopTimeUpdate{
				StopSequence:         stopTimeUpdate.StopSequence,
				StopID:               stopTimeUpdate.StopId,
				Arrival:              convertStopTimeEvent(stopTimeUpdate.Arrival, opts),
				Departure:            convertStopTimeEvent(stopTimeUpdate.Departure, opts),
				ScheduleRelationship: stopTimeUpdate.GetScheduleRelationship(),
			})
		}
		b.addTrip(trip)
	}
	return b.build(), nil
}

func convertStopTimeEvent(stopTimeEvent *gtfsrt.TripUpdate_StopTimeEvent, opts *ParseRealtimeOptions) *StopTimeEvent {
	if stopTimeEvent == nil {
		return nil
	}
	result := StopTimeEvent{
		Uncertainty: stopTimeEvent.Uncertainty,
	}
	if stopTimeEvent.Time != nil {
		t := time.Unix(*stopTimeEvent.Time, 0).In(opts.timezoneOrUTC())
		result.Time = &t
	}
	if stopTimeEvent.Delay != nil {
		d := time.Duration(*stopTimeEvent.Delay) * time.Second
		result.Delay = &d
	}
	return &result
}

// realtimeBuilder merges trip updates that refer to the same trip. The last entity in the feed wins.
type realtimeBuilder struct {
	result    Realtime
	tripsByID map[TripID]*Trip
}

func (b *realtimeBuilder) warn(w warnings.RealtimeWarning) {
	b.result.Warnings = append(b.result.Warnings, w)
}

func (b *realtimeBuilder) addTrip(trip Trip) {
	if b.tripsByID == nil {
		b.tripsByID = map[TripID]*Trip{}
	}
	if existing, ok := b.tripsByID[trip.ID]; ok {
		*existing = trip
		return
	}
	b.tripsByID[trip.ID] = &trip
}

func (b *realtimeBuilder) build() *Realtime {
	for _, trip := range b.tripsByID {
		b.result.Trips = append(b.result.Trips, *trip)
	}
	sort.Slice(b.result.Trips, func(i, j int) bool {
		return b.result.Trips[i].ID.Less(b.result.Trips[j].ID)
	})
	return &b.result
}

var startTimeRegex *regexp.Regexp = regexp.MustCompile(`^([0-9]{2}):([0-9]{2}):([0-9]{2})$`)
var startDateRegex *regexp.Regexp = regexp.MustCompile(`^([0-9]{4})([0-9]{2})([0-9]{2})$`)

func parseTripDescriptor(tripDesc *gtfsrt.TripDescriptor, opts *ParseRealtimeOptions) TripID {
	id := TripID{
		ID:                   tripDesc.GetTripId(),
		RouteID:              tripDesc.GetRouteId(),
		DirectionID:          parseDirectionID_GTFSRealtime(tripDesc.DirectionId),
		ScheduleRelationship: tripDesc.GetScheduleRelationship(),
	}
	id.HasStartTime, id.StartTime = parseStartTime(tripDesc.StartTime)
	id.HasStartDate, id.StartDate = parseStartDate(tripDesc.StartDate, opts.timezoneOrUTC())
	return id
}

// parseStartTime parses a start time of the form HH:MM:SS into a Duration.
//
// It does not handle daylight saving time currently.
func parseStartTime(startTime *string) (bool, time.Duration) {
	if startTime == nil {
		return false, 0
	}
	startTimeMatch := startTimeRegex.FindStringSubmatch(*startTime)
	if startTimeMatch == nil {
		return false, 0
	}
	h, _ := strconv.Atoi(startTimeMatch[1])
	m, _ := strconv.Atoi(startTimeMatch[2])
	s, _ := strconv.Atoi(startTimeMatch[3])
	return true, time.Duration((h*60+m)*60+s) * time.Second
}

func parseStartDate(startDate *string, timezone *time.Location) (bool, time.Time) {
	if startDate == nil {
		return false, time.Time{}
	}
	startDateMatch := startDateRegex.FindStringSubmatch(*startDate)
	if startDateMatch == nil {
		return false, time.Time{}
	}
	y, _ := strconv.Atoi(startDateMatch[1])
	m, _ := strconv.Atoi(startDateMatch[2])
	d, _ := strconv.Atoi(startDateMatch[3])
	return true, time.Date(y, time.Month(m), d, 0, 0, 0, 0, timezone)
}
