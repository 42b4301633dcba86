package gtfs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/jamespfennell/departures/warnings"
)

// ErrMalformedTimestamp is returned by NormalizeTimestamp for values that are neither a plain
// number nor a {low, high} pair.
var ErrMalformedTimestamp = errors.New("malformed timestamp")

// LongBits is a 64-bit integer split into two 32-bit halves, as emitted by JavaScript protobuf
// decoders that cannot represent int64 natively.
type LongBits struct {
	Low  int64 `json:"low"`
	High int64 `json:"high"`
}

// Int64 returns low + high * 2^32. The low half is read as unsigned so that negative values
// produced by signed 32-bit encoders are handled.
func (l LongBits) Int64() int64 {
	return int64(uint32(l.Low)) + l.High<<32
}

// NormalizeTimestamp converts a decoded timestamp into epoch seconds.
//
// Plain integers, floats with an integral value, numeric strings, json.Number, LongBits and
// maps with "low" and "high" keys are accepted. Anything else returns an error wrapping
// ErrMalformedTimestamp.
func NormalizeTimestamp(v any) (int64, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint32:
		return int64(t), nil
	case uint64:
		if t > math.MaxInt64 {
			break
		}
		return int64(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) || math.Abs(t) > math.MaxInt64 {
			break
		}
		return int64(t), nil
	case json.Number:
		return normalizeNumeric(string(t))
	case string:
		return normalizeNumeric(t)
	case LongBits:
		return t.Int64(), nil
	case *LongBits:
		if t == nil {
			break
		}
		return t.Int64(), nil
	case map[string]any:
		rawLow, hasLow := t["low"]
		rawHigh, hasHigh := t["high"]
		if !hasLow || !hasHigh {
			break
		}
		low, err := NormalizeTimestamp(rawLow)
		if err != nil {
			return 0, fmt.Errorf("%w: low half: %s", ErrMalformedTimestamp, err)
		}
		high, err := NormalizeTimestamp(rawHigh)
		if err != nil {
			return 0, fmt.Errorf("%w: high half: %s", ErrMalformedTimestamp, err)
		}
		return LongBits{Low: low, High: high}.Int64(), nil
	}
	return 0, fmt.Errorf("%w: unsupported value %v of type %T", ErrMalformedTimestamp, v, v)
}

func normalizeNumeric(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrMalformedTimestamp, s)
	}
	return NormalizeTimestamp(f)
}

// The JSON feed mirrors the protobuf message with camelCase field names, which is what the
// protobuf JSON mapping and JavaScript decoders both produce.
type jsonFeedMessage struct {
	Header struct {
		Timestamp any `json:"timestamp"`
	} `json:"header"`
	Entity []jsonFeedEntity `json:"entity"`
}

type jsonFeedEntity struct {
	ID         string          `json:"id"`
	IsDeleted  bool            `json:"isDeleted"`
	TripUpdate *jsonTripUpdate `json:"tripUpdate"`
}

type jsonTripUpdate struct {
	Trip    *jsonTripDescriptor `json:"trip"`
	Vehicle *struct {
		ID string `json:"id"`
	} `json:"vehicle"`
	StopTimeUpdate []jsonStopTimeUpdate `json:"stopTimeUpdate"`
}

type jsonTripDescriptor struct {
	TripID               *string `json:"tripId"`
	RouteID              *string `json:"routeId"`
	DirectionID          *uint32 `json:"directionId"`
	StartTime            *string `json:"startTime"`
	StartDate            *string `json:"startDate"`
	ScheduleRelationship any     `json:"scheduleRelationship"`
}

type jsonStopTimeUpdate struct {
	StopSequence         *uint32            `json:"stopSequence"`
	StopID               *string            `json:"stopId"`
	Arrival              *jsonStopTimeEvent `json:"arrival"`
	Departure            *jsonStopTimeEvent `json:"departure"`
	Platform             *string            `json:"platform"`
	ScheduleRelationship any                `json:"scheduleRelationship"`
}

type jsonStopTimeEvent struct {
	Delay       *int32 `json:"delay"`
	Time        any    `json:"time"`
	Uncertainty *int32 `json:"uncertainty"`
}

// ParseRealtimeJSON parses the content as a JSON encoded GTFS realtime feed.
//
// Timestamps may be plain numbers or {low, high} pairs. A stop time update with a malformed
// timestamp is dropped and recorded in the result's warnings; the rest of the feed is kept.
// Errors wrap ErrFeedDecode.
func ParseRealtimeJSON(content []byte, opts *ParseRealtimeOptions) (*Realtime, error) {
	decoder := json.NewDecoder(bytes.NewReader(content))
	decoder.UseNumber()
	var message jsonFeedMessage
	if err := decoder.Decode(&message); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFeedDecode, err)
	}
	var b realtimeBuilder
	if message.Header.Timestamp != nil {
		if t, err := NormalizeTimestamp(message.Header.Timestamp); err == nil {
			b.result.CreatedAt = time.Unix(t, 0).In(opts.timezoneOrUTC())
		} else {
			b.warn(warnings.MalformedTimestamp{Field: "header", Err: err})
		}
	}
	for _, entity := range message.Entity {
		if entity.IsDeleted || entity.TripUpdate == nil {
			continue
		}
		tripUpdate := entity.TripUpdate
		if tripUpdate.Trip == nil {
			b.warn(warnings.TripUpdateMissingTrip{ID: entity.ID})
			continue
		}
		tripDesc := &gtfsrt.TripDescriptor{
			TripId:      tripUpdate.Trip.TripID,
			RouteId:     tripUpdate.Trip.RouteID,
			DirectionId: tripUpdate.Trip.DirectionID,
			StartTime:   tripUpdate.Trip.StartTime,
			StartDate:   tripUpdate.Trip.StartDate,
		}
		if v, ok := parseJSONEnum(tripUpdate.Trip.ScheduleRelationship, gtfsrt.TripDescriptor_ScheduleRelationship_value); ok {
			tripDesc.ScheduleRelationship = gtfsrt.TripDescriptor_ScheduleRelationship(v).Enum()
		}
		trip := Trip{
			ID: parseTripDescriptor(tripDesc, opts),
		}
		if tripUpdate.Vehicle != nil {
			trip.VehicleID = tripUpdate.Vehicle.ID
		}
		for _, stopTimeUpdate := range tripUpdate.StopTimeUpdate {
			update := StopTimeUpdate{
				StopSequence: stopTimeUpdate.StopSequence,
				StopID:       stopTimeUpdate.StopID,
				Platform:     stopTimeUpdate.Platform,
			}
			if v, ok := parseJSONEnum(stopTimeUpdate.ScheduleRelationship, gtfsrt.TripUpdate_StopTimeUpdate_ScheduleRelationship_value); ok {
				update.ScheduleRelationship = StopTimeUpdateScheduleRelationship(v)
			}
			malformed := false
			for _, event := range []struct {
				field string
				in    *jsonStopTimeEvent
				out   **StopTimeEvent
			}{
				{"arrival", stopTimeUpdate.Arrival, &update.Arrival},
				{"departure", stopTimeUpdate.Departure, &update.Departure},
			} {
				converted, err := convertJSONStopTimeEvent(event.in, opts)
				if err != nil {
					b.warn(warnings.MalformedTimestamp{
						ID:     entity.ID,
						TripID: trip.ID.ID,
						StopID: valueOrEmpty(stopTimeUpdate.StopID),
						Field:  event.field,
						Err:    err,
					})
					malformed = true
					break
				}
				*event.out = converted
			}
			// The other event must not stand in for a malformed one.
			if malformed {
				continue
			}
			trip.StopTimeUpdates = append(trip.StopTimeUpdates, update)
		}
		b.addTrip(trip)
	}
	return b.build(), nil
}

func convertJSONStopTimeEvent(event *jsonStopTimeEvent, opts *ParseRealtimeOptions) (*StopTimeEvent, error) {
	if event == nil {
		return nil, nil
	}
	result := StopTimeEvent{
		Uncertainty: event.Uncertainty,
	}
	if event.Time != nil {
		seconds, err := NormalizeTimestamp(event.Time)
		if err != nil {
			return nil, err
		}
		t := time.Unix(seconds, 0).In(opts.timezoneOrUTC())
		result.Time = &t
	}
	if event.Delay != nil {
		d := time.Duration(*event.Delay) * time.Second
		result.Delay = &d
	}
	return &result, nil
}

// parseJSONEnum accepts either the enum value name or its number.
func parseJSONEnum(v any, names map[string]int32) (int32, bool) {
	switch t := v.(type) {
	case string:
		i, ok := names[t]
		return i, ok
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int32(i), true
	}
	return 0, false
}

func valueOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
