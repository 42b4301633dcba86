// Package board builds the departure board: it turns scheduled stop times and real-time
// predictions into one ranked list of arrivals across the monitored stops.
//
// Everything in this package is synchronous and free of I/O. The indexes it reads are never
// mutated.
package board

import (
	"encoding/json"
	"time"
)

// Arrival is a single upcoming departure shown on the board.
type Arrival struct {
	// The route label riders know, usually the route short name.
	RouteID string
	// The trip headsign. Real-time and static trip identifiers often disagree, so arrivals are
	// grouped by destination rather than by raw trip ID.
	TripID      string
	ArrivalTime time.Time
	Delay       time.Duration
	StopCode    string
	StopName    string
	Platform    string
	IsRealtime  bool
	Direction   Direction
	// True if the time was borrowed from a real-time prediction on the paired route.
	PairedEstimate bool
}

// Key identifies the logical departure an arrival represents.
type Key struct {
	RouteID  string
	TripID   string
	StopCode string
}

func (a *Arrival) Key() Key {
	return Key{RouteID: a.RouteID, TripID: a.TripID, StopCode: a.StopCode}
}

// EpochMillis returns the arrival time in milliseconds since the Unix epoch.
func (a *Arrival) EpochMillis() int64 {
	return a.ArrivalTime.UnixMilli()
}

type arrivalJSON struct {
	RouteID            string    `json:"routeId"`
	TripID             string    `json:"tripId"`
	ArrivalTimeEpochMs int64     `json:"arrivalTimeEpochMs"`
	DelaySeconds       int64     `json:"delaySeconds"`
	StopCode           string    `json:"stopCode"`
	StopName           string    `json:"stopName"`
	Platform           string    `json:"platform,omitempty"`
	IsRealtime         bool      `json:"isRealtime"`
	Direction          Direction `json:"direction,omitempty"`
	PairedEstimate     bool      `json:"pairedEstimate"`
}

func (a Arrival) MarshalJSON() ([]byte, error) {
	return json.Marshal(arrivalJSON{
		RouteID:            a.RouteID,
		TripID:             a.TripID,
		ArrivalTimeEpochMs: a.EpochMillis(),
		DelaySeconds:       int64(a.Delay / time.Second),
		StopCode:           a.StopCode,
		StopName:           a.StopName,
		Platform:           a.Platform,
		IsRealtime:         a.IsRealtime,
		Direction:          a.Direction,
		PairedEstimate:     a.PairedEstimate,
	})
}

func (a *Arrival) UnmarshalJSON(b []byte) error {
	var j arrivalJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*a = Arrival{
		RouteID:        j.RouteID,
		TripID:         j.TripID,
		ArrivalTime:    time.UnixMilli(j.ArrivalTimeEpochMs),
		Delay:          time.Duration(j.DelaySeconds) * time.Second,
		StopCode:       j.StopCode,
		StopName:       j.StopName,
		Platform:       j.Platform,
		IsRealtime:     j.IsRealtime,
		Direction:      j.Direction,
		PairedEstimate: j.PairedEstimate,
	}
	return nil
}
