// Package warnings contains typed diagnostics for data skipped while parsing feeds.
package warnings

import (
	"fmt"

	"github.com/jamespfennell/departures/constants"
)

// StaticWarning describes a row of a GTFS static file that was skipped or partially read.
type StaticWarning interface {
	File() constants.StaticFile
	Error() string
}

// MissingRequiredColumns is reported when the header of a file lacks required columns. Every row
// of the file is then skipped with its own warning.
type MissingRequiredColumns struct {
	FileName constants.StaticFile
	Columns  []string
}

func (w MissingRequiredColumns) File() constants.StaticFile {
	return w.FileName
}

func (w MissingRequiredColumns) Error() string {
	return fmt.Sprintf("required columns %s are missing from the header", w.Columns)
}

type AgencyMissingColumns struct {
	AgencyID    string
	MissingKeys []string
}

func (w AgencyMissingColumns) File() constants.StaticFile {
	return constants.AgencyFile
}

func (w AgencyMissingColumns) Error() string {
	return fmt.Sprintf("skipping agency %q because of missing columns %s", w.AgencyID, w.MissingKeys)
}

type RouteMissingColumns struct {
	RouteID     string
	MissingKeys []string
}

func (w RouteMissingColumns) File() constants.StaticFile {
	return constants.RoutesFile
}

func (w RouteMissingColumns) Error() string {
	return fmt.Sprintf("skipping route %q because of missing columns %s", w.RouteID, w.MissingKeys)
}

type RouteUnknownAgency struct {
	RouteID  string
	AgencyID string
}

func (w RouteUnknownAgency) File() constants.StaticFile {
	return constants.RoutesFile
}

func (w RouteUnknownAgency) Error() string {
	return fmt.Sprintf("skipping route %q because agency %q does not exist", w.RouteID, w.AgencyID)
}

type StopMissingColumns struct {
	StopID      string
	MissingKeys []string
}

func (w StopMissingColumns) File() constants.StaticFile {
	return constants.StopsFile
}

func (w StopMissingColumns) Error() string {
	return fmt.Sprintf("skipping stop %q because of missing columns %s", w.StopID, w.MissingKeys)
}

type TripMissingColumns struct {
	TripID      string
	MissingKeys []string
}

func (w TripMissingColumns) File() constants.StaticFile {
	return constants.TripsFile
}

func (w TripMissingColumns) Error() string {
	return fmt.Sprintf("skipping trip %q because of missing columns %s", w.TripID, w.MissingKeys)
}

type TripUnknownRoute struct {
	TripID  string
	RouteID string
}

func (w TripUnknownRoute) File() constants.StaticFile {
	return constants.TripsFile
}

func (w TripUnknownRoute) Error() string {
	return fmt.Sprintf("skipping trip %q because route %q does not exist", w.TripID, w.RouteID)
}

type StopTimeMissingColumns struct {
	TripID      string
	StopID      string
	MissingKeys []string
}

func (w StopTimeMissingColumns) File() constants.StaticFile {
	return constants.StopTimesFile
}

func (w StopTimeMissingColumns) Error() string {
	return fmt.Sprintf("skipping stop time (trip %q, stop %q) because of missing columns %s", w.TripID, w.StopID, w.MissingKeys)
}

type StopTimeUnknownReference struct {
	TripID string
	StopID string
	// Either "trip" or "stop".
	Kind string
}

func (w StopTimeUnknownReference) File() constants.StaticFile {
	return constants.StopTimesFile
}

func (w StopTimeUnknownReference) Error() string {
	return fmt.Sprintf("skipping stop time (trip %q, stop %q) because the %s does not exist", w.TripID, w.StopID, w.Kind)
}

// StopTimeInvalidTime is reported for rows whose arrival and departure times are both empty or unparseable.
type StopTimeInvalidTime struct {
	TripID        string
	StopID        string
	ArrivalTime   string
	DepartureTime string
}

func (w StopTimeInvalidTime) File() constants.StaticFile {
	return constants.StopTimesFile
}

func (w StopTimeInvalidTime) Error() string {
	return fmt.Sprintf("skipping stop time (trip %q, stop %q) because times %q/%q are not valid", w.TripID, w.StopID, w.ArrivalTime, w.DepartureTime)
}

// RealtimeWarning describes an entity or event of a GTFS realtime feed that was dropped.
type RealtimeWarning interface {
	EntityID() string
	Error() string
}

type TripUpdateMissingTrip struct {
	ID string
}

func (w TripUpdateMissingTrip) EntityID() string {
	return w.ID
}

func (w TripUpdateMissingTrip) Error() string {
	return fmt.Sprintf("skipping trip update entity %q because it has no trip descriptor", w.ID)
}

// MalformedTimestamp is reported when a stop time event carries a timestamp that is
// neither a plain number nor a {low, high} pair.
type MalformedTimestamp struct {
	ID     string
	TripID string
	StopID string
	// Field is the event that was dropped: "arrival" or "departure".
	Field string
	Err   error
}

func (w MalformedTimestamp) EntityID() string {
	return w.ID
}

func (w MalformedTimestamp) Error() string {
	return fmt.Sprintf("dropping %s event (trip %q, stop %q): %s", w.Field, w.TripID, w.StopID, w.Err)
}

func (w MalformedTimestamp) Unwrap() error {
	return w.Err
}
