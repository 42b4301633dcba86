// Package gtfs contains parsers for GTFS static and realtime feeds.
//
// The parsers form the typed boundary of the departure board: everything downstream of them
// works with the structs in this package and never sees raw CSV rows or protobuf messages.
package gtfs

import (
	"archive/zip"
	"bytes"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/jamespfennell/departures/constants"
	"github.com/jamespfennell/departures/csv"
	"github.com/jamespfennell/departures/warnings"
)

// Static contains the parsed content for a single GTFS static message.
type Static struct {
	Agencies []Agency
	Routes   []Route
	Stops    []Stop
	Trips    []ScheduledTrip

	Warnings []warnings.StaticWarning
}

// Agency corresponds to a single row in the agency.txt file.
type Agency struct {
	Id       string
	Name     string
	Url      string
	Timezone string
}

// Route corresponds to a single row in the routes.txt file.
type Route struct {
	Id        string
	Agency    *Agency
	Color     string
	TextColor string
	ShortName string
	LongName  string
	Type      RouteType
}

// Label returns the name riders know the route by: the short name if set, otherwise the route ID.
func (route *Route) Label() string {
	if route.ShortName != "" {
		return route.ShortName
	}
	return route.Id
}

// Stop corresponds to a single row in the stops.txt file.
type Stop struct {
	Id           string
	Code         string
	Name         string
	Longitude    *float64
	Latitude     *float64
	Type         StopType
	Parent       *Stop
	PlatformCode string
}

// ScheduledTrip corresponds to a single row in the trips.txt file, along with its stop times.
type ScheduledTrip struct {
	ID          string
	Route       *Route
	ServiceID   string
	Headsign    string
	DirectionId DirectionID
	StopTimes   []ScheduledStopTime
}

// ScheduledStopTime corresponds to a single row in the stop_times.txt file.
//
// Times are durations since midnight of the service day and may exceed 24 hours for trips that
// run past midnight.
type ScheduledStopTime struct {
	Stop          *Stop
	StopSequence  int
	ArrivalTime   time.Duration
	DepartureTime time.Duration
	Headsign      string
}

type ParseStaticOptions struct {
	// If true, warnings are collected but not logged.
	Quiet bool
}

// ParseStatic parses the content as a GTFS static feed.
func ParseStatic(content []byte, opts ParseStaticOptions) (*Static, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open GTFS static archive: %w", err)
	}
	fileNameToFile := map[string]*zip.File{}
	for _, file := range reader.File {
		fileNameToFile[file.Name] = file
	}
	for _, fileName := range constants.RequiredFiles {
		if fileNameToFile[string(fileName)] == nil {
			return nil, fmt.Errorf("no %q file in GTFS static feed", fileName)
		}
	}
	result := &Static{}
	warn := func(w warnings.StaticWarning) {
		result.Warnings = append(result.Warnings, w)
	}
	var stopTimes []pendingStopTime
	for _, table := range []struct {
		file   constants.StaticFile
		action func(file *csv.File)
	}{
		{
			constants.AgencyFile,
			func(file *csv.File) {
				result.Agencies = parseAgencies(file, warn)
			},
		},
		{
			constants.RoutesFile,
			func(file *csv.File) {
				result.Routes = parseRoutes(file, result.Agencies, warn)
			},
		},
		{
			constants.StopsFile,
			func(file *csv.File) {
				result.Stops = parseStops(file, warn)
			},
		},
		{
			constants.TripsFile,
			func(file *csv.File) {
				result.Trips = parseTrips(file, result.Routes, warn)
			},
		},
		{
			constants.StopTimesFile,
			func(file *csv.File) {
				stopTimes = parseStopTimes(file, warn)
			},
		},
	} {
		file, err := readCsvFile(fileNameToFile, table.file)
		if err != nil {
			return nil, err
		}
		table.action(file)
		if columns := file.MissingRequiredColumns(); len(columns) > 0 {
			warn(warnings.MissingRequiredColumns{FileName: table.file, Columns: columns})
		}
		if err := file.Close(); err != nil {
			return nil, err
		}
	}
	attachStopTimes(result, stopTimes, warn)
	if !opts.Quiet {
		for _, w := range result.Warnings {
			log.Printf("%s: %s", w.File(), w.Error())
		}
	}
	return result, nil
}

func readCsvFile(fileNameToFile map[string]*zip.File, fileName constants.StaticFile) (*csv.File, error) {
	zipFile := fileNameToFile[string(fileName)]
	if zipFile == nil {
		return nil, fmt.Errorf("no %q file in GTFS static feed", fileName)
	}
	content, err := zipFile.Open()
	if err != nil {
		return nil, err
	}
	f, err := csv.New(fileName, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", fileName, err)
	}
	return f, nil
}

func parseAgencies(file *csv.File, warn func(warnings.StaticWarning)) []Agency {
	var agencies []Agency
	idColumn := file.OptionalColumn("agency_id")
	nameColumn := file.RequiredColumn("agency_name")
	urlColumn := file.OptionalColumn("agency_url")
	timezoneColumn := file.RequiredColumn("agency_timezone")
	for file.NextRow() {
		agency := Agency{
			Id:       idColumn.Read(),
			Name:     nameColumn.Read(),
			Url:      urlColumn.Read(),
			Timezone: timezoneColumn.Read(),
		}
		if missingKeys := file.MissingRowKeys(); len(missingKeys) > 0 {
			warn(warnings.AgencyMissingColumns{AgencyID: agency.Id, MissingKeys: missingKeys})
			continue
		}
		agencies = append(agencies, agency)
	}
	return agencies
}

func parseRoutes(file *csv.File, agencies []Agency, warn func(warnings.StaticWarning)) []Route {
	var routes []Route
	idColumn := file.RequiredColumn("route_id")
	agencyIDColumn := file.OptionalColumn("agency_id")
	colorColumn := file.OptionalColumn("route_color")
	textColorColumn := file.OptionalColumn("route_text_color")
	shortNameColumn := file.OptionalColumn("route_short_name")
	longNameColumn := file.OptionalColumn("route_long_name")
	typeColumn := file.OptionalColumn("route_type")
	for file.NextRow() {
		routeID := idColumn.Read()
		if missingKeys := file.MissingRowKeys(); len(missingKeys) > 0 {
			warn(warnings.RouteMissingColumns{RouteID: routeID, MissingKeys: missingKeys})
			continue
		}
		var agency *Agency
		if agencyID := agencyIDColumn.Read(); agencyID != "" {
			for i := range agencies {
				if agencies[i].Id == agencyID {
					agency = &agencies[i]
					break
				}
			}
			if agency == nil {
				warn(warnings.RouteUnknownAgency{RouteID: routeID, AgencyID: agencyID})
				continue
			}
		} else if len(agencies) > 0 {
			// Single agency feeds may omit the agency_id column.
			agency = &agencies[0]
		}
		routes = append(routes, Route{
			Id:        routeID,
			Agency:    agency,
			Color:     colorColumn.ReadOr("FFFFFF"),
			TextColor: textColorColumn.ReadOr("000000"),
			ShortName: shortNameColumn.Read(),
			LongName:  longNameColumn.Read(),
			Type:      parseRouteType(typeColumn.Read()),
		})
	}
	return routes
}

func parseStops(file *csv.File, warn func(warnings.StaticWarning)) []Stop {
	var stops []Stop
	stopIDToIndex := map[string]int{}
	stopIDToParent := map[string]string{}
	idColumn := file.RequiredColumn("stop_id")
	codeColumn := file.OptionalColumn("stop_code")
	nameColumn := file.OptionalColumn("stop_name")
	lonColumn := file.OptionalColumn("stop_lon")
	latColumn := file.OptionalColumn("stop_lat")
	typeColumn := file.OptionalColumn("location_type")
	parentStationColumn := file.OptionalColumn("parent_station")
	platformCodeColumn := file.OptionalColumn("platform_code")
	for file.NextRow() {
		stopID := idColumn.Read()
		if missingKeys := file.MissingRowKeys(); len(missingKeys) > 0 {
			warn(warnings.StopMissingColumns{StopID: stopID, MissingKeys: missingKeys})
			continue
		}
		parentStation := parentStationColumn.Read()
		stop := Stop{
			Id:           stopID,
			Code:         codeColumn.Read(),
			Name:         nameColumn.Read(),
			Longitude:    parseFloat64(lonColumn.Read()),
			Latitude:     parseFloat64(latColumn.Read()),
			Type:         parseStopType(typeColumn.Read(), parentStation != ""),
			PlatformCode: platformCodeColumn.Read(),
		}
		if parentStation != "" {
			stopIDToParent[stopID] = parentStation
		}
		stopIDToIndex[stopID] = len(stops)
		stops = append(stops, stop)
	}
	for stopID, parentStopID := range stopIDToParent {
		parentStopIndex, ok := stopIDToIndex[parentStopID]
		if !ok {
			continue
		}
		stops[stopIDToIndex[stopID]].Parent = &stops[parentStopIndex]
	}
	return stops
}

func parseTrips(file *csv.File, routes []Route, warn func(warnings.StaticWarning)) []ScheduledTrip {
	routeIDToRoute := map[string]*Route{}
	for i := range routes {
		routeIDToRoute[routes[i].Id] = &routes[i]
	}
	var trips []ScheduledTrip
	routeIDColumn := file.RequiredColumn("route_id")
	serviceIDColumn := file.RequiredColumn("service_id")
	tripIDColumn := file.RequiredColumn("trip_id")
	headsignColumn := file.OptionalColumn("trip_headsign")
	directionIDColumn := file.OptionalColumn("direction_id")
	for file.NextRow() {
		trip := ScheduledTrip{
			ServiceID:   serviceIDColumn.Read(),
			ID:          tripIDColumn.Read(),
			Headsign:    headsignColumn.Read(),
			DirectionId: parseDirectionID_GTFSStatic(directionIDColumn.Read()),
		}
		routeID := routeIDColumn.Read()
		if missingKeys := file.MissingRowKeys(); len(missingKeys) > 0 {
			warn(warnings.TripMissingColumns{TripID: trip.ID, MissingKeys: missingKeys})
			continue
		}
		route, ok := routeIDToRoute[routeID]
		if !ok {
			warn(warnings.TripUnknownRoute{TripID: trip.ID, RouteID: routeID})
			continue
		}
		trip.Route = route
		trips = append(trips, trip)
	}
	return trips
}

type pendingStopTime struct {
	tripID   string
	stopID   string
	stopTime ScheduledStopTime
}

func parseStopTimes(file *csv.File, warn func(warnings.StaticWarning)) []pendingStopTime {
	var stopTimes []pendingStopTime
	tripIDColumn := file.RequiredColumn("trip_id")
	stopIDColumn := file.RequiredColumn("stop_id")
	stopSequenceColumn := file.RequiredColumn("stop_sequence")
	arrivalTimeColumn := file.OptionalColumn("arrival_time")
	departureTimeColumn := file.OptionalColumn("departure_time")
	headsignColumn := file.OptionalColumn("stop_headsign")
	for file.NextRow() {
		tripID := tripIDColumn.Read()
		stopID := stopIDColumn.Read()
		stopSequence := stopSequenceColumn.Read()
		if missingKeys := file.MissingRowKeys(); len(missingKeys) > 0 {
			warn(warnings.StopTimeMissingColumns{TripID: tripID, StopID: stopID, MissingKeys: missingKeys})
			continue
		}
		rawArrival, rawDeparture := arrivalTimeColumn.Read(), departureTimeColumn.Read()
		arrival, hasArrival := ParseTimeOfDay(rawArrival)
		departure, hasDeparture := ParseTimeOfDay(rawDeparture)
		switch {
		case hasArrival && !hasDeparture:
			departure = arrival
		case !hasArrival && hasDeparture:
			arrival = departure
		case !hasArrival && !hasDeparture:
			warn(warnings.StopTimeInvalidTime{TripID: tripID, StopID: stopID, ArrivalTime: rawArrival, DepartureTime: rawDeparture})
			continue
		}
		sequence, _ := strconv.Atoi(stopSequence)
		stopTimes = append(stopTimes, pendingStopTime{
			tripID: tripID,
			stopID: stopID,
			stopTime: ScheduledStopTime{
				StopSequence:  sequence,
				ArrivalTime:   arrival,
				DepartureTime: departure,
				Headsign:      headsignColumn.Read(),
			},
		})
	}
	return stopTimes
}

// attachStopTimes resolves the trip and stop references of each stop time. It runs after all
// slices of the result are final so the stop pointers stay valid.
func attachStopTimes(result *Static, stopTimes []pendingStopTime, warn func(warnings.StaticWarning)) {
	tripIDToIndex := map[string]int{}
	for i := range result.Trips {
		tripIDToIndex[result.Trips[i].ID] = i
	}
	stopIDToStop := map[string]*Stop{}
	for i := range result.Stops {
		stopIDToStop[result.Stops[i].Id] = &result.Stops[i]
	}
	for _, pending := range stopTimes {
		tripIndex, ok := tripIDToIndex[pending.tripID]
		if !ok {
			warn(warnings.StopTimeUnknownReference{TripID: pending.tripID, StopID: pending.stopID, Kind: "trip"})
			continue
		}
		stop, ok := stopIDToStop[pending.stopID]
		if !ok {
			warn(warnings.StopTimeUnknownReference{TripID: pending.tripID, StopID: pending.stopID, Kind: "stop"})
			continue
		}
		stopTime := pending.stopTime
		stopTime.Stop = stop
		trip := &result.Trips[tripIndex]
		trip.StopTimes = append(trip.StopTimes, stopTime)
	}
	for i := range result.Trips {
		sortStopTimes(result.Trips[i].StopTimes)
	}
}

func sortStopTimes(stopTimes []ScheduledStopTime) {
	sort.SliceStable(stopTimes, func(i, j int) bool {
		return stopTimes[i].StopSequence < stopTimes[j].StopSequence
	})
}

var timeOfDayRegex *regexp.Regexp = regexp.MustCompile(`^([0-9]{1,3}):([0-9]{2}):([0-9]{2})$`)

// ParseTimeOfDay parses a GTFS time of the form H:MM:SS or HH:MM:SS into a duration since midnight.
//
// Hours of 24 and above are preserved. It does not handle daylight saving time.
func ParseTimeOfDay(s string) (time.Duration, bool) {
	match := timeOfDayRegex.FindStringSubmatch(s)
	if match == nil {
		return 0, false
	}
	h, _ := strconv.Atoi(match[1])
	m, _ := strconv.Atoi(match[2])
	sec, _ := strconv.Atoi(match[3])
	if m >= 60 || sec >= 60 {
		return 0, false
	}
	return time.Duration((h*60+m)*60+sec) * time.Second, true
}

func parseFloat64(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
