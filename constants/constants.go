// Package constants holds the names of the GTFS static files the parser reads.
package constants

type StaticFile string

const (
	AgencyFile    StaticFile = "agency.txt"
	RoutesFile    StaticFile = "routes.txt"
	StopsFile     StaticFile = "stops.txt"
	TripsFile     StaticFile = "trips.txt"
	StopTimesFile StaticFile = "stop_times.txt"
)

// RequiredFiles lists the files that must be present in a GTFS static archive, in parse order.
var RequiredFiles = []StaticFile{AgencyFile, RoutesFile, StopsFile, TripsFile, StopTimesFile}
