package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jamespfennell/departures/board"
	"github.com/jamespfennell/departures/gtfs"
)

// formatETA returns the countdown shown for an arrival.
func formatETA(now time.Time, a *board.Arrival) string {
	if board.AtPlatform(now, a) {
		return "At platform"
	}
	m := board.MinutesUntil(now, a.ArrivalTime)
	if m <= 0 {
		return "Now"
	}
	return fmt.Sprintf("%d min", m)
}

func renderBoard(w io.Writer, result board.Result) {
	now := result.GeneratedAt
	rc := color.New(color.FgCyan, color.Bold)
	lc := color.New(color.FgGreen)
	pc := color.New(color.FgYellow)
	ec := color.New(color.FgRed)

	fmt.Fprintf(w, "Departures at %s\n", now.Format("15:04:05"))
	switch {
	case result.NoData:
		fmt.Fprintln(w, ec.Sprint("No data available"))
	case result.FeedError != nil:
		fmt.Fprintln(w, ec.Sprintf("Real-time data unavailable (%s); showing scheduled times", result.FeedError))
	case result.Stale:
		fmt.Fprintln(w, pc.Sprintf("Real-time data is stale (from %s)", result.FeedCreatedAt.Format("15:04")))
	}
	if len(result.Arrivals) == 0 && !result.NoData {
		fmt.Fprintln(w, "No upcoming departures")
	}
	for i := range result.Arrivals {
		a := &result.Arrivals[i]
		var badge string
		switch {
		case a.PairedEstimate:
			badge = pc.Sprint("paired")
		case a.IsRealtime:
			badge = lc.Sprint("live")
		default:
			badge = "scheduled"
		}
		stop := fmt.Sprintf("%s (%s)", a.StopName, a.StopCode)
		if a.Platform != "" {
			stop += " platform " + a.Platform
		}
		// Padded before coloring, escape codes would count towards the width.
		fmt.Fprintf(w, "%s %-30s %-12s %s  %s\n",
			rc.Sprint(fmt.Sprintf("%-6s", a.RouteID)),
			a.TripID,
			formatETA(now, a),
			stop,
			badge,
		)
	}
	codes := make([]string, 0, len(result.StopErrors))
	for code := range result.StopErrors {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintln(w, ec.Sprintf("Stop %s: %s", code, result.StopErrors[code]))
	}
}

func formatTrip(trip gtfs.Trip, indent int, printStopTimes bool) string {
	var b strings.Builder
	tc := color.New(color.FgCyan)
	vc := color.New(color.FgMagenta)
	sc := color.New(color.FgGreen)
	newLine := fmt.Sprintf("\n%*s", indent, "")
	fmt.Fprintf(&b,
		"TripID %s  RouteID %s  DirectionID %s  StartDate %s  StartTime %s%s",
		tc.Sprint(trip.ID.ID),
		tc.Sprint(trip.ID.RouteID),
		tc.Sprint(trip.ID.DirectionID),
		tc.Sprint(trip.ID.StartDate.Format("2006-01-02")),
		tc.Sprint(trip.ID.StartTime),
		newLine,
	)
	if trip.VehicleID != "" {
		fmt.Fprintf(&b, "Vehicle: ID %s%s", vc.Sprint(trip.VehicleID), newLine)
	} else {
		fmt.Fprintf(&b, "Vehicle: <none>%s", newLine)
	}

	if printStopTimes {
		fmt.Fprintf(&b, "Stop times (%d):%s", len(trip.StopTimeUpdates), newLine)
		for _, stopTime := range trip.StopTimeUpdates {
			fmt.Fprintf(&b,
				"  StopSeq %s  StopID %s  Arrival %s  Departure %s  Platform %s%s",
				sc.Sprint(unPtrI(stopTime.StopSequence)),
				sc.Sprint(unPtr(stopTime.StopID)),
				unPtrT(stopTime.GetArrival().Time, sc),
				unPtrT(stopTime.GetDeparture().Time, sc),
				sc.Sprint(unPtr(stopTime.Platform)),
				newLine,
			)
		}
	} else {
		fmt.Fprintf(&b, "Num stop times: %d (show with -v)%s", len(trip.StopTimeUpdates), newLine)
	}

	return b.String()
}

func unPtr(s *string) string {
	if s == nil {
		return "<none>"
	}
	return *s
}

func unPtrI(s *uint32) string {
	if s == nil {
		return "<none>"
	}
	return fmt.Sprintf("%d", *s)
}

func unPtrT(t *time.Time, c *color.Color) string {
	if t == nil {
		return "<none>"
	}
	return c.Sprint(t.String())
}
