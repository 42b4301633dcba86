package board

import (
	"regexp"
	"strings"
)

// Direction is the inferred travel direction of an arrival. The zero value means unknown.
type Direction string

const (
	DirectionUnknown Direction = ""
	Northbound       Direction = "northbound"
	Southbound       Direction = "southbound"
	Inbound          Direction = "inbound"
	Outbound         Direction = "outbound"
)

// Opposite returns the reverse direction, or DirectionUnknown if there is none.
func (d Direction) Opposite() Direction {
	switch d {
	case Northbound:
		return Southbound
	case Southbound:
		return Northbound
	case Inbound:
		return Outbound
	case Outbound:
		return Inbound
	default:
		return DirectionUnknown
	}
}

// ParseDirection parses a direction name case-insensitively.
func ParseDirection(s string) (Direction, bool) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case Northbound, Southbound, Inbound, Outbound:
		return d, true
	default:
		return DirectionUnknown, false
	}
}

type HeadsignPattern struct {
	// Substring matched case-insensitively against the trip headsign.
	Pattern   string
	Direction Direction
}

// DirectionRules infers directions from route short names and trip headsigns.
//
// These are heuristics curated for a handful of known routes, not ground truth. Routes that
// match no rule get DirectionUnknown.
type DirectionRules struct {
	// Short names of routes whose direction is read from the headsign.
	DirectionalRoutes []string
	// Checked in order; the first match wins.
	HeadsignPatterns []HeadsignPattern
}

var (
	northboundSuffix = regexp.MustCompile(`[0-9]A$`)
	southboundSuffix = regexp.MustCompile(`[0-9]B$`)
)

func (r DirectionRules) Infer(routeShortName, headsign string) Direction {
	if r.isDirectional(routeShortName) {
		lower := strings.ToLower(headsign)
		for _, p := range r.HeadsignPatterns {
			if p.Pattern != "" && strings.Contains(lower, strings.ToLower(p.Pattern)) {
				return p.Direction
			}
		}
		return DirectionUnknown
	}
	switch {
	case northboundSuffix.MatchString(routeShortName):
		return Northbound
	case southboundSuffix.MatchString(routeShortName):
		return Southbound
	}
	return DirectionUnknown
}

func (r DirectionRules) isDirectional(routeShortName string) bool {
	for _, name := range r.DirectionalRoutes {
		if name == routeShortName {
			return true
		}
	}
	return false
}
