package board_test

import (
	"testing"

	"github.com/jamespfennell/departures/board"
)

func TestInfer(t *testing.T) {
	rules := board.DirectionRules{
		DirectionalRoutes: []string{"2", "2A"},
		HeadsignPatterns: []board.HeadsignPattern{
			{Pattern: "georgian college", Direction: board.Northbound},
			{Pattern: "Downtown", Direction: board.Southbound},
			{Pattern: "college", Direction: board.Outbound},
		},
	}
	for _, tc := range []struct {
		route    string
		headsign string
		expected board.Direction
	}{
		{"2", "Trip to GEORGIAN COLLEGE", board.Northbound},
		{"2", "downtown terminal", board.Southbound},
		{"2", "Seneca College", board.Outbound},
		{"2", "Park Place", board.DirectionUnknown},
		{"2A", "Downtown", board.Southbound},
		{"8A", "Downtown", board.Northbound},
		{"8B", "Georgian College", board.Southbound},
		{"12B", "", board.Southbound},
		{"A", "", board.DirectionUnknown},
		{"8a", "", board.DirectionUnknown},
		{"100", "Downtown", board.DirectionUnknown},
		{"", "", board.DirectionUnknown},
	} {
		t.Run(tc.route+"/"+tc.headsign, func(t *testing.T) {
			if got := rules.Infer(tc.route, tc.headsign); got != tc.expected {
				t.Errorf("Infer(%q, %q) = %q, want %q", tc.route, tc.headsign, got, tc.expected)
			}
		})
	}
}

func TestInfer_NoRules(t *testing.T) {
	var rules board.DirectionRules

	if got := rules.Infer("2", "Georgian College"); got != board.DirectionUnknown {
		t.Errorf("Infer with no rules = %q, want unknown", got)
	}
}

func TestOpposite(t *testing.T) {
	for d, want := range map[board.Direction]board.Direction{
		board.Northbound:       board.Southbound,
		board.Southbound:       board.Northbound,
		board.Inbound:          board.Outbound,
		board.Outbound:         board.Inbound,
		board.DirectionUnknown: board.DirectionUnknown,
	} {
		if got := d.Opposite(); got != want {
			t.Errorf("%q.Opposite() = %q, want %q", d, got, want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	if d, ok := board.ParseDirection(" Northbound "); !ok || d != board.Northbound {
		t.Errorf("ParseDirection(Northbound) = %q, %t", d, ok)
	}
	if _, ok := board.ParseDirection("sideways"); ok {
		t.Errorf("ParseDirection(sideways) should fail")
	}
}
