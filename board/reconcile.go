package board

import "sort"

// Reconcile merges one stop's scheduled and real-time arrivals into at most one arrival per Key.
//
// A real-time arrival always wins over a scheduled one for the same key; among arrivals of the
// same kind the earliest wins. Keys left with only a scheduled arrival may then borrow the time of
// a real-time arrival on the paired route, see routePairs. An empty routePairs disables pairing.
//
// The result is sorted by arrival time. Arrivals with equal times keep the order in which their
// keys were first seen, real-time first.
func Reconcile(scheduled, realtime []Arrival, routePairs map[string]string) []Arrival {
	var order []Key
	byKey := map[Key]Arrival{}
	put := func(a Arrival) {
		k := a.Key()
		if _, ok := byKey[k]; !ok {
			order = append(order, k)
		}
		byKey[k] = a
	}
	for _, a := range realtime {
		existing, ok := byKey[a.Key()]
		if !ok || a.ArrivalTime.Before(existing.ArrivalTime) {
			put(a)
		}
	}
	for _, a := range scheduled {
		existing, ok := byKey[a.Key()]
		switch {
		case !ok:
			put(a)
		case existing.IsRealtime:
			// Never replaced by a scheduled arrival.
		case a.ArrivalTime.Before(existing.ArrivalTime):
			put(a)
		}
	}
	if len(routePairs) > 0 {
		for _, a := range scheduled {
			k := a.Key()
			existing := byKey[k]
			if existing.IsRealtime {
				continue
			}
			pairedRoute, ok := routePairs[a.RouteID]
			if !ok {
				continue
			}
			match, ok := findPairedMatch(&existing, pairedRoute, realtime)
			if !ok {
				continue
			}
			existing.ArrivalTime = match.ArrivalTime
			existing.Delay = match.Delay
			existing.IsRealtime = true
			existing.PairedEstimate = true
			byKey[k] = existing
		}
	}
	result := make([]Arrival, 0, len(order))
	for _, k := range order {
		result = append(result, byKey[k])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].ArrivalTime.Before(result[j].ArrivalTime)
	})
	return result
}

// findPairedMatch looks for a real-time arrival on the paired route at the same stop. A
// prediction in the opposite direction is preferred; otherwise one in the same direction, or in
// any direction if the scheduled arrival has none.
func findPairedMatch(a *Arrival, pairedRoute string, realtime []Arrival) (*Arrival, bool) {
	candidate := func(r *Arrival) bool {
		return r.RouteID == pairedRoute && r.StopCode == a.StopCode
	}
	if a.Direction != DirectionUnknown {
		opposite := a.Direction.Opposite()
		for i := range realtime {
			if candidate(&realtime[i]) && realtime[i].Direction == opposite {
				return &realtime[i], true
			}
		}
	}
	for i := range realtime {
		if candidate(&realtime[i]) && (a.Direction == DirectionUnknown || realtime[i].Direction == a.Direction) {
			return &realtime[i], true
		}
	}
	return nil, false
}
