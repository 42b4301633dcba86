package board

import (
	"sort"
	"time"
)

// Aggregate concatenates the reconciled arrivals of several stops and ranks them.
//
// The arrivals window is applied again, which is a no-op for arrivals that already passed it.
// Live arrivals at the platform come first; everything else follows by arrival time. The sort is
// stable.
func Aggregate(now time.Time, perStop [][]Arrival, maxArrivalsWindow int) []Arrival {
	var result []Arrival
	for _, arrivals := range perStop {
		for _, a := range arrivals {
			if InWindow(now, a.ArrivalTime, maxArrivalsWindow) {
				result = append(result, a)
			}
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		iAtPlatform, jAtPlatform := AtPlatform(now, &result[i]), AtPlatform(now, &result[j])
		if iAtPlatform != jAtPlatform {
			return iAtPlatform
		}
		return result[i].ArrivalTime.Before(result[j].ArrivalTime)
	})
	return result
}
