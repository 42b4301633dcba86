package board

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jamespfennell/departures/index"
)

var (
	// ErrTooManyStops is reported for stop codes beyond the configured maximum.
	ErrTooManyStops = errors.New("too many stops monitored")
	// ErrNoStaticData is reported for every stop while no static schedule is available.
	ErrNoStaticData = errors.New("static schedule not available")
	// ErrNoRealtimeData is the feed error while no real-time snapshot has been fetched.
	ErrNoRealtimeData = errors.New("real-time feed not available")
)

const (
	DefaultMaxStops   = 15
	DefaultStaleAfter = 30 * time.Minute
)

type Options struct {
	MaxStops          int
	MaxArrivalsWindow int
	StaleAfter        time.Duration
	// Maps a route label to the label of its directional counterpart. Empty disables pairing.
	RoutePairs map[string]string
	Directions DirectionRules
}

// Board recomputes the departure board from feed snapshots.
type Board struct {
	opts Options
}

func New(opts Options) *Board {
	if opts.MaxStops <= 0 {
		opts.MaxStops = DefaultMaxStops
	}
	if opts.MaxArrivalsWindow <= 0 {
		opts.MaxArrivalsWindow = DefaultMaxArrivalsWindow
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	return &Board{opts: opts}
}

// Snapshots are the feed data a recompute runs against. Either index may be nil.
type Snapshots struct {
	Static      *index.Static
	StaticErr   error
	Realtime    *index.Realtime
	RealtimeErr error
}

type Result struct {
	Arrivals []Arrival
	// Diagnostics for stops that contributed no arrivals because of an error, keyed by stop code.
	StopErrors map[string]error
	// Set when the real-time feed is older than the staleness threshold. Its data is still used.
	Stale         bool
	FeedCreatedAt time.Time
	// Set when no real-time data is available; the board then only shows scheduled arrivals.
	FeedError error
	// Set when neither snapshot is available.
	NoData      bool
	GeneratedAt time.Time
}

// Recompute builds the full board for the stop codes from scratch.
//
// Failures are confined to the stop they occur at: the stop contributes no arrivals and gets an
// entry in Result.StopErrors.
func (b *Board) Recompute(now time.Time, stopCodes []string, snapshots Snapshots) Result {
	result := Result{
		StopErrors:  map[string]error{},
		GeneratedAt: now,
	}
	codes := normalizeStopCodes(stopCodes)
	if len(codes) > b.opts.MaxStops {
		for _, code := range codes[b.opts.MaxStops:] {
			result.StopErrors[code] = fmt.Errorf("%w: at most %d stops", ErrTooManyStops, b.opts.MaxStops)
		}
		codes = codes[:b.opts.MaxStops]
	}

	realtime := snapshots.Realtime
	result.FeedError = snapshots.RealtimeErr
	if realtime == nil && result.FeedError == nil {
		result.FeedError = ErrNoRealtimeData
	}
	if realtime != nil {
		result.FeedCreatedAt = realtime.CreatedAt()
		if !result.FeedCreatedAt.IsZero() && now.Sub(result.FeedCreatedAt) > b.opts.StaleAfter {
			result.Stale = true
		}
	}

	if snapshots.Static == nil {
		result.NoData = realtime == nil
		staticErr := ErrNoStaticData
		if snapshots.StaticErr != nil {
			staticErr = fmt.Errorf("%w: %s", ErrNoStaticData, snapshots.StaticErr)
		}
		for _, code := range codes {
			result.StopErrors[code] = staticErr
		}
		return result
	}

	builder := &Builder{
		Static:            snapshots.Static,
		Realtime:          realtime,
		Directions:        b.opts.Directions,
		MaxArrivalsWindow: b.opts.MaxArrivalsWindow,
	}
	var perStop [][]Arrival
	for _, code := range codes {
		arrivals, err := b.reconcileStop(builder, now, code)
		if err != nil {
			result.StopErrors[code] = err
			continue
		}
		perStop = append(perStop, arrivals)
	}
	result.Arrivals = Aggregate(now, perStop, b.opts.MaxArrivalsWindow)
	return result
}

func (b *Board) reconcileStop(builder *Builder, now time.Time, code string) (arrivals []Arrival, err error) {
	defer func() {
		if r := recover(); r != nil {
			arrivals, err = nil, fmt.Errorf("failed to build arrivals for stop %q: %v", code, r)
		}
	}()
	stopArrivals, err := builder.BuildStop(now, code)
	if err != nil {
		return nil, err
	}
	return Reconcile(stopArrivals.Scheduled, stopArrivals.Realtime, b.opts.RoutePairs), nil
}

// normalizeStopCodes trims the codes and drops empty and repeated ones, keeping the first occurrence.
func normalizeStopCodes(stopCodes []string) []string {
	var codes []string
	seen := map[string]bool{}
	for _, code := range stopCodes {
		code = strings.TrimSpace(code)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes
}
