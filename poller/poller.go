// Package poller drives board recomputes: on a timer, when the monitored stops change and on
// request.
package poller

import (
	"context"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jamespfennell/departures/board"
	"github.com/jamespfennell/departures/index"
	"github.com/jamespfennell/departures/metrics"
)

const (
	DefaultRefreshInterval = 15 * time.Second
	DefaultDebounceDelay   = time.Second
)

type StaticSource interface {
	Latest(ctx context.Context) (*index.Static, error)
}

type RealtimeSource interface {
	Latest(ctx context.Context) (*index.Realtime, error)
}

type Options struct {
	RefreshInterval time.Duration
	// Stop list changes within this delay of each other cause a single recompute.
	DebounceDelay time.Duration
	Stops         []string
	// Defaults to time.Now.
	Now func() time.Time
	// May be nil.
	Metrics *metrics.Collector
	// Called from the polling goroutine after every recompute.
	OnResult func(board.Result)
}

// Poller recomputes the board from a single goroutine, so recomputes never overlap.
type Poller struct {
	board    *board.Board
	static   StaticSource
	realtime RealtimeSource
	opts     Options

	refreshC      chan struct{}
	stopsChangedC chan struct{}
	// Stops of the last published result. Only accessed by the Run goroutine.
	lastStops []string

	mu        sync.Mutex
	stops     []string
	latest    board.Result
	hasLatest bool
}

func New(b *board.Board, static StaticSource, realtime RealtimeSource, opts Options) *Poller {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = DefaultDebounceDelay
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Poller{
		board:         b,
		static:        static,
		realtime:      realtime,
		opts:          opts,
		refreshC:      make(chan struct{}, 1),
		stopsChangedC: make(chan struct{}, 1),
		stops:         append([]string(nil), opts.Stops...),
	}
}

// Run polls until the context is cancelled, which is the error it returns. While no stops are
// monitored nothing is fetched or recomputed; emptying the stop list publishes an empty board
// so that arrivals of stops no longer monitored are not served.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.RefreshInterval)
	defer ticker.Stop()
	var debounceTimer *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	p.recompute(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.recompute(ctx)
		case <-p.refreshC:
			p.recompute(ctx)
		case <-p.stopsChangedC:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(p.opts.DebounceDelay)
			debounceC = debounceTimer.C
		case <-debounceC:
			debounceC = nil
			// The change may already have been picked up by another pass.
			if !slices.Equal(p.Stops(), p.lastStops) {
				p.recompute(ctx)
			}
		}
	}
}

// SetStops replaces the monitored stop codes.
func (p *Poller) SetStops(stopCodes []string) {
	p.mu.Lock()
	p.stops = append([]string(nil), stopCodes...)
	p.mu.Unlock()
	select {
	case p.stopsChangedC <- struct{}{}:
	default:
	}
}

func (p *Poller) Stops() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.stops...)
}

// Refresh requests a recompute. Requests made while one is pending are coalesced.
func (p *Poller) Refresh() {
	select {
	case p.refreshC <- struct{}{}:
	default:
	}
}

// Latest returns the result of the last recompute, or false if there was none yet.
func (p *Poller) Latest() (board.Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.hasLatest
}

func (p *Poller) recompute(ctx context.Context) {
	stops := p.Stops()
	if len(stops) == 0 {
		if p.lastStops != nil {
			log.Printf("No stops monitored; pausing")
			p.publish(nil, board.Result{StopErrors: map[string]error{}, GeneratedAt: p.opts.Now()})
		}
		return
	}
	var snapshots board.Snapshots
	snapshots.Static, snapshots.StaticErr = p.static.Latest(ctx)
	if snapshots.StaticErr != nil {
		log.Printf("Failed to fetch static schedule: %s", snapshots.StaticErr)
		p.fetchFailed("static")
	}
	snapshots.Realtime, snapshots.RealtimeErr = p.realtime.Latest(ctx)
	if snapshots.RealtimeErr != nil {
		log.Printf("Failed to fetch real-time feed: %s", snapshots.RealtimeErr)
		p.fetchFailed("realtime")
	}
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	result := p.board.Recompute(p.opts.Now(), stops, snapshots)
	if p.opts.Metrics != nil {
		p.opts.Metrics.ObserveRecompute(result, len(stops), time.Since(start))
	}
	for code, err := range result.StopErrors {
		log.Printf("Stop %s: %s", code, err)
	}
	if result.Stale {
		log.Printf("Real-time feed is stale: created at %s", result.FeedCreatedAt.Format(time.RFC3339))
	}
	log.Printf("Recomputed board for stops %s: %d arrivals", strings.Join(stops, ","), len(result.Arrivals))
	p.publish(stops, result)
}

func (p *Poller) publish(stops []string, result board.Result) {
	p.lastStops = stops
	p.mu.Lock()
	p.latest = result
	p.hasLatest = true
	p.mu.Unlock()
	if p.opts.OnResult != nil {
		p.opts.OnResult(result)
	}
}

func (p *Poller) fetchFailed(feed string) {
	if p.opts.Metrics != nil {
		p.opts.Metrics.FetchFailed(feed)
	}
}
