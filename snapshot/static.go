package snapshot

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/jamespfennell/departures/gtfs"
	"github.com/jamespfennell/departures/index"
)

const DefaultStaticTTL = 24 * time.Hour

type StaticOptions struct {
	// URL or local path of the GTFS static archive.
	Source string
	// Overrides the agency timezone when non-nil.
	Timezone *time.Location
	Client   *http.Client
	// Defaults to a cache with DefaultStaticTTL.
	Cache Cache[*index.Static]
}

// StaticProvider serves the static schedule index, fetching and parsing the archive again once the
// cached copy expires.
type StaticProvider struct {
	opts StaticOptions

	mu       sync.Mutex
	previous *index.Static
}

func NewStaticProvider(opts StaticOptions) *StaticProvider {
	if opts.Cache == nil {
		opts.Cache = NewCache[*index.Static](DefaultStaticTTL, nil)
	}
	return &StaticProvider{opts: opts}
}

// Latest returns the cached index, or fetches a new one if the cache is empty.
//
// If the fetch fails the previously built index, which may be nil, is returned together with the
// error so that the board can keep running on an old schedule.
func (p *StaticProvider) Latest(ctx context.Context) (*index.Static, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.opts.Cache.Get(); ok {
		return s, nil
	}
	content, err := read(ctx, p.opts.Client, p.opts.Source)
	if err != nil {
		return p.previous, err
	}
	static, err := gtfs.ParseStatic(content, gtfs.ParseStaticOptions{})
	if err != nil {
		return p.previous, err
	}
	s := index.NewStatic(static, index.StaticOptions{Timezone: p.opts.Timezone})
	stats := s.Stats()
	log.Printf("Loaded static schedule from %s: %d stops, %d routes, %d trips, %d stop times",
		p.opts.Source, stats.NumStops, stats.NumRoutes, stats.NumTrips, stats.NumStopTimes)
	p.opts.Cache.Set(s)
	p.previous = s
	return s, nil
}

// LastFetchedAt returns when the schedule was last fetched successfully.
func (p *StaticProvider) LastFetchedAt() time.Time {
	return p.opts.Cache.LastFetchedAt()
}
