package snapshot

import (
	"context"
	"crypto/md5"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jamespfennell/departures/gtfs"
	"github.com/jamespfennell/departures/index"
)

// Format is the encoding of the real-time feed.
type Format string

const (
	FormatProtobuf Format = "protobuf"
	FormatJSON     Format = "json"
)

// ParseFormat parses a feed format name. The empty string is protobuf.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "protobuf", "proto", "pb":
		return FormatProtobuf, nil
	case "json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown real-time feed format %q", s)
}

const DefaultRealtimeTTL = 15 * time.Second

type RealtimeOptions struct {
	// URL or local path of the GTFS realtime feed.
	Source string
	Format Format
	// Timezone used to interpret trip start dates.
	Timezone *time.Location
	Client   *http.Client
	// Defaults to a cache with DefaultRealtimeTTL.
	Cache Cache[*index.Realtime]
}

// RealtimeProvider serves the real-time feed index.
//
// When a fetched feed has the same trips as the previous one, the previous index is reused.
type RealtimeProvider struct {
	opts RealtimeOptions

	mu         sync.Mutex
	lastHash   [md5.Size]byte
	last       *index.Realtime
	numIndexed int
}

func NewRealtimeProvider(opts RealtimeOptions) *RealtimeProvider {
	if opts.Cache == nil {
		opts.Cache = NewCache[*index.Realtime](DefaultRealtimeTTL, nil)
	}
	return &RealtimeProvider{opts: opts}
}

// Latest returns the cached index, or fetches the feed if the cache is empty. Decoding errors
// wrap gtfs.ErrFeedDecode.
func (p *RealtimeProvider) Latest(ctx context.Context) (*index.Realtime, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.opts.Cache.Get(); ok {
		return r, nil
	}
	content, err := read(ctx, p.opts.Client, p.opts.Source)
	if err != nil {
		return nil, err
	}
	parseOpts := &gtfs.ParseRealtimeOptions{Timezone: p.opts.Timezone}
	var feed *gtfs.Realtime
	switch p.opts.Format {
	case FormatJSON:
		feed, err = gtfs.ParseRealtimeJSON(content, parseOpts)
	default:
		feed, err = gtfs.ParseRealtime(content, parseOpts)
	}
	if err != nil {
		return nil, err
	}
	for _, w := range feed.Warnings {
		log.Printf("Real-time feed %s: entity %q: %s", p.opts.Source, w.EntityID(), w.Error())
	}
	h := md5.New()
	feed.Hash(h)
	var sum [md5.Size]byte
	copy(sum[:], h.Sum(nil))
	if p.last != nil && sum == p.lastHash {
		p.last = p.last.WithCreatedAt(feed.CreatedAt)
	} else {
		p.last = index.NewRealtime(feed)
		p.lastHash = sum
		p.numIndexed++
	}
	p.opts.Cache.Set(p.last)
	return p.last, nil
}

// LastFetchedAt returns when the feed was last fetched successfully.
func (p *RealtimeProvider) LastFetchedAt() time.Time {
	return p.opts.Cache.LastFetchedAt()
}

// NumIndexed returns how many distinct feeds have been indexed.
func (p *RealtimeProvider) NumIndexed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.numIndexed
}
