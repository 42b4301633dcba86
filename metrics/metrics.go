// Package metrics exposes Prometheus metrics for the departure board.
package metrics

import (
	"net/http"
	"time"

	"github.com/jamespfennell/departures/board"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	Recomputes        prometheus.Counter
	RecomputeDuration prometheus.Histogram
	Arrivals          *prometheus.GaugeVec // kind label: static|realtime|paired
	StopErrors        prometheus.Gauge
	FetchErrors       *prometheus.CounterVec // feed label: static|realtime
	FeedAge           prometheus.Gauge       // seconds
	FeedStale         prometheus.Gauge
	MonitoredStops    prometheus.Gauge
	RefreshInterval   prometheus.Gauge // seconds
}

func NewCollector(refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Recomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "departures_recomputes_total",
			Help: "Total board recomputes.",
		}),
		RecomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "departures_recompute_duration_seconds",
			Help:    "Duration of board recomputes, excluding feed fetches.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		Arrivals: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "departures_arrivals",
			Help: "Arrivals on the board after the last recompute.",
		}, []string{"kind"}),
		StopErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "departures_stop_errors",
			Help: "Monitored stops that contributed no arrivals because of an error.",
		}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "departures_fetch_errors_total",
			Help: "Total failed feed fetches.",
		}, []string{"feed"}),
		FeedAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "departures_realtime_feed_age_seconds",
			Help: "Age of the real-time feed header timestamp at the last recompute.",
		}),
		FeedStale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "departures_realtime_feed_stale",
			Help: "1 if the real-time feed is older than the staleness threshold, 0 otherwise.",
		}),
		MonitoredStops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "departures_monitored_stops",
			Help: "Number of monitored stop codes.",
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "departures_refresh_interval_seconds",
			Help: "Poll interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.Recomputes, c.RecomputeDuration,
		c.Arrivals, c.StopErrors,
		c.FetchErrors, c.FeedAge, c.FeedStale,
		c.MonitoredStops, c.RefreshInterval,
	)

	c.RefreshInterval.Set(refreshInterval.Seconds())

	return c
}

// ObserveRecompute records the outcome of one recompute that took d.
func (c *Collector) ObserveRecompute(result board.Result, numStops int, d time.Duration) {
	c.Recomputes.Inc()
	c.RecomputeDuration.Observe(d.Seconds())
	var static, realtime, paired float64
	for _, a := range result.Arrivals {
		switch {
		case a.PairedEstimate:
			paired++
		case a.IsRealtime:
			realtime++
		default:
			static++
		}
	}
	c.Arrivals.WithLabelValues("static").Set(static)
	c.Arrivals.WithLabelValues("realtime").Set(realtime)
	c.Arrivals.WithLabelValues("paired").Set(paired)
	c.StopErrors.Set(float64(len(result.StopErrors)))
	c.MonitoredStops.Set(float64(numStops))
	if !result.FeedCreatedAt.IsZero() {
		c.FeedAge.Set(result.GeneratedAt.Sub(result.FeedCreatedAt).Seconds())
	}
	if result.Stale {
		c.FeedStale.Set(1)
	} else {
		c.FeedStale.Set(0)
	}
}

// FetchFailed counts a failed fetch of the "static" or "realtime" feed.
func (c *Collector) FetchFailed(feed string) {
	c.FetchErrors.WithLabelValues(feed).Inc()
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }
