// Package server exposes the departure board over HTTP as JSON.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jamespfennell/departures/board"
	"github.com/jamespfennell/departures/metrics"
)

// Poller is the recompute scheduler the server reads results from.
type Poller interface {
	Latest() (board.Result, bool)
	Stops() []string
	SetStops(stopCodes []string)
	Refresh()
}

type Options struct {
	AllowedOrigins []string
	// May be nil, in which case /metrics is not served.
	Metrics *metrics.Collector
}

// NewRouter builds the HTTP handler:
//
//	GET  /api/departures             latest board
//	GET  /api/departures.csv         latest board as CSV
//	GET  /api/departures/{stopCode}  latest board filtered to one stop
//	GET  /api/stops                  monitored stop codes
//	PUT  /api/stops                  replace the monitored stop codes
//	POST /api/refresh                request a recompute
//	GET  /api/health                 feed status
//	GET  /metrics                    Prometheus metrics
func NewRouter(p Poller, opts Options) http.Handler {
	h := &handler{poller: p}
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	r.Get("/api/departures", h.getDepartures)
	r.Get("/api/departures.csv", h.getDeparturesCSV)
	r.Get("/api/departures/{stopCode}", h.getStopDepartures)
	r.Get("/api/stops", h.getStops)
	r.Put("/api/stops", h.putStops)
	r.Post("/api/refresh", h.postRefresh)
	r.Get("/api/health", h.getHealth)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler())
	}
	return r
}

type handler struct {
	poller Poller
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type DeparturesResponse struct {
	GeneratedAt   time.Time         `json:"generatedAt"`
	Arrivals      []board.Arrival   `json:"arrivals"`
	StopErrors    map[string]string `json:"stopErrors,omitempty"`
	Stale         bool              `json:"stale"`
	FeedCreatedAt *time.Time        `json:"feedCreatedAt,omitempty"`
	FeedError     string            `json:"feedError,omitempty"`
	NoData        bool              `json:"noData"`
}

func newDeparturesResponse(result board.Result, arrivals []board.Arrival) DeparturesResponse {
	resp := DeparturesResponse{
		GeneratedAt: result.GeneratedAt.UTC(),
		Arrivals:    arrivals,
		Stale:       result.Stale,
		NoData:      result.NoData,
	}
	if resp.Arrivals == nil {
		resp.Arrivals = []board.Arrival{}
	}
	if len(result.StopErrors) > 0 {
		resp.StopErrors = map[string]string{}
		for code, err := range result.StopErrors {
			resp.StopErrors[code] = err.Error()
		}
	}
	if !result.FeedCreatedAt.IsZero() {
		t := result.FeedCreatedAt.UTC()
		resp.FeedCreatedAt = &t
	}
	if result.FeedError != nil {
		resp.FeedError = result.FeedError.Error()
	}
	return resp
}

func (h *handler) latest(w http.ResponseWriter) (board.Result, bool) {
	result, ok := h.poller.Latest()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "board not computed yet"})
	}
	return result, ok
}

func (h *handler) getDepartures(w http.ResponseWriter, r *http.Request) {
	result, ok := h.latest(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newDeparturesResponse(result, result.Arrivals))
}

func (h *handler) getStopDepartures(w http.ResponseWriter, r *http.Request) {
	result, ok := h.latest(w)
	if !ok {
		return
	}
	stopCode := chi.URLParam(r, "stopCode")
	var arrivals []board.Arrival
	for _, a := range result.Arrivals {
		if a.StopCode == stopCode {
			arrivals = append(arrivals, a)
		}
	}
	resp := newDeparturesResponse(result, arrivals)
	if err, ok := result.StopErrors[stopCode]; ok {
		resp.StopErrors = map[string]string{stopCode: err.Error()}
	} else {
		resp.StopErrors = nil
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) getDeparturesCSV(w http.ResponseWriter, r *http.Request) {
	result, ok := h.latest(w)
	if !ok {
		return
	}
	b, err := board.ExportCSV(result.Arrivals, result.GeneratedAt)
	if err != nil {
		log.Printf("Failed to export board: %s", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to export board"})
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

type StopsRequest struct {
	Stops []string `json:"stops"`
}

func (h *handler) getStops(w http.ResponseWriter, r *http.Request) {
	stops := h.poller.Stops()
	if stops == nil {
		stops = []string{}
	}
	writeJSON(w, http.StatusOK, StopsRequest{Stops: stops})
}

func (h *handler) putStops(w http.ResponseWriter, r *http.Request) {
	var req StopsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	h.poller.SetStops(req.Stops)
	writeJSON(w, http.StatusAccepted, req)
}

func (h *handler) postRefresh(w http.ResponseWriter, r *http.Request) {
	h.poller.Refresh()
	w.WriteHeader(http.StatusAccepted)
}

type HealthResponse struct {
	// ok, degraded or unavailable.
	Status        string     `json:"status"`
	Stale         bool       `json:"stale"`
	FeedCreatedAt *time.Time `json:"feedCreatedAt,omitempty"`
	FeedError     string     `json:"feedError,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
}

func (h *handler) getHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}
	result, ok := h.poller.Latest()
	switch {
	case !ok || result.NoData:
		resp.Status = "unavailable"
	case result.FeedError != nil || result.Stale || len(result.StopErrors) > 0:
		resp.Status = "degraded"
	}
	if ok {
		d := newDeparturesResponse(result, nil)
		resp.Stale, resp.FeedCreatedAt, resp.FeedError = d.Stale, d.FeedCreatedAt, d.FeedError
	}
	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %s", err)
	}
}
