package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"cabinair/internal/detector"
	"cabinair/internal/models"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultSampleLimit = 20
	defaultAlertLimit  = 50
)

// SnapshotSource provides the latest pipeline state
type SnapshotSource interface {
	Snapshot() models.Snapshot
}

// AlertStore lists recorded alert transitions
type AlertStore interface {
	GetAlertEvents(limit int) ([]models.AlertEvent, error)
}

// Server represents the HTTP server
type Server struct {
	source     SnapshotSource
	alerts     AlertStore
	mux        *http.ServeMux
	httpServer *http.Server
}

// NewServer creates a new HTTP server. alerts may be nil when the alert log is disabled.
func NewServer(source SnapshotSource, alerts AlertStore) *Server {
	s := &Server{
		source: source,
		alerts: alerts,
		mux:    http.NewServeMux(),
	}

	// Register routes
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/samples", s.handleSamples)
	s.mux.HandleFunc("/api/forecast", s.handleForecast)
	s.mux.HandleFunc("/api/climate", s.handleClimate)
	s.mux.HandleFunc("/api/map", s.handleMap)
	s.mux.HandleFunc("/api/alerts", s.handleAlerts)
	s.mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Printf("server: listening on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops a started server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: failed to encode response: %v", err)
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func queryLimit(r *http.Request, def int) int {
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		return l
	}
	return def
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// handleHealth returns the server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().String(),
	})
}

type sampleView struct {
	Time  int64             `json:"time"`
	CO2   models.Number     `json:"co2"`
	Temp  models.Number     `json:"temp"`
	Humid models.Number     `json:"humid"`
	Lat   models.Number     `json:"lat"`
	Lng   models.Number     `json:"lng"`
	WBGT  models.Number     `json:"wbgt"`
	Level detector.CO2Level `json:"level"`
}

func newSampleView(s models.Sample, wbgt models.Number) sampleView {
	return sampleView{
		Time:  s.Time,
		CO2:   s.CO2,
		Temp:  s.Temp,
		Humid: s.Humid,
		Lat:   s.Lat,
		Lng:   s.Lng,
		WBGT:  wbgt,
		Level: detector.ClassifyCO2(s.CO2),
	}
}

// wbgtAt returns the WBGT aligned with window index i
func wbgtAt(snap models.Snapshot, i int) models.Number {
	if i < len(snap.WBGT) {
		return snap.WBGT[i]
	}
	return models.NaN()
}

// handleStatus returns freshness, alert state and the latest reading
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	snap := s.source.Snapshot()

	resp := map[string]interface{}{
		"status":       snap.Status,
		"message":      snap.Message,
		"samples":      len(snap.Window),
		"alert_state":  snap.AlertState,
		"threshold":    snap.Threshold,
		"last_success": optionalTime(snap.LastSuccess),
		"last_attempt": optionalTime(snap.LastAttempt),
	}
	if snap.LastError != "" {
		resp["last_error"] = snap.LastError
	}
	if latest, ok := snap.Window.Latest(); ok {
		resp["latest"] = newSampleView(latest, wbgtAt(snap, 0))
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSamples returns the newest samples first
func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	snap := s.source.Snapshot()
	recent := snap.Window.Recent(queryLimit(r, defaultSampleLimit))

	views := make([]sampleView, len(recent))
	for i, sample := range recent {
		views[i] = newSampleView(sample, wbgtAt(snap, i))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  snap.Status,
		"total":   len(snap.Window),
		"count":   len(views),
		"samples": views,
	})
}

type point struct {
	Time  int64         `json:"time"`
	Value models.Number `json:"value"`
}

// handleForecast returns the actual CO2 series oldest first with the fitted trend and predictions
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	snap := s.source.Snapshot()
	chrono := snap.Window.Chronological()

	actual := make([]point, len(chrono))
	for i, sample := range chrono {
		actual[i] = point{Time: sample.Time, Value: sample.CO2}
	}

	resp := map[string]interface{}{
		"status":      snap.Status,
		"actual":      actual,
		"predictions": snap.Predictions,
		"threshold":   snap.Threshold,
		"alert_state": snap.AlertState,
	}
	if snap.Predictions == nil {
		resp["predictions"] = []models.Prediction{}
	}
	if snap.Trend != nil {
		// the fit can be NaN when readings are missing; Number encodes that as null
		resp["trend"] = map[string]models.Number{
			"slope":     models.Number(snap.Trend.Slope),
			"intercept": models.Number(snap.Trend.Intercept),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleClimate returns temperature, humidity and WBGT oldest first
func (s *Server) handleClimate(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	snap := s.source.Snapshot()
	n := len(snap.Window)

	temp := make([]point, n)
	humid := make([]point, n)
	wbgt := make([]point, n)
	for i := 0; i < n; i++ {
		// walk the newest-first window backwards
		j := n - 1 - i
		sample := snap.Window[j]
		temp[i] = point{Time: sample.Time, Value: sample.Temp}
		humid[i] = point{Time: sample.Time, Value: sample.Humid}
		wbgt[i] = point{Time: sample.Time, Value: wbgtAt(snap, j)}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            snap.Status,
		"temperature":       temp,
		"humidity":          humid,
		"wbgt":              wbgt,
		"heat_risk_caution": detector.HeatRiskCaution,
	})
}

type marker struct {
	Lat   models.Number `json:"lat"`
	Lng   models.Number `json:"lng"`
	CO2   models.Number `json:"co2"`
	Color string        `json:"color"`
	Time  int64         `json:"time"`
}

// handleMap returns one marker per positioned sample and the map center
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	snap := s.source.Snapshot()

	center := map[string]models.Number{
		"lat": models.FallbackLatitude,
		"lng": models.FallbackLongitude,
	}
	markers := make([]marker, 0, len(snap.Window))
	for _, sample := range snap.Window {
		if !sample.HasPosition() {
			continue
		}
		if len(markers) == 0 {
			center["lat"] = sample.Lat
			center["lng"] = sample.Lng
		}
		markers = append(markers, marker{
			Lat:   sample.Lat,
			Lng:   sample.Lng,
			CO2:   sample.CO2,
			Color: detector.MarkerColor(sample.CO2),
			Time:  sample.Time,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  snap.Status,
		"center":  center,
		"markers": markers,
	})
}

// handleAlerts returns recorded alert transitions, newest first
func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	if s.alerts == nil {
		http.Error(w, "Alert log disabled", http.StatusNotFound)
		return
	}

	events, err := s.alerts.GetAlertEvents(queryLimit(r, defaultAlertLimit))
	if err != nil {
		log.Printf("server: failed to load alert events: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.AlertEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(events),
		"alerts": events,
	})
}
