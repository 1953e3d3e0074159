package models

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Fallback position used when the newest sample of a window carries no coordinates
const (
	FallbackLatitude  = 35.636699
	FallbackLongitude = 139.73081
)

// Number is a telemetry value that may have been transmitted as a JSON number,
// a numeric string or null. Anything that does not parse becomes NaN.
type Number float64

// NaN returns the not-a-number sentinel
func NaN() Number {
	return Number(math.NaN())
}

// Valid reports whether n holds a finite value
func (n Number) Valid() bool {
	f := float64(n)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Float returns n as a float64
func (n Number) Float() float64 {
	return float64(n)
}

func (n *Number) UnmarshalJSON(data []byte) error {
	*n = ParseNumber(string(data))
	return nil
}

// MarshalJSON writes NaN and infinities as null since JSON has no representation for them
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(n))
}

// ParseNumber coerces a raw JSON token (number, quoted string, null) into a Number
func ParseNumber(raw string) Number {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		var unquoted string
		if err := json.Unmarshal([]byte(s), &unquoted); err != nil {
			return NaN()
		}
		s = strings.TrimSpace(unquoted)
	}
	if s == "" || s == "null" {
		return NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NaN()
	}
	return Number(f)
}

// RawSample is one record as transmitted by the telemetry endpoint
type RawSample struct {
	Time  Number `json:"time"`
	CO2   Number `json:"co2"`
	Temp  Number `json:"temp"`
	Humid Number `json:"humid"`
	Lat   Number `json:"lat"`
	Lng   Number `json:"lng"`
}

// UnmarshalJSON leaves fields missing from the record as NaN rather than zero
func (r *RawSample) UnmarshalJSON(data []byte) error {
	type plain RawSample
	p := plain{Time: NaN(), CO2: NaN(), Temp: NaN(), Humid: NaN(), Lat: NaN(), Lng: NaN()}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RawSample(p)
	return nil
}

// Sample is a normalized telemetry reading
type Sample struct {
	Time  int64  `json:"time"` // Unix seconds
	CO2   Number `json:"co2"`  // ppm
	Temp  Number `json:"temp"` // °C
	Humid Number `json:"humid"`
	Lat   Number `json:"lat"`
	Lng   Number `json:"lng"`
}

// Timestamp returns the sample time as a time.Time
func (s Sample) Timestamp() time.Time {
	return time.Unix(s.Time, 0)
}

// HasPosition reports whether both coordinates are usable
func (s Sample) HasPosition() bool {
	return s.Lat.Valid() && s.Lng.Valid()
}

// Normalize converts a raw record into a Sample. ok is false when the record
// carries no usable time, since time is the ordering key.
func (r RawSample) Normalize() (Sample, bool) {
	if !r.Time.Valid() {
		return Sample{}, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	t := math.Trunc(r.Time.Float())
	if t < math.MinInt64 || t >= math.MaxInt64 {
		return Sample{}, false
	}
	return Sample{
		Time:  int64(t),
		CO2:   r.CO2,
		Temp:  r.Temp,
		Humid: r.Humid,
		Lat:   r.Lat,
		Lng:   r.Lng,
	}, true
}

// ReverseChronologicalWindow holds one fetch worth of samples, newest first
type ReverseChronologicalWindow []Sample

// ChronologicalWindow holds samples oldest first
type ChronologicalWindow []Sample

// NewReverseChronologicalWindow sorts a copy of samples by time descending.
// Samples sharing a timestamp keep their relative order.
func NewReverseChronologicalWindow(samples []Sample) ReverseChronologicalWindow {
	w := make(ReverseChronologicalWindow, len(samples))
	copy(w, samples)
	sort.SliceStable(w, func(i, j int) bool {
		return w[i].Time > w[j].Time
	})
	return w
}

// Latest returns the newest sample
func (w ReverseChronologicalWindow) Latest() (Sample, bool) {
	if len(w) == 0 {
		return Sample{}, false
	}
	return w[0], true
}

// Recent returns at most n of the newest samples
func (w ReverseChronologicalWindow) Recent(n int) ReverseChronologicalWindow {
	if n < 0 || n >= len(w) {
		return w
	}
	return w[:n]
}

// Chronological returns a reversed copy, oldest first
func (w ReverseChronologicalWindow) Chronological() ChronologicalWindow {
	out := make(ChronologicalWindow, len(w))
	for i, s := range w {
		out[len(w)-1-i] = s
	}
	return out
}

// ReverseChronological returns a reversed copy, newest first
func (w ChronologicalWindow) ReverseChronological() ReverseChronologicalWindow {
	out := make(ReverseChronologicalWindow, len(w))
	for i, s := range w {
		out[len(w)-1-i] = s
	}
	return out
}

// Latest returns the newest sample, which is the last element
func (w ChronologicalWindow) Latest() (Sample, bool) {
	if len(w) == 0 {
		return Sample{}, false
	}
	return w[len(w)-1], true
}

// CO2Series returns the (time, co2) pairs used for trend fitting
func (w ChronologicalWindow) CO2Series() (times, values []float64) {
	times = make([]float64, len(w))
	values = make([]float64, len(w))
	for i, s := range w {
		times[i] = float64(s.Time)
		values[i] = s.CO2.Float()
	}
	return times, values
}

// TrendModel is a fitted line over (time, co2)
type TrendModel struct {
	Slope     float64 `json:"slope"` // ppm per second
	Intercept float64 `json:"intercept"`
}

// At evaluates the line at x
func (m TrendModel) At(x float64) float64 {
	return m.Slope*x + m.Intercept
}

// Prediction is a forecast CO2 value at a fixed horizon past the latest sample
type Prediction struct {
	HorizonMinutes int   `json:"horizon_minutes"`
	Time           int64 `json:"time"`
	CO2            int   `json:"co2"`
}

// PredictionSet holds predictions in ascending horizon order
type PredictionSet []Prediction

// At returns the prediction for the given horizon
func (p PredictionSet) At(minutes int) (int, bool) {
	for _, pred := range p {
		if pred.HorizonMinutes == minutes {
			return pred.CO2, true
		}
	}
	return 0, false
}

// Status describes how fresh the snapshot is
type Status string

const (
	StatusNoData Status = "no_data"
	StatusOK     Status = "ok"
	StatusStale  Status = "stale"
)

// Snapshot is the most recent rendered state of the pipeline
type Snapshot struct {
	Status      Status                     `json:"status"`
	Message     string                     `json:"message"`
	Window      ReverseChronologicalWindow `json:"window"`
	WBGT        []Number                   `json:"wbgt"` // aligned with Window
	Trend       *TrendModel                `json:"trend,omitempty"`
	Predictions PredictionSet              `json:"predictions,omitempty"`
	AlertState  string                     `json:"alert_state"`
	Threshold   int                        `json:"threshold"`
	LastSuccess time.Time                  `json:"last_success"`
	LastAttempt time.Time                  `json:"last_attempt"`
	LastError   string                     `json:"last_error,omitempty"`
}

// Loaded reports whether any window has ever been loaded
func (s Snapshot) Loaded() bool {
	return !s.LastSuccess.IsZero()
}

// AlertEvent records one alert state transition
type AlertEvent struct {
	ID             int64     `json:"id"`
	Timestamp      time.Time `json:"timestamp"`
	FromState      string    `json:"from_state"`
	ToState        string    `json:"to_state"`
	PredictedCO2   int       `json:"predicted_co2"`
	Threshold      int       `json:"threshold"`
	HorizonMinutes int       `json:"horizon_minutes"`
	Notified       bool      `json:"notified"`
	NotifyError    string    `json:"notify_error,omitempty"`
}
