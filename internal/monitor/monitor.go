package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"cabinair/internal/detector"
	"cabinair/internal/forecast"
	"cabinair/internal/metrics"
	"cabinair/internal/models"
)

// displayRows is how many of the newest samples the table view shows
const displayRows = 20

// ErrEmptyWindow is returned by Poll when the source answered with no usable samples
var ErrEmptyWindow = errors.New("telemetry returned no samples")

// TelemetrySource provides one window of samples per call
type TelemetrySource interface {
	Fetch(ctx context.Context) (models.ReverseChronologicalWindow, error)
}

// Notifier triggers the external notification dispatcher
type Notifier interface {
	Notify(ctx context.Context) error
}

// AlertRecorder persists alert transitions
type AlertRecorder interface {
	RecordAlertEvent(event *models.AlertEvent) error
}

// Options tunes a Monitor. Zero values fall back to the defaults.
type Options struct {
	Horizons        []int // minutes past the latest sample
	AlertHorizon    int   // which horizon drives the alert state machine
	MinSamples      int
	Threshold       int
	FetchTimeout    time.Duration
	DispatchTimeout time.Duration
	Recorder        AlertRecorder    // optional
	Now             func() time.Time // optional, for tests
}

func (o *Options) setDefaults() {
	if len(o.Horizons) == 0 {
		o.Horizons = forecast.DefaultHorizons
	}
	if o.AlertHorizon <= 0 {
		o.AlertHorizon = o.Horizons[len(o.Horizons)-1]
	}
	if o.MinSamples <= 0 {
		o.MinSamples = forecast.MinSamples
	}
	if o.Threshold <= 0 {
		o.Threshold = detector.DefaultThreshold
	}
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = 4 * time.Second
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 10 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Monitor runs the fetch, forecast and alert cycle for one telemetry feed
// and keeps the latest snapshot for readers.
type Monitor struct {
	source   TelemetrySource
	notifier Notifier
	opts     Options
	alerts   *detector.AlertStateMachine

	mu       sync.RWMutex
	snapshot models.Snapshot

	wg sync.WaitGroup
}

// New creates a Monitor. notifier may be nil, in which case alerts are only logged.
func New(source TelemetrySource, notifier Notifier, opts Options) *Monitor {
	opts.setDefaults()
	alerts := detector.NewAlertStateMachine(opts.Threshold)
	return &Monitor{
		source:   source,
		notifier: notifier,
		opts:     opts,
		alerts:   alerts,
		snapshot: models.Snapshot{
			Status:     models.StatusNoData,
			Message:    "waiting for first telemetry window",
			AlertState: alerts.State().String(),
			Threshold:  alerts.Threshold(),
		},
	}
}

// Poll runs one cycle. Poll is not safe to call concurrently with itself;
// the Scheduler skips overlapping ticks.
func (m *Monitor) Poll(ctx context.Context) error {
	now := m.opts.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	start := time.Now()
	window, err := m.source.Fetch(fetchCtx)
	cancel()
	metrics.RecordFetch(time.Since(start), len(window), err)

	if err == nil && len(window) == 0 {
		err = ErrEmptyWindow
	}
	if err != nil {
		m.markFailed(now, err)
		metrics.PollCyclesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("poll failed: %w", err)
	}

	snap := models.Snapshot{
		Status:      models.StatusOK,
		Message:     fmt.Sprintf("%d samples, showing latest %d", len(window), len(window.Recent(displayRows))),
		Window:      window,
		WBGT:        detector.WBGTSeries(window),
		LastSuccess: now,
		LastAttempt: now,
	}

	if latest, ok := window.Latest(); ok && latest.CO2.Valid() {
		metrics.LatestCO2.Set(latest.CO2.Float())
	}
	if snap.WBGT[0].Valid() {
		metrics.LatestWBGT.Set(snap.WBGT[0].Float())
	}

	result, ok := forecast.Forecast(window.Chronological(), m.opts.Horizons, m.opts.MinSamples)
	if ok {
		trend := result.Trend
		snap.Trend = &trend
		snap.Predictions = result.Predictions
		for _, p := range result.Predictions {
			metrics.RecordPrediction(p.HorizonMinutes, p.CO2)
		}

		// a missing reading poisons the fit; hold the alert state instead of reading it as 0 ppm
		if !trendUsable(trend) {
			log.Printf("monitor: trend is not finite (missing CO2 readings in window); alert state left at %s", m.alerts.State())
		} else if predicted, found := result.Predictions.At(m.opts.AlertHorizon); found {
			m.evaluate(now, predicted)
		}
	} else {
		log.Printf("monitor: %d samples, need %d to forecast; skipping", len(window), m.opts.MinSamples)
	}

	snap.AlertState = m.alerts.State().String()
	snap.Threshold = m.alerts.Threshold()

	m.mu.Lock()
	m.snapshot = snap
	m.mu.Unlock()

	metrics.PollCyclesTotal.WithLabelValues("success").Inc()
	return nil
}

func trendUsable(t models.TrendModel) bool {
	return models.Number(t.Slope).Valid() && models.Number(t.Intercept).Valid()
}

// evaluate feeds one prediction to the alert state machine and starts the
// side effects of a transition in the background
func (m *Monitor) evaluate(now time.Time, predicted int) {
	decision := m.alerts.Evaluate(predicted)
	metrics.RecordAlertState(decision.Next == detector.Alerting)

	if decision.Exceeded() {
		log.Printf("monitor: WARNING CO2 forecast %d ppm in %d min is at or above %d ppm",
			predicted, m.opts.AlertHorizon, decision.Threshold)
	}

	if !decision.Transitioned() {
		return
	}

	event := &models.AlertEvent{
		Timestamp:      now,
		FromState:      decision.Previous.String(),
		ToState:        decision.Next.String(),
		PredictedCO2:   decision.Prediction,
		Threshold:      decision.Threshold,
		HorizonMinutes: m.opts.AlertHorizon,
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if decision.ShouldNotify {
			m.dispatch(event)
		}
		m.record(event)
	}()
}

// dispatch sends one notification. Failures are logged and never change the alert state.
func (m *Monitor) dispatch(event *models.AlertEvent) {
	if m.notifier == nil {
		log.Printf("monitor: no notifier configured, alert at %d ppm not dispatched", event.PredictedCO2)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.DispatchTimeout)
	defer cancel()

	err := m.notifier.Notify(ctx)
	metrics.RecordNotification(err)
	if err != nil {
		event.NotifyError = err.Error()
		log.Printf("monitor: notification dispatch failed: %v", err)
		return
	}
	event.Notified = true
	log.Printf("monitor: notification dispatched for forecast %d ppm", event.PredictedCO2)
}

func (m *Monitor) record(event *models.AlertEvent) {
	if m.opts.Recorder == nil {
		return
	}
	if err := m.opts.Recorder.RecordAlertEvent(event); err != nil {
		log.Printf("monitor: failed to record alert event: %v", err)
	}
}

// markFailed keeps the previous window and flags the snapshot as stale,
// or no_data when nothing was ever loaded
func (m *Monitor) markFailed(now time.Time, err error) {
	log.Printf("monitor: fetch failed: %v", err)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshot.LastAttempt = now
	m.snapshot.LastError = err.Error()
	if m.snapshot.Loaded() {
		m.snapshot.Status = models.StatusStale
		m.snapshot.Message = fmt.Sprintf("fetch failed, showing data from %s", m.snapshot.LastSuccess.Format(time.RFC3339))
		return
	}
	m.snapshot.Status = models.StatusNoData
	m.snapshot.Message = "no telemetry received yet"
}

// Snapshot returns a copy of the latest state
func (m *Monitor) Snapshot() models.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Wait blocks until all background dispatches and recordings have finished
func (m *Monitor) Wait() {
	m.wg.Wait()
}
