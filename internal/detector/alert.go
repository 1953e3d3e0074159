package detector

import "log"

// DefaultThreshold is the CO2 level (ppm) at which a forecast raises an alert
const DefaultThreshold = 1500

// AlertState is the hysteresis state of an AlertStateMachine
type AlertState int

const (
	// Idle means no alert is active
	Idle AlertState = iota
	// Alerting means a notification was dispatched and has not been cleared
	Alerting
)

func (s AlertState) String() string {
	switch s {
	case Alerting:
		return "alerting"
	default:
		return "idle"
	}
}

// AlertDecision is the outcome of evaluating one prediction
type AlertDecision struct {
	Prediction   int
	Threshold    int
	Previous     AlertState
	Next         AlertState
	ShouldNotify bool
}

// Transitioned reports whether the state changed
func (d AlertDecision) Transitioned() bool {
	return d.Previous != d.Next
}

// Exceeded reports whether the prediction is at or above the threshold
func (d AlertDecision) Exceeded() bool {
	return d.Prediction >= d.Threshold
}

// AlertStateMachine raises at most one notification per threshold excursion.
// A notification fires on Idle -> Alerting; staying above the threshold is
// silent, and dropping below it resets to Idle without notifying.
// Not safe for concurrent use; one machine belongs to one feed.
type AlertStateMachine struct {
	threshold int
	state     AlertState
}

// NewAlertStateMachine creates a machine in the Idle state.
// A non-positive threshold falls back to DefaultThreshold.
func NewAlertStateMachine(threshold int) *AlertStateMachine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &AlertStateMachine{
		threshold: threshold,
		state:     Idle,
	}
}

// Evaluate applies one forecast value and returns the resulting decision
func (m *AlertStateMachine) Evaluate(predicted int) AlertDecision {
	d := AlertDecision{
		Prediction: predicted,
		Threshold:  m.threshold,
		Previous:   m.state,
	}

	switch {
	case predicted >= m.threshold && m.state == Idle:
		m.state = Alerting
		d.ShouldNotify = true
	case predicted < m.threshold && m.state == Alerting:
		m.state = Idle
		log.Printf("alert: forecast %d ppm back below threshold %d ppm, resetting notification flag", predicted, m.threshold)
	}

	d.Next = m.state
	return d
}

// State returns the current state
func (m *AlertStateMachine) State() AlertState {
	return m.state
}

// Threshold returns the configured threshold in ppm
func (m *AlertStateMachine) Threshold() int {
	return m.threshold
}
