package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry metrics
var (
	// TelemetryFetchesTotal tracks telemetry fetch attempts by outcome
	TelemetryFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinair_telemetry_fetches_total",
			Help: "Total number of telemetry fetches",
		},
		[]string{"status"},
	)

	// TelemetryFetchDuration tracks the duration of telemetry fetches
	TelemetryFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cabinair_telemetry_fetch_duration_seconds",
			Help:    "Duration of telemetry fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WindowSamples is the number of samples in the last loaded window
	WindowSamples = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cabinair_window_samples",
			Help: "Number of samples returned by the last successful fetch",
		},
	)

	// LatestCO2 is the newest CO2 reading in ppm
	LatestCO2 = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cabinair_co2_ppm",
			Help: "Most recent CO2 reading in ppm",
		},
	)

	// LatestWBGT is the WBGT approximation of the newest reading
	LatestWBGT = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cabinair_wbgt_celsius",
			Help: "Approximate WBGT of the most recent reading",
		},
	)

	// PredictedCO2 is the forecast CO2 per horizon
	PredictedCO2 = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cabinair_predicted_co2_ppm",
			Help: "Forecast CO2 in ppm by horizon",
		},
		[]string{"horizon_minutes"},
	)
)

// Polling and alert metrics
var (
	// PollCyclesTotal tracks completed poll cycles by result
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinair_poll_cycles_total",
			Help: "Total number of poll cycles",
		},
		[]string{"result"},
	)

	// PollCyclesSkipped counts ticks dropped because a cycle was still running
	PollCyclesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cabinair_poll_cycles_skipped_total",
			Help: "Total number of poll ticks skipped while a previous cycle was in flight",
		},
	)

	// AlertActive is 1 while the alert state machine is alerting
	AlertActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cabinair_alert_active",
			Help: "1 while a CO2 forecast alert is active",
		},
	)

	// AlertNotificationsTotal tracks outbound alert triggers by outcome
	AlertNotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cabinair_alert_notifications_total",
			Help: "Total number of alert notification requests",
		},
		[]string{"status"},
	)
)

// Database metrics
var (
	// DBQueriesTotal tracks the total number of database queries
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_queries_total",
			Help: "Total number of database queries executed",
		},
		[]string{"query_type", "table", "status"},
	)

	// DBQueryDuration tracks the duration of database queries
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query_type", "table"},
	)

	// DBConnectionsOpen tracks the number of open database connections
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_open",
			Help: "Number of established connections both in use and idle",
		},
	)
)

// Application metrics
var (
	// AppInfo provides static information about the application
	AppInfo = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cabinair_app_info",
			Help: "Application information (always 1)",
		},
	)

	// AppStartTime records when the application started
	AppStartTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cabinair_app_start_time_seconds",
			Help: "Unix timestamp of when the application started",
		},
	)
)

func init() {
	AppInfo.Set(1)
	AppStartTime.SetToCurrentTime()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordFetch records one telemetry fetch
func RecordFetch(duration time.Duration, samples int, err error) {
	TelemetryFetchesTotal.WithLabelValues(status(err)).Inc()
	TelemetryFetchDuration.Observe(duration.Seconds())
	if err == nil {
		WindowSamples.Set(float64(samples))
	}
}

// RecordPrediction records the forecast value for one horizon
func RecordPrediction(horizonMinutes, co2 int) {
	PredictedCO2.WithLabelValues(strconv.Itoa(horizonMinutes)).Set(float64(co2))
}

// RecordAlertState exposes whether an alert is active
func RecordAlertState(active bool) {
	if active {
		AlertActive.Set(1)
		return
	}
	AlertActive.Set(0)
}

// RecordNotification records an outbound alert trigger
func RecordNotification(err error) {
	AlertNotificationsTotal.WithLabelValues(status(err)).Inc()
}

// RecordDBQuery records a database query execution
func RecordDBQuery(queryType, table string, duration time.Duration, err error) {
	DBQueriesTotal.WithLabelValues(queryType, table, status(err)).Inc()
	DBQueryDuration.WithLabelValues(queryType, table).Observe(duration.Seconds())
}

// UpdateDBConnectionStats updates database connection pool statistics
func UpdateDBConnectionStats(open int) {
	DBConnectionsOpen.Set(float64(open))
}
