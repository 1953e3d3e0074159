package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"cabinair/internal/metrics"
	"cabinair/internal/models"

	_ "github.com/go-sql-driver/mysql"
)

// DB represents the alert log database connection
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection and initializes the schema
// dsn format: "username:password@tcp(host:port)/dbname?parseTime=true"
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// The monitor writes at most one row per alert transition
	conn.SetMaxOpenConns(5)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{conn: conn}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates the alert_events table
func (db *DB) initSchema() error {
	stmt := `CREATE TABLE IF NOT EXISTS alert_events (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		timestamp DATETIME(6) NOT NULL,
		from_state VARCHAR(16) NOT NULL,
		to_state VARCHAR(16) NOT NULL,
		predicted_co2 INT NOT NULL,
		threshold INT NOT NULL,
		horizon_minutes INT NOT NULL,
		notified BOOLEAN NOT NULL DEFAULT FALSE,
		notify_error TEXT NOT NULL,
		INDEX idx_alert_events_timestamp (timestamp)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

	if _, err := db.conn.Exec(stmt); err != nil {
		return fmt.Errorf("failed to execute schema statement: %w", err)
	}
	return nil
}

func (db *DB) updateConnectionStats() {
	metrics.UpdateDBConnectionStats(db.conn.Stats().OpenConnections)
}

// RecordAlertEvent stores one alert transition and sets its ID
func (db *DB) RecordAlertEvent(event *models.AlertEvent) error {
	defer db.updateConnectionStats()

	query := `INSERT INTO alert_events (timestamp, from_state, to_state, predicted_co2, threshold, horizon_minutes, notified, notify_error)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	queryStart := time.Now()
	res, err := db.conn.Exec(query, event.Timestamp, event.FromState, event.ToState, event.PredictedCO2,
		event.Threshold, event.HorizonMinutes, event.Notified, event.NotifyError)
	metrics.RecordDBQuery("INSERT", "alert_events", time.Since(queryStart), err)
	if err != nil {
		return fmt.Errorf("failed to store alert event: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}
	log.Printf("✓ Stored alert event %s -> %s", event.FromState, event.ToState)
	return nil
}

// GetAlertEvents retrieves the most recent alert transitions, newest first
func (db *DB) GetAlertEvents(limit int) ([]models.AlertEvent, error) {
	defer db.updateConnectionStats()

	query := `SELECT id, timestamp, from_state, to_state, predicted_co2, threshold, horizon_minutes, notified, notify_error
	          FROM alert_events ORDER BY timestamp DESC, id DESC LIMIT ?`
	queryStart := time.Now()
	rows, err := db.conn.Query(query, limit)
	metrics.RecordDBQuery("SELECT", "alert_events", time.Since(queryStart), err)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert events: %w", err)
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		var e models.AlertEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.FromState, &e.ToState, &e.PredictedCO2,
			&e.Threshold, &e.HorizonMinutes, &e.Notified, &e.NotifyError); err != nil {
			return nil, fmt.Errorf("failed to scan alert event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert events: %w", err)
	}
	return events, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
