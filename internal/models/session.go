package models

import (
	"math"
	"time"
)

// Quality records how a session was closed.
type Quality string

// Quality values. Exactly one close path assigns each:
//
//	OK                  observed close within the session ceiling
//	SESSION_TIMEOUT     observed close after the ceiling was exceeded
//	TOO_LONG            batch replay closed a trailing open session artificially
//	FORCED_CLOSE        startup recovery closed a session left open across a restart
//	INACTIVITY_TIMEOUT  staleness sweep closed the session after prolonged upstream silence
//	INVALID             computed duration was not positive
const (
	QualityOK                Quality = "OK"
	QualitySessionTimeout    Quality = "SESSION_TIMEOUT"
	QualityTooLong           Quality = "TOO_LONG"
	QualityForcedClose       Quality = "FORCED_CLOSE"
	QualityInactivityTimeout Quality = "INACTIVITY_TIMEOUT"
	QualityInvalid           Quality = "INVALID"
)

// Session is a reconstructed charging interval. EndTime and DurationMinutes
// are nil while the session is still open.
type Session struct {
	ID              int64      `db:"id" json:"id,omitempty"`
	ChargerName     string     `db:"charger_name" json:"charger_name"`
	ConnectorID     string     `db:"connector_id" json:"connector_id"`
	ConnectorType   string     `db:"connector_type" json:"connector_type"`
	PowerKW         float64    `db:"power_kw" json:"power_kw"`
	StartTime       time.Time  `db:"start_time" json:"start_time"`
	EndTime         *time.Time `db:"end_time" json:"end_time,omitempty"`
	DurationMinutes *int       `db:"duration_minutes" json:"duration_minutes,omitempty"`
	Quality         Quality    `db:"quality" json:"quality,omitempty"`
}

// Open reports whether the session has no recorded end.
func (s Session) Open() bool {
	return s.EndTime == nil
}

// DurationBetween computes the session duration in whole minutes, rounded.
func DurationBetween(start, end time.Time) int {
	return int(math.Round(end.Sub(start).Minutes()))
}

// ConnectorLiveState is the tracker's per-connector entry. Created lazily on
// first observation, mutated only by the tracker.
type ConnectorLiveState struct {
	ChargerName        string     `json:"charger_name"`
	ConnectorID        string     `json:"connector_id"`
	ConnectorType      string     `json:"connector_type"`
	PowerKW            float64    `json:"power_kw"`
	CurrentStatus      Status     `json:"current_status"`
	PreviousStatus     Status     `json:"previous_status"`
	LastUpdate         time.Time  `json:"last_update"`
	OpenSessionStart   *time.Time `json:"open_session_start,omitempty"`
	AccumulatedMinutes int        `json:"accumulated_minutes"`
}

// SessionStats aggregates closed sessions for reporting.
type SessionStats struct {
	Count        int64 `json:"count"`
	TotalMinutes int64 `json:"total_minutes"`
	OpenCount    int   `json:"open_count"`
}
