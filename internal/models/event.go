package models

import "time"

// Status is the raw connector status reported by the upstream feed. Unknown
// raw values are carried through untouched; only Charging has transition
// semantics.
type Status string

// Well-known statuses.
const (
	StatusCharging    Status = "Charging"
	StatusAvailable   Status = "Available"
	StatusUnavailable Status = "Unavailable"
)

// IsCharging reports whether the status opens or continues a session.
func (s Status) IsCharging() bool {
	return s == StatusCharging
}

// ConnectorEvent is one observed status change for a connector.
type ConnectorEvent struct {
	ChargerName   string    `db:"charger_name" json:"charger_name"`
	ConnectorID   string    `db:"connector_id" json:"connector_id"`
	ConnectorType string    `db:"connector_type" json:"connector_type"`
	PowerKW       float64   `db:"power_kw" json:"power_kw"`
	Status        Status    `db:"status" json:"status"`
	Timestamp     time.Time `db:"ts" json:"timestamp"`
}
