package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"chargewatch/internal/models"
)

// EventRepository handles the append-only connector event log.
type EventRepository struct {
	db         *sql.DB
	minPowerKW float64
}

// NewEventRepository returns the repository. Events below minPowerKW are
// dropped at insert time and are never recoverable afterwards.
func NewEventRepository(db *sql.DB, minPowerKW float64) *EventRepository {
	return &EventRepository{db: db, minPowerKW: minPowerKW}
}

// Append inserts one event. Returns false when the event was excluded by the
// minimum-power policy. Duplicates are not deduplicated at this layer.
func (r *EventRepository) Append(ctx context.Context, event models.ConnectorEvent) (bool, error) {
	if event.PowerKW < r.minPowerKW {
		return false, nil
	}

	const query = `
		INSERT INTO connector_events (charger_name, connector_id, connector_type, power_kw, status, ts)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ChargerName,
		event.ConnectorID,
		event.ConnectorType,
		event.PowerKW,
		string(event.Status),
		event.Timestamp,
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

// EventFilter narrows event log reads. Empty fields match everything.
type EventFilter struct {
	ChargerName   string
	ConnectorID   string
	ConnectorType string
}

// Query returns matching events ascending by (charger, connector, timestamp).
func (r *EventRepository) Query(ctx context.Context, filter EventFilter) ([]models.ConnectorEvent, error) {
	query := `
		SELECT charger_name, connector_id, connector_type, power_kw, status, ts
		FROM connector_events
	`
	where, args := eventWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY charger_name, connector_id, ts ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.ConnectorEvent
	for rows.Next() {
		var e models.ConnectorEvent
		var status string
		if err := rows.Scan(
			&e.ChargerName,
			&e.ConnectorID,
			&e.ConnectorType,
			&e.PowerKW,
			&status,
			&e.Timestamp,
		); err != nil {
			return nil, err
		}
		e.Status = models.Status(status)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Wipe removes the entire event log and returns the number of rows deleted.
// Irreversible; intended for operational resets only.
func (r *EventRepository) Wipe(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM connector_events`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func eventWhere(filter EventFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(column, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("charger_name", filter.ChargerName)
	add("connector_id", filter.ConnectorID)
	add("connector_type", filter.ConnectorType)
	return strings.Join(clauses, " AND "), args
}
