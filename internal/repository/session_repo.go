package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"chargewatch/internal/models"
)

// SessionRepository handles persistence of reconstructed charging sessions.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository returns the repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Insert appends one closed session and fills in its storage-assigned ID.
func (r *SessionRepository) Insert(ctx context.Context, session *models.Session) error {
	const query = `
		INSERT INTO charging_sessions (charger_name, connector_id, connector_type, power_kw, start_time, end_time, duration_minutes, quality)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`
	return r.db.QueryRowContext(ctx, query,
		session.ChargerName,
		session.ConnectorID,
		session.ConnectorType,
		session.PowerKW,
		session.StartTime,
		session.EndTime,
		session.DurationMinutes,
		string(session.Quality),
	).Scan(&session.ID)
}

// SessionFilter narrows session reads. Empty fields match everything.
type SessionFilter struct {
	ChargerName   string
	ConnectorID   string
	ConnectorType string
}

// List returns matching sessions, most recently started first.
func (r *SessionRepository) List(ctx context.Context, filter SessionFilter) ([]models.Session, error) {
	query := `
		SELECT id, charger_name, connector_id, connector_type, power_kw, start_time, end_time, duration_minutes, quality
		FROM charging_sessions
	`
	where, args := sessionWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY start_time DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		var quality string
		if err := rows.Scan(
			&s.ID,
			&s.ChargerName,
			&s.ConnectorID,
			&s.ConnectorType,
			&s.PowerKW,
			&s.StartTime,
			&s.EndTime,
			&s.DurationMinutes,
			&quality,
		); err != nil {
			return nil, err
		}
		s.Quality = models.Quality(quality)
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Stats aggregates matching closed sessions.
func (r *SessionRepository) Stats(ctx context.Context, filter SessionFilter) (models.SessionStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(duration_minutes), 0)
		FROM charging_sessions
	`
	where, args := sessionWhere(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var stats models.SessionStats
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&stats.Count, &stats.TotalMinutes); err != nil {
		return models.SessionStats{}, err
	}
	return stats, nil
}

// ReplaceAll atomically swaps the stored sessions in the filtered scope for
// the given set. A rebuild is destructive-and-replace: partial results are
// never visible mid-swap.
func (r *SessionRepository) ReplaceAll(ctx context.Context, filter SessionFilter, sessions []models.Session) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	deleteQuery := `DELETE FROM charging_sessions`
	where, args := sessionWhere(filter)
	if where != "" {
		deleteQuery += " WHERE " + where
	}
	if _, err := tx.ExecContext(ctx, deleteQuery, args...); err != nil {
		return 0, err
	}

	const insertQuery = `
		INSERT INTO charging_sessions (charger_name, connector_id, connector_type, power_kw, start_time, end_time, duration_minutes, quality)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, s := range sessions {
		if _, err := tx.ExecContext(ctx, insertQuery,
			s.ChargerName,
			s.ConnectorID,
			s.ConnectorType,
			s.PowerKW,
			s.StartTime,
			s.EndTime,
			s.DurationMinutes,
			string(s.Quality),
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(sessions), nil
}

func sessionWhere(filter SessionFilter) (string, []interface{}) {
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
