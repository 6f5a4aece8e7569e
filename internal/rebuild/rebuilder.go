package rebuild

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chargewatch/internal/models"
	"chargewatch/internal/repository"
)

// EventSource reads the ordered event history.
type EventSource interface {
	Query(ctx context.Context, filter repository.EventFilter) ([]models.ConnectorEvent, error)
}

// SessionSink atomically replaces the stored session set for a scope.
type SessionSink interface {
	ReplaceAll(ctx context.Context, filter repository.SessionFilter, sessions []models.Session) (int, error)
}

// Rebuilder replays the event log into the session store. A rebuild is
// idempotent and destructive: the previous contents of the rebuilt scope are
// replaced wholesale.
type Rebuilder struct {
	events   EventSource
	sessions SessionSink
	policy   Policy
	logger   *zap.Logger
}

// NewRebuilder returns the batch rebuild job runner.
func NewRebuilder(events EventSource, sessions SessionSink, policy Policy, logger *zap.Logger) *Rebuilder {
	return &Rebuilder{
		events:   events,
		sessions: sessions,
		policy:   policy,
		logger:   logger,
	}
}

// Run reads the filtered event history, reconstructs sessions and swaps them
// into the store. Returns the number of sessions produced.
func (r *Rebuilder) Run(ctx context.Context, filter repository.EventFilter) (int, error) {
	events, err := r.events.Query(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("rebuild: read events: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	result := Reconstruct(events, r.policy)
	if result.OrphanedCloses > 0 || result.DuplicateOpens > 0 || result.Malformed > 0 {
		r.logger.Info("rebuild anomalies",
			zap.Int("orphaned_closes", result.OrphanedCloses),
			zap.Int("duplicate_opens", result.DuplicateOpens),
			zap.Int("malformed", result.Malformed))
	}

	count, err := r.sessions.ReplaceAll(ctx, repository.SessionFilter{
		ChargerName:   filter.ChargerName,
		ConnectorID:   filter.ConnectorID,
		ConnectorType: filter.ConnectorType,
	}, result.Sessions)
	if err != nil {
		return 0, fmt.Errorf("rebuild: replace sessions: %w", err)
	}

	r.logger.Info("rebuild complete",
		zap.Int("events", len(events)),
		zap.Int("sessions", count))
	return count, nil
}
