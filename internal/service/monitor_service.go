package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"chargewatch/internal/models"
	"chargewatch/internal/repository"
)

// EventStore is the write/read surface of the event log used here.
type EventStore interface {
	Append(ctx context.Context, event models.ConnectorEvent) (bool, error)
	Wipe(ctx context.Context) (int64, error)
}

// SessionStore is the session persistence surface used here.
type SessionStore interface {
	Insert(ctx context.Context, session *models.Session) error
	List(ctx context.Context, filter repository.SessionFilter) ([]models.Session, error)
	Stats(ctx context.Context, filter repository.SessionFilter) (models.SessionStats, error)
}

// LiveTracker is the tracker surface used by the read path.
type LiveTracker interface {
	ApplySnapshot(ctx context.Context, events []models.ConnectorEvent, at time.Time)
	OpenSessions(now time.Time) []models.Session
	Closed() <-chan models.Session
}

// Rebuilder triggers a full replay of the event log.
type Rebuilder interface {
	Run(ctx context.Context, filter repository.EventFilter) (int, error)
}

// Broadcaster fans closed sessions out to live dashboard clients.
type Broadcaster interface {
	Broadcast(v interface{})
}

// Notifier publishes closed sessions to external collaborators.
type Notifier interface {
	PublishClosedSession(ctx context.Context, session models.Session) error
}

const storeWriteTimeout = 5 * time.Second

// MonitorService is the unified read/admin surface over the session store
// and the live tracker. It only reads tracker state and never mutates it.
type MonitorService struct {
	events    EventStore
	sessions  SessionStore
	tracker   LiveTracker
	rebuilder Rebuilder
	broadcast Broadcaster
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time
}

// NewMonitorService builds the service. broadcast and notifier may be nil.
func NewMonitorService(
	events EventStore,
	sessions SessionStore,
	tracker LiveTracker,
	rebuilder Rebuilder,
	broadcast Broadcaster,
	notifier Notifier,
	logger *zap.Logger,
) *MonitorService {
	return &MonitorService{
		events:    events,
		sessions:  sessions,
		tracker:   tracker,
		rebuilder: rebuilder,
		broadcast: broadcast,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// IngestSnapshot applies one poll snapshot to the tracker and appends the
// raw events to the event log. The append is dispatched asynchronously so a
// slow store never stalls the next poll tick.
func (s *MonitorService) IngestSnapshot(ctx context.Context, events []models.ConnectorEvent, at time.Time) {
	s.tracker.ApplySnapshot(ctx, events, at)

	go func() {
		appendCtx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
		defer cancel()
		var skipped int
		for _, e := range events {
			inserted, err := s.events.Append(appendCtx, e)
			if err != nil {
				s.logger.Warn("failed to append event",
					zap.String("connector_id", e.ConnectorID), zap.Error(err))
				continue
			}
			if !inserted {
				skipped++
			}
		}
		if skipped > 0 {
			s.logger.Debug("events below power threshold skipped", zap.Int("skipped", skipped))
		}
	}()
}

// RunPersistWorker consumes closed sessions from the tracker, persists them
// and fans them out. A failed write is logged and dropped: the tracker's
// in-memory view stays authoritative and the pipeline never blocks on the
// store. Runs until ctx is cancelled.
func (s *MonitorService) RunPersistWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case session := <-s.tracker.Closed():
			s.persistClosed(ctx, session)
		}
	}
}

func (s *MonitorService) persistClosed(ctx context.Context, session models.Session) {
	writeCtx, cancel := context.WithTimeout(ctx, storeWriteTimeout)
	defer cancel()

	if err := s.sessions.Insert(writeCtx, &session); err != nil {
		s.logger.Warn("failed to persist closed session",
			zap.String("connector_id", session.ConnectorID),
			zap.String("quality", string(session.Quality)),
			zap.Error(err))
	}

	if s.broadcast != nil {
		s.broadcast.Broadcast(session)
	}
	if s.notifier != nil {
		if err := s.notifier.PublishClosedSession(writeCtx, session); err != nil {
			s.logger.Warn("failed to publish closed session", zap.Error(err))
		}
	}
}

// List merges persisted closed sessions with the tracker's open sessions.
// At most one open entry per connector is returned; the tracker's live value
// wins over any stale open row in storage. Open sessions sort first, then
// descending by start time.
func (s *MonitorService) List(ctx context.Context, filter repository.SessionFilter) ([]models.Session, error) {
	closed, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	open := filterSessions(s.tracker.OpenSessions(s.now()), filter)
	openConnectors := make(map[string]bool, len(open))
	for _, o := range open {
		openConnectors[o.ConnectorID] = true
	}

	// Stored open rows that survive dedup are still open sessions and sort
	// with the live ones, ahead of everything closed.
	var settled []models.Session
	for _, c := range closed {
		if c.Open() {
			if openConnectors[c.ConnectorID] {
				continue
			}
			openConnectors[c.ConnectorID] = true
			open = append(open, c)
			continue
		}
		settled = append(settled, c)
	}

	sort.Slice(open, func(i, j int) bool {
		return open[i].StartTime.After(open[j].StartTime)
	})

	result := make([]models.Session, 0, len(open)+len(settled))
	result = append(result, open...)
	result = append(result, settled...)
	return result, nil
}

// Stats aggregates closed sessions and counts currently open ones.
func (s *MonitorService) Stats(ctx context.Context, filter repository.SessionFilter) (models.SessionStats, error) {
	stats, err := s.sessions.Stats(ctx, filter)
	if err != nil {
		return models.SessionStats{}, err
	}
	stats.OpenCount = len(filterSessions(s.tracker.OpenSessions(s.now()), filter))
	return stats, nil
}

// Rebuild replays the full event log into the session store and returns the
// number of sessions produced.
func (s *MonitorService) Rebuild(ctx context.Context, filter repository.EventFilter) (int, error) {
	return s.rebuilder.Run(ctx, filter)
}

// WipeEvents irreversibly clears the event log and reports rows removed.
func (s *MonitorService) WipeEvents(ctx context.Context) (int64, error) {
	return s.events.Wipe(ctx)
}

func filterSessions(sessions []models.Session, filter repository.SessionFilter) []models.Session {
	var out []models.Session
	for _, session := range sessions {
		if filter.ChargerName != "" && session.ChargerName != filter.ChargerName {
			continue
		}
		if filter.ConnectorID != "" && session.ConnectorID != filter.ConnectorID {
			continue
		}
		if filter.ConnectorType != "" && session.ConnectorType != filter.ConnectorType {
			continue
		}
		out = append(out, session)
	}
	return out
}
