package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chargewatch/internal/models"
)

// SnapshotStore persists live state across restarts.
type SnapshotStore interface {
	Save(ctx context.Context, states []models.ConnectorLiveState) error
	Load(ctx context.Context) ([]models.ConnectorLiveState, error)
}

const defaultEmitBuffer = 256

// Config holds tracker policy.
type Config struct {
	// StalenessThreshold bounds how long upstream silence is tolerated before
	// open sessions are force-closed.
	StalenessThreshold time.Duration
	// SessionCeiling is the duration above which an observed close is tagged
	// SESSION_TIMEOUT instead of OK.
	SessionCeiling time.Duration
	// EmitBuffer sizes the closed-session channel. When full, sessions are
	// dropped with a logged diagnostic rather than blocking the poll tick.
	EmitBuffer int
}

// Tracker maintains per-connector live state across polls and emits closed
// sessions as transitions occur. All mutation happens behind one mutex: the
// poll loop and the staleness sweep never race on the state map.
type Tracker struct {
	mu         sync.Mutex
	connectors map[string]*models.ConnectorLiveState
	lastPoll   time.Time

	cfg       Config
	closed    chan models.Session
	snapshots SnapshotStore
	logger    *zap.Logger

	dropped int
}

// New builds the tracker. snapshots may be nil to disable restart recovery.
func New(cfg Config, snapshots SnapshotStore, logger *zap.Logger) *Tracker {
	if cfg.StalenessThreshold <= 0 {
		cfg.StalenessThreshold = 2 * time.Minute
	}
	if cfg.SessionCeiling <= 0 {
		cfg.SessionCeiling = 70 * time.Minute
	}
	if cfg.EmitBuffer <= 0 {
		cfg.EmitBuffer = defaultEmitBuffer
	}
	return &Tracker{
		connectors: make(map[string]*models.ConnectorLiveState),
		cfg:        cfg,
		closed:     make(chan models.Session, cfg.EmitBuffer),
		snapshots:  snapshots,
		logger:     logger,
	}
}

// Closed exposes the stream of closed sessions for the persistence worker.
func (t *Tracker) Closed() <-chan models.Session {
	return t.closed
}

// Restore loads persisted connector state and force-closes any session left
// open across the restart, so no session ever spans a process lifetime.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.snapshots == nil {
		return nil
	}
	states, err := t.snapshots.Load(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, loaded := range states {
		state := loaded
		if state.OpenSessionStart != nil {
			t.closeLocked(&state, state.LastUpdate, models.QualityForcedClose)
		}
		t.connectors[state.ConnectorID] = &state
	}
	if len(states) > 0 {
		t.logger.Info("restored live state", zap.Int("connectors", len(states)))
	}
	return nil
}

// ApplySnapshot consumes one poll snapshot taken at the given instant.
func (t *Tracker) ApplySnapshot(ctx context.Context, events []models.ConnectorEvent, at time.Time) {
	t.mu.Lock()
	t.lastPoll = at
	for _, e := range events {
		t.applyLocked(e, at)
	}
	snapshot := t.statesLocked()
	t.mu.Unlock()

	t.saveSnapshot(ctx, snapshot)
}

func (t *Tracker) applyLocked(e models.ConnectorEvent, at time.Time) {
	state, ok := t.connectors[e.ConnectorID]
	if !ok {
		state = &models.ConnectorLiveState{
			ChargerName:   e.ChargerName,
			ConnectorID:   e.ConnectorID,
			ConnectorType: e.ConnectorType,
		}
		t.connectors[e.ConnectorID] = state
	}

	state.PreviousStatus = state.CurrentStatus
	state.CurrentStatus = e.Status
	state.PowerKW = e.PowerKW
	state.LastUpdate = at

	switch {
	case e.Status.IsCharging() && state.OpenSessionStart == nil:
		start := at
		state.OpenSessionStart = &start
	case !e.Status.IsCharging() && state.OpenSessionStart != nil:
		t.closeLocked(state, at, models.QualityOK)
	}
	// Charging while open and idle while idle are both no-ops.
}

// closeLocked finalizes the open session on state, accumulates its duration
// and emits it. quality OK is upgraded per the close decision table.
func (t *Tracker) closeLocked(state *models.ConnectorLiveState, end time.Time, quality models.Quality) {
	start := *state.OpenSessionStart
	duration := models.DurationBetween(start, end)
	if duration < 0 {
		duration = 0
		quality = models.QualityInvalid
	} else if quality == models.QualityOK && end.Sub(start) > t.cfg.SessionCeiling {
		quality = models.QualitySessionTimeout
	}

	state.AccumulatedMinutes += duration
	state.OpenSessionStart = nil

	session := models.Session{
		ChargerName:     state.ChargerName,
		ConnectorID:     state.ConnectorID,
		ConnectorType:   state.ConnectorType,
		PowerKW:         state.PowerKW,
		StartTime:       start,
		EndTime:         &end,
		DurationMinutes: &duration,
		Quality:         quality,
	}

	select {
	case t.closed <- session:
	default:
		t.dropped++
		t.logger.Warn("closed-session buffer full, session dropped",
			zap.String("connector_id", session.ConnectorID),
			zap.Int("dropped_total", t.dropped))
	}
}

// MarkStale force-closes every open session when no poll has succeeded
// within the staleness threshold. Prolonged upstream silence is treated as an
// implicit "everything stopped charging" signal; sessions end at the last
// observation, a documented approximation. Returns the number of sessions
// closed.
func (t *Tracker) MarkStale(ctx context.Context, now time.Time) int {
	t.mu.Lock()
	if t.lastPoll.IsZero() || now.Sub(t.lastPoll) <= t.cfg.StalenessThreshold {
		t.mu.Unlock()
		return 0
	}

	var closed int
	for _, state := range t.connectors {
		if state.OpenSessionStart == nil {
			continue
		}
		t.closeLocked(state, state.LastUpdate, models.QualityInactivityTimeout)
		state.PreviousStatus = state.CurrentStatus
		state.CurrentStatus = models.StatusUnavailable
		closed++
	}
	var snapshot []models.ConnectorLiveState
	if closed > 0 {
		snapshot = t.statesLocked()
	}
	t.mu.Unlock()

	if closed > 0 {
		t.logger.Warn("stale feed, open sessions force-closed", zap.Int("closed", closed))
		t.saveSnapshot(ctx, snapshot)
	}
	return closed
}

// OpenSessions projects currently open sessions with an elapsed-so-far minute
// count. Display only: nothing is mutated or persisted.
func (t *Tracker) OpenSessions(now time.Time) []models.Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sessions []models.Session
	for _, state := range t.connectors {
		if state.OpenSessionStart == nil {
			continue
		}
		start := *state.OpenSessionStart
		elapsed := models.DurationBetween(start, now)
		if elapsed < 0 {
			elapsed = 0
		}
		sessions = append(sessions, models.Session{
			ChargerName:     state.ChargerName,
			ConnectorID:     state.ConnectorID,
			ConnectorType:   state.ConnectorType,
			PowerKW:         state.PowerKW,
			StartTime:       start,
			DurationMinutes: &elapsed,
		})
	}
	return sessions
}

// AccumulatedMinutes returns the running completed-session total for one
// connector.
func (t *Tracker) AccumulatedMinutes(connectorID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state, ok := t.connectors[connectorID]; ok {
		return state.AccumulatedMinutes
	}
	return 0
}

func (t *Tracker) statesLocked() []models.ConnectorLiveState {
	states := make([]models.ConnectorLiveState, 0, len(t.connectors))
	for _, state := range t.connectors {
		states = append(states, *state)
	}
	return states
}

func (t *Tracker) saveSnapshot(ctx context.Context, states []models.ConnectorLiveState) {
	if t.snapshots == nil || len(states) == 0 {
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := t.snapshots.Save(saveCtx, states); err != nil {
		t.logger.Warn("failed to persist live state snapshot", zap.Error(err))
	}
}
