package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargewatch/internal/models"
	"chargewatch/internal/repository"
)

var base = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func minutes(m int) *int { return &m }

func closedSession(connector string, start time.Time, duration int) models.Session {
	end := start.Add(time.Duration(duration) * time.Minute)
	return models.Session{
		ChargerName:     "hub-nord",
		ConnectorID:     connector,
		ConnectorType:   "CCS",
		StartTime:       start,
		EndTime:         &end,
		DurationMinutes: minutes(duration),
		Quality:         models.QualityOK,
	}
}

type fakeSessionStore struct {
	mu       sync.Mutex
	listed   []models.Session
	stats    models.SessionStats
	inserted []models.Session
}

func (f *fakeSessionStore) Insert(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, *s)
	return nil
}

func (f *fakeSessionStore) insertedSessions() []models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Session, len(f.inserted))
	copy(out, f.inserted)
	return out
}

func (f *fakeSessionStore) List(context.Context, repository.SessionFilter) ([]models.Session, error) {
	return f.listed, nil
}

func (f *fakeSessionStore) Stats(context.Context, repository.SessionFilter) (models.SessionStats, error) {
	return f.stats, nil
}

type fakeEventStore struct {
	appended int
	wiped    int64
}

func (f *fakeEventStore) Append(context.Context, models.ConnectorEvent) (bool, error) {
	f.appended++
	return true, nil
}

func (f *fakeEventStore) Wipe(context.Context) (int64, error) {
	return f.wiped, nil
}

type fakeTracker struct {
	open   []models.Session
	closed chan models.Session
}

func newFakeTracker(open []models.Session) *fakeTracker {
	return &fakeTracker{open: open, closed: make(chan models.Session, 8)}
}

func (f *fakeTracker) ApplySnapshot(context.Context, []models.ConnectorEvent, time.Time) {}

func (f *fakeTracker) OpenSessions(time.Time) []models.Session { return f.open }

func (f *fakeTracker) Closed() <-chan models.Session { return f.closed }

type fakeRebuilder struct{ count int }

func (f *fakeRebuilder) Run(context.Context, repository.EventFilter) (int, error) {
	return f.count, nil
}

func newService(store *fakeSessionStore, trk *fakeTracker) *MonitorService {
	svc := NewMonitorService(&fakeEventStore{}, store, trk, &fakeRebuilder{}, nil, nil, zap.NewNop())
	svc.now = func() time.Time { return base.Add(time.Hour) }
	return svc
}

func TestListOpenSessionsSortFirst(t *testing.T) {
	store := &fakeSessionStore{listed: []models.Session{
		closedSession("c1", base.Add(30*time.Minute), 20),
		closedSession("c2", base, 15),
	}}
	trk := newFakeTracker([]models.Session{{
		ConnectorID:     "c3",
		StartTime:       base.Add(-10 * time.Minute),
		DurationMinutes: minutes(70),
	}})

	sessions, err := newService(store, trk).List(context.Background(), repository.SessionFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(sessions))
	}
	if !sessions[0].Open() {
		t.Errorf("open session must sort first even with older start time")
	}
	if sessions[1].ConnectorID != "c1" || sessions[2].ConnectorID != "c2" {
		t.Errorf("closed sessions must sort by start descending, got %s then %s",
			sessions[1].ConnectorID, sessions[2].ConnectorID)
	}
}

func TestListDeduplicatesOpenSessionsPerConnector(t *testing.T) {
	// A stale open row survived in storage for c1; the tracker also reports
	// c1 open. The tracker's value wins.
	staleStart := base.Add(-2 * time.Hour)
	store := &fakeSessionStore{listed: []models.Session{{
		ConnectorID: "c1",
		StartTime:   staleStart,
	}}}
	liveStart := base
	trk := newFakeTracker([]models.Session{{
		ConnectorID:     "c1",
		StartTime:       liveStart,
		DurationMinutes: minutes(60),
	}})

	sessions, err := newService(store, trk).List(context.Background(), repository.SessionFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var openCount int
	for _, s := range sessions {
		if s.Open() {
			openCount++
			if !s.StartTime.Equal(liveStart) {
				t.Errorf("tracker value must win over stale stored row, got start %v", s.StartTime)
			}
		}
	}
	if openCount != 1 {
		t.Fatalf("expected exactly one open session for c1, got %d", openCount)
	}
}

func TestListStoredOpenRowSortsBeforeClosedSessions(t *testing.T) {
	// A stored open row for a connector the tracker no longer reports is
	// still an open session: it sorts ahead of every closed one, even those
	// with newer start times.
	store := &fakeSessionStore{listed: []models.Session{
		closedSession("c1", base.Add(30*time.Minute), 20),
		{ConnectorID: "c9", StartTime: base.Add(-4 * time.Hour)},
	}}

	sessions, err := newService(store, newFakeTracker(nil)).List(context.Background(), repository.SessionFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if !sessions[0].Open() || sessions[0].ConnectorID != "c9" {
		t.Errorf("stored open row must sort first, got %+v", sessions[0])
	}
	if sessions[1].ConnectorID != "c1" {
		t.Errorf("closed session must follow, got %+v", sessions[1])
	}
}

func TestListAppliesFilterToOpenSessions(t *testing.T) {
	trk := newFakeTracker([]models.Session{
		{ChargerName: "hub-nord", ConnectorID: "c1", StartTime: base},
		{ChargerName: "hub-sud", ConnectorID: "c2", StartTime: base},
	})

	sessions, err := newService(&fakeSessionStore{}, trk).List(context.Background(),
		repository.SessionFilter{ChargerName: "hub-nord"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ConnectorID != "c1" {
		t.Fatalf("filter not applied to open sessions: %+v", sessions)
	}
}

func TestStatsIncludesOpenCount(t *testing.T) {
	store := &fakeSessionStore{stats: models.SessionStats{Count: 12, TotalMinutes: 480}}
	trk := newFakeTracker([]models.Session{
		{ConnectorID: "c1", StartTime: base},
		{ConnectorID: "c2", StartTime: base},
	})

	stats, err := newService(store, trk).Stats(context.Background(), repository.SessionFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Count != 12 || stats.TotalMinutes != 480 {
		t.Errorf("persisted aggregates altered: %+v", stats)
	}
	if stats.OpenCount != 2 {
		t.Errorf("expected 2 open sessions, got %d", stats.OpenCount)
	}
}

func TestPersistWorkerWritesClosedSessions(t *testing.T) {
	store := &fakeSessionStore{}
	trk := newFakeTracker(nil)
	svc := newService(store, trk)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.RunPersistWorker(ctx)
	}()

	trk.closed <- closedSession("c1", base, 45)

	deadline := time.After(2 * time.Second)
	for len(store.insertedSessions()) == 0 {
		select {
		case <-deadline:
			t.Fatal("closed session never persisted")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	cancel()
	<-done

	if got := store.insertedSessions(); got[0].ConnectorID != "c1" {
		t.Errorf("unexpected persisted session %+v", got[0])
	}
}

func TestWipeEventsReportsDeletedCount(t *testing.T) {
	events := &fakeEventStore{wiped: 321}
	svc := NewMonitorService(events, &fakeSessionStore{}, newFakeTracker(nil), &fakeRebuilder{}, nil, nil, zap.NewNop())

	deleted, err := svc.WipeEvents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 321 {
		t.Errorf("expected 321 deleted, got %d", deleted)
	}
}
