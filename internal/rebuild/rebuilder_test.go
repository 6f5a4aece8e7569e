package rebuild

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargewatch/internal/models"
	"chargewatch/internal/repository"
)

type fakeEventSource struct {
	events []models.ConnectorEvent
	err    error
}

func (f *fakeEventSource) Query(context.Context, repository.EventFilter) ([]models.ConnectorEvent, error) {
	return f.events, f.err
}

type fakeSessionSink struct {
	replaced []models.Session
	calls    int
}

func (f *fakeSessionSink) ReplaceAll(_ context.Context, _ repository.SessionFilter, sessions []models.Session) (int, error) {
	f.calls++
	f.replaced = sessions
	return len(sessions), nil
}

func TestRebuilderRunReplacesStore(t *testing.T) {
	source := &fakeEventSource{events: []models.ConnectorEvent{
		event("c1", models.StatusCharging, base),
		event("c1", models.StatusAvailable, base.Add(45*time.Minute)),
	}}
	sink := &fakeSessionSink{}

	rebuilder := NewRebuilder(source, sink, DefaultPolicy, zap.NewNop())
	count, err := rebuilder.Run(context.Background(), repository.EventFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 session reported, got %d", count)
	}
	if sink.calls != 1 {
		t.Errorf("expected exactly one replace call, got %d", sink.calls)
	}
	if len(sink.replaced) != 1 || *sink.replaced[0].DurationMinutes != 45 {
		t.Errorf("unexpected replaced set %+v", sink.replaced)
	}
}

func TestRebuilderRunPropagatesSourceError(t *testing.T) {
	source := &fakeEventSource{err: errors.New("db down")}
	sink := &fakeSessionSink{}

	rebuilder := NewRebuilder(source, sink, DefaultPolicy, zap.NewNop())
	if _, err := rebuilder.Run(context.Background(), repository.EventFilter{}); err == nil {
		t.Fatal("expected error")
	}
	if sink.calls != 0 {
		t.Errorf("store must not be touched when the read fails")
	}
}

func TestRebuilderRunHonoursCancellation(t *testing.T) {
	source := &fakeEventSource{}
	sink := &fakeSessionSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rebuilder := NewRebuilder(source, sink, DefaultPolicy, zap.NewNop())
	if _, err := rebuilder.Run(ctx, repository.EventFilter{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sink.calls != 0 {
		t.Errorf("cancelled rebuild must not write")
	}
}
