package livestate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"chargewatch/internal/models"
)

const keyPrefix = "chargewatch:livestate:"

// Store keeps per-connector live state in Redis so the tracker can recover
// sessions left open across a process restart.
type Store struct {
	client *redis.Client
}

// NewStore returns the redis-backed snapshot store.
func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

func key(connectorID string) string {
	return keyPrefix + connectorID
}

// Save upserts the states of all given connectors in one pipeline.
func (s *Store) Save(ctx context.Context, states []models.ConnectorLiveState) error {
	if len(states) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, state := range states {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("livestate: marshal %s: %w", state.ConnectorID, err)
		}
		pipe.Set(ctx, key(state.ConnectorID), data, 0)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Load returns every persisted connector state.
func (s *Store) Load(ctx context.Context) ([]models.ConnectorLiveState, error) {
	var states []models.ConnectorLiveState
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var state models.ConnectorLiveState
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			return nil, fmt.Errorf("livestate: decode %s: %w", iter.Val(), err)
		}
		states = append(states, state)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return states, nil
}
