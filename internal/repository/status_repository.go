package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bulkmail/bulkmail/internal/database"
	"github.com/bulkmail/bulkmail/internal/model"
)

const (
	statusKey       = "bulkmail:state"
	ProgressChannel = "bulkmail:progress"
)

// StatusRepository mirrors the live send state into Redis so other
// processes can read the last snapshot and follow progress events.
type StatusRepository struct {
	rdb *database.Redis
	ttl time.Duration
}

// NewStatusRepository creates a new StatusRepository
func NewStatusRepository(rdb *database.Redis, ttl time.Duration) *StatusRepository {
	return &StatusRepository{rdb: rdb, ttl: ttl}
}

// SaveState stores the latest state snapshot
func (r *StatusRepository) SaveState(ctx context.Context, state model.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}
	if err := r.rdb.SetWithTTL(ctx, statusKey, data, r.ttl); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	return nil
}

// LoadState returns the last stored snapshot
func (r *StatusRepository) LoadState(ctx context.Context) (*model.State, error) {
	raw, err := r.rdb.GetString(ctx, statusKey)
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}

	var state model.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return &state, nil
}

// PublishProgress broadcasts a progress event on the progress channel
func (r *StatusRepository) PublishProgress(ctx context.Context, p model.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	if err := r.rdb.Publish(ctx, ProgressChannel, data); err != nil {
		return fmt.Errorf("failed to publish progress: %w", err)
	}
	return nil
}

// PublishState stores the snapshot; other processes poll it with LoadState
func (r *StatusRepository) PublishState(ctx context.Context, state model.State) error {
	return r.SaveState(ctx, state)
}
