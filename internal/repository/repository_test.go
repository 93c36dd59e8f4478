package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulkmail/bulkmail/internal/database"
	"github.com/bulkmail/bulkmail/internal/model"
)

// These tests talk to real services and are skipped unless
// BULKMAIL_TEST_DATABASE_DSN / BULKMAIL_TEST_REDIS_ADDR are set.

func testPostgres(t *testing.T) *database.Postgres {
	t.Helper()
	dsn := os.Getenv("BULKMAIL_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("BULKMAIL_TEST_DATABASE_DSN not set")
	}
	db, err := database.OpenPostgres(dsn, 4)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.MigrateUp(db))
	return db
}

func testRedis(t *testing.T) *database.Redis {
	t.Helper()
	addr := os.Getenv("BULKMAIL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BULKMAIL_TEST_REDIS_ADDR not set")
	}
	rdb := database.NewRedisFromClient(redis.NewClient(&redis.Options{Addr: addr}))
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.HealthCheck(context.Background()))
	return rdb
}

func TestRunRepository_Lifecycle(t *testing.T) {
	db := testPostgres(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	run := &model.Run{
		ID:        uuid.NewString(),
		Source:    "static",
		Template:  "Hello",
		Subject:   "Greetings",
		Total:     2,
		Phase:     model.PhaseStarted,
		StartedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, repo.Create(ctx, run))

	errMsg := "rejected"
	require.NoError(t, repo.RecordDelivery(ctx, &model.Delivery{
		RunID: run.ID, Position: 1, Recipient: "a@x.com", Delivered: true, AttemptedAt: time.Now(),
	}))
	require.NoError(t, repo.RecordDelivery(ctx, &model.Delivery{
		RunID: run.ID, Position: 2, Recipient: "b@y.com", Error: &errMsg, AttemptedAt: time.Now(),
	}))

	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Sent)
	assert.Equal(t, 1, got.Failed)
	assert.Nil(t, got.FinishedAt)

	require.NoError(t, repo.Finish(ctx, run.ID, model.PhaseFinished, 1, 1, time.Now()))
	got, err = repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseFinished, got.Phase)
	assert.NotNil(t, got.FinishedAt)

	deliveries, err := repo.Deliveries(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.Equal(t, "a@x.com", deliveries[0].Recipient)
	require.NotNil(t, deliveries[1].Error)
	assert.Equal(t, "rejected", *deliveries[1].Error)

	runs, err := repo.List(ctx, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, runs)
}

func TestRunRepository_NotFound(t *testing.T) {
	db := testPostgres(t)
	repo := NewRunRepository(db)

	_, err := repo.GetByID(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)

	err = repo.Finish(context.Background(), uuid.NewString(), model.PhaseStopped, 0, 0, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunRepository_CreateRequiresID(t *testing.T) {
	repo := NewRunRepository(nil)
	assert.ErrorIs(t, repo.Create(context.Background(), &model.Run{}), ErrInvalidInput)
}

func TestStatusRepository_SaveAndPublish(t *testing.T) {
	rdb := testRedis(t)
	repo := NewStatusRepository(rdb, time.Minute)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, ProgressChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	state := model.State{Running: true, Index: 1, Total: 3, Status: model.Status{Message: "Sending", Severity: model.SeverityInfo}}
	require.NoError(t, repo.SaveState(ctx, state))

	loaded, err := repo.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, *loaded)

	require.NoError(t, repo.PublishProgress(ctx, model.Progress{RunID: "r1", Phase: model.PhaseAttempt, Index: 1}))

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, `"runId":"r1"`)
	case <-time.After(2 * time.Second):
		t.Fatal("no progress message received")
	}
}
