package mongostore_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadline-bot/internal/model"
	"deadline-bot/internal/repository"
	"deadline-bot/internal/repository/mongostore"
)

// These tests need a running MongoDB; set MONGODB_TEST_URL to enable them.
func newStores(t *testing.T) (*mongostore.TaskStore, *mongostore.NotificationStore) {
	t.Helper()
	url := os.Getenv("MONGODB_TEST_URL")
	if url == "" {
		t.Skip("MONGODB_TEST_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := mongostore.Connect(ctx, mongostore.Config{
		ConnectionURL: url,
		Database:      "deadline_bot_test_" + uuid.NewString()[:8],
		RetryAttempts: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = db.Client().Disconnect(context.Background())
	})
	return mongostore.NewTaskStore(db), mongostore.NewNotificationStore(db)
}

func TestMongoStoreLifecycle(t *testing.T) {
	tasks, notes := newStores(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	task, err := model.NewTask(5, "mongo", "doc", now.Add(-time.Hour))
	require.NoError(t, err)
	reminder, err := model.NewNotification("", now.Add(-time.Minute), time.Hour, 1)
	require.NoError(t, err)
	require.NoError(t, tasks.Create(ctx, &task, &reminder))

	overdue, err := tasks.ListOverdue(ctx, now)
	require.NoError(t, err)
	require.Len(t, overdue, 1)

	extended, outcome := overdue[0].Evaluate(now, model.DefaultGracePeriod)
	require.Equal(t, model.Extended, outcome)
	stale := extended
	require.NoError(t, tasks.SaveExtension(ctx, &extended))
	assert.ErrorIs(t, tasks.SaveExtension(ctx, &stale), repository.ErrStale)

	due, err := notes.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	fired, noteOutcome := due[0].Evaluate(now)
	require.Equal(t, model.Fired, noteOutcome)
	require.NoError(t, notes.Advance(ctx, &fired))

	byDay, err := tasks.ListByDay(ctx, 5, now)
	require.NoError(t, err)
	assert.Len(t, byDay, 1)

	require.NoError(t, tasks.Delete(ctx, 5, task.ID))
	left, err := notes.ListByTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = tasks.FindByID(ctx, task.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
