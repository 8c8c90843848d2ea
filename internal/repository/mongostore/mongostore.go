// Package mongostore keeps tasks and reminders in MongoDB, mirroring the
// method set of the SQL repositories.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"deadline-bot/internal/model"
	"deadline-bot/internal/repository"
)

const (
	tasksCollection         = "tasks"
	notificationsCollection = "notifications"
)

var ErrFailedToConnect = errors.New("failed to connect to mongo")

// Config represents the connection settings.
type Config struct {
	ConnectionURL  string
	Database       string
	ConnectTimeout time.Duration
	RetryAttempts  int
	RetryInterval  time.Duration
}

// Connect creates a client, pings it and ensures the indexes the poller
// and the bot rely on.
func Connect(ctx context.Context, cfg Config) (*mongo.Database, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	var lastErr error
	for range max(cfg.RetryAttempts, 1) {
		client, err := mongo.Connect(options.Client().
			ApplyURI(cfg.ConnectionURL).
			SetConnectTimeout(cfg.ConnectTimeout).
			SetRetryWrites(true).
			SetRetryReads(true))
		if err == nil {
			if err = client.Ping(ctx, nil); err == nil {
				db := client.Database(cfg.Database)
				if err := ensureIndexes(ctx, db); err != nil {
					_ = client.Disconnect(context.Background())
					return nil, err
				}
				return db, nil
			}
			_ = client.Disconnect(context.Background())
		}
		lastErr = classify(err)
		if errors.Is(lastErr, repository.ErrPermanent) {
			return nil, lastErr
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrFailedToConnect, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}
	return nil, errors.Join(ErrFailedToConnect, lastErr)
}

func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(tasksCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "deadline", Value: 1}}},
		{Keys: bson.D{{Key: "was_extended", Value: 1}, {Key: "deadline", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create task indexes: %w", err)
	}
	_, err = db.Collection(notificationsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "task_id", Value: 1}}},
		{Keys: bson.D{{Key: "next_fire_at", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create reminder indexes: %w", err)
	}
	return nil
}

// classify marks authentication failures as permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "AuthenticationFailed") || strings.Contains(msg, "auth error") {
		return errors.Join(repository.ErrPermanent, err)
	}
	return err
}

// TaskStore handles tasks stored as documents.
type TaskStore struct {
	tasks         *mongo.Collection
	notifications *mongo.Collection
}

func NewTaskStore(db *mongo.Database) *TaskStore {
	return &TaskStore{
		tasks:         db.Collection(tasksCollection),
		notifications: db.Collection(notificationsCollection),
	}
}

func (s *TaskStore) Create(ctx context.Context, task *model.Task, reminder *model.Notification) error {
	now := time.Now().UTC()
	task.ID = uuid.NewString()
	task.Deadline = task.Deadline.UTC()
	task.CreatedAt, task.UpdatedAt = now, now
	if _, err := s.tasks.InsertOne(ctx, task); err != nil {
		return fmt.Errorf("create task: %w", classify(err))
	}
	if reminder == nil {
		return nil
	}
	reminder.TaskID = task.ID
	if err := insertNotification(ctx, s.notifications, reminder); err != nil {
		// Without a transaction, undo the task so no half-created task stays.
		_, _ = s.tasks.DeleteOne(ctx, bson.M{"_id": task.ID})
		return err
	}
	return nil
}

func (s *TaskStore) FindByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := s.tasks.FindOne(ctx, bson.M{"_id": id}).Decode(&task)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, repository.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("find task: %w", classify(err))
	}
	return &task, nil
}

func (s *TaskStore) ListByUser(ctx context.Context, userID int64) ([]model.Task, error) {
	return s.find(ctx, bson.M{"user_id": userID}, bson.D{{Key: "deadline", Value: 1}})
}

func (s *TaskStore) ListByDay(ctx context.Context, userID int64, day time.Time) ([]model.Task, error) {
	from, to := repository.DayBounds(day)
	return s.find(ctx, bson.M{
		"user_id":  userID,
		"deadline": bson.M{"$gte": from, "$lt": to},
	}, bson.D{{Key: "deadline", Value: 1}})
}

func (s *TaskStore) ListDueBetween(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	return s.find(ctx, bson.M{
		"deadline": bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
	}, bson.D{{Key: "user_id", Value: 1}, {Key: "deadline", Value: 1}})
}

func (s *TaskStore) ListOverdue(ctx context.Context, now time.Time) ([]model.Task, error) {
	return s.find(ctx, bson.M{
		"was_extended": false,
		"deadline":     bson.M{"$lt": now.UTC()},
	}, nil)
}

func (s *TaskStore) find(ctx context.Context, filter bson.M, sort bson.D) ([]model.Task, error) {
	opts := options.Find()
	if sort != nil {
		opts.SetSort(sort)
	}
	cur, err := s.tasks.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", classify(err))
	}
	var tasks []model.Task
	if err := cur.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("decode tasks: %w", err)
	}
	return tasks, nil
}

func (s *TaskStore) Update(ctx context.Context, task *model.Task) error {
	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": task.ID, "user_id": task.UserID},
		bson.M{
			"$set": bson.M{
				"title":       task.Title,
				"description": task.Description,
				"deadline":    task.Deadline.UTC(),
				"updated_at":  time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return fmt.Errorf("update task: %w", classify(err))
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	task.Version++
	return nil
}

func (s *TaskStore) SaveExtension(ctx context.Context, task *model.Task) error {
	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": task.ID, "version": task.Version, "was_extended": false},
		bson.M{"$set": bson.M{
			"deadline":     task.Deadline.UTC(),
			"was_extended": true,
			"version":      task.Version + 1,
			"updated_at":   time.Now().UTC(),
		}})
	if err != nil {
		return fmt.Errorf("extend task: %w", classify(err))
	}
	if res.MatchedCount == 0 {
		return repository.ErrStale
	}
	task.Version++
	return nil
}

func (s *TaskStore) Delete(ctx context.Context, userID int64, id string) error {
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return fmt.Errorf("delete task: %w", classify(err))
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	if _, err := s.notifications.DeleteMany(ctx, bson.M{"task_id": id}); err != nil {
		return fmt.Errorf("delete reminders: %w", classify(err))
	}
	return nil
}

func (s *TaskStore) DeleteByDay(ctx context.Context, userID int64, day time.Time) (int64, error) {
	tasks, err := s.ListByDay(ctx, userID, day)
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		ids = append(ids, t.ID)
	}
	res, err := s.tasks.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("delete tasks: %w", classify(err))
	}
	if _, err := s.notifications.DeleteMany(ctx, bson.M{"task_id": bson.M{"$in": ids}}); err != nil {
		return res.DeletedCount, fmt.Errorf("delete reminders: %w", classify(err))
	}
	return res.DeletedCount, nil
}

// NotificationStore handles reminders stored as documents.
type NotificationStore struct {
	notifications *mongo.Collection
}

func NewNotificationStore(db *mongo.Database) *NotificationStore {
	return &NotificationStore{notifications: db.Collection(notificationsCollection)}
}

func insertNotification(ctx context.Context, coll *mongo.Collection, n *model.Notification) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	now := time.Now().UTC()
	n.ID = uuid.NewString()
	n.NextFireAt = n.NextFireAt.UTC()
	n.CreatedAt, n.UpdatedAt = now, now
	if _, err := coll.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("create reminder: %w", classify(err))
	}
	return nil
}

func (s *NotificationStore) Create(ctx context.Context, n *model.Notification) error {
	return insertNotification(ctx, s.notifications, n)
}

func (s *NotificationStore) ListByTask(ctx context.Context, taskID string) ([]model.Notification, error) {
	return s.find(ctx, bson.M{"task_id": taskID}, bson.D{{Key: "next_fire_at", Value: 1}})
}

func (s *NotificationStore) ListDue(ctx context.Context, now time.Time) ([]model.Notification, error) {
	return s.find(ctx, bson.M{"next_fire_at": bson.M{"$lt": now.UTC()}}, nil)
}

func (s *NotificationStore) find(ctx context.Context, filter bson.M, sort bson.D) ([]model.Notification, error) {
	opts := options.Find()
	if sort != nil {
		opts.SetSort(sort)
	}
	cur, err := s.notifications.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", classify(err))
	}
	var items []model.Notification
	if err := cur.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("decode reminders: %w", err)
	}
	return items, nil
}

func (s *NotificationStore) Advance(ctx context.Context, n *model.Notification) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("advance reminder: %w", err)
	}
	res, err := s.notifications.UpdateOne(ctx,
		bson.M{"_id": n.ID, "version": n.Version},
		bson.M{"$set": bson.M{
			"next_fire_at": n.NextFireAt.UTC(),
			"times_left":   n.TimesLeft,
			"version":      n.Version + 1,
			"updated_at":   time.Now().UTC(),
		}})
	if err != nil {
		return fmt.Errorf("advance reminder: %w", classify(err))
	}
	if res.MatchedCount == 0 {
		return repository.ErrStale
	}
	n.Version++
	return nil
}

func (s *NotificationStore) Delete(ctx context.Context, n *model.Notification) error {
	res, err := s.notifications.DeleteOne(ctx, bson.M{"_id": n.ID, "version": n.Version})
	if err != nil {
		return fmt.Errorf("delete reminder: %w", classify(err))
	}
	if res.DeletedCount == 0 {
		return repository.ErrStale
	}
	return nil
}

func (s *NotificationStore) DeleteByTask(ctx context.Context, taskID string) (int64, error) {
	res, err := s.notifications.DeleteMany(ctx, bson.M{"task_id": taskID})
	if err != nil {
		return 0, fmt.Errorf("delete reminders: %w", classify(err))
	}
	return res.DeletedCount, nil
}
