package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"deadline-bot/internal/model"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create stores a task and, when given, its reminder in one transaction.
func (r *TaskRepository) Create(ctx context.Context, task *model.Task, reminder *model.Notification) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task.ID = uuid.NewString()
		task.Deadline = task.Deadline.UTC()
		if err := tx.Omit("Notifications").Create(task).Error; err != nil {
			return fmt.Errorf("create task: %w", err)
		}
		if reminder == nil {
			return nil
		}
		reminder.ID = uuid.NewString()
		reminder.TaskID = task.ID
		reminder.NextFireAt = reminder.NextFireAt.UTC()
		if err := reminder.Validate(); err != nil {
			return fmt.Errorf("create reminder: %w", err)
		}
		if err := tx.Create(reminder).Error; err != nil {
			return fmt.Errorf("create reminder: %w", err)
		}
		return nil
	})
}

func (r *TaskRepository) FindByID(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

func (r *TaskRepository) ListByUser(ctx context.Context, userID int64) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("deadline ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// ListByDay returns the user's tasks whose deadline falls on the calendar
// day of day, in day's location.
func (r *TaskRepository) ListByDay(ctx context.Context, userID int64, day time.Time) ([]model.Task, error) {
	from, to := DayBounds(day)
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND deadline >= ? AND deadline < ?", userID, from, to).
		Order("deadline ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks by day: %w", err)
	}
	return tasks, nil
}

// ListDueBetween returns every task with a deadline in [from, to).
func (r *TaskRepository) ListDueBetween(ctx context.Context, from, to time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("deadline >= ? AND deadline < ?", from.UTC(), to.UTC()).
		Order("user_id ASC, deadline ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	return tasks, nil
}

// ListOverdue returns tasks past their deadline that were never extended.
func (r *TaskRepository) ListOverdue(ctx context.Context, now time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("was_extended = ? AND deadline < ?", false, now.UTC()).
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list overdue tasks: %w", err)
	}
	return tasks, nil
}

// Update applies a user edit. Concurrent edits are last-write-wins, but the
// version bump makes a racing extension by the poller fail as stale.
func (r *TaskRepository) Update(ctx context.Context, task *model.Task) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND user_id = ?", task.ID, task.UserID).
		Updates(map[string]any{
			"title":       task.Title,
			"description": task.Description,
			"deadline":    task.Deadline.UTC(),
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("update task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	task.Version++
	return nil
}

// SaveExtension persists an extension computed from a task read at
// task.Version. It fails with ErrStale if anything changed in between.
func (r *TaskRepository) SaveExtension(ctx context.Context, task *model.Task) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ? AND version = ? AND was_extended = ?", task.ID, task.Version, false).
		Updates(map[string]any{
			"deadline":     task.Deadline.UTC(),
			"was_extended": true,
			"version":      task.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("extend task: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	task.Version++
	return nil
}

// Delete removes a user's task together with its reminders.
func (r *TaskRepository) Delete(ctx context.Context, userID int64, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND id = ?", userID, id).Delete(&model.Task{})
		if res.Error != nil {
			return fmt.Errorf("delete task: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("task_id = ?", id).Delete(&model.Notification{}).Error; err != nil {
			return fmt.Errorf("delete reminders: %w", err)
		}
		return nil
	})
}

// DeleteByDay removes the user's tasks due on day, with their reminders.
func (r *TaskRepository) DeleteByDay(ctx context.Context, userID int64, day time.Time) (int64, error) {
	from, to := DayBounds(day)
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&model.Task{}).
			Where("user_id = ? AND deadline >= ? AND deadline < ?", userID, from, to).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("find tasks by day: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("task_id IN ?", ids).Delete(&model.Notification{}).Error; err != nil {
			return fmt.Errorf("delete reminders: %w", err)
		}
		res := tx.Where("id IN ?", ids).Delete(&model.Task{})
		if res.Error != nil {
			return fmt.Errorf("delete tasks: %w", res.Error)
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}
