package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"deadline-bot/internal/model"
)

// NotificationRepository handles CRUD for reminders.
type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	n.ID = uuid.NewString()
	n.NextFireAt = n.NextFireAt.UTC()
	if err := r.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByTask(ctx context.Context, taskID string) ([]model.Notification, error) {
	var items []model.Notification
	if err := r.db.WithContext(ctx).Where("task_id = ?", taskID).
		Order("next_fire_at ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return items, nil
}

// ListDue returns reminders whose next fire time is before now.
func (r *NotificationRepository) ListDue(ctx context.Context, now time.Time) ([]model.Notification, error) {
	var items []model.Notification
	if err := r.db.WithContext(ctx).Where("next_fire_at < ?", now.UTC()).
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	return items, nil
}

// Advance persists a fired reminder computed from a record read at n.Version.
func (r *NotificationRepository) Advance(ctx context.Context, n *model.Notification) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("advance reminder: %w", err)
	}
	res := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND version = ?", n.ID, n.Version).
		Updates(map[string]any{
			"next_fire_at": n.NextFireAt.UTC(),
			"times_left":   n.TimesLeft,
			"version":      n.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("advance reminder: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	n.Version++
	return nil
}

// Delete removes a reminder as long as it is still at n.Version.
func (r *NotificationRepository) Delete(ctx context.Context, n *model.Notification) error {
	res := r.db.WithContext(ctx).Where("id = ? AND version = ?", n.ID, n.Version).Delete(&model.Notification{})
	if res.Error != nil {
		return fmt.Errorf("delete reminder: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

func (r *NotificationRepository) DeleteByTask(ctx context.Context, taskID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("task_id = ?", taskID).Delete(&model.Notification{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete reminders: %w", res.Error)
	}
	return res.RowsAffected, nil
}
