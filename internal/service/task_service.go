package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"deadline-bot/internal/model"
	"deadline-bot/internal/repository"
)

var (
	ErrDeadlineInPast = errors.New("deadline cannot be in the past")
	ErrReminderInPast = errors.New("reminder time cannot be in the past")
)

// TaskStore is the part of the task store the front end needs.
type TaskStore interface {
	Create(ctx context.Context, task *model.Task, reminder *model.Notification) error
	FindByID(ctx context.Context, id string) (*model.Task, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Task, error)
	ListByDay(ctx context.Context, userID int64, day time.Time) ([]model.Task, error)
	Update(ctx context.Context, task *model.Task) error
	Delete(ctx context.Context, userID int64, id string) error
	DeleteByDay(ctx context.Context, userID int64, day time.Time) (int64, error)
}

// ReminderLister lists the reminders of a task.
type ReminderLister interface {
	ListByTask(ctx context.Context, taskID string) ([]model.Notification, error)
}

// ReminderInput describes an optional reminder collected with a task.
type ReminderInput struct {
	FirstAt time.Time
	Period  time.Duration
	Count   int
}

// TaskInput represents data required to create a task.
type TaskInput struct {
	Title       string
	Description string
	Deadline    time.Time
	Reminder    *ReminderInput
}

// TaskEdit carries the fields a user changes; nil fields stay as they are.
type TaskEdit struct {
	Title       *string
	Description *string
	Deadline    *time.Time
}

// TaskService wraps task-related business logic.
type TaskService struct {
	tasks     TaskStore
	reminders ReminderLister
	now       func() time.Time
}

func NewTaskService(tasks TaskStore, reminders ReminderLister) *TaskService {
	return &TaskService{tasks: tasks, reminders: reminders, now: time.Now}
}

func (s *TaskService) CreateTask(ctx context.Context, userID int64, input TaskInput) (*model.Task, *model.Notification, error) {
	now := s.now()
	task, err := model.NewTask(userID, input.Title, input.Description, input.Deadline)
	if err != nil {
		return nil, nil, err
	}
	if input.Deadline.Before(now) {
		return nil, nil, ErrDeadlineInPast
	}

	var reminder *model.Notification
	if in := input.Reminder; in != nil {
		if in.FirstAt.Before(now) {
			return nil, nil, ErrReminderInPast
		}
		period := in.Period
		if period <= 0 && in.Count == 1 {
			// A one-shot reminder never advances, any period will do.
			period = 24 * time.Hour
		}
		n, err := model.NewNotification("", in.FirstAt, period, in.Count)
		if err != nil {
			return nil, nil, err
		}
		reminder = &n
	}

	if err := s.tasks.Create(ctx, &task, reminder); err != nil {
		return nil, nil, err
	}
	return &task, reminder, nil
}

func (s *TaskService) ListTasks(ctx context.Context, userID int64) ([]model.Task, error) {
	return s.tasks.ListByUser(ctx, userID)
}

// GetTask returns the task only when it belongs to userID.
func (s *TaskService) GetTask(ctx context.Context, userID int64, taskID string) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.UserID != userID {
		return nil, repository.ErrNotFound
	}
	return task, nil
}

func (s *TaskService) Reminders(ctx context.Context, userID int64, taskID string) ([]model.Notification, error) {
	if _, err := s.GetTask(ctx, userID, taskID); err != nil {
		return nil, err
	}
	return s.reminders.ListByTask(ctx, taskID)
}

// EditTask applies a user edit. Moving the deadline does not reset the
// one-time extension.
func (s *TaskService) EditTask(ctx context.Context, userID int64, taskID string, edit TaskEdit) (*model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if edit.Title != nil {
		title := strings.TrimSpace(*edit.Title)
		if title == "" {
			return nil, model.ErrInvalidTitle
		}
		task.Title = title
	}
	if edit.Description != nil {
		task.Description = strings.TrimSpace(*edit.Description)
	}
	if edit.Deadline != nil {
		if edit.Deadline.Before(s.now()) {
			return nil, ErrDeadlineInPast
		}
		task.Deadline = edit.Deadline.UTC()
	}
	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("edit task: %w", err)
	}
	return task, nil
}

// DeleteTask removes a task and its reminders.
func (s *TaskService) DeleteTask(ctx context.Context, userID int64, taskID string) error {
	return s.tasks.Delete(ctx, userID, taskID)
}

func (s *TaskService) TasksOnDay(ctx context.Context, userID int64, day time.Time) ([]model.Task, error) {
	return s.tasks.ListByDay(ctx, userID, day)
}

// DeleteDay removes every task of the user due on day.
func (s *TaskService) DeleteDay(ctx context.Context, userID int64, day time.Time) (int64, error) {
	return s.tasks.DeleteByDay(ctx, userID, day)
}
