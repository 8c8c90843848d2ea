package model

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidTitle    = errors.New("title is required")
	ErrInvalidDeadline = errors.New("deadline is required")
	ErrInvalidUser     = errors.New("user id is required")
)

// DefaultGracePeriod is how far an overdue deadline is pushed the one time it is extended.
const DefaultGracePeriod = 24 * time.Hour

// Task represents a single item with a deadline.
type Task struct {
	ID            string         `gorm:"primaryKey;size:36" bson:"_id"`
	UserID        int64          `gorm:"index" bson:"user_id"`
	Title         string         `bson:"title"`
	Description   string         `bson:"description"`
	Deadline      time.Time      `gorm:"index" bson:"deadline"`
	WasExtended   bool           `gorm:"default:false;index" bson:"was_extended"`
	Version       int64          `gorm:"not null;default:0" bson:"version"`
	CreatedAt     time.Time      `bson:"created_at"`
	UpdatedAt     time.Time      `bson:"updated_at"`
	Notifications []Notification `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" bson:"-"`
}

// NewTask builds a validated task that has not been stored yet.
func NewTask(userID int64, title, description string, deadline time.Time) (Task, error) {
	title = strings.TrimSpace(title)
	switch {
	case userID == 0:
		return Task{}, ErrInvalidUser
	case title == "":
		return Task{}, ErrInvalidTitle
	case deadline.IsZero():
		return Task{}, ErrInvalidDeadline
	}
	return Task{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(description),
		Deadline:    deadline.UTC(),
	}, nil
}

// TaskOutcome is the result of evaluating a task against the clock.
type TaskOutcome int

const (
	NotExtended TaskOutcome = iota
	Extended
)

func (o TaskOutcome) String() string {
	if o == Extended {
		return "extended"
	}
	return "not_extended"
}

// Evaluate returns the task as it should look at now. An overdue task is
// pushed back by grace exactly once over its lifetime.
func (t Task) Evaluate(now time.Time, grace time.Duration) (Task, TaskOutcome) {
	if t.WasExtended || !now.After(t.Deadline) {
		return t, NotExtended
	}
	t.WasExtended = true
	t.Deadline = t.Deadline.Add(grace)
	return t, Extended
}

// Overdue reports whether the deadline has passed at now.
func (t Task) Overdue(now time.Time) bool {
	return now.After(t.Deadline)
}
