package model

import (
	"errors"
	"time"
)

var (
	ErrInvalidTask   = errors.New("notification must reference a task")
	ErrInvalidPeriod = errors.New("period must be positive")
	ErrInvalidCount  = errors.New("reminder count must be positive")
	ErrInvalidFireAt = errors.New("first reminder time is required")
)

// Notification is a recurring reminder attached to a task.
type Notification struct {
	ID         string        `gorm:"primaryKey;size:36" bson:"_id"`
	TaskID     string        `gorm:"index;size:36;not null" bson:"task_id"`
	NextFireAt time.Time     `gorm:"index" bson:"next_fire_at"`
	Period     time.Duration `bson:"period"`
	TimesLeft  int           `bson:"times_left"`
	Version    int64         `gorm:"not null;default:0" bson:"version"`
	CreatedAt  time.Time     `bson:"created_at"`
	UpdatedAt  time.Time     `bson:"updated_at"`
}

// NewNotification builds a validated reminder. The task id may be empty
// when the reminder is created together with its task.
func NewNotification(taskID string, firstAt time.Time, period time.Duration, times int) (Notification, error) {
	switch {
	case firstAt.IsZero():
		return Notification{}, ErrInvalidFireAt
	case period <= 0:
		return Notification{}, ErrInvalidPeriod
	case times <= 0:
		return Notification{}, ErrInvalidCount
	}
	return Notification{
		TaskID:     taskID,
		NextFireAt: firstAt.UTC(),
		Period:     period,
		TimesLeft:  times,
	}, nil
}

// Validate checks a record loaded from or about to be written to a store.
func (n Notification) Validate() error {
	switch {
	case n.TaskID == "":
		return ErrInvalidTask
	case n.Period <= 0:
		return ErrInvalidPeriod
	case n.TimesLeft < 0:
		return ErrInvalidCount
	}
	return nil
}

// NotificationOutcome is the result of evaluating a reminder against the clock.
type NotificationOutcome int

const (
	NotFired NotificationOutcome = iota
	Fired
	Exhausted
)

func (o NotificationOutcome) String() string {
	switch o {
	case Fired:
		return "fired"
	case Exhausted:
		return "exhausted"
	default:
		return "not_fired"
	}
}

// Evaluate returns the reminder as it should look at now.
//
// A due reminder fires at most once per evaluation and advances by a single
// period, so occurrences missed while nobody was evaluating are collapsed.
// When the remaining count would drop below zero the reminder is exhausted
// and must be deleted; no event is emitted for that final check.
func (n Notification) Evaluate(now time.Time) (Notification, NotificationOutcome) {
	if !now.After(n.NextFireAt) {
		return n, NotFired
	}
	n.TimesLeft--
	if n.TimesLeft < 0 {
		return n, Exhausted
	}
	n.NextFireAt = n.NextFireAt.Add(n.Period)
	return n, Fired
}
