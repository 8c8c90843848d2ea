// Package queue provides the ordered at-least-once channels that carry
// occurrence payloads from the poller to the dispatchers.
package queue

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	DefaultReminders = "reminders"
	DefaultExpired   = "expired"
)

var (
	// ErrEmpty is returned by Pop when nothing arrived before the timeout.
	ErrEmpty = errors.New("queue is empty")
	// ErrPermanent marks failures that retrying will not fix.
	ErrPermanent = errors.New("permanent queue failure")
)

// Queue is a set of named FIFO lists. A pushed payload stays until one
// consumer pops it; there is no acknowledgment.
type Queue interface {
	Push(ctx context.Context, name string, payload []byte) error
	Pop(ctx context.Context, name string, timeout time.Duration) ([]byte, error)
}

// IsPermanent reports whether err is an authentication or permission
// failure of the queue backend.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return true
	}
	msg := err.Error()
	for _, prefix := range []string{"NOAUTH", "WRONGPASS", "NOPERM"} {
		if strings.Contains(msg, prefix) {
			return true
		}
	}
	return false
}
