// Package event defines the occurrence payloads exchanged between the poller
// and the dispatchers through the event queue.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"deadline-bot/internal/model"
)

var ErrMalformed = errors.New("malformed payload")

// Reminder is pushed once per fired notification.
type Reminder struct {
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
	Next        time.Time `json:"next"`
	PeriodSec   float64   `json:"period_sec"`
	TimesLeft   int       `json:"times_left"`
}

// Expiry is pushed once per extended task.
type Expiry struct {
	UserID      int64     `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Deadline    time.Time `json:"deadline"`
}

// NewReminder resolves a fired notification and its owning task into a payload.
func NewReminder(task model.Task, n model.Notification) Reminder {
	return Reminder{
		UserID:      task.UserID,
		Title:       task.Title,
		Description: task.Description,
		Deadline:    task.Deadline,
		Next:        n.NextFireAt,
		PeriodSec:   n.Period.Seconds(),
		TimesLeft:   n.TimesLeft,
	}
}

// NewExpiry builds the payload for a task whose deadline was just extended.
func NewExpiry(task model.Task) Expiry {
	return Expiry{
		UserID:      task.UserID,
		Title:       task.Title,
		Description: task.Description,
		Deadline:    task.Deadline,
	}
}

func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

func DecodeReminder(data []byte) (Reminder, error) {
	var r Reminder
	if err := json.Unmarshal(data, &r); err != nil {
		return Reminder{}, errors.Join(ErrMalformed, err)
	}
	if r.UserID == 0 {
		return Reminder{}, fmt.Errorf("%w: missing user_id", ErrMalformed)
	}
	return r, nil
}

func DecodeExpiry(data []byte) (Expiry, error) {
	var e Expiry
	if err := json.Unmarshal(data, &e); err != nil {
		return Expiry{}, errors.Join(ErrMalformed, err)
	}
	if e.UserID == 0 {
		return Expiry{}, fmt.Errorf("%w: missing user_id", ErrMalformed)
	}
	return e, nil
}

const displayLayout = "2006-01-02 15:04"

// Text renders the reminder as an HTML message in loc.
func (r Reminder) Text(loc *time.Location) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⏰ Reminder about your task <b>%s</b>\n", escape(r.Title)))
	if d := strings.TrimSpace(r.Description); d != "" {
		sb.WriteString(fmt.Sprintf("📝 %s\n", escape(d)))
	}
	sb.WriteString(fmt.Sprintf("Please notice: your deadline is on <b>%s</b>", r.Deadline.In(loc).Format(displayLayout)))
	if r.TimesLeft > 0 {
		sb.WriteString(fmt.Sprintf("\nNext reminder: %s (%d left)", r.Next.In(loc).Format(displayLayout), r.TimesLeft))
	}
	return sb.String()
}

// Text renders the expiry notice as an HTML message in loc.
func (e Expiry) Text(loc *time.Location, grace time.Duration) string {
	return fmt.Sprintf(
		"⚠️ You missed your task <b>%s</b>\nWe have extended your deadline by <i>%s</i>\nPlease notice: your deadline currently is on <b>%s</b>",
		escape(e.Title), FormatPeriod(grace), e.Deadline.In(loc).Format(displayLayout),
	)
}

// FormatPeriod renders a duration as "1 d. 2 h. 30 m.".
func FormatPeriod(d time.Duration) string {
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := total % (24 * 60) / 60
	minutes := total % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d d.", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%d h.", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%d m.", minutes))
	}
	if len(parts) == 0 {
		return "0 m."
	}
	return strings.Join(parts, " ")
}

func escape(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
