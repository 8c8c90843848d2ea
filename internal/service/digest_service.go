package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"deadline-bot/internal/event"
	"deadline-bot/internal/model"
	"deadline-bot/internal/repository"
)

// DigestTasks lists tasks across all users by deadline.
type DigestTasks interface {
	ListDueBetween(ctx context.Context, from, to time.Time) ([]model.Task, error)
}

// DigestService builds human-readable summaries for daily notifications.
type DigestService struct {
	tasks DigestTasks
}

func NewDigestService(tasks DigestTasks) *DigestService {
	return &DigestService{tasks: tasks}
}

// Summaries returns one message per user who has tasks due on the
// calendar day of now, in now's location.
func (s *DigestService) Summaries(ctx context.Context, now time.Time) (map[int64]string, error) {
	from, to := repository.DayBounds(now)
	tasks, err := s.tasks.ListDueBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	byUser := make(map[int64][]model.Task)
	for _, task := range tasks {
		byUser[task.UserID] = append(byUser[task.UserID], task)
	}

	out := make(map[int64]string, len(byUser))
	for userID, list := range byUser {
		header := fmt.Sprintf("📋 <b>Today's deadlines</b>\n🗓 %s", now.Format(DateLayout))
		out[userID] = FormatTaskList(header, list, now)
	}
	return out, nil
}

// FormatTaskList renders tasks under a header, one entry per task.
func FormatTaskList(header string, tasks []model.Task, now time.Time) string {
	var builder strings.Builder
	builder.WriteString(header)
	builder.WriteString("\n\n")
	if len(tasks) == 0 {
		builder.WriteString("No tasks.\n")
	}
	for _, task := range tasks {
		builder.WriteString(formatTask(task, now))
	}
	return strings.TrimSpace(builder.String())
}

func formatTask(task model.Task, now time.Time) string {
	var sb strings.Builder

	d := task.Deadline.In(now.Location())
	icon := "🟢"
	switch {
	case now.After(d):
		icon = "⚠️"
	case d.Sub(now) <= 24*time.Hour:
		icon = "⏳"
	}

	sb.WriteString(fmt.Sprintf("%s %s", icon, html.EscapeString(strings.TrimSpace(task.Title))))
	sb.WriteString(fmt.Sprintf("\n   ⏰ %s", d.Format(DateTimeLayout)))
	if task.WasExtended {
		sb.WriteString(" <i>(extended)</i>")
	}
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

// FormatTaskDetails renders a single task with the time left or past and
// its pending reminders.
func FormatTaskDetails(task model.Task, reminders []model.Notification, now time.Time) string {
	var sb strings.Builder
	d := task.Deadline.In(now.Location())

	sb.WriteString(fmt.Sprintf("<b>%s</b>\n\n", html.EscapeString(task.Title)))
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("<b>Description:</b> %s\n\n", html.EscapeString(task.Description)))
	}
	sb.WriteString(fmt.Sprintf("<b>Deadline:</b> %s\n\n", d.Format(DateTimeLayout)))

	if d.After(now) {
		sb.WriteString(fmt.Sprintf("👍🏼 Time left: %s", formatSpan(d.Sub(now))))
	} else {
		sb.WriteString(fmt.Sprintf("👎🏼 Time past: %s", formatSpan(now.Sub(d))))
	}

	for _, n := range reminders {
		sb.WriteString(fmt.Sprintf("\n🔔 next reminder %s, every %s, %d more",
			n.NextFireAt.In(now.Location()).Format(DateTimeLayout), event.FormatPeriod(n.Period), n.TimesLeft))
	}
	return sb.String()
}

func formatSpan(d time.Duration) string {
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := total % (24 * 60) / 60
	minutes := total % 60
	return fmt.Sprintf("%d days, %d hours, %d minutes", days, hours, minutes)
}
