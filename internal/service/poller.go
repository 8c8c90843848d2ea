package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"deadline-bot/internal/event"
	"deadline-bot/internal/model"
	"deadline-bot/internal/queue"
	"deadline-bot/internal/repository"
)

// PollerTasks is the part of the task store the poller needs.
type PollerTasks interface {
	FindByID(ctx context.Context, id string) (*model.Task, error)
	ListOverdue(ctx context.Context, now time.Time) ([]model.Task, error)
	SaveExtension(ctx context.Context, task *model.Task) error
}

// PollerNotifications is the part of the reminder store the poller needs.
type PollerNotifications interface {
	ListDue(ctx context.Context, now time.Time) ([]model.Notification, error)
	Advance(ctx context.Context, n *model.Notification) error
	Delete(ctx context.Context, n *model.Notification) error
}

type PollerOptions struct {
	GracePeriod    time.Duration
	RemindersQueue string
	ExpiredQueue   string
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	// Now supplies the time of the first cycle; ticks carry their own time.
	Now func() time.Time
}

func (o PollerOptions) withDefaults() PollerOptions {
	if o.GracePeriod <= 0 {
		o.GracePeriod = model.DefaultGracePeriod
	}
	if o.RemindersQueue == "" {
		o.RemindersQueue = queue.DefaultReminders
	}
	if o.ExpiredQueue == "" {
		o.ExpiredQueue = queue.DefaultExpired
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = defaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = defaultBackoffMax
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// PollStats counts what one cycle did.
type PollStats struct {
	Fired     int
	Exhausted int
	Extended  int
	Orphaned  int
	Stale     int
	Pushed    int
	Failed    int
}

func (s PollStats) empty() bool {
	return s == PollStats{}
}

// Poller detects due reminders and overdue tasks, commits their new state
// and hands one occurrence per change to the event queue.
type Poller struct {
	tasks         PollerTasks
	notifications PollerNotifications
	queue         queue.Queue
	opts          PollerOptions
	log           zerolog.Logger

	failures int
	retryAt  time.Time
}

func NewPoller(tasks PollerTasks, notifications PollerNotifications, q queue.Queue, opts PollerOptions, log zerolog.Logger) *Poller {
	return &Poller{
		tasks:         tasks,
		notifications: notifications,
		queue:         q,
		opts:          opts.withDefaults(),
		log:           log.With().Str("component", "poller").Logger(),
	}
}

// Run performs a cycle right away and then one per tick until ctx is done.
// Failed cycles are retried on later ticks with exponential backoff; only
// permanent store or queue failures end the loop with an error.
func (p *Poller) Run(ctx context.Context, ticker Ticker) error {
	defer ticker.Stop()
	p.log.Info().Dur("grace", p.opts.GracePeriod).Msg("poller started")

	if err := p.cycle(ctx, p.opts.Now()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("poller stopped")
			return nil
		case now := <-ticker.C():
			if now.Before(p.retryAt) {
				continue
			}
			if err := p.cycle(ctx, now); err != nil {
				return err
			}
		}
	}
}

func (p *Poller) cycle(ctx context.Context, now time.Time) error {
	stats, err := p.RunOnce(ctx, now)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if queue.IsPermanent(err) || repository.IsPermanent(err) {
			p.log.Error().Err(err).Msg("poll cycle failed permanently")
			return fmt.Errorf("poll: %w", err)
		}
		p.failures++
		wait := expBackoff(p.opts.BackoffBase, p.failures, p.opts.BackoffMax)
		p.retryAt = now.Add(wait)
		p.log.Warn().Err(err).Int("failures", p.failures).Dur("retry_in", wait).Msg("poll cycle failed")
		return nil
	}
	p.failures = 0
	p.retryAt = time.Time{}
	if !stats.empty() {
		p.log.Info().
			Int("fired", stats.Fired).
			Int("exhausted", stats.Exhausted).
			Int("extended", stats.Extended).
			Int("orphaned", stats.Orphaned).
			Int("stale", stats.Stale).
			Int("pushed", stats.Pushed).
			Msg("poll cycle")
	}
	return nil
}

// RunOnce evaluates every due reminder and overdue task at now.
//
// Each record is handled on its own: a failure is collected and the rest
// of the batch still runs. Work on a record is not interrupted by ctx once
// started, so shutdown never splits a store commit from its queue push.
func (p *Poller) RunOnce(ctx context.Context, now time.Time) (PollStats, error) {
	var stats PollStats
	var errs []error

	notes, err := p.notifications.ListDue(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("load reminders: %w", err)
	}
	work := context.WithoutCancel(ctx)
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := p.evaluateNotification(work, n, now, &stats); err != nil {
			stats.Failed++
			errs = append(errs, err)
		}
	}

	tasks, err := p.tasks.ListOverdue(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("load tasks: %w", err))
		return stats, errors.Join(errs...)
	}
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := p.evaluateTask(work, t, now, &stats); err != nil {
			stats.Failed++
			errs = append(errs, err)
		}
	}

	return stats, errors.Join(errs...)
}

func (p *Poller) evaluateNotification(ctx context.Context, n model.Notification, now time.Time, stats *PollStats) error {
	next, outcome := n.Evaluate(now)
	switch outcome {
	case model.NotFired:
		return nil

	case model.Exhausted:
		if err := p.notifications.Delete(ctx, &n); err != nil {
			if errors.Is(err, repository.ErrStale) {
				stats.Stale++
				return nil
			}
			return fmt.Errorf("delete exhausted reminder %s: %w", n.ID, err)
		}
		stats.Exhausted++
		p.log.Debug().Str("reminder", n.ID).Str("task", n.TaskID).Msg("reminder exhausted")
		return nil
	}

	if err := p.notifications.Advance(ctx, &next); err != nil {
		if errors.Is(err, repository.ErrStale) {
			stats.Stale++
			return nil
		}
		return fmt.Errorf("advance reminder %s: %w", n.ID, err)
	}

	task, err := p.tasks.FindByID(ctx, next.TaskID)
	if errors.Is(err, repository.ErrNotFound) {
		stats.Orphaned++
		p.log.Warn().Str("reminder", next.ID).Str("task", next.TaskID).Msg("reminder references a missing task, dropping it")
		if err := p.notifications.Delete(ctx, &next); err != nil && !errors.Is(err, repository.ErrStale) {
			return fmt.Errorf("delete orphaned reminder %s: %w", next.ID, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve task for reminder %s: %w", next.ID, err)
	}
	stats.Fired++

	if err := p.push(ctx, p.opts.RemindersQueue, event.NewReminder(*task, next)); err != nil {
		return fmt.Errorf("queue reminder %s: %w", next.ID, err)
	}
	stats.Pushed++
	return nil
}

func (p *Poller) evaluateTask(ctx context.Context, t model.Task, now time.Time, stats *PollStats) error {
	next, outcome := t.Evaluate(now, p.opts.GracePeriod)
	if outcome != model.Extended {
		return nil
	}
	if err := p.tasks.SaveExtension(ctx, &next); err != nil {
		if errors.Is(err, repository.ErrStale) {
			stats.Stale++
			return nil
		}
		return fmt.Errorf("extend task %s: %w", t.ID, err)
	}
	stats.Extended++
	p.log.Debug().Str("task", t.ID).Time("deadline", next.Deadline).Msg("deadline extended")

	if err := p.push(ctx, p.opts.ExpiredQueue, event.NewExpiry(next)); err != nil {
		return fmt.Errorf("queue expiry %s: %w", t.ID, err)
	}
	stats.Pushed++
	return nil
}

func (p *Poller) push(ctx context.Context, name string, payload any) error {
	data, err := event.Encode(payload)
	if err != nil {
		return err
	}
	return p.queue.Push(ctx, name, data)
}
