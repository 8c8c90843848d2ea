package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"deadline-bot/internal/event"
	"deadline-bot/internal/queue"
)

// Messenger delivers a rendered message to a user.
type Messenger interface {
	SendText(ctx context.Context, userID int64, text string) error
}

// Renderer turns a queue payload into a recipient and message text.
type Renderer func(payload []byte) (userID int64, text string, err error)

type DispatcherOptions struct {
	PopTimeout  time.Duration
	SendTimeout time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

func (o DispatcherOptions) withDefaults() DispatcherOptions {
	if o.PopTimeout <= 0 {
		o.PopTimeout = 3 * time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 30 * time.Second
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = defaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = defaultBackoffMax
	}
	return o
}

// Dispatcher drains one queue and delivers each occurrence through a Messenger.
type Dispatcher struct {
	queue     queue.Queue
	queueName string
	render    Renderer
	messenger Messenger
	opts      DispatcherOptions
	log       zerolog.Logger
}

func NewDispatcher(q queue.Queue, queueName string, render Renderer, messenger Messenger, opts DispatcherOptions, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:     q,
		queueName: queueName,
		render:    render,
		messenger: messenger,
		opts:      opts.withDefaults(),
		log:       log.With().Str("component", "dispatcher").Str("queue", queueName).Logger(),
	}
}

// NewReminderDispatcher renders reminder payloads with dates shown in loc.
func NewReminderDispatcher(q queue.Queue, queueName string, messenger Messenger, loc *time.Location, opts DispatcherOptions, log zerolog.Logger) *Dispatcher {
	return NewDispatcher(q, queueName, ReminderRenderer(loc), messenger, opts, log)
}

// NewExpiryDispatcher renders expiry payloads with dates shown in loc.
func NewExpiryDispatcher(q queue.Queue, queueName string, messenger Messenger, loc *time.Location, grace time.Duration, opts DispatcherOptions, log zerolog.Logger) *Dispatcher {
	return NewDispatcher(q, queueName, ExpiryRenderer(loc, grace), messenger, opts, log)
}

func ReminderRenderer(loc *time.Location) Renderer {
	return func(payload []byte) (int64, string, error) {
		r, err := event.DecodeReminder(payload)
		if err != nil {
			return 0, "", err
		}
		return r.UserID, r.Text(loc), nil
	}
}

func ExpiryRenderer(loc *time.Location, grace time.Duration) Renderer {
	return func(payload []byte) (int64, string, error) {
		e, err := event.DecodeExpiry(payload)
		if err != nil {
			return 0, "", err
		}
		return e.UserID, e.Text(loc, grace), nil
	}
}

// Run pops and delivers until ctx is done. The context is checked after
// every bounded pop, so shutdown waits at most PopTimeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Msg("dispatcher started")
	failures := 0
	for {
		if ctx.Err() != nil {
			d.log.Info().Msg("dispatcher stopped")
			return nil
		}

		payload, err := d.queue.Pop(ctx, d.queueName, d.opts.PopTimeout)
		switch {
		case err == nil:
			failures = 0
			d.deliver(ctx, payload)
		case errors.Is(err, queue.ErrEmpty):
			failures = 0
		case ctx.Err() != nil:
			continue
		case queue.IsPermanent(err):
			d.log.Error().Err(err).Msg("queue failed permanently")
			return fmt.Errorf("dispatch %s: %w", d.queueName, err)
		default:
			failures++
			wait := expBackoff(d.opts.BackoffBase, failures, d.opts.BackoffMax)
			d.log.Warn().Err(err).Int("failures", failures).Dur("retry_in", wait).Msg("pop failed")
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
		}
	}
}

// deliver renders and sends one payload. Nothing is re-queued: a malformed
// payload or a failed send loses that occurrence.
func (d *Dispatcher) deliver(ctx context.Context, payload []byte) {
	userID, text, err := d.render(payload)
	if err != nil {
		d.log.Warn().Err(err).Bytes("payload", payload).Msg("dropping malformed payload")
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.SendTimeout)
	defer cancel()
	if err := d.messenger.SendText(sendCtx, userID, text); err != nil {
		d.log.Error().Err(err).Int64("user", userID).Msg("send failed")
		return
	}
	d.log.Debug().Int64("user", userID).Msg("delivered")
}
