package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"deadline-bot/internal/bot"
	"deadline-bot/internal/config"
	"deadline-bot/internal/queue"
	"deadline-bot/internal/repository"
	"deadline-bot/internal/repository/mongostore"
	"deadline-bot/internal/service"
)

type taskStore interface {
	service.TaskStore
	service.PollerTasks
	service.DigestTasks
}

type notificationStore interface {
	service.PollerNotifications
	service.ReminderLister
}

type stores struct {
	tasks         taskStore
	notifications notificationStore
	close         func()
}

func openStores(ctx context.Context, cfg config.Config, log zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		db, err := mongostore.Connect(ctx, mongostore.Config{
			ConnectionURL:  cfg.MongoURL,
			Database:       cfg.MongoDatabase,
			ConnectTimeout: 10 * time.Second,
			RetryAttempts:  3,
			RetryInterval:  5 * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		log.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")
		return &stores{
			tasks:         mongostore.NewTaskStore(db),
			notifications: mongostore.NewNotificationStore(db),
			close:         func() { _ = db.Client().Disconnect(context.Background()) },
		}, nil

	default:
		db, err := repository.NewDB(cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("db: %w", err)
		}
		log.Info().Str("path", cfg.DatabaseURL).Msg("opened sqlite store")
		return &stores{
			tasks:         repository.NewTaskRepository(db),
			notifications: repository.NewNotificationRepository(db),
			close:         func() { _ = sqlDB.Close() },
		}, nil
	}
}

var errMemoryQueueSplit = errors.New("QUEUE_DRIVER=memory only works with the run command")

// openQueue connects the event queue. The in-memory queue cannot be shared
// between processes, so only the combined run command may use it.
func openQueue(ctx context.Context, cfg config.Config, combined bool) (queue.Queue, func(), error) {
	if cfg.QueueDriver == config.QueueMemory {
		if !combined {
			return nil, nil, errMemoryQueueSplit
		}
		return queue.NewMemoryQueue(), func() {}, nil
	}
	client, err := queue.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return queue.NewRedisQueue(client), func() { _ = client.Close() }, nil
}

func newPoller(s *settings, st *stores, q queue.Queue) *service.Poller {
	return service.NewPoller(st.tasks, st.notifications, q, service.PollerOptions{
		GracePeriod:    s.cfg.GracePeriod,
		RemindersQueue: s.cfg.RemindersQueue,
		ExpiredQueue:   s.cfg.ExpiredQueue,
	}, s.log)
}

// startDispatchers adds DispatchWorkers consumers per queue to g.
func startDispatchers(ctx context.Context, g *errgroup.Group, s *settings, q queue.Queue, m service.Messenger) error {
	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}
	opts := service.DispatcherOptions{PopTimeout: s.cfg.PopTimeout}
	for i := range s.cfg.DispatchWorkers {
		log := s.log.With().Int("worker", i).Logger()
		reminders := service.NewReminderDispatcher(q, s.cfg.RemindersQueue, m, loc, opts, log)
		expired := service.NewExpiryDispatcher(q, s.cfg.ExpiredQueue, m, loc, s.cfg.GracePeriod, opts, log)
		g.Go(func() error { return reminders.Run(ctx) })
		g.Go(func() error { return expired.Run(ctx) })
	}
	return nil
}

func runAll(ctx context.Context, s *settings) error {
	if err := s.cfg.RequireToken(); err != nil {
		return err
	}
	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}

	st, err := openStores(ctx, s.cfg, s.log)
	if err != nil {
		return err
	}
	defer st.close()

	q, closeQueue, err := openQueue(ctx, s.cfg, true)
	if err != nil {
		return err
	}
	defer closeQueue()

	taskSvc := service.NewTaskService(st.tasks, st.notifications)
	digestSvc := service.NewDigestService(st.tasks)
	telegramBot, err := bot.New(s.cfg.TelegramToken, taskSvc, digestSvc, bot.Options{Location: loc, SendRate: s.cfg.SendRate}, s.log)
	if err != nil {
		return err
	}

	scheduler := service.NewSchedulerService(loc)
	ticker, err := scheduler.Ticker(s.cfg.PollInterval)
	if err != nil {
		return err
	}
	if s.cfg.DigestTime != "" {
		if _, err := scheduler.ScheduleDaily(s.cfg.DigestTime, func() {
			jobCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			if err := telegramBot.SendDigests(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error().Err(err).Msg("daily digest")
			}
		}); err != nil {
			return fmt.Errorf("schedule digest: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	poller := newPoller(s, st, q)
	g.Go(func() error { return poller.Run(gctx, ticker) })
	if err := startDispatchers(gctx, g, s, q, telegramBot); err != nil {
		return err
	}
	g.Go(func() error { return telegramBot.Start(gctx) })

	s.log.Info().Str("store", s.cfg.StoreDriver).Str("queue", s.cfg.QueueDriver).Msg("deadline bot started")
	err = g.Wait()
	s.log.Info().Err(err).Msg("shutdown complete")
	return err
}

func runPoller(ctx context.Context, s *settings) error {
	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}
	st, err := openStores(ctx, s.cfg, s.log)
	if err != nil {
		return err
	}
	defer st.close()

	q, closeQueue, err := openQueue(ctx, s.cfg, false)
	if err != nil {
		return err
	}
	defer closeQueue()

	scheduler := service.NewSchedulerService(loc)
	ticker, err := scheduler.Ticker(s.cfg.PollInterval)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	return newPoller(s, st, q).Run(ctx, ticker)
}

func runDispatchers(ctx context.Context, s *settings) error {
	if err := s.cfg.RequireToken(); err != nil {
		return err
	}
	loc, err := s.cfg.Location()
	if err != nil {
		return err
	}
	q, closeQueue, err := openQueue(ctx, s.cfg, false)
	if err != nil {
		return err
	}
	defer closeQueue()

	sender, err := bot.NewSender(s.cfg.TelegramToken, bot.Options{Location: loc, SendRate: s.cfg.SendRate}, s.log)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := startDispatchers(gctx, g, s, q, sender); err != nil {
		return err
	}
	return g.Wait()
}
