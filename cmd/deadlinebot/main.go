// Command deadlinebot runs the Telegram deadline bot, its reminder poller
// and the dispatchers that deliver queued events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"deadline-bot/internal/config"
	"deadline-bot/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "deadlinebot:", err)
		stop()
		os.Exit(1)
	}
}

// settings is filled by the root command before any subcommand runs.
type settings struct {
	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	s := &settings{}

	root := &cobra.Command{
		Use:           "deadlinebot",
		Short:         "Telegram bot that tracks deadlines and sends reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			s.cfg = cfg
			s.log = logging.New(cfg.LogLevel, cfg.LogPretty)
			return nil
		},
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the bot, the poller and the dispatchers in one process (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(cmd.Context(), s)
		},
	}
	poll := &cobra.Command{
		Use:   "poll",
		Short: "Run only the poller that detects due reminders and missed deadlines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPoller(cmd.Context(), s)
		},
	}
	dispatch := &cobra.Command{
		Use:   "dispatch",
		Short: "Run only the dispatchers that deliver queued events to Telegram",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatchers(cmd.Context(), s)
		},
	}

	root.RunE = run.RunE
	root.Args = cobra.NoArgs
	root.AddCommand(run, poll, dispatch)
	return root
}
