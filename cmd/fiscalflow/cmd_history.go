package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/fiscalflow/internal/history"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\x1b[H\x1b[2J"

type bandLister interface {
	Grouped(ctx context.Context, tz string) ([]history.Band, error)
}

func newHistoryCommand() *cobra.Command {
	var (
		flags    clientFlags
		tz       string
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your conversations grouped by recency",
		Long: `List your conversations in recency bands (today, yesterday, this week, this
month, older). With --watch the listing is refreshed on an interval until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if tz == "" {
				tz = cfg.Timezone
			}
			if interval <= 0 {
				interval = cfg.PollInterval
			}
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("invalid --tz %q: %w", tz, err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			c, err := login(ctx, cfg, cmd.InOrStdin(), bufio.NewScanner(cmd.InOrStdin()), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if !watch {
				return printHistory(ctx, c, tz, loc, cmd.OutOrStdout())
			}
			return watchHistory(ctx, c, tz, loc, interval, cmd.OutOrStdout())
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&tz, "tz", "", "IANA time zone of the recency bands (overrides FISCALFLOW_TZ)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Refresh the listing until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Refresh interval with --watch (overrides FISCALFLOW_POLL_INTERVAL)")
	cmd.AddCommand(newHistoryShowCommand())
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "show SESSION_ID",
		Short: "Print the transcript of one conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			c, err := login(cmd.Context(), cfg, cmd.InOrStdin(), bufio.NewScanner(cmd.InOrStdin()), cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			turns, err := c.Transcript(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			renderTranscript(cmd.OutOrStdout(), turns)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func printHistory(ctx context.Context, c bandLister, tz string, loc *time.Location, out io.Writer) error {
	bands, err := c.Grouped(ctx, tz)
	if err != nil {
		return err
	}
	renderBands(out, bands, loc)
	return nil
}

// watchHistory redraws the listing every interval. A failed poll is shown
// and retried on the next tick.
func watchHistory(ctx context.Context, c bandLister, tz string, loc *time.Location, interval time.Duration, out io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fmt.Fprint(out, clearScreen)
		if err := printHistory(ctx, c, tz, loc, out); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Msg("history poll failed")
			fmt.Fprintln(out, styles.Error.Render(err.Error()))
		}
		fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf("\nActualizado %s · cada %s", time.Now().In(loc).Format("15:04:05"), interval)))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
