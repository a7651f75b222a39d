package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var version = "dev" //nolint:gochecknoglobals // set by -ldflags at build time

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fiscalflow",
		Short: "FiscalFlow - streaming relay to the fiscal agent",
		Long: `FiscalFlow relays chat turns to the fiscal agent workflow, streams the
answers back and rebuilds conversation history from the agent's chat log.

Run "fiscalflow serve" for the HTTP server, or use the chat and history
commands as a terminal client of a running server.`,
		Version:      version,
		SilenceUsage: true,
	}

	debug := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, _ []string) {
		setupLogging(cmd.ErrOrStderr(), *debug)
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newChatCommand())
	cmd.AddCommand(newHistoryCommand())
	cmd.AddCommand(newUserCommand())

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

// setupLogging configures the global logger from FISCALFLOW_LOG_LEVEL and
// FISCALFLOW_LOG_FORMAT ("json" or "text"). --debug wins over the level.
func setupLogging(w io.Writer, debug bool) {
	level, err := zerolog.ParseLevel(os.Getenv("FISCALFLOW_LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if os.Getenv("FISCALFLOW_LOG_FORMAT") == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	}
}
