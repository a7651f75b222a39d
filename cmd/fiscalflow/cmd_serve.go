package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gosuda/fiscalflow/internal/auth"
	"github.com/gosuda/fiscalflow/internal/chat"
	"github.com/gosuda/fiscalflow/internal/config"
	"github.com/gosuda/fiscalflow/internal/extract"
	"github.com/gosuda/fiscalflow/internal/history"
	"github.com/gosuda/fiscalflow/internal/metrics"
	"github.com/gosuda/fiscalflow/internal/relay"
	"github.com/gosuda/fiscalflow/internal/reports"
	"github.com/gosuda/fiscalflow/internal/server"
	"github.com/gosuda/fiscalflow/internal/store/postgres"
	redisstore "github.com/gosuda/fiscalflow/internal/store/redis"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay server",
		Long: `Run the HTTP server: authentication, the streamed chat relay, conversation
history, report downloads, live websocket updates and metrics.

All settings come from FISCALFLOW_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides FISCALFLOW_SERVER_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	store, err := openStore(ctx, &cfg.Database, postgres.Options{ChatLogTimestampColumn: cfg.History.TimestampColumn})
	if err != nil {
		return err
	}
	defer store.Close()

	rc, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer rc.Close()

	m := metrics.New(prometheus.DefaultRegisterer)

	relayClient := relay.NewClient(cfg.Relay.WebhookURL, cfg.Relay.Timeout, relay.WithMetrics(m))

	extractor := extract.New(m,
		extract.NewOpenAIRecognizer(cfg.Extractor.OpenAIKey, cfg.Extractor.Model, cfg.Extractor.BaseURL, cfg.Extractor.Timeout),
		extract.NewPatternRecognizer(),
	)
	if cfg.Extractor.OpenAIKey == "" {
		log.Info().Msg("no OpenAI key configured; report ids are found by pattern only")
	}

	hist := history.New(store.ChatLogs(),
		history.WithActivity(rc),
		history.WithMetrics(m),
		history.WithLimits(cfg.History.PageSize, cfg.History.PreviewLength, cfg.History.TitleLength),
	)

	chatSvc := chat.NewService(relayClient, extractor,
		chat.WithGuard(rc),
		chat.WithPublisher(rc),
		chat.WithActivity(rc),
		chat.WithMetrics(m),
	)

	authSvc := auth.NewService(store.Users(), rc, cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	srv := server.New(ctx, cfg, server.Deps{
		Auth:      authSvc,
		Chat:      chatSvc,
		Extractor: extractor,
		History:   hist,
		Reports:   reports.NewService(store.Reports(), cfg.Reports.TTL),
		PubSub:    rc,
		Checks: map[string]func(context.Context) error{
			"postgres": store.Ping,
			"redis":    rc.Ping,
		},
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("webhook", cfg.Relay.WebhookURL).Msg("starting server")
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("stopped")
	return nil
}

// openStore connects to PostgreSQL and applies the schema when enabled.
func openStore(ctx context.Context, db *config.DatabaseConfig, opts postgres.Options) (*postgres.Store, error) {
	if db.MaxConns < 0 || db.MaxConns > math.MaxInt32 {
		return nil, fmt.Errorf("database max_conns %d out of int32 range", db.MaxConns)
	}

	store, err := postgres.New(ctx, db.DSN(), int32(db.MaxConns), opts) //nolint:gosec // bounds checked above
	if err != nil {
		return nil, err
	}

	if db.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}
