package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/happyfinder/internal/apiclient"
	"github.com/example/happyfinder/internal/config"
	"github.com/example/happyfinder/internal/creds"
	"github.com/example/happyfinder/internal/db"
	"github.com/example/happyfinder/internal/logging"
	"github.com/example/happyfinder/internal/metrics"
	"github.com/example/happyfinder/internal/migrate"
	"github.com/example/happyfinder/internal/pipeline"
	"github.com/example/happyfinder/internal/queue"
	"github.com/example/happyfinder/internal/stages"
	"github.com/example/happyfinder/internal/store"
	"github.com/example/happyfinder/internal/venues"
)

func newWorkerCmd() *cobra.Command {
	var migrateUp bool
	var reclaim bool

	cmd := &cobra.Command{
		Use:   "worker <stage>",
		Short: "Run one pipeline stage worker (grid, radar, places, venue, menu)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stageName := args[0]

			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			log, err := logging.New(cfg.Debug, stageName)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}
			if migrateUp {
				if err := migrate.Up(ctx, d); err != nil {
					return err
				}
			}

			q, err := queue.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer q.Close()

			var pairs []creds.Pair
			for _, p := range cfg.FoursquareCredentials() {
				pairs = append(pairs, creds.Pair{ClientID: p[0], Secret: p[1]})
			}
			rotator := creds.NewRotator(pairs)

			deps := stages.Deps{
				Queue:     q,
				Maps:      apiclient.New(log, "google"),
				Venues:    apiclient.NewAuthed(apiclient.New(log, "foursquare"), rotator, venues.APIVersion),
				Store:     store.New(d, log),
				Log:       log,
				GoogleKey: cfg.GoogleAPIKey,
			}

			all := stages.All(deps)
			stage, ok := all[stageName]
			if !ok {
				return fmt.Errorf("unknown stage %q (want one of %s)", stageName, stageNames(all))
			}

			if reclaim {
				n, err := q.Reclaim(ctx, stage.Inbound)
				if err != nil {
					return err
				}
				if n > 0 {
					log.Info("reclaimed in-flight messages", zap.Int("count", n))
				}
			}

			if cfg.MetricsAddr != "" {
				go func() {
					if err := metrics.Serve(cfg.MetricsAddr); err != nil {
						log.Warn("metrics endpoint failed", zap.Error(err))
					}
				}()
			}

			pollBackoff := cfg.PollBackoff
			if stage.PollBackoff > 0 {
				pollBackoff = stage.PollBackoff
			}

			w := &pipeline.Worker{
				Stage:          stage.Name,
				Inbound:        stage.Inbound,
				Broker:         q,
				Handler:        stage.Handler,
				Log:            log,
				PollBackoff:    pollBackoff,
				ReceiveTimeout: cfg.ReceiveTimeout,
				RetryAttempts:  cfg.RetryAttempts,
				RetryBackoff:   cfg.RetryBackoff,
			}
			return w.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().BoolVar(&reclaim, "reclaim", true, "requeue in-flight messages left by a crashed worker before polling")
	return cmd
}

func stageNames(all map[string]stages.Stage) string {
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
