package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/happyfinder/internal/config"
	"github.com/example/happyfinder/internal/logging"
	"github.com/example/happyfinder/internal/queue"
	"github.com/example/happyfinder/internal/stages"
)

func newRequeueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <stage>",
		Short: "Move a stage's in-flight messages back onto its inbound queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Debug, "requeue")
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			inbound, ok := stages.Inbound[args[0]]
			if !ok {
				return fmt.Errorf("unknown stage %q", args[0])
			}

			q, err := queue.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer q.Close()

			n, err := q.Reclaim(cmd.Context(), inbound)
			if err != nil {
				return err
			}
			log.Info("requeued messages", zap.String("queue", inbound), zap.Int("count", n))
			return nil
		},
	}
}
