package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/happyfinder/internal/config"
	"github.com/example/happyfinder/internal/grid"
	"github.com/example/happyfinder/internal/logging"
	"github.com/example/happyfinder/internal/queue"
	"github.com/example/happyfinder/internal/stages"
)

func newSeedCmd() *cobra.Command {
	var city string
	var bounds string
	var all bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Enqueue grid-bounds messages to start a sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.Debug, "seed")
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			var toSend []grid.Bounds
			switch {
			case all:
				toSend = allCityBounds()
			case city != "":
				b, ok := grid.Cities[city]
				if !ok {
					return fmt.Errorf("unknown city %q (want one of %s, or use --bounds)", city, strings.Join(cityNames(), ", "))
				}
				toSend = append(toSend, b)
			case bounds != "":
				b, err := parseBounds(bounds)
				if err != nil {
					return err
				}
				toSend = append(toSend, b)
			default:
				return fmt.Errorf("one of --all, --city, or --bounds is required")
			}

			q, err := queue.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return err
			}
			defer q.Close()

			return seedBounds(cmd.Context(), q, log, toSend)
		},
	}

	cmd.Flags().StringVar(&city, "city", "", "seed one built-in city by name")
	cmd.Flags().StringVar(&bounds, "bounds", "", "seed explicit bounds: start_lat,start_lng,end_lat,end_lng")
	cmd.Flags().BoolVar(&all, "all", false, "seed every built-in city")
	return cmd
}

// seedBounds enqueues one bounds message per entry on the grid stage's
// inbound queue.
func seedBounds(ctx context.Context, q stages.Sender, log *zap.Logger, toSend []grid.Bounds) error {
	for _, b := range toSend {
		body, err := json.Marshal(b)
		if err != nil {
			return err
		}
		if err := q.Send(ctx, stages.QueueBounds, string(body)); err != nil {
			return err
		}
		log.Info("seeded bounds",
			zap.Float64("start_lat", b.StartLat), zap.Float64("start_lng", b.StartLng),
			zap.Float64("end_lat", b.EndLat), zap.Float64("end_lng", b.EndLng))
	}
	return nil
}

// allCityBounds returns the built-in city bounds in name order.
func allCityBounds() []grid.Bounds {
	bs := make([]grid.Bounds, 0, len(grid.Cities))
	for _, name := range cityNames() {
		bs = append(bs, grid.Cities[name])
	}
	return bs
}

func cityNames() []string {
	names := make([]string, 0, len(grid.Cities))
	for n := range grid.Cities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func parseBounds(s string) (grid.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return grid.Bounds{}, fmt.Errorf("bounds want 4 comma-separated numbers, got %q", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return grid.Bounds{}, fmt.Errorf("bad bounds value %q: %w", p, err)
		}
		vals[i] = v
	}
	return grid.Bounds{StartLat: vals[0], StartLng: vals[1], EndLat: vals[2], EndLng: vals[3]}, nil
}
