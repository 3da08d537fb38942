package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tripsync/config"
	"tripsync/tripdata"
	"tripsync/web"
)

func serverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long:  `This command starts the web server: it subscribes every shared collection and serves the planner API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			seed, _ := cmd.Flags().GetBool("seed")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var cl closers
			defer cl.run()
			p, store, err := openPlanner(ctx, cfg, logger, &cl)
			if err != nil {
				return err
			}

			// an in-memory store starts empty every run
			if seed || cfg.StoreMode == config.StoreMemory {
				trip, err := tripdata.Load(cfg.TripData)
				if err != nil {
					return err
				}
				if err := p.Seed(ctx, trip); err != nil {
					return fmt.Errorf("seed: %w", err)
				}
			}

			if err := p.Start(ctx); err != nil {
				return err
			}
			defer p.Stop()

			readyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := p.Ready(readyCtx); err != nil {
				logger.Warn("collections not ready yet, serving anyway", "error", err)
			}
			cancel()

			return web.Serve(ctx, web.ServiceConfig{
				IsDev:   cfg.IsDev,
				Port:    cfg.Port,
				Planner: p,
				Store:   store,
				Logger:  logger,
			})
		},
	}

	cmd.Flags().Bool("dev", true, "Run in development mode")
	cmd.Flags().String("port", "8080", "Port to run the web server on")
	cmd.Flags().String("mq", "go_chan", "Message queue mode (go_chan, rabbitmq, gcp_pub_sub)")
	cmd.Flags().String("store", "mem", "Document store (mem, pg)")
	cmd.Flags().Bool("seed", false, "Write the static roster and itinerary before serving")

	return cmd
}
