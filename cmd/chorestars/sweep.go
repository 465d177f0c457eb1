package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorestars/internal/config"
	"github.com/dukerupert/chorestars/internal/logging"
)

func sweepCmd() *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Regenerate today's recurring tasks and expire missed ones, then exit",
		Long: `Run one reconciliation pass: create today's recurring instances that
do not exist yet and expire time-sensitive instances whose window has passed.

Examples:
  chorestars sweep
  chorestars sweep --at 2025-03-10T18:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogLevel)

			srv, closeDB, err := openServer(cfg, logger)
			if err != nil {
				return err
			}
			defer closeDB()

			now := time.Now()
			if at != "" {
				if now, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}

			res, err := srv.Scheduler().Sweep(cmd.Context(), now)
			srv.Dispatcher().Wait()
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d, expired %d\n", res.Created, res.Expired)
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "sweep as of this RFC3339 time instead of now")
	return cmd
}
