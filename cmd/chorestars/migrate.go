package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/chorestars/internal/config"
	"github.com/dukerupert/chorestars/internal/database"
	"github.com/dukerupert/chorestars/internal/logging"
	"github.com/dukerupert/chorestars/internal/push"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := logging.Setup(cfg.LogLevel)

			// Open applies migrations.
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			logger.Info("migrations applied", "db", cfg.DBPath)
			return nil
		},
	}
}

func vapidKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid-keys",
		Short: "Generate a VAPID key pair for web push",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "CHORESTARS_VAPID_PUBLIC_KEY=%s\n", pub)
			fmt.Fprintf(out, "CHORESTARS_VAPID_PRIVATE_KEY=%s\n", priv)
			return nil
		},
	}
}
