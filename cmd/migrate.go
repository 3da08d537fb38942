package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	_ "tripsync/migration" // registers the Go migrations

	_ "github.com/lib/pq"

	"github.com/pressly/goose/v3"
)

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "migrate the document store schema",
		Long:  `This command migrates the PostgreSQL document store by goose`,
		RunE: func(cmd *cobra.Command, args []string) error {
			up, _ := cmd.Flags().GetBool("up")
			down, _ := cmd.Flags().GetBool("down")
			if cmd.Flags().Changed("down") && !cmd.Flags().Changed("up") {
				up = false
			}
			if up && down {
				return cmd.Help()
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			connStr := "host=localhost user=postgres dbname=postgres port=5432 sslmode=disable TimeZone=Asia/Taipei"
			if cfg.DatabaseURL != "" {
				connStr = cfg.DatabaseURL
				logger.Info("using DATABASE_URL")
			} else {
				logger.Info("using default connection string", "dsn", connStr)
			}

			if err := goose.SetDialect("postgres"); err != nil {
				return fmt.Errorf("set goose dialect: %w", err)
			}
			db, err := sql.Open("postgres", connStr)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			pingCtx, pingCancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer pingCancel()
			if err := db.PingContext(pingCtx); err != nil {
				return fmt.Errorf("ping database: %w", err)
			}

			migrationsDir := "migration"
			if up {
				logger.Info("running up migrations")
				if err := goose.UpContext(cmd.Context(), db, migrationsDir); err != nil {
					return fmt.Errorf("goose up: %w", err)
				}
			} else if down {
				logger.Info("rolling back the last migration")
				if err := goose.DownContext(cmd.Context(), db, migrationsDir); err != nil {
					return fmt.Errorf("goose down: %w", err)
				}
			}
			return goose.StatusContext(cmd.Context(), db, migrationsDir)
		},
	}

	cmd.Flags().BoolP("up", "u", true, "up the version of db")
	cmd.Flags().BoolP("down", "d", false, "down the version of db")

	return cmd
}
