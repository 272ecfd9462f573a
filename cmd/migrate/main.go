package main

import (
	"os"
	"strconv"

	"github.com/flexprice/paypal-ipn/internal/config"
	"github.com/flexprice/paypal-ipn/internal/logger"
	"github.com/flexprice/paypal-ipn/migrations"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the paypal-ipn postgres schema",
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(m *migrate.Migrate) error { return m.Up() })
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(m *migrate.Migrate) error { return m.Steps(-1) })
			},
		},
		&cobra.Command{
			Use:   "goto [version]",
			Short: "Migrate to a specific version",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				version, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return err
				}
				return run(func(m *migrate.Migrate) error { return m.Migrate(uint(version)) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(func(m *migrate.Migrate) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					logger.L.Infow("schema version", "version", version, "dirty", dirty)
					return nil
				})
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(step func(m *migrate.Migrate) error) error {
	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}

	lg, err := logger.NewLogger(cfg)
	if err != nil {
		return err
	}

	lg.Infow("connecting to database", "host", cfg.Postgres.Host, "dbname", cfg.Postgres.DBName)
	db, err := sqlx.Connect("postgres", cfg.Postgres.GetDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	source, err := iofs.New(migrations.Postgres, "postgres")
	if err != nil {
		return err
	}

	driver, err := migratepg.WithInstance(db.DB, &migratepg.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return err
	}

	if err := step(m); err != nil {
		if err == migrate.ErrNoChange {
			lg.Info("no change, schema is up to date")
			return nil
		}
		lg.Errorw("migration failed", "error", err)
		return err
	}

	lg.Info("migration completed successfully")
	return nil
}
