package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mrmushfiq/prospect-gateway/internal/gateway/plans"
	"github.com/mrmushfiq/prospect-gateway/internal/gateway/usage"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/config"
	"github.com/mrmushfiq/prospect-gateway/internal/shared/database"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "gateway",
		Short:         "Prospecting gateway: company search, exports and agent chat with metered plans",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCmd(),
		newUsageCmd(),
		newPlansCmd(),
		newAccountsCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// openDB connects to the configured database and applies the schema
func openDB(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	var (
		db  *database.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err = database.NewSQLite(cfg.SQLitePath)
	default:
		db, err = database.New(cfg.DatabaseURL)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func loadCatalog(cfg *config.Config) (*plans.Catalog, error) {
	if cfg.PlansFile == "" {
		return plans.Default(), nil
	}
	return plans.LoadFile(cfg.PlansFile)
}

// env is what the non-server commands share
type env struct {
	cfg        *config.Config
	log        *logrus.Logger
	db         *database.DB
	catalog    *plans.Catalog
	accountant *usage.Accountant
}

func setup(ctx context.Context) (*env, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg)

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, nil, err
	}

	db, err := openDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	acct := usage.NewAccountant(db, db, catalog, usage.NewPricing(nil, cfg.ProfitMargin), usage.Options{Logger: logger})
	cleanup := func() { db.Close() }
	return &env{cfg: cfg, log: logger, db: db, catalog: catalog, accountant: acct}, cleanup, nil
}
