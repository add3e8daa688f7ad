package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/stocklens/backend/internal/infrastructure/config"
	"github.com/stocklens/backend/internal/infrastructure/logger"
	"github.com/stocklens/backend/internal/infrastructure/persistence"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewForEnvironment(cfg.App.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close() //nolint:errcheck

	log.Info("running migrations",
		zap.String("host", cfg.Database.Host),
		zap.String("dbname", cfg.Database.DBName))

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	log.Info("migrations applied")
	return nil
}
