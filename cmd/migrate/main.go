package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"mystore/internal/pkg/logger"
	"mystore/internal/platform/config"
	"mystore/internal/platform/database"
	"mystore/migrations"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	applied, err := database.Migrate(context.Background(), db, migrations.FS)
	if err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	fmt.Printf("Migration completed successfully (%d applied)\n", applied)
}
