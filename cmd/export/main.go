package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"hotelhub/internal/config"
	"hotelhub/internal/database"
	"hotelhub/internal/domain"
	"hotelhub/internal/export"
	"hotelhub/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	flag.StringVar(&configPath, "config", configPath, "path to config.yaml")
	outDir := flag.String("out", "", "export directory (defaults to exports.path)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	logger := logging.Component(baseLogger, "export")

	dir := cfg.Exports.Path
	if *outDir != "" {
		dir = *outDir
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var store domain.Store
	if cfg.Database.Driver == config.DriverMongo {
		client, err := database.NewMongoClient(ctx, cfg.Database.Mongo)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		store = database.NewMongoStore(client, cfg.Database.Mongo, logger)
	} else {
		store, err = database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
	}
	defer store.Close()

	path, err := export.WriteWorkbook(ctx, store, dir, time.Now(), logger)
	if err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
