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
	"hotelhub/internal/logging"
	"hotelhub/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

// RoomsFile is the layout of configs/rooms.yaml.
type RoomsFile struct {
	Rooms []SeedRoom `yaml:"rooms"`
}

// SeedRoom describes one room. Keys other than price and availability are
// stored as free-form room attributes.
type SeedRoom struct {
	Name         string                 `yaml:"name"`
	Price        float64                `yaml:"price"`
	Availability *bool                  `yaml:"availability"`
	Attributes   map[string]interface{} `yaml:",inline"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", envOr("CONFIG_PATH", "configs/config.yaml"), "path to config.yaml")
		roomsPath  = flag.String("rooms", "configs/rooms.yaml", "path to rooms.yaml")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
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
	logger := logging.Component(baseLogger, "seed")

	rooms, err := loadRooms(*roomsPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	created, updated, err := seedRooms(ctx, store, rooms)
	if err != nil {
		return err
	}

	logger.Info().Int("created", created).Int("updated", updated).Msg("rooms seeded")
	return nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadRooms(path string) ([]SeedRoom, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rooms: %w", err)
	}
	var file RoomsFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rooms: %w", err)
	}
	if len(file.Rooms) == 0 {
		return nil, fmt.Errorf("no rooms in yaml")
	}
	return file.Rooms, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (domain.Store, error) {
	if cfg.Database.Driver == config.DriverMongo {
		client, err := database.NewMongoClient(ctx, cfg.Database.Mongo)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return database.NewMongoStore(client, cfg.Database.Mongo, logger), nil
	}
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

// seedRooms inserts rooms by name. A room whose name is already present is
// patched in place; its reviews and rating are left alone.
func seedRooms(ctx context.Context, store domain.RoomStore, rooms []SeedRoom) (created, updated int, err error) {
	existing, err := store.ListRooms(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list rooms: %w", err)
	}
	byName := make(map[string]string, len(existing))
	for _, r := range existing {
		if name, ok := r.Extra["name"].(string); ok {
			byName[name] = r.ID
		}
	}

	for _, sr := range rooms {
		if sr.Name == "" {
			continue
		}
		available := true
		if sr.Availability != nil {
			available = *sr.Availability
		}

		if id, ok := byName[sr.Name]; ok {
			patch := sr.extra()
			patch["price"] = sr.Price
			patch["availability"] = available
			if _, err = store.PatchRoom(ctx, id, patch); err != nil {
				return created, updated, fmt.Errorf("update %s: %w", sr.Name, err)
			}
			updated++
			continue
		}

		id, err := store.InsertRoom(ctx, &models.Room{Price: sr.Price, Availability: available, Extra: sr.extra()})
		if err != nil {
			return created, updated, fmt.Errorf("create %s: %w", sr.Name, err)
		}
		byName[sr.Name] = id
		created++
	}
	return created, updated, nil
}

func (sr SeedRoom) extra() map[string]any {
	out := make(map[string]any, len(sr.Attributes)+1)
	for k, v := range sr.Attributes {
		out[k] = plain(v)
	}
	out["name"] = sr.Name
	return out
}

// plain converts yaml.v2 maps to string-keyed maps so they encode as JSON and
// BSON documents.
func plain(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(t))
		for k, val := range t {
			m[fmt.Sprint(k)] = plain(val)
		}
		return m
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = plain(val)
		}
		return out
	default:
		return v
	}
}
