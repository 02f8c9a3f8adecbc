package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"

	"waterfootprint/backend/internal/config"
	"waterfootprint/backend/internal/db"
	"waterfootprint/backend/internal/logging"
	"waterfootprint/backend/internal/server"
)

type seedItem struct {
	Name     string
	Category string
	Liters   float64
	Unit     string
	Severity string
}

var sampleItems = []seedItem{
	{Name: "Coffee", Category: "Beverage", Liters: 140, Unit: "L/cup", Severity: "Medium"},
	{Name: "Beef", Category: "Meat", Liters: 15415, Unit: "L/kg", Severity: "High"},
	{Name: "Cotton T-Shirt", Category: "Clothing", Liters: 2700, Unit: "L/item", Severity: "High"},
	{Name: "Apple", Category: "Fruit", Liters: 822, Unit: "L/kg", Severity: "Low"},
	{Name: "Rice", Category: "Grain", Liters: 2497, Unit: "L/kg", Severity: "Medium"},
}

func main() {
	var opts seedOptions

	cfg := config.Load()
	flag.StringVar(&opts.mode, "mode", "seed", "seed, list or cleanup")
	flag.StringVar(&opts.userID, "user-id", "", "target user id (required)")
	flag.StringVar(&opts.tag, "tag", "dummy_history_v1", "seed tag stored on inserted records")
	flag.StringVar(&opts.backend, "backend", cfg.HistoryBackend, "mongo or postgres")
	flag.StringVar(&opts.dbURL, "db", "", "MONGO_URI or DATABASE_URL override")
	flag.IntVar(&opts.count, "count", len(sampleItems), "number of records to insert")
	flag.Parse()

	logging.Init("seed-history", "local", "info")

	if err := run(cfg, opts); err != nil {
		log.Fatal().Err(err).Str("mode", opts.mode).Msg("seed history failed")
	}
}

type seedOptions struct {
	mode    string
	userID  string
	tag     string
	backend string
	dbURL   string
	count   int
}

func run(cfg config.Config, opts seedOptions) error {
	userID := strings.TrimSpace(opts.userID)
	if userID == "" {
		return errors.New("-user-id is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, cleanup, closeStore, err := openStore(ctx, cfg, strings.ToLower(opts.backend), strings.TrimSpace(opts.dbURL))
	if err != nil {
		return err
	}
	defer closeStore()

	switch strings.ToLower(strings.TrimSpace(opts.mode)) {
	case "list":
		records, err := store.List(ctx, userID)
		if err != nil {
			return fmt.Errorf("list history: %w", err)
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(records)
	case "cleanup", "delete", "remove":
		deleted, err := cleanup(ctx, userID, opts.tag)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		fmt.Printf("cleanup complete user_id=%s tag=%s deleted=%d\n", userID, opts.tag, deleted)
		return nil
	case "seed":
		inserted := 0
		start := time.Now().UTC().Add(-time.Duration(opts.count) * time.Hour)
		for i := 0; i < opts.count; i++ {
			sample := sampleItems[i%len(sampleItems)]
			item := map[string]any{
				"item_name":              sample.Name,
				"category":               sample.Category,
				"water_footprint_liters": sample.Liters,
				"water_footprint_unit":   sample.Unit,
				"severity":               sample.Severity,
				"timestamp":              start.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
				"seed_tag":               opts.tag,
			}
			if err := store.Append(ctx, userID, item); err != nil {
				return fmt.Errorf("append history after %d records: %w", inserted, err)
			}
			inserted++
		}
		fmt.Printf("seed complete user_id=%s tag=%s inserted=%d\n", userID, opts.tag, inserted)
		return nil
	default:
		return fmt.Errorf("unsupported mode %q (use seed, list or cleanup)", opts.mode)
	}
}

type cleanupFunc func(ctx context.Context, userID, tag string) (int64, error)

func openStore(ctx context.Context, cfg config.Config, backend, override string) (server.HistoryStore, cleanupFunc, func(), error) {
	switch backend {
	case config.HistoryBackendPostgres:
		url := cfg.DatabaseURL
		if override != "" {
			url = override
		}
		pool, err := db.ConnectPostgres(ctx, url)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := server.EnsureHistorySchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("ensure history schema: %w", err)
		}
		cleanup := func(ctx context.Context, userID, tag string) (int64, error) {
			tagResult, err := pool.Exec(
				ctx,
				`DELETE FROM user_history WHERE user_id = $1 AND record->>'seed_tag' = $2`,
				userID,
				tag,
			)
			if err != nil {
				return 0, err
			}
			return tagResult.RowsAffected(), nil
		}
		return server.NewPostgresHistoryStore(pool), cleanup, pool.Close, nil

	case config.HistoryBackendMongo:
		uri := cfg.MongoURI
		if override != "" {
			uri = override
		}
		client, err := db.ConnectMongo(ctx, uri)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect mongodb: %w", err)
		}
		database := db.DatabaseNameFromURI(uri, cfg.MongoDatabase)
		collection := client.Database(database).Collection(cfg.MongoCollection)
		cleanup := func(ctx context.Context, userID, tag string) (int64, error) {
			result, err := collection.DeleteMany(ctx, bson.M{"user_id": userID, "seed_tag": tag})
			if err != nil {
				return 0, err
			}
			return result.DeletedCount, nil
		}
		closeStore := func() {
			_ = client.Disconnect(context.Background())
		}
		return server.NewMongoHistoryStore(client, database, cfg.MongoCollection), cleanup, closeStore, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported backend %q", backend)
	}
}
