package main

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"waterfootprint/backend/internal/config"
	"waterfootprint/backend/internal/db"
	"waterfootprint/backend/internal/server"
)

type closeFunc func(ctx context.Context)

func noopClose(context.Context) {}

// openHistoryStore connects the configured backend. Failure is logged and
// yields a nil store: the process still serves, history routes answer 500.
func openHistoryStore(ctx context.Context, cfg config.Config) (server.HistoryStore, closeFunc) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch cfg.HistoryBackend {
	case config.HistoryBackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			log.Error().Msg("DATABASE_URL is empty; history endpoints are disabled")
			return nil, noopClose
		}
		pool, err := db.ConnectPostgres(connectCtx, cfg.DatabaseURL)
		if err != nil {
			log.Error().Err(err).Msg("postgres connect failed; history endpoints are disabled")
			return nil, noopClose
		}
		if err := pool.Ping(connectCtx); err != nil {
			log.Error().Err(err).Msg("postgres ping failed; history endpoints are disabled")
			pool.Close()
			return nil, noopClose
		}
		if err := server.EnsureHistorySchema(connectCtx, pool); err != nil {
			log.Error().Err(err).Msg("postgres history schema failed; history endpoints are disabled")
			pool.Close()
			return nil, noopClose
		}
		log.Info().Msg("connected to postgres history store")
		return server.NewPostgresHistoryStore(pool), func(context.Context) { pool.Close() }

	default:
		client, err := db.ConnectMongo(connectCtx, cfg.MongoURI)
		if err != nil {
			log.Error().Err(err).Msg("mongodb connect failed; history endpoints are disabled")
			return nil, noopClose
		}
		database := db.DatabaseNameFromURI(cfg.MongoURI, cfg.MongoDatabase)
		store := server.NewMongoHistoryStore(client, database, cfg.MongoCollection)
		if err := store.EnsureIndexes(connectCtx); err != nil {
			log.Warn().Err(err).Msg("history index creation failed")
		}
		log.Info().Str("database", database).Str("collection", cfg.MongoCollection).Msg("connected to mongodb history store")
		return store, disconnectMongo(client)
	}
}

func disconnectMongo(client *mongo.Client) closeFunc {
	return func(ctx context.Context) {
		if err := client.Disconnect(ctx); err != nil {
			log.Warn().Err(err).Msg("mongodb disconnect failed")
		}
	}
}
