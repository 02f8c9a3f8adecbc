package db

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ConnectMongo connects and pings. The caller owns Disconnect.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	clientOptions := options.Client().
		ApplyURI(strings.TrimSpace(uri)).
		SetMaxPoolSize(20).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// DatabaseNameFromURI returns the path component of a mongodb:// URI, or
// fallback when the URI names no database.
func DatabaseNameFromURI(uri, fallback string) string {
	parsed, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return fallback
	}
	name := strings.Trim(parsed.Path, "/")
	if name == "" {
		return fallback
	}
	return name
}
