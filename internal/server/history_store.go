package server

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// timestampLayout is ISO-8601 with microseconds, always UTC.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// HistoryRecord is a stored lookup: user_id plus the posted item fields.
type HistoryRecord = map[string]any

// HistoryStore persists per-user history. List never returns the store's
// internal id and returns an empty slice when nothing matches.
type HistoryStore interface {
	List(ctx context.Context, userID string) ([]HistoryRecord, error)
	Append(ctx context.Context, userID string, item map[string]any) error
	Ping(ctx context.Context) error
}

// newHistoryRecord merges item under user_id and stamps it. The item map is
// not modified. user_id from the caller always wins over an item field of
// the same name so the record stays reachable by its owner.
func newHistoryRecord(userID string, item map[string]any, now time.Time) (HistoryRecord, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: item is required", ErrInvalidInput)
	}

	record := make(HistoryRecord, len(item)+2)
	for key, value := range item {
		record[key] = value
	}
	if _, ok := record["timestamp"]; !ok {
		record["timestamp"] = now.UTC().Format(timestampLayout)
	}
	delete(record, "_id")
	record["user_id"] = userID
	return record, nil
}
