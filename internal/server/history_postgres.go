package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresHistoryStore keeps each record as one JSONB document.
type PostgresHistoryStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresHistoryStore(pool *pgxpool.Pool) *PostgresHistoryStore {
	return &PostgresHistoryStore{pool: pool, now: time.Now}
}

func (s *PostgresHistoryStore) List(ctx context.Context, userID string) ([]HistoryRecord, error) {
	rows, err := s.pool.Query(
		ctx,
		`SELECT record FROM user_history WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, unavailable("query history", err)
	}
	defer rows.Close()

	records := make([]HistoryRecord, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, unavailable("scan history", err)
		}
		var record HistoryRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("decode history record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate history", err)
	}
	return records, nil
}

func (s *PostgresHistoryStore) Append(ctx context.Context, userID string, item map[string]any) error {
	record, err := newHistoryRecord(userID, item, s.now())
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: item is not serializable: %v", ErrInvalidInput, err)
	}
	if _, err := s.pool.Exec(
		ctx,
		`INSERT INTO user_history (user_id, record, created_at) VALUES ($1, $2::jsonb, NOW())`,
		userID,
		string(encoded),
	); err != nil {
		return unavailable("insert history", err)
	}
	return nil
}

func (s *PostgresHistoryStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}
