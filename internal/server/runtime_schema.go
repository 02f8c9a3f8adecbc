package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var historySchemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS user_history (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		record JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS user_history_user_id_idx ON user_history (user_id, id)`,
}

// EnsureHistorySchema creates the Postgres history table if needed and
// checks the columns the store depends on.
func EnsureHistorySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return fmt.Errorf("database pool is nil")
	}
	for _, stmt := range historySchemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply history schema: %w", err)
		}
	}

	for _, column := range []string{"id", "user_id", "record"} {
		ok, err := columnExists(ctx, pool, "user_history", column)
		if err != nil {
			return fmt.Errorf("failed checking schema for user_history.%s: %w", column, err)
		}
		if !ok {
			return fmt.Errorf("required column user_history.%s is missing", column)
		}
	}
	return nil
}

func columnExists(ctx context.Context, pool *pgxpool.Pool, tableName, columnName string) (bool, error) {
	table := strings.TrimSpace(tableName)
	column := strings.TrimSpace(columnName)
	if table == "" || column == "" {
		return false, fmt.Errorf("table/column must not be empty")
	}
	var exists bool
	err := pool.QueryRow(
		ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM information_schema.columns
		   WHERE table_schema = current_schema()
		     AND lower(table_name) = lower($1)
		     AND lower(column_name) = lower($2)
		 )`,
		table,
		column,
	).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
