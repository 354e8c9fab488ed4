package db

import (
	"context"
	"fmt"

	"chatengine/pkg/config"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

func NewPostgresDB(cfg *config.Config) (*sqlx.DB, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB)

	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logrus.Info("connected to PostgreSQL")
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS prompts (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(128) NOT NULL,
		template TEXT NOT NULL,
		model VARCHAR(128) NOT NULL,
		temperature DOUBLE PRECISION NOT NULL DEFAULT 0.2,
		max_tokens INT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id VARCHAR(255) PRIMARY KEY,
		user_id BIGINT NOT NULL,
		prompt_id BIGINT NOT NULL,
		transcript JSONB NOT NULL DEFAULT '[]',
		version BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS usage_events (
		id BIGSERIAL PRIMARY KEY,
		day DATE NOT NULL,
		amount NUMERIC(12, 4) NOT NULL,
		service VARCHAR(64) NOT NULL,
		trigger_action VARCHAR(128) NOT NULL DEFAULT '',
		user_id BIGINT NOT NULL,
		prompt_id BIGINT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS usage_events_day_user_service_idx ON usage_events (day, user_id, service)`,
}

// Migrate creates the tables the engine reads and writes. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, ddl := range schema {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
