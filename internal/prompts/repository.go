package prompts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetByID returns nil, nil when no prompt has the given id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Config, error) {
	var cfg Config
	query := `SELECT id, name, template, model, temperature, max_tokens FROM prompts WHERE id = $1`
	if err := r.db.GetContext(ctx, &cfg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get prompt %d: %w", id, err)
	}
	return &cfg, nil
}
