package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, e Event) error {
	query := `INSERT INTO usage_events (day, amount, service, trigger_action, user_id, prompt_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`
	if _, err := r.db.ExecContext(ctx, query, e.Day, e.Amount, e.Service, e.TriggerAction, e.UserID, e.PromptID); err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}
	return nil
}

// ListRange returns the user's events with from <= day <= to. An empty service matches all.
func (r *Repository) ListRange(ctx context.Context, userID int64, service string, from, to time.Time) ([]Event, error) {
	query := `SELECT id, day, amount, service, trigger_action, user_id, prompt_id, created_at
		FROM usage_events WHERE user_id = $1 AND day >= $2 AND day <= $3`
	args := []interface{}{userID, from, to}
	if service != "" {
		query += ` AND service = $4`
		args = append(args, service)
	}
	query += ` ORDER BY day, id`

	var events []Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}
	return events, nil
}
