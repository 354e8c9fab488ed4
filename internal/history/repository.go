package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrVersionConflict is returned by Save when another writer advanced the
// conversation since it was loaded.
var ErrVersionConflict = errors.New("conversation was modified concurrently")

// ErrForbidden is returned when a conversation belongs to another user.
var ErrForbidden = errors.New("conversation belongs to another user")

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{
		db: db,
	}
}

type conversationRow struct {
	ID         string    `db:"id"`
	UserID     int64     `db:"user_id"`
	PromptID   int64     `db:"prompt_id"`
	Transcript []byte    `db:"transcript"`
	Version    int64     `db:"version"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Load returns nil, nil when the conversation does not exist yet.
func (r *Repository) Load(ctx context.Context, conversationID string) (*Conversation, error) {
	query := `
		SELECT id, user_id, prompt_id, transcript, version, updated_at
		FROM conversations
		WHERE id = $1
	`

	var row conversationRow
	err := r.db.GetContext(ctx, &row, query, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}

	conv := &Conversation{
		ID:        row.ID,
		UserID:    row.UserID,
		PromptID:  row.PromptID,
		Version:   row.Version,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.Transcript) > 0 {
		if err := json.Unmarshal(row.Transcript, &conv.Messages); err != nil {
			return nil, fmt.Errorf("failed to decode transcript of conversation %s: %w", conversationID, err)
		}
	}
	return conv, nil
}

// Save writes the whole transcript if the stored version still equals
// expectedVersion. Version 0 means the conversation is being created.
func (r *Repository) Save(ctx context.Context, conv *Conversation, expectedVersion int64) error {
	transcript, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode transcript: %w", err)
	}

	var res sql.Result
	if expectedVersion == 0 {
		res, err = r.db.ExecContext(ctx, `
			INSERT INTO conversations (id, user_id, prompt_id, transcript, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 1, NOW(), NOW())
			ON CONFLICT (id) DO NOTHING
		`, conv.ID, conv.UserID, conv.PromptID, transcript)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE conversations
			SET transcript = $1, prompt_id = $2, version = version + 1, updated_at = NOW()
			WHERE id = $3 AND version = $4
		`, transcript, conv.PromptID, conv.ID, expectedVersion)
	}
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	if affected == 0 {
		return ErrVersionConflict
	}
	conv.Version = expectedVersion + 1
	return nil
}
