package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

const (
	DefaultLimit = 100
	saveAttempts = 3
)

type repository interface {
	Load(ctx context.Context, conversationID string) (*Conversation, error)
	Save(ctx context.Context, conv *Conversation, expectedVersion int64) error
}

// Store is the append-only view of conversation transcripts used by the engine.
type Store struct {
	repo  repository
	limit int
	locks *KeyedMutex
}

func NewStore(repo repository, limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{
		repo:  repo,
		limit: limit,
		locks: NewKeyedMutex(),
	}
}

// LoadHistory returns the transcript of a conversation owned by userID.
// A conversation that does not exist yet reads as empty.
func (s *Store) LoadHistory(ctx context.Context, conversationID string, userID int64) ([]Message, error) {
	conv, err := s.repo.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return []Message{}, nil
	}
	if conv.UserID != userID {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, ErrForbidden)
	}
	return conv.Messages, nil
}

// AppendAndSave loads the latest transcript, appends msgs, trims it to the
// history cap and persists it in a single versioned write. It returns the
// post-append transcript.
func (s *Store) AppendAndSave(ctx context.Context, key Key, msgs ...Message) ([]Message, error) {
	unlock := s.locks.Lock(key.ConversationID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		conv, err := s.repo.Load(ctx, key.ConversationID)
		if err != nil {
			return nil, err
		}

		var expected int64
		if conv == nil {
			conv = &Conversation{ID: key.ConversationID, UserID: key.UserID}
		} else {
			if conv.UserID != key.UserID {
				return nil, fmt.Errorf("append to conversation %s: %w", key.ConversationID, ErrForbidden)
			}
			expected = conv.Version
		}
		conv.PromptID = key.PromptID
		conv.Messages = truncate(append(conv.Messages, msgs...), s.limit)

		err = s.repo.Save(ctx, conv, expected)
		if err == nil {
			return conv.Messages, nil
		}
		if !errors.Is(err, ErrVersionConflict) || attempt >= saveAttempts {
			return nil, fmt.Errorf("append to conversation %s: %w", key.ConversationID, err)
		}
		logrus.WithField("conversation_id", key.ConversationID).
			Warnf("transcript version conflict, retrying append (attempt %d)", attempt)
	}
}

func truncate(msgs []Message, limit int) []Message {
	if len(msgs) <= limit {
		return msgs
	}
	trimmed := make([]Message, limit)
	copy(trimmed, msgs[len(msgs)-limit:])
	return trimmed
}
