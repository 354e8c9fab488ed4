package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chatengine/internal/history"
	"chatengine/internal/middleware"
	"chatengine/internal/prompts"
	"chatengine/internal/routing"
	"chatengine/internal/usage"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const dislikeAction = "DISLIKE"

var ErrInvalidTurn = errors.New("invalid turn")

type historyStore interface {
	LoadHistory(ctx context.Context, conversationID string, userID int64) ([]history.Message, error)
	AppendAndSave(ctx context.Context, key history.Key, msgs ...history.Message) ([]history.Message, error)
}

type promptResolver interface {
	Resolve(ctx context.Context, id int64) (prompts.Config, error)
	ResolveOrDefault(ctx context.Context, id int64) prompts.Config
}

type dispatcher interface {
	Dispatch(ctx context.Context, in routing.Input) (routing.Outcome, error)
}

type ledger interface {
	Record(ctx context.Context, e usage.Event) error
}

// Engine runs one turn end to end: history, prompt, routing, persistence and billing.
type Engine struct {
	history    historyStore
	prompts    promptResolver
	dispatcher dispatcher
	ledger     ledger
	price      decimal.Decimal
	turns      *history.KeyedMutex
}

func NewEngine(h historyStore, p promptResolver, d dispatcher, l ledger, pricePerTurn decimal.Decimal) *Engine {
	return &Engine{
		history:    h,
		prompts:    p,
		dispatcher: d,
		ledger:     l,
		price:      pricePerTurn,
		turns:      history.NewKeyedMutex(),
	}
}

func (e *Engine) Respond(ctx context.Context, turn Turn, opts Options) (Reply, error) {
	turn.Message = strings.TrimSpace(turn.Message)
	if turn.ConversationID == "" || turn.Message == "" {
		return Reply{}, fmt.Errorf("%w: conversation id and message are required", ErrInvalidTurn)
	}
	if err := authorize(turn.Channel, turn.ConversationID); err != nil {
		return Reply{}, err
	}

	log := logrus.WithFields(logrus.Fields{
		"request_id":      middleware.GetRequestID(ctx),
		"conversation_id": turn.ConversationID,
		"prompt_id":       turn.PromptID,
		"channel":         turn.Channel,
	})

	unlock := e.turns.Lock(turn.ConversationID)
	defer unlock()

	cfg, err := e.prompt(ctx, turn.PromptID, opts.StrictPrompt)
	if err != nil {
		return Reply{}, err
	}

	past, err := e.history.LoadHistory(ctx, turn.ConversationID, turn.UserID)
	if err != nil {
		return Reply{}, fmt.Errorf("load history: %w", err)
	}

	out, err := e.dispatcher.Dispatch(ctx, routing.Input{
		Prompt:      cfg,
		History:     past,
		UserMessage: turn.Message,
		Coordinate:  opts.Coordinate,
	})
	if err != nil {
		log.Errorf("dispatch failed: %v", err)
		return Reply{}, err
	}

	assistant := history.Message{
		Role:          history.RoleAssistant,
		Content:       out.Response,
		TriggerAction: out.TriggerAction,
	}
	if len(out.Data) > 0 {
		if raw, err := json.Marshal(out.Data); err == nil {
			assistant.Data = raw
		}
	}
	key := history.Key{ConversationID: turn.ConversationID, PromptID: turn.PromptID, UserID: turn.UserID}
	user := history.Message{Role: history.RoleUser, Content: turn.Message}
	if _, err := e.history.AppendAndSave(ctx, key, user, assistant); err != nil {
		return Reply{}, err
	}

	if out.TriggerAction != "" {
		err := e.ledger.Record(ctx, usage.Event{
			Amount:        e.price,
			Service:       out.Service,
			TriggerAction: out.TriggerAction,
			UserID:        turn.UserID,
			PromptID:      turn.PromptID,
		})
		if err != nil {
			log.Errorf("failed to record usage for %s: %v", out.TriggerAction, err)
		}
	}

	log.WithField("state", out.State).Info("turn completed")
	return Reply{
		Response:      out.Response,
		TriggerAction: out.TriggerAction,
		Data:          out.Data,
		Query:         out.Query,
	}, nil
}

// Feedback records a debit correction when the user disliked a reply. Likes are not billed.
func (e *Engine) Feedback(ctx context.Context, fb Feedback) error {
	if fb.ConversationID == "" {
		return fmt.Errorf("%w: conversation id is required", ErrInvalidTurn)
	}
	if _, err := e.History(ctx, fb.UserID, fb.ConversationID); err != nil {
		return err
	}
	if fb.Liked {
		return nil
	}

	amount := fb.Amount.Abs()
	if amount.IsZero() {
		amount = e.price
	}
	return e.ledger.Record(ctx, usage.Event{
		Amount:        amount.Neg(),
		Service:       routing.MainService,
		TriggerAction: dislikeAction,
		UserID:        fb.UserID,
		PromptID:      fb.PromptID,
	})
}

// History returns the transcript of a web conversation owned by userID.
func (e *Engine) History(ctx context.Context, userID int64, conversationID string) ([]history.Message, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is required", ErrInvalidTurn)
	}
	if err := authorize(ChannelWeb, conversationID); err != nil {
		return nil, err
	}
	return e.history.LoadHistory(ctx, conversationID, userID)
}

// authorize keeps messaging-channel conversations out of reach of other channels.
func authorize(channel, conversationID string) error {
	if owner := channelOf(conversationID); owner != "" && owner != channel {
		return fmt.Errorf("conversation %s: %w", conversationID, history.ErrForbidden)
	}
	return nil
}

func (e *Engine) prompt(ctx context.Context, id int64, strict bool) (prompts.Config, error) {
	if !strict {
		return e.prompts.ResolveOrDefault(ctx, id), nil
	}
	return e.prompts.Resolve(ctx, id)
}
