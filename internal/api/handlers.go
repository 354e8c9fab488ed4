package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"chatengine/internal/auth"
	"chatengine/internal/chat"
	"chatengine/internal/history"
	"chatengine/internal/prompts"
	"chatengine/internal/usage"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type engine interface {
	Respond(ctx context.Context, turn chat.Turn, opts chat.Options) (chat.Reply, error)
	Feedback(ctx context.Context, fb chat.Feedback) error
	History(ctx context.Context, userID int64, conversationID string) ([]history.Message, error)
}

type ledger interface {
	DailyTotal(ctx context.Context, userID int64) (decimal.Decimal, error)
	WeeklyTotals(ctx context.Context, userID int64) ([]usage.Bucket, error)
	MonthlyTotals(ctx context.Context, userID int64, service string) ([]usage.Bucket, error)
}

type Handler struct {
	engine engine
	ledger ledger
}

func NewHandler(engine engine, ledger ledger) *Handler {
	return &Handler{engine: engine, ledger: ledger}
}

type ChatRequest struct {
	ConversationID string `json:"conversationId"`
	PromptID       int64  `json:"promptId"`
	Message        string `json:"message"`
}

type FeedbackRequest struct {
	ConversationID string `json:"conversationId"`
	PromptID       int64  `json:"promptId"`
	Liked          bool   `json:"liked"`
	Amount         string `json:"amount,omitempty"`
}

type HistoryResponse struct {
	ConversationID string            `json:"conversationId"`
	Messages       []history.Message `json:"messages"`
}

type DailyResponse struct {
	Amount string `json:"amount"`
}

type BucketsResponse struct {
	Buckets []usage.Bucket `json:"buckets"`
}

func (h *Handler) ChatResponseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reply, err := h.engine.Respond(r.Context(), chat.Turn{
		ConversationID: req.ConversationID,
		PromptID:       req.PromptID,
		UserID:         userID,
		Message:        req.Message,
		Channel:        chat.ChannelWeb,
	}, chat.Options{StrictPrompt: true, Coordinate: true})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (h *Handler) ChatFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	amount := decimal.Zero
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			http.Error(w, "invalid amount", http.StatusBadRequest)
			return
		}
		amount = parsed
	}

	err := h.engine.Feedback(r.Context(), chat.Feedback{
		ConversationID: req.ConversationID,
		PromptID:       req.PromptID,
		UserID:         userID,
		Liked:          req.Liked,
		Amount:         amount,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conversationID := r.URL.Query().Get("conversationId")

	msgs, err := h.engine.History(r.Context(), userID, conversationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{ConversationID: conversationID, Messages: msgs})
}

func (h *Handler) UsageDailyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.usageCaller(w, r)
	if !ok {
		return
	}
	total, err := h.ledger.DailyTotal(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DailyResponse{Amount: total.StringFixed(2)})
}

func (h *Handler) UsageWeeklyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.usageCaller(w, r)
	if !ok {
		return
	}
	buckets, err := h.ledger.WeeklyTotals(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BucketsResponse{Buckets: buckets})
}

func (h *Handler) UsageMonthlyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.usageCaller(w, r)
	if !ok {
		return
	}
	buckets, err := h.ledger.MonthlyTotals(r.Context(), userID, r.URL.Query().Get("service"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BucketsResponse{Buckets: buckets})
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) usageCaller(w http.ResponseWriter, r *http.Request) (int64, bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return 0, false
	}
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return 0, false
	}
	return userID, true
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidTurn):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, prompts.ErrNotFound):
		http.Error(w, "prompt not found", http.StatusNotFound)
	case errors.Is(err, history.ErrForbidden):
		http.Error(w, "conversation not found", http.StatusNotFound)
	default:
		logrus.Errorf("request failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("failed to encode response: %v", err)
	}
}
