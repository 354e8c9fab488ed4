package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatengine/internal/auth"
	"chatengine/internal/chat"
	"chatengine/internal/completion"
	"chatengine/internal/history"
	"chatengine/internal/prompts"
	"chatengine/internal/query"
	"chatengine/internal/usage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	reply     chat.Reply
	err       error
	turns     []chat.Turn
	opts      []chat.Options
	feedbacks []chat.Feedback
	history   []history.Message
	owner     int64
}

func (f *fakeEngine) Respond(_ context.Context, turn chat.Turn, opts chat.Options) (chat.Reply, error) {
	f.turns = append(f.turns, turn)
	f.opts = append(f.opts, opts)
	return f.reply, f.err
}

func (f *fakeEngine) Feedback(_ context.Context, fb chat.Feedback) error {
	f.feedbacks = append(f.feedbacks, fb)
	return f.err
}

func (f *fakeEngine) History(_ context.Context, userID int64, id string) ([]history.Message, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: missing id", chat.ErrInvalidTurn)
	}
	if userID != f.owner {
		return nil, fmt.Errorf("conversation %s: %w", id, history.ErrForbidden)
	}
	return f.history, f.err
}

type fakeLedger struct{}

func (fakeLedger) DailyTotal(context.Context, int64) (decimal.Decimal, error) {
	return decimal.RequireFromString("0.4"), nil
}

func (fakeLedger) WeeklyTotals(context.Context, int64) ([]usage.Bucket, error) {
	return []usage.Bucket{{Period: "2026-10-12", Amount: decimal.RequireFromString("0.2")}}, nil
}

func (fakeLedger) MonthlyTotals(_ context.Context, _ int64, service string) ([]usage.Bucket, error) {
	return []usage.Bucket{{Period: service, Amount: decimal.Zero}}, nil
}

func serve(h http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(auth.WithUserID(req.Context(), 7))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestChatResponse(t *testing.T) {
	engine := &fakeEngine{reply: chat.Reply{
		Response: "Two products", TriggerAction: "list", Data: []query.Row{{"id": 1.0}}, Query: "SELECT id FROM products",
	}}
	h := NewHandler(engine, fakeLedger{})

	rec := serve(h.ChatResponseHandler, http.MethodPost, "/chat/response",
		`{"conversationId":"web:1","promptId":3,"message":"list products"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"Two products","triggerAction":"list","data":[{"id":1}],"query":"SELECT id FROM products"}`, rec.Body.String())
	assert.Equal(t, chat.Turn{ConversationID: "web:1", PromptID: 3, UserID: 7, Message: "list products", Channel: chat.ChannelWeb}, engine.turns[0])
	assert.Equal(t, chat.Options{StrictPrompt: true, Coordinate: true}, engine.opts[0])
}

func TestChatResponseOmitsEmptyFields(t *testing.T) {
	h := NewHandler(&fakeEngine{reply: chat.Reply{Response: "hello"}}, fakeLedger{})

	rec := serve(h.ChatResponseHandler, http.MethodPost, "/chat/response", `{"conversationId":"c","promptId":1,"message":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"response":"hello"}`, rec.Body.String())
}

func TestChatResponseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"missing prompt", fmt.Errorf("prompt 3: %w", prompts.ErrNotFound), http.StatusNotFound},
		{"invalid turn", fmt.Errorf("%w: empty", chat.ErrInvalidTurn), http.StatusBadRequest},
		{"upstream", &completion.UpstreamError{StatusCode: 502, Attempts: 3, Err: errors.New("bad gateway")}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&fakeEngine{err: tc.err}, fakeLedger{})
			rec := serve(h.ChatResponseHandler, http.MethodPost, "/chat/response", `{"conversationId":"c","promptId":3,"message":"hi"}`)
			assert.Equal(t, tc.status, rec.Code)
		})
	}

	h := NewHandler(&fakeEngine{}, fakeLedger{})
	assert.Equal(t, http.StatusBadRequest, serve(h.ChatResponseHandler, http.MethodPost, "/chat/response", "{").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(h.ChatResponseHandler, http.MethodGet, "/chat/response", "").Code)

	rec := httptest.NewRecorder()
	h.ChatResponseHandler(rec, httptest.NewRequest(http.MethodPost, "/chat/response", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatFeedback(t *testing.T) {
	engine := &fakeEngine{}
	h := NewHandler(engine, fakeLedger{})

	rec := serve(h.ChatFeedbackHandler, http.MethodPost, "/chat/feedback",
		`{"conversationId":"web:1","promptId":3,"liked":false,"amount":"0.2"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, engine.feedbacks, 1)
	assert.Equal(t, int64(7), engine.feedbacks[0].UserID)
	assert.Equal(t, "0.2", engine.feedbacks[0].Amount.String())

	rec = serve(h.ChatFeedbackHandler, http.MethodPost, "/chat/feedback", `{"conversationId":"web:1","amount":"lots"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHistory(t *testing.T) {
	engine := &fakeEngine{history: []history.Message{{Role: history.RoleUser, Content: "hi"}}, owner: 7}
	h := NewHandler(engine, fakeLedger{})

	rec := serve(h.ChatHistoryHandler, http.MethodGet, "/chat/history?conversationId=web:1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "web:1", resp.ConversationID)
	assert.Len(t, resp.Messages, 1)

	rec = serve(h.ChatHistoryHandler, http.MethodGet, "/chat/history", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ChatHistoryHandler(rec, httptest.NewRequest(http.MethodGet, "/chat/history?conversationId=web:1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatHistoryOfAnotherUserIsNotFound(t *testing.T) {
	engine := &fakeEngine{history: []history.Message{{Role: history.RoleUser, Content: "my secret"}}, owner: 8}
	h := NewHandler(engine, fakeLedger{})

	rec := serve(h.ChatHistoryHandler, http.MethodGet, "/chat/history?conversationId=whatsapp:%2B391234", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotContains(t, rec.Body.String(), "my secret")

	h = NewHandler(&fakeEngine{err: fmt.Errorf("append: %w", history.ErrForbidden)}, fakeLedger{})
	rec = serve(h.ChatResponseHandler, http.MethodPost, "/chat/response", `{"conversationId":"web:9","promptId":1,"message":"hi"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUsageHandlers(t *testing.T) {
	h := NewHandler(&fakeEngine{}, fakeLedger{})

	rec := serve(h.UsageDailyHandler, http.MethodGet, "/usage/daily", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"amount":"0.40"}`, rec.Body.String())

	rec = serve(h.UsageWeeklyHandler, http.MethodGet, "/usage/weekly", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"buckets":[{"period":"2026-10-12","amount":"0.20"}]}`, rec.Body.String())

	rec = serve(h.UsageMonthlyHandler, http.MethodGet, "/usage/monthly?service=orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"buckets":[{"period":"orders","amount":"0.00"}]}`, rec.Body.String())
}
