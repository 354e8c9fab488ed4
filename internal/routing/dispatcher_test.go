package routing

import (
	"context"
	"errors"
	"testing"

	"chatengine/internal/completion"
	"chatengine/internal/history"
	"chatengine/internal/prompts"
	"chatengine/internal/query"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCompleter struct {
	results  []completion.Result
	errs     []error
	requests []completion.Request
}

func (s *scriptedCompleter) Complete(_ context.Context, req completion.Request) (completion.Result, error) {
	i := len(s.requests)
	s.requests = append(s.requests, req)
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], err
	}
	return completion.Result{Empty: true}, err
}

func text(s string) completion.Result {
	return completion.Result{Text: s}
}

type staticPrompts map[int64]prompts.Config

func (p staticPrompts) ResolveOrDefault(_ context.Context, id int64) prompts.Config {
	if cfg, ok := p[id]; ok {
		return cfg
	}
	return prompts.Config{Template: "default", Model: "default-model"}
}

type recordingAnswerer struct {
	requests []query.Request
	reply    query.Reply
}

func (r *recordingAnswerer) Answer(_ context.Context, req query.Request) query.Reply {
	r.requests = append(r.requests, req)
	return r.reply
}

var (
	mainPrompt = prompts.Config{ID: 1, Template: "route the customer", Model: "router"}
	ids        = SpecialistPrompts{Products: 10, Orders: 11, Logistic: 12, Appointment: 13}
	library    = staticPrompts{
		10: {ID: 10, Template: "products", Model: "products-model"},
		11: {ID: 11, Template: "orders", Model: "orders-model"},
		99: {ID: 99, Template: "coordinator", Model: "coordinator-model"},
	}
)

func newDispatcher(c completer, q queryAnswerer, coordinator int64) *Dispatcher {
	return NewDispatcher(c, library, q, NewTable(ids), "English", coordinator)
}

func input(msg string) Input {
	return Input{
		Prompt:      mainPrompt,
		History:     []history.Message{{Role: history.RoleUser, Content: "earlier"}, {Role: history.RoleAssistant, Content: "reply"}},
		UserMessage: msg,
	}
}

func TestDispatchRawFallbackIsVerbatim(t *testing.T) {
	raw := "Hello! {not json} How can I help?"
	c := &scriptedCompleter{results: []completion.Result{text(raw)}}

	out, err := newDispatcher(c, &recordingAnswerer{}, 0).Dispatch(context.Background(), input("hi"))
	require.NoError(t, err)
	assert.Equal(t, StateRawFallback, out.State)
	assert.Equal(t, raw, out.Response)
	assert.Equal(t, MainService, out.Service)
	assert.Empty(t, out.TriggerAction)
}

func TestDispatchBuildsMessagesInOrder(t *testing.T) {
	c := &scriptedCompleter{results: []completion.Result{text("plain")}}

	_, err := newDispatcher(c, &recordingAnswerer{}, 0).Dispatch(context.Background(), input("new question"))
	require.NoError(t, err)
	require.Len(t, c.requests, 1)

	msgs := c.requests[0].Messages
	require.Len(t, msgs, 5)
	assert.Equal(t, history.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "English")
	assert.Equal(t, "route the customer", msgs[1].Content)
	assert.Equal(t, "earlier", msgs[2].Content)
	assert.Equal(t, "reply", msgs[3].Content)
	assert.Equal(t, history.Message{Role: history.RoleUser, Content: "new question"}, msgs[4])
	assert.Equal(t, "router", c.requests[0].Model)
}

func TestDispatchEmptyCompletion(t *testing.T) {
	c := &scriptedCompleter{results: []completion.Result{{Empty: true}}}

	out, err := newDispatcher(c, &recordingAnswerer{}, 0).Dispatch(context.Background(), input("hi"))
	require.NoError(t, err)
	assert.Equal(t, StateEmpty, out.State)
	assert.Equal(t, EmptyReply, out.Response)
}

func TestDispatchDirectReply(t *testing.T) {
	c := &scriptedCompleter{results: []completion.Result{
		text(`{"target":"Generic","trigger_action":"greeting","response":"Hi there!"}`),
	}}

	out, err := newDispatcher(c, &recordingAnswerer{}, 0).Dispatch(context.Background(), input("hi"))
	require.NoError(t, err)
	assert.Equal(t, StateDirect, out.State)
	assert.Equal(t, "Hi there!", out.Response)
	assert.Equal(t, "greeting", out.TriggerAction)
}

func TestDispatchUnknownTarget(t *testing.T) {
	c := &scriptedCompleter{results: []completion.Result{text(`{"target":"Billing","triggerAction":"invoice"}`)}}

	out, err := newDispatcher(c, &recordingAnswerer{}, 0).Dispatch(context.Background(), input("invoice?"))
	require.NoError(t, err)
	assert.Equal(t, StateUnrecognized, out.State)
	assert.Equal(t, UnrecognizedReply, out.Response)
	assert.Equal(t, "invoice", out.TriggerAction)
	assert.Len(t, c.requests, 1)
}

func TestDispatchSQLWinsOverTarget(t *testing.T) {
	c := &scriptedCompleter{results: []completion.Result{
		text(`{"target":"Orders","trigger_action":"orders_report","sqlQuery":"SELECT 1","finalResponse":"Your orders"}`),
	}}
	q := &recordingAnswerer{reply: query.Reply{TriggerAction: "orders_report", Response: "Your orders", Data: []query.Row{{"a": 1.0}, {"a": 2.0}}, Query: "SELECT 1"}}

	out, err := newDispatcher(c, q, 0).Dispatch(context.Background(), input("orders"))
	require.NoError(t, err)
	assert.Equal(t, StateQuery, out.State)
	require.Len(t, q.requests, 1)
	assert.Equal(t, "SELECT 1", q.requests[0].SQL)
	assert.Equal(t, "orders", q.requests[0].Question)
	assert.Equal(t, mainPrompt, q.requests[0].Prompt)
	assert.Len(t, c.requests, 1)
	assert.Len(t, out.Data, 2)
	assert.Equal(t, MainService, out.Service)
}

func TestDispatchSpecialist(t *testing.T) {
	c := &scriptedCompleter{results: []completion.Result{
		text(`{"target":"Orders","trigger_action":"order_status"}`),
		text(`{"response":"Your order ships tomorrow."}`),
	}}

	out, err := newDispatcher(c, &recordingAnswerer{}, 0).Dispatch(context.Background(), input("where is my order"))
	require.NoError(t, err)
	assert.Equal(t, StateSpecialist, out.State)
	assert.Equal(t, "Your order ships tomorrow.", out.Response)
	assert.Equal(t, "order_status", out.TriggerAction)
	assert.Equal(t, "orders", out.Service)

	require.Len(t, c.requests, 2)
	assert.Equal(t, "orders-model", c.requests[1].Model)
	assert.Equal(t, "orders", c.requests[1].Messages[1].Content)
	assert.Equal(t, "where is my order", c.requests[1].Messages[len(c.requests[1].Messages)-1].Content)
}

func TestDispatchSpecialistQueryShape(t *testing.T) {
	c := &scriptedCompleter{results: []completion.Result{
		text(`{"target":"Products","trigger_action":"sales"}`),
		text(`{"sql":"SELECT count(*) FROM orders"}`),
	}}
	q := &recordingAnswerer{reply: query.Reply{TriggerAction: "COUNT", Response: "42 orders.", Query: "SELECT count(*) FROM orders"}}

	out, err := newDispatcher(c, q, 0).Dispatch(context.Background(), input("how many orders"))
	require.NoError(t, err)
	assert.Equal(t, StateQuery, out.State)
	assert.Equal(t, "COUNT", out.TriggerAction)
	assert.Equal(t, "products", out.Service)
	require.Len(t, q.requests, 1)
	assert.Equal(t, "sales", q.requests[0].TriggerAction)
	assert.Equal(t, "products-model", q.requests[0].Prompt.Model)
}

func TestDispatchCoordinatorRewrite(t *testing.T) {
	c := &scriptedCompleter{results: []completion.Result{
		text(`{"target":"Orders","trigger_action":"order_status"}`),
		text("ships tmrw"),
		text("Your order will ship tomorrow."),
	}}

	in := input("where is my order")
	in.Coordinate = true
	out, err := newDispatcher(c, &recordingAnswerer{}, 99).Dispatch(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "Your order will ship tomorrow.", out.Response)

	require.Len(t, c.requests, 3)
	rewrite := c.requests[2].Messages
	assert.Equal(t, "coordinator-model", c.requests[2].Model)
	assert.Equal(t, history.RoleAssistant, rewrite[len(rewrite)-2].Role)
	assert.Equal(t, "ships tmrw", rewrite[len(rewrite)-2].Content)
	assert.Equal(t, history.RoleSystem, rewrite[len(rewrite)-1].Role)
}

func TestDispatchCoordinatorFailureKeepsSpecialistAnswer(t *testing.T) {
	c := &scriptedCompleter{
		results: []completion.Result{text(`{"target":"Orders"}`), text("ships tomorrow"), {}},
		errs:    []error{nil, nil, errors.New("upstream down")},
	}

	in := input("where is my order")
	in.Coordinate = true
	out, err := newDispatcher(c, &recordingAnswerer{}, 99).Dispatch(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "ships tomorrow", out.Response)
}

func TestDispatchSkipsCoordinatorWhenNotRequested(t *testing.T) {
	c := &scriptedCompleter{results: []completion.Result{text(`{"target":"Orders"}`), text("ships tomorrow")}}

	out, err := newDispatcher(c, &recordingAnswerer{}, 99).Dispatch(context.Background(), input("where"))
	require.NoError(t, err)
	assert.Equal(t, "ships tomorrow", out.Response)
	assert.Len(t, c.requests, 2)
}

func TestDispatchPropagatesUpstreamErrors(t *testing.T) {
	upstream := &completion.UpstreamError{StatusCode: 502, Attempts: 3, Err: errors.New("bad gateway")}

	c := &scriptedCompleter{errs: []error{upstream}}
	_, err := newDispatcher(c, &recordingAnswerer{}, 0).Dispatch(context.Background(), input("hi"))
	require.ErrorIs(t, err, upstream)

	c = &scriptedCompleter{results: []completion.Result{text(`{"target":"Orders"}`)}, errs: []error{nil, upstream}}
	_, err = newDispatcher(c, &recordingAnswerer{}, 0).Dispatch(context.Background(), input("hi"))
	var target *completion.UpstreamError
	require.ErrorAs(t, err, &target)
}
