package routing

import (
	"context"
	"fmt"

	"chatengine/internal/completion"
	"chatengine/internal/history"
	"chatengine/internal/metrics"
	"chatengine/internal/prompts"
	"chatengine/internal/query"

	"github.com/sirupsen/logrus"
)

const (
	EmptyReply        = "The assistant returned an empty response. Please try again."
	UnrecognizedReply = "Sorry, I could not route your request (target not recognized)."

	MainService = "main"
)

// State names the terminal state a turn ended in.
type State string

const (
	StateEmpty        State = "empty"
	StateRawFallback  State = "raw_fallback"
	StateDirect       State = "direct"
	StateSpecialist   State = "specialist"
	StateQuery        State = "query"
	StateUnrecognized State = "unrecognized"
)

type Input struct {
	Prompt      prompts.Config
	History     []history.Message
	UserMessage string
	// Coordinate rewrites specialist answers through the coordinator prompt.
	Coordinate bool
}

type Outcome struct {
	State         State
	Response      string
	TriggerAction string
	Data          []query.Row
	Query         string
	Service       string
}

type completer interface {
	Complete(ctx context.Context, req completion.Request) (completion.Result, error)
}

type promptResolver interface {
	ResolveOrDefault(ctx context.Context, id int64) prompts.Config
}

type queryAnswerer interface {
	Answer(ctx context.Context, req query.Request) query.Reply
}

type Dispatcher struct {
	completer           completer
	prompts             promptResolver
	queries             queryAnswerer
	table               Table
	language            string
	coordinatorPromptID int64
}

func NewDispatcher(c completer, p promptResolver, q queryAnswerer, table Table, language string, coordinatorPromptID int64) *Dispatcher {
	return &Dispatcher{
		completer:           c,
		prompts:             p,
		queries:             q,
		table:               table,
		language:            language,
		coordinatorPromptID: coordinatorPromptID,
	}
}

// Dispatch runs the routing pass and whatever it leads to. Only completion
// failures are returned as errors; every other outcome is a reply.
func (d *Dispatcher) Dispatch(ctx context.Context, in Input) (Outcome, error) {
	res, err := d.complete(ctx, in.Prompt, in.History, in.UserMessage)
	if err != nil {
		return Outcome{}, err
	}

	out, err := d.route(ctx, in, res)
	if err != nil {
		return Outcome{}, err
	}
	if out.Service == "" {
		out.Service = MainService
	}
	metrics.RecordRoute(string(out.State))
	return out, nil
}

func (d *Dispatcher) route(ctx context.Context, in Input, res completion.Result) (Outcome, error) {
	if res.Empty {
		return Outcome{State: StateEmpty, Response: EmptyReply}, nil
	}

	decision, ok := ParseDecision(res.Text)
	if !ok {
		return Outcome{State: StateRawFallback, Response: res.Text}, nil
	}

	if decision.SQLQuery != "" {
		return d.runQuery(ctx, in, in.Prompt, decision, ""), nil
	}

	if isGeneric(decision.Target) {
		return Outcome{
			State:         StateDirect,
			Response:      responseOrRaw(decision, res.Text),
			TriggerAction: decision.TriggerAction,
		}, nil
	}

	specialist, ok := d.table.Lookup(decision.Target)
	if !ok {
		logrus.WithField("target", decision.Target).Warn("unrecognized routing target")
		return Outcome{
			State:         StateUnrecognized,
			Response:      UnrecognizedReply,
			TriggerAction: decision.TriggerAction,
		}, nil
	}
	return d.dispatchSpecialist(ctx, in, specialist, decision)
}

func (d *Dispatcher) dispatchSpecialist(ctx context.Context, in Input, sp Specialist, routed Decision) (Outcome, error) {
	cfg := d.prompts.ResolveOrDefault(ctx, sp.PromptID)

	res, err := d.complete(ctx, cfg, in.History, in.UserMessage)
	if err != nil {
		return Outcome{}, fmt.Errorf("specialist %s: %w", sp.Target, err)
	}
	if res.Empty {
		return Outcome{State: StateEmpty, Response: EmptyReply, Service: sp.Service}, nil
	}

	answer, parsed := ParseDecision(res.Text)
	trigger := routed.TriggerAction
	if parsed && answer.TriggerAction != "" {
		trigger = answer.TriggerAction
	}
	if parsed && answer.SQLQuery != "" {
		answer.TriggerAction = trigger
		return d.runQuery(ctx, in, cfg, answer, sp.Service), nil
	}

	text := res.Text
	if parsed {
		text = responseOrRaw(answer, res.Text)
	}
	if in.Coordinate {
		text = d.coordinate(ctx, in, text)
	}

	return Outcome{
		State:         StateSpecialist,
		Response:      text,
		TriggerAction: trigger,
		Service:       sp.Service,
	}, nil
}

// coordinate splices the specialist answer into the conversation as an
// assistant and system pair and asks the coordinator prompt to rewrite it.
// Any failure keeps the specialist answer.
func (d *Dispatcher) coordinate(ctx context.Context, in Input, answer string) string {
	if d.coordinatorPromptID == 0 {
		return answer
	}
	cfg := d.prompts.ResolveOrDefault(ctx, d.coordinatorPromptID)

	msgs := d.systemMessages(cfg)
	msgs = append(msgs, in.History...)
	msgs = append(msgs,
		history.Message{Role: history.RoleUser, Content: in.UserMessage},
		history.Message{Role: history.RoleAssistant, Content: answer},
		history.Message{Role: history.RoleSystem, Content: "Rewrite the previous assistant answer for the customer. " +
			"Keep every fact and number, fix tone and language, and reply with the rewritten text only."},
	)

	res, err := d.completer.Complete(ctx, completion.Request{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages:    msgs,
	})
	if err != nil {
		logrus.Warnf("coordinator rewrite failed, keeping specialist answer: %v", err)
		return answer
	}
	if res.Empty {
		return answer
	}
	if decision, ok := ParseDecision(res.Text); ok && decision.FinalResponse != "" {
		return decision.FinalResponse
	}
	return res.Text
}

func (d *Dispatcher) runQuery(ctx context.Context, in Input, cfg prompts.Config, decision Decision, service string) Outcome {
	reply := d.queries.Answer(ctx, query.Request{
		TriggerAction: decision.TriggerAction,
		FinalResponse: decision.FinalResponse,
		SQL:           decision.SQLQuery,
		Question:      in.UserMessage,
		Prompt:        cfg,
	})
	return Outcome{
		State:         StateQuery,
		Response:      reply.Response,
		TriggerAction: reply.TriggerAction,
		Data:          reply.Data,
		Query:         reply.Query,
		Service:       service,
	}
}

func (d *Dispatcher) complete(ctx context.Context, cfg prompts.Config, past []history.Message, user string) (completion.Result, error) {
	msgs := d.systemMessages(cfg)
	msgs = append(msgs, past...)
	msgs = append(msgs, history.Message{Role: history.RoleUser, Content: user})

	return d.completer.Complete(ctx, completion.Request{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages:    msgs,
	})
}

func (d *Dispatcher) systemMessages(cfg prompts.Config) []history.Message {
	msgs := []history.Message{{
		Role:    history.RoleSystem,
		Content: fmt.Sprintf("Always answer in %s.", d.language),
	}}
	if cfg.Template != "" {
		msgs = append(msgs, history.Message{Role: history.RoleSystem, Content: cfg.Template})
	}
	return msgs
}

func responseOrRaw(d Decision, raw string) string {
	if d.FinalResponse != "" {
		return d.FinalResponse
	}
	return raw
}
