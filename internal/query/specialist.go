package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"chatengine/internal/completion"
	"chatengine/internal/history"
	"chatengine/internal/metrics"

	"github.com/sirupsen/logrus"
)

const (
	TriggerCount = "COUNT"

	FailedReply   = "The query failed, please try again."
	noRowsReply   = "No matching records were found."
	manyRowsReply = "Here are the results."
)

type runner interface {
	Run(ctx context.Context, sql string) ([]Row, error)
}

type completer interface {
	Complete(ctx context.Context, req completion.Request) (completion.Result, error)
}

// Specialist turns a model-authored SQL statement into a reply.
type Specialist struct {
	runner    runner
	completer completer
	language  string
}

func NewSpecialist(r runner, c completer, language string) *Specialist {
	return &Specialist{runner: r, completer: c, language: language}
}

// Answer never returns an error: failures become an apology reply.
func (s *Specialist) Answer(ctx context.Context, req Request) Reply {
	log := logrus.WithFields(logrus.Fields{
		"trigger_action": req.TriggerAction,
		"query":          req.SQL,
	})

	if err := CheckReadOnly(req.SQL); err != nil {
		metrics.RecordQuery("rejected")
		log.Warnf("rejected query: %v", err)
		return Reply{Response: FailedReply, Query: req.SQL}
	}

	rows, err := s.runner.Run(ctx, req.SQL)
	if err != nil {
		metrics.RecordQuery("failed")
		log.Errorf("query failed: %v", err)
		return Reply{Response: FailedReply, Query: req.SQL}
	}
	metrics.RecordQuery("ok")

	if len(rows) == 1 {
		return Reply{
			TriggerAction: TriggerCount,
			Response:      s.summarize(ctx, req, rows[0]),
			Query:         req.SQL,
		}
	}

	response := req.FinalResponse
	if response == "" {
		response = manyRowsReply
		if len(rows) == 0 {
			response = noRowsReply
		}
	}
	return Reply{
		TriggerAction: req.TriggerAction,
		Response:      response,
		Data:          rows,
		Query:         req.SQL,
	}
}

func (s *Specialist) summarize(ctx context.Context, req Request, row Row) string {
	payload, err := json.Marshal(row)
	if err != nil {
		return Prose(row)
	}

	instruction := fmt.Sprintf("You turn one database result into exactly one sentence in %s. "+
		"Use a dot as the thousands separator and a comma as the decimal separator, "+
		"and write money like 1.234,56 €. Do not mention SQL or databases.", s.language)
	user := "Result: " + string(payload)
	if req.Question != "" {
		user = "Question: " + req.Question + "\n" + user
	}

	res, err := s.completer.Complete(ctx, completion.Request{
		Model:       req.Prompt.Model,
		Temperature: req.Prompt.Temperature,
		MaxTokens:   req.Prompt.MaxTokens,
		Messages: []history.Message{
			{Role: history.RoleSystem, Content: instruction},
			{Role: history.RoleUser, Content: user},
		},
	})
	if err != nil {
		logrus.WithField("query", req.SQL).Warnf("summary pass failed, using plain row: %v", err)
		return Prose(row)
	}
	if res.Empty {
		return Prose(row)
	}
	return res.Text
}

// Prose renders a row as "key: value" pairs in key order.
func Prose(row Row) string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, row[k]))
	}
	return strings.Join(parts, ", ")
}
