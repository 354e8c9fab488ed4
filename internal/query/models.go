package query

import (
	"chatengine/internal/prompts"
)

// Row is one object of the query endpoint's JSON array.
type Row map[string]any

type Request struct {
	TriggerAction string
	FinalResponse string
	SQL           string
	Question      string
	Prompt        prompts.Config
}

type Reply struct {
	TriggerAction string
	Response      string
	Data          []Row
	Query         string
}
