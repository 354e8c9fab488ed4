package chat

import (
	"fmt"
	"sort"
	"strings"

	"chatengine/internal/query"

	"github.com/shopspring/decimal"
)

const (
	ChannelWeb      = "web"
	ChannelWhatsApp = "whatsapp"
	ChannelTelegram = "telegram"

	maxRenderedRows = 10
)

// ConversationID namespaces an external chat id under its messaging channel,
// e.g. "whatsapp:+391234".
func ConversationID(channel, externalID string) string {
	return channel + ":" + externalID
}

func channelOf(conversationID string) string {
	for _, ch := range []string{ChannelWhatsApp, ChannelTelegram} {
		if strings.HasPrefix(conversationID, ch+":") {
			return ch
		}
	}
	return ""
}

// Turn is one inbound user message.
type Turn struct {
	ConversationID string
	PromptID       int64
	UserID         int64
	Message        string
	Channel        string
}

type Options struct {
	// StrictPrompt fails the turn with prompts.ErrNotFound instead of using the default prompt.
	StrictPrompt bool
	Coordinate   bool
}

type Reply struct {
	Response      string      `json:"response"`
	TriggerAction string      `json:"triggerAction,omitempty"`
	Data          []query.Row `json:"data,omitempty"`
	Query         string      `json:"query,omitempty"`
}

// PlainText renders the reply for channels without tables: the response
// followed by at most ten rows as "key: value" lines.
func (r Reply) PlainText() string {
	if len(r.Data) == 0 {
		return r.Response
	}

	var b strings.Builder
	b.WriteString(r.Response)
	for i, row := range r.Data {
		if i == maxRenderedRows {
			fmt.Fprintf(&b, "\n... and %d more", len(r.Data)-maxRenderedRows)
			break
		}
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("\n")
		for j, k := range keys {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %v", k, row[k])
		}
	}
	return b.String()
}

type Feedback struct {
	ConversationID string
	PromptID       int64
	UserID         int64
	Liked          bool
	// Amount to refund on a dislike. Zero means the per-turn price.
	Amount decimal.Decimal
}
