package webhook

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Normalize extracts the text messages of an envelope. statusOnly is true
// when the envelope carried delivery statuses and no messages at all.
func Normalize(env Envelope) (msgs []IncomingMessage, statusOnly bool) {
	var sawMessage, sawStatus bool
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Statuses) > 0 {
				sawStatus = true
			}
			for _, m := range change.Value.Messages {
				sawMessage = true
				if m.Type != "text" || m.Text == nil || strings.TrimSpace(m.Text.Body) == "" {
					logrus.WithFields(logrus.Fields{
						"message_id": m.ID,
						"type":       m.Type,
					}).Info("skipping non-text message")
					continue
				}
				msgs = append(msgs, IncomingMessage{
					From:          m.From,
					Text:          m.Text.Body,
					Timestamp:     parseTimestamp(m.Timestamp),
					CorrelationID: correlationID(m.ID),
				})
			}
		}
	}
	return msgs, sawStatus && !sawMessage
}

func parseTimestamp(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Now()
	}
	return time.Unix(sec, 0)
}

func correlationID(providerID string) string {
	if providerID != "" {
		return providerID
	}
	return uuid.NewString()
}
