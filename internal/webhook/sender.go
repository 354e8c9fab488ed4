package webhook

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chatengine/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// Sender delivers a reply to the messaging provider. It reports success and never panics.
type Sender interface {
	Send(ctx context.Context, msg OutgoingMessage) bool
}

// CloudSender posts text messages to the WhatsApp Cloud API.
type CloudSender struct {
	http          *resty.Client
	phoneNumberID string
}

func NewCloudSender(apiURL, phoneNumberID, token string, timeout time.Duration) *CloudSender {
	client := resty.New().
		SetBaseURL(strings.TrimRight(apiURL, "/")).
		SetAuthToken(token).
		SetTimeout(timeout)
	return &CloudSender{http: client, phoneNumberID: phoneNumberID}
}

func (s *CloudSender) Send(ctx context.Context, msg OutgoingMessage) bool {
	log := logrus.WithFields(logrus.Fields{
		"correlation_id": msg.CorrelationID,
		"to":             msg.To,
	})

	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(sendRequest{
			MessagingProduct: "whatsapp",
			RecipientType:    "individual",
			To:               msg.To,
			Type:             "text",
			Text:             sendText{Body: msg.Text},
		}).
		Post(fmt.Sprintf("/%s/messages", s.phoneNumberID))

	ok := err == nil && !resp.IsError()
	metrics.RecordSend("whatsapp", ok)
	switch {
	case err != nil:
		log.Errorf("failed to send message: %v", err)
	case resp.IsError():
		log.Errorf("provider rejected message with %d: %s", resp.StatusCode(), resp.String())
	default:
		log.Info("message sent")
	}
	return ok
}
