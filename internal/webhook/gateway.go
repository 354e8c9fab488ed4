package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"chatengine/internal/chat"
	"chatengine/internal/middleware"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
)

const (
	maxBodyBytes = 1 << 20
	seenMessages = 4096

	ApologyReply = "Sorry, something went wrong while answering. Please try again later."
)

type responder interface {
	Respond(ctx context.Context, turn chat.Turn, opts chat.Options) (chat.Reply, error)
}

type Config struct {
	Enabled     bool
	VerifyToken string
	PromptID    int64
	UserID      int64
}

// Gateway serves the provider webhook: GET verifies the subscription, POST receives messages.
type Gateway struct {
	cfg    Config
	engine responder
	sender Sender
	// provider message ids already answered; redeliveries are acknowledged and dropped
	seen *lru.Cache
}

func NewGateway(cfg Config, engine responder, sender Sender) *Gateway {
	// lru.New only fails for a non-positive size.
	seen, _ := lru.New(seenMessages)
	return &Gateway{cfg: cfg, engine: engine, sender: sender, seen: seen}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.Verify(w, r)
	case http.MethodPost:
		g.Receive(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		http.Error(w, "missing hub.mode or hub.verify_token", http.StatusBadRequest)
		return
	}
	if !g.cfg.Enabled {
		http.Error(w, "webhook disabled", http.StatusForbidden)
		return
	}
	if mode != "subscribe" || g.cfg.VerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(g.cfg.VerifyToken)) != 1 {
		logrus.WithField("mode", mode).Warn("webhook verification rejected")
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

func (g *Gateway) Receive(w http.ResponseWriter, r *http.Request) {
	if !g.cfg.Enabled {
		http.Error(w, "webhook disabled", http.StatusForbidden)
		return
	}

	var env Envelope
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&env); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	msgs, statusOnly := Normalize(env)
	if statusOnly {
		logrus.Debug("status notification acknowledged")
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, in := range msgs {
		if dup, _ := g.seen.ContainsOrAdd(in.CorrelationID, struct{}{}); dup {
			logrus.WithField("correlation_id", in.CorrelationID).Info("duplicate delivery skipped")
			continue
		}
		g.handle(r.Context(), in)
	}
	w.WriteHeader(http.StatusOK)
}

func (g *Gateway) handle(ctx context.Context, in IncomingMessage) {
	log := logrus.WithFields(logrus.Fields{
		"request_id":     middleware.GetRequestID(ctx),
		"correlation_id": in.CorrelationID,
		"from":           in.From,
	})

	text := ApologyReply
	reply, err := g.engine.Respond(ctx, chat.Turn{
		ConversationID: chat.ConversationID(chat.ChannelWhatsApp, in.From),
		PromptID:       g.cfg.PromptID,
		UserID:         g.cfg.UserID,
		Message:        in.Text,
		Channel:        chat.ChannelWhatsApp,
	}, chat.Options{})
	if err != nil {
		log.Errorf("failed to answer message: %v", err)
	} else {
		text = reply.PlainText()
	}

	if !g.sender.Send(ctx, OutgoingMessage{To: in.From, Text: text, CorrelationID: in.CorrelationID}) {
		log.Warn("reply was not delivered")
	}
}
