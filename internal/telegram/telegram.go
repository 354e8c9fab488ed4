package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"chatengine/internal/chat"
	"chatengine/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

type responder interface {
	Respond(ctx context.Context, turn chat.Turn, opts chat.Options) (chat.Reply, error)
}

// Handler bridges Telegram bot updates to the chat engine.
type Handler struct {
	bot      *tgbotapi.BotAPI
	engine   responder
	promptID int64
	userID   int64
}

func NewHandler(token string, engine responder, promptID, userID int64) (*Handler, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newHandler(bot, engine, promptID, userID), nil
}

func newHandler(bot *tgbotapi.BotAPI, engine responder, promptID, userID int64) *Handler {
	logrus.Infof("Telegram bot started: %s", bot.Self.UserName)
	return &Handler{bot: bot, engine: engine, promptID: promptID, userID: userID}
}

// SetupWebhook registers url with Telegram so updates are pushed to HandleWebhook.
func (h *Handler) SetupWebhook(url string) error {
	webhookConfig, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("failed to build webhook config: %w", err)
	}
	if _, err := h.bot.Request(webhookConfig); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := h.bot.HandleUpdate(r)
	if err != nil {
		logrus.Errorf("failed to decode Telegram update: %v", err)
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	h.handleUpdate(r.Context(), *update)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := h.bot.Send(msg)
	metrics.RecordSend(chat.ChannelTelegram, err == nil)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (h *Handler) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	chatID := update.Message.Chat.ID
	log := logrus.WithFields(logrus.Fields{
		"chat_id":    chatID,
		"message_id": update.Message.MessageID,
	})

	reply, err := h.engine.Respond(ctx, chat.Turn{
		ConversationID: chat.ConversationID(chat.ChannelTelegram, strconv.FormatInt(chatID, 10)),
		PromptID:       h.promptID,
		UserID:         h.userID,
		Message:        update.Message.Text,
		Channel:        chat.ChannelTelegram,
	}, chat.Options{})

	text := "An error occurred while processing your message."
	if err != nil {
		log.Errorf("failed to answer Telegram message: %v", err)
	} else {
		text = reply.PlainText()
	}

	if err := h.SendMessage(chatID, text); err != nil {
		log.Error(err)
	}
}
