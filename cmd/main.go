package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatengine/internal/api"
	"chatengine/internal/auth"
	"chatengine/internal/chat"
	"chatengine/internal/completion"
	"chatengine/internal/history"
	"chatengine/internal/metrics"
	"chatengine/internal/middleware"
	"chatengine/internal/prompts"
	"chatengine/internal/query"
	"chatengine/internal/routing"
	"chatengine/internal/telegram"
	"chatengine/internal/usage"
	"chatengine/internal/webhook"
	"chatengine/pkg/config"
	"chatengine/pkg/db"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)

	cfg := config.LoadConfig()

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		logrus.Fatalf("failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(context.Background(), database); err != nil {
		logrus.Fatalf("failed to migrate database: %v", err)
	}

	price, err := decimal.NewFromString(cfg.UsagePricePerTurn)
	if err != nil {
		logrus.Fatalf("invalid USAGE_PRICE_PER_TURN %q: %v", cfg.UsagePricePerTurn, err)
	}

	historyStore := history.NewStore(history.NewRepository(database), cfg.HistoryLimit)
	promptResolver := prompts.NewResolver(prompts.NewRepository(database), prompts.Config{
		Name:        "default",
		Template:    cfg.DefaultPrompt,
		Model:       cfg.DefaultModel,
		Temperature: cfg.DefaultTemperature,
		MaxTokens:   cfg.DefaultMaxTokens,
	})
	usageService := usage.NewService(usage.NewRepository(database))

	completer := completion.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, completion.WithTimeout(cfg.CompletionTimeout))
	querySpecialist := query.NewSpecialist(
		query.NewClient(cfg.QueryEndpoint, cfg.QueryToken, cfg.CompletionTimeout),
		completer,
		cfg.ReplyLanguage,
	)
	dispatcher := routing.NewDispatcher(
		completer,
		promptResolver,
		querySpecialist,
		routing.NewTable(routing.SpecialistPrompts{
			Products:    cfg.ProductsPromptID,
			Orders:      cfg.OrdersPromptID,
			Logistic:    cfg.LogisticPromptID,
			Appointment: cfg.AppointmentPromptID,
		}),
		cfg.ReplyLanguage,
		cfg.CoordinatorPromptID,
	)
	engine := chat.NewEngine(historyStore, promptResolver, dispatcher, usageService, price)

	apiHandler := api.NewHandler(engine, usageService)
	gateway := webhook.NewGateway(webhook.Config{
		Enabled:     cfg.WebhookEnabled,
		VerifyToken: cfg.WebhookVerifyToken,
		PromptID:    cfg.WebhookPromptID,
		UserID:      cfg.WebhookUserID,
	}, engine, webhook.NewCloudSender(cfg.WhatsAppAPIURL, cfg.WhatsAppPhoneNumberID, cfg.WhatsAppToken, cfg.CompletionTimeout))

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	protected := func(route string, h http.HandlerFunc) http.Handler {
		return middleware.RequestID(route, middleware.CORSMiddleware(auth.JWTMiddleware(limiter.Middleware(h), cfg.JWTSigningKey)))
	}

	mux := http.NewServeMux()
	mux.Handle("/chat/response", protected("/chat/response", apiHandler.ChatResponseHandler))
	mux.Handle("/chat/feedback", protected("/chat/feedback", apiHandler.ChatFeedbackHandler))
	mux.Handle("/chat/history", protected("/chat/history", apiHandler.ChatHistoryHandler))
	mux.Handle("/usage/daily", protected("/usage/daily", apiHandler.UsageDailyHandler))
	mux.Handle("/usage/weekly", protected("/usage/weekly", apiHandler.UsageWeeklyHandler))
	mux.Handle("/usage/monthly", protected("/usage/monthly", apiHandler.UsageMonthlyHandler))
	mux.Handle("/webhook", middleware.RequestID("/webhook", gateway))
	mux.HandleFunc("/healthz", apiHandler.HealthHandler)
	mux.Handle("/metrics", metrics.Handler())

	if cfg.TelegramToken != "" {
		telegramHandler, err := telegram.NewHandler(cfg.TelegramToken, engine, cfg.WebhookPromptID, cfg.WebhookUserID)
		if err != nil {
			logrus.Fatalf("failed to initialize Telegram bot: %v", err)
		}
		if cfg.TelegramWebhookURL != "" {
			if err := telegramHandler.SetupWebhook(cfg.TelegramWebhookURL); err != nil {
				logrus.Errorf("failed to register Telegram webhook: %v", err)
			}
		}
		mux.Handle("/telegram/webhook", middleware.RequestID("/telegram/webhook", http.HandlerFunc(telegramHandler.HandleWebhook)))
	} else {
		logrus.Warn("TELEGRAM_TOKEN is not set, Telegram channel disabled")
	}

	server := &http.Server{
		Addr:              cfg.ServerHost + ":" + cfg.ServerPort,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.Infof("server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Fatalf("server shutdown failed: %v", err)
	}

	logrus.Info("server stopped")
}
