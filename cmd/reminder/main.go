package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linear_reminder_bot/internal/app"
	"linear_reminder_bot/internal/domain/operator"
	"linear_reminder_bot/internal/infra/config"
	idb "linear_reminder_bot/internal/infra/database"
	"linear_reminder_bot/internal/infra/linear"
	"linear_reminder_bot/internal/infra/logger"
	"linear_reminder_bot/internal/infra/scheduler"
	"linear_reminder_bot/internal/infra/telegram"
	"linear_reminder_bot/internal/infra/webhook"

	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("Linear Reminder Bot starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")

	mainLogger.WithField("environment", cfg.Environment).
		WithField("watched_status", cfg.Reminder.WatchedStatus).
		WithField("time_to_remind", cfg.Reminder.TimeToRemind).
		Info("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Database Connection
	db, err := idb.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	if err := idb.Migrate(ctx, db, cfg.Database.Driver); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database schema")
	}
	repo, err := idb.NewTimingRepository(db, cfg.Database.Driver)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not initialize timing repository")
	}
	mainLogger.WithField("driver", cfg.Database.Driver).Info("Timing store ready")

	commenter := linear.NewGraphQLClient(cfg.Linear, &http.Client{Timeout: cfg.Reminder.SendTimeout})
	adminService := app.NewAdminService(repo, commenter, cfg)

	// Initialize Telegram Bot; it only carries operator alerts and commands.
	var alerter operator.Notifier = operator.Nop{}
	var bot *telebot.Bot
	if cfg.Telegram.Enabled() {
		botLogger := logger.Component("telebot")
		pref := telebot.Settings{
			Token:  cfg.Telegram.Token.Reveal(),
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID).WithField("chat_id", c.Chat().ID)
				}
				entry.Error("Telegram handler failed")
			},
		}
		bot, err = telebot.NewBot(pref)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		alerter = telegram.NewTelebotAdapter(bot, cfg.Telegram.AdminID)
		telegram.RegisterBotCommands(bot, adminService, botLogger)
		telegram.RegisterAdminHandlers(ctx, bot, adminService, botLogger)
		mainLogger.Info("Admin command handlers registered.")
	} else {
		mainLogger.Warn("Telegram is not configured; send failures are only logged")
	}

	processor := app.NewEventProcessor(repo, cfg, logger.Component("event_processor"))
	dispatcher := app.NewReminderDispatcher(repo, commenter, alerter, cfg, logger.Component("dispatcher"))

	reminderScheduler := scheduler.NewReminderScheduler(dispatcher, repo, cfg, logger.Component("scheduler"))
	if err := reminderScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	handler := webhook.NewHandler(cfg.Linear.SigningKey, processor, logger.Component("webhook"))
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           webhook.NewRouter(handler, repo, logger.Log),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("Webhook server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Fatal("Webhook server failed")
		}
	}()

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	if bot != nil {
		go bot.Start()
	}
	mainLogger.Info("Application setup complete.")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	mainLogger.Info("Shutting down application...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("Webhook server did not shut down cleanly")
	}
	reminderScheduler.Stop()
	if bot != nil {
		bot.Stop()
	}
	cancel()
	mainLogger.Info("Application shut down gracefully.")
}
