package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata" // daily check-in timezones must resolve on minimal images

	"push_notification_server/internal/app"
	"push_notification_server/internal/domain/notification"
	"push_notification_server/internal/domain/subscription"
	"push_notification_server/internal/infra/config"
	idb "push_notification_server/internal/infra/database"
	"push_notification_server/internal/infra/httpapi"
	"push_notification_server/internal/infra/jsonstore"
	"push_notification_server/internal/infra/logger"
	"push_notification_server/internal/infra/metrics"
	"push_notification_server/internal/infra/scheduler"
	"push_notification_server/internal/infra/telegram"
	"push_notification_server/internal/infra/webpush"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const shutdownTimeout = 30 * time.Second

type storage struct {
	subs   subscription.Repository
	queues notification.Store
	close  func() error
}

func openStorage(ctx context.Context, cfg *config.AppConfig, log *logrus.Entry) (*storage, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := idb.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		log.Info("PostgreSQL storage ready")
		return &storage{
			subs:   idb.NewPostgresSubscriptionRepository(db),
			queues: idb.NewPostgresScheduleStore(db),
			close:  db.Close,
		}, nil
	default:
		store, err := jsonstore.Open(cfg.DataDir, log)
		if err != nil {
			return nil, err
		}
		log.WithField("data_dir", cfg.DataDir).Info("File storage ready")
		return &storage{subs: store, queues: store, close: store.Close}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Could not load application configuration: %v", err)
	}

	baseLogger := logger.Init(cfg)
	mainLogger := baseLogger.WithField("component", "main")
	mainLogger.WithFields(logrus.Fields{
		"environment":  cfg.Environment,
		"store_driver": cfg.StoreDriver,
		"port":         cfg.Port,
	}).Info("Push notification server starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg, baseLogger.WithField("component", "storage"))
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not open storage")
	}
	defer func() {
		if err := store.close(); err != nil {
			mainLogger.WithError(err).Warn("Failed to close storage")
		}
	}()

	sender := webpush.NewSender(webpush.Config{
		Subject:         cfg.VAPIDSubject,
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		TTLSeconds:      cfg.PushTTLSeconds,
	}, baseLogger.WithField("component", "webpush"))
	payloads := notification.NewPayloadBuilder(cfg.AppName, cfg.PayloadIcon, cfg.PayloadBadge)

	notificationService := app.NewNotificationServiceImpl(store.subs, store.queues, sender, payloads, baseLogger.WithField("component", "notification_service"))
	adminService := app.NewAdminService(store.subs, store.queues, cfg.AdminTelegramID, baseLogger.WithField("component", "admin_service"))
	recorder := metrics.PrometheusRecorder{}
	dispatcher := app.NewDispatcher(store.subs, store.queues, sender, payloads, baseLogger.WithField("component", "dispatcher"), app.DispatcherConfig{
		Concurrency: cfg.DispatchConcurrency,
		Recorder:    recorder,
	})

	// Operator bot is optional.
	var (
		bot     *telebot.Bot
		alerter scheduler.Alerter
	)
	if cfg.TelegramToken != "" {
		botLogger := baseLogger.WithField("component", "telebot")
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram handler failed")
			},
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		telegram.RegisterAdminHandlers(ctx, bot, adminService, cfg.AdminTelegramID, botLogger)
		telegram.RegisterBotCommands(bot, cfg.AdminTelegramID, botLogger)
		alerter = telegram.NewAlerter(telegram.NewTelebotAdapter(bot), cfg.AdminTelegramID, botLogger)
		mainLogger.Info("Operator bot configured")
	}

	notifScheduler := scheduler.NewNotificationScheduler(
		dispatcher,
		recorder,
		alerter,
		baseLogger.WithField("component", "scheduler"),
		cfg.CronSpecHourly,
		cfg.CronSpecQuarterHour,
	)
	if err := notifScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}

	handler := httpapi.NewHandler(notificationService, adminService, httpapi.Config{
		Production:         cfg.IsProduction(),
		AllowedOrigins:     cfg.AllowedOrigins,
		AdminAPIKey:        cfg.AdminAPIKey,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, baseLogger.WithField("component", "http"))
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		mainLogger.WithField("addr", server.Addr).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	if bot != nil {
		go bot.Start()
	}

	mainLogger.Info("Application setup complete")

	select {
	case <-ctx.Done():
		mainLogger.Info("Shutdown signal received")
	case err := <-serverErr:
		mainLogger.WithError(err).Error("HTTP server failed")
	}

	mainLogger.Info("Shutting down application...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("HTTP server did not shut down cleanly")
	}
	notifScheduler.Stop()
	if bot != nil {
		bot.Stop()
	}
	mainLogger.Info("Application shut down gracefully")
}
