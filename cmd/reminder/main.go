// Command reminder scans for upcoming renewals on a fixed interval, queues a
// reminder for each one and delivers queued reminders by email.
package main

import (
	"context"
	"log"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/subtracker/internal/app"
	"github.com/example/subtracker/internal/config"
	"github.com/example/subtracker/internal/core"
	"github.com/example/subtracker/internal/db"
	"github.com/example/subtracker/internal/firebase"
	"github.com/example/subtracker/internal/identity"
	"github.com/example/subtracker/pkg/mailer"
	"github.com/example/subtracker/pkg/messagequeue"
)

const emailCacheTTL = 24 * time.Hour

func main() {
	appConfig, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load application configuration: %v", err)
	}
	logger, err := app.NewLogger(appConfig.IsRelease())
	if err != nil {
		log.Fatalf("Failed to initialize Zap logger: %v", err)
	}
	defer logger.Sync()

	if err := appConfig.ValidateReminder(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	location, err := appConfig.Location()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancelInit := context.WithTimeout(ctx, 15*time.Second)
	defer cancelInit()
	clients, err := firebase.NewClients(initCtx, appConfig)
	if err != nil {
		logger.Fatal("Failed to initialize Firebase Admin SDK", zap.Error(err))
	}
	defer clients.Close()

	notes, err := app.NewNotesCipher(appConfig, logger)
	if err != nil {
		logger.Fatal("Failed to initialize notes cipher", zap.Error(err))
	}
	store := db.NewFirestoreSubscriptionStore(clients.Firestore, appConfig.SubscriptionsCollection, notes, logger)

	queue, err := messagequeue.NewRabbitMQService(messagequeue.NewRabbitMQServiceConfig{URL: appConfig.RabbitMQURL}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer queue.Close()

	emailCache, err := app.NewCache(initCtx, appConfig, logger)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer emailCache.Close()
	directory := identity.NewCachedDirectory(identity.NewAdminDirectory(clients.Auth), emailCache, emailCacheTTL, logger)

	smtpMailer, err := mailer.NewSMTPMailer(mailer.Config{
		Host:     appConfig.SMTPHost,
		Port:     appConfig.SMTPPort,
		Username: appConfig.SMTPUser,
		Password: appConfig.SMTPPass,
		From:     appConfig.MailFrom,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize mailer", zap.Error(err))
	}

	reminders := core.NewReminderService(store, queue, directory, smtpMailer, core.NewSystemClock(), core.ReminderConfig{
		Queue:    appConfig.ReminderQueue,
		Lead:     appConfig.ReminderLead,
		Interval: appConfig.ReminderInterval,
		Location: location,
	}, logger)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		core.RunScanner(ctx, reminders, appConfig.ReminderInterval, logger)
	}()
	go func() {
		defer wg.Done()
		if err := queue.Consume(ctx, appConfig.ReminderQueue, reminders.Deliver); err != nil {
			logger.Error("Reminder consumer stopped", zap.Error(err))
			stop()
		}
	}()

	logger.Info("Reminder worker started",
		zap.String("queue", appConfig.ReminderQueue),
		zap.Duration("lead", appConfig.ReminderLead),
		zap.Duration("interval", appConfig.ReminderInterval))
	<-ctx.Done()
	wg.Wait()
	logger.Info("Reminder worker exiting")
}
