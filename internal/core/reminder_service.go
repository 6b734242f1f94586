package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/subtracker/internal/db"
	"github.com/example/subtracker/internal/models"
)

// RenewalReminder is the queued message for one upcoming renewal.
type RenewalReminder struct {
	UserID         string              `json:"userId"`
	SubscriptionID string              `json:"subscriptionId"`
	ServiceName    string              `json:"serviceName"`
	Price          float64             `json:"price"`
	BillingCycle   models.BillingCycle `json:"billingCycle"`
	RenewalDate    int64               `json:"renewalDate"`
}

// ReminderConfig controls the renewal scan window and destination queue.
type ReminderConfig struct {
	Queue    string
	Lead     time.Duration
	Interval time.Duration
	Location *time.Location
}

// ReminderService finds upcoming renewals and emails their owners.
type ReminderService struct {
	finder    db.RenewalFinder
	publisher Publisher
	directory UserDirectory
	mailer    Mailer
	clock     Clock
	cfg       ReminderConfig
	logger    *zap.Logger

	mu   sync.Mutex
	next time.Time // start of the next window; zero before the first successful scan
}

func NewReminderService(finder db.RenewalFinder, publisher Publisher, directory UserDirectory, mailer Mailer, clock Clock, cfg ReminderConfig, logger *zap.Logger) *ReminderService {
	if clock == nil {
		clock = NewSystemClock()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReminderService{
		finder:    finder,
		publisher: publisher,
		directory: directory,
		mailer:    mailer,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Scan queues a reminder for every active subscription renewing in
// [from, now+lead+interval), where from is the end of the last successful
// scan (now+lead on the first one). Windows are contiguous however late the
// scans run, and a failed scan leaves its window to the next one, which may
// queue part of it again. It returns the number of reminders queued.
func (s *ReminderService) Scan(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	to := s.clock.Now().Add(s.cfg.Lead + s.cfg.Interval)
	from := s.next
	if from.IsZero() {
		from = to.Add(-s.cfg.Interval)
	}
	if !from.Before(to) {
		return 0, nil
	}

	due, err := s.finder.FindRenewals(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to find renewals: %w", err)
	}

	queued := 0
	for _, d := range due {
		body, err := json.Marshal(RenewalReminder{
			UserID:         d.UserID,
			SubscriptionID: d.Subscription.ID,
			ServiceName:    d.Subscription.ServiceName,
			Price:          d.Subscription.Price,
			BillingCycle:   d.Subscription.BillingCycle,
			RenewalDate:    d.Subscription.RenewalDate,
		})
		if err != nil {
			return queued, fmt.Errorf("failed to encode reminder: %w", err)
		}
		if err := s.publisher.Publish(ctx, s.cfg.Queue, body); err != nil {
			return queued, fmt.Errorf("failed to queue reminder for subscription '%s': %w", d.Subscription.ID, err)
		}
		queued++
	}
	s.next = to
	s.logger.Info("Renewal scan finished",
		zap.Time("from", from), zap.Time("to", to), zap.Int("queued", queued))
	return queued, nil
}

// Deliver handles one queued reminder. Malformed messages are dropped.
func (s *ReminderService) Deliver(ctx context.Context, body []byte) error {
	var reminder RenewalReminder
	if err := json.Unmarshal(body, &reminder); err != nil || reminder.UserID == "" {
		s.logger.Warn("Dropping malformed renewal reminder", zap.ByteString("body", body), zap.Error(err))
		return nil
	}

	email, err := s.directory.EmailOf(ctx, reminder.UserID)
	if err != nil {
		return fmt.Errorf("failed to look up email of user '%s': %w", reminder.UserID, err)
	}
	if email == "" {
		s.logger.Warn("User has no email address, skipping reminder", zap.String("userID", reminder.UserID))
		return nil
	}

	subject, text := s.compose(reminder)
	if err := s.mailer.Send(ctx, email, subject, text); err != nil {
		return fmt.Errorf("failed to send reminder for subscription '%s': %w", reminder.SubscriptionID, err)
	}
	s.logger.Info("Renewal reminder sent",
		zap.String("userID", reminder.UserID), zap.String("subscriptionID", reminder.SubscriptionID))
	return nil
}

func (s *ReminderService) compose(r RenewalReminder) (string, string) {
	date := time.UnixMilli(r.RenewalDate).In(s.cfg.Location).Format("January 2, 2006")
	price := decimal.NewFromFloat(r.Price).StringFixed(2)
	subject := fmt.Sprintf("%s renews on %s", r.ServiceName, date)
	text := fmt.Sprintf("Your %s subscription renews on %s.\n\nPrice: %s (%s)\n\n"+
		"Open your dashboard to pause it if you no longer need it.",
		r.ServiceName, date, price, r.BillingCycle)
	return subject, text
}

// Scanner is the part of ReminderService driven by RunScanner.
type Scanner interface {
	Scan(ctx context.Context) (int, error)
}

// RunScanner scans once at start and then every interval until ctx is done.
// A failed scan is logged and retried at the next tick.
func RunScanner(ctx context.Context, scanner Scanner, interval time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := scanner.Scan(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Renewal scan failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
