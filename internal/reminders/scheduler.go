// Package reminders emails customers the day before a confirmed test drive.
package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vehiql/internal/database"
	"vehiql/internal/model"
	"vehiql/internal/notify"
)

type SchedulerConfig struct {
	Timezone      string // e.g. "America/Los_Angeles"
	DailyHour     int
	DailyMinute   int
	CheckInterval time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{Timezone: "UTC", DailyHour: 12, CheckInterval: time.Minute}
}

// BookingSource lists bookings with their car and customer.
type BookingSource interface {
	ListBookings(ctx context.Context, f database.BookingFilter) ([]model.BookingDetails, error)
}

type Scheduler struct {
	config   SchedulerConfig
	source   BookingSource
	channel  notify.Channel
	sender   *notify.Sender
	dealer   string
	location *time.Location
	logger   zerolog.Logger

	mu          sync.Mutex
	lastRunDate string
}

func NewScheduler(cfg SchedulerConfig, source BookingSource, channel notify.Channel, sender *notify.Sender,
	dealershipName string, logger zerolog.Logger) (*Scheduler, error) {
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reminder timezone: %w", err)
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	return &Scheduler{
		config:   cfg,
		source:   source,
		channel:  channel,
		sender:   sender,
		dealer:   dealershipName,
		location: loc,
		logger:   logger.With().Str("component", "reminders").Logger(),
	}, nil
}

// Start checks the clock every CheckInterval and runs once a day at the configured time.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().
		Str("timezone", s.config.Timezone).
		Str("daily_time", fmt.Sprintf("%02d:%02d", s.config.DailyHour, s.config.DailyMinute)).
		Msg("reminder scheduler started")

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.checkAndRun(ctx, now)
		}
	}
}

// checkAndRun reports whether the daily run happened on this tick.
func (s *Scheduler) checkAndRun(ctx context.Context, now time.Time) bool {
	now = now.In(s.location)
	today := now.Format(model.DateLayout)

	s.mu.Lock()
	due := s.lastRunDate != today && now.Hour() == s.config.DailyHour && now.Minute() >= s.config.DailyMinute
	if due {
		s.lastRunDate = today
	}
	s.mu.Unlock()
	if !due {
		return false
	}

	sent, err := s.SendForDate(ctx, now.AddDate(0, 0, 1))
	if err != nil {
		s.logger.Error().Err(err).Msg("daily reminders failed")
	} else {
		s.logger.Info().Int("sent", sent).Str("date", today).Msg("daily reminders processed")
	}
	return true
}

// SendForDate reminds every customer with a CONFIRMED test drive on date.
func (s *Scheduler) SendForDate(ctx context.Context, date time.Time) (int, error) {
	bookings, err := s.source.ListBookings(ctx, database.BookingFilter{
		Status: model.StatusConfirmed,
		Date:   model.DateOnly(date),
	})
	if err != nil {
		return 0, fmt.Errorf("list confirmed bookings: %w", err)
	}

	sent := 0
	for _, b := range bookings {
		if b.User == nil || b.User.Email == "" {
			continue
		}
		if err := s.sender.SendWithRetry(ctx, s.channel, reminderMessage(b, s.dealer)); err != nil {
			s.logger.Warn().Err(err).Str("booking_id", b.ID).Msg("reminder not delivered")
			continue
		}
		sent++
	}
	return sent, nil
}

func reminderMessage(b model.BookingDetails, dealer string) notify.Message {
	car := "your car"
	if b.Car != nil {
		car = fmt.Sprintf("the %d %s %s", b.Car.Year, b.Car.Make, b.Car.Model)
	}
	name := b.User.Name
	if name == "" {
		name = "there"
	}
	return notify.Message{
		To:      b.User.Email,
		Subject: fmt.Sprintf("Reminder: test drive tomorrow at %s", b.StartTime),
		Body: fmt.Sprintf("Hi %s,\n\nThis is a reminder that your test drive of %s at %s is tomorrow, %s, from %s to %s.\n",
			name, car, dealer, b.BookingDate.Format("Monday, January 2"), b.StartTime, b.EndTime),
	}
}
