package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vehiql/internal/events"
	"vehiql/internal/model"
)

// Notifier turns domain events into admin and customer messages.
type Notifier struct {
	admin    Channel // may be nil
	customer Channel // may be nil
	sender   *Sender
	dealer   string
	logger   zerolog.Logger
}

func NewNotifier(admin, customer Channel, sender *Sender, dealershipName string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		admin:    admin,
		customer: customer,
		sender:   sender,
		dealer:   dealershipName,
		logger:   logger.With().Str("component", "notifier").Logger(),
	}
}

// Deliver sends the messages for one event. It satisfies events.SinkFunc.
func (n *Notifier) Deliver(ctx context.Context, ev events.Event) error {
	if ev.Type == events.DealershipHoursSaved {
		var p events.HoursPayload
		if err := ev.Decode(&p); err != nil {
			return fmt.Errorf("decode hours payload: %w", err)
		}
		return n.toAdmin(ctx, Message{
			Subject: "Working hours updated",
			Body:    fmt.Sprintf("The weekly schedule was replaced (%d days configured).", p.Days),
		})
	}

	var p events.BookingPayload
	if err := ev.Decode(&p); err != nil {
		return fmt.Errorf("decode booking payload: %w", err)
	}

	var errs []error
	if msg, ok := AdminMessage(ev.Type, p); ok {
		errs = append(errs, n.toAdmin(ctx, msg))
	}
	if msg, ok := n.CustomerMessage(ev.Type, p); ok {
		errs = append(errs, n.toCustomer(ctx, msg))
	}
	return errors.Join(errs...)
}

func (n *Notifier) toAdmin(ctx context.Context, msg Message) error {
	if n.admin == nil {
		return nil
	}
	return n.sender.SendWithRetry(ctx, n.admin, msg)
}

func (n *Notifier) toCustomer(ctx context.Context, msg Message) error {
	if n.customer == nil || msg.To == "" {
		return nil
	}
	return n.sender.SendWithRetry(ctx, n.customer, msg)
}

// AdminMessage renders the staff notification for a booking event.
func AdminMessage(eventType string, p events.BookingPayload) (Message, bool) {
	who := p.UserName
	if who == "" {
		who = p.UserEmail
	}
	if who == "" {
		who = p.UserID
	}
	when := fmt.Sprintf("%s, %s-%s", humanDate(p.BookingDate), p.StartTime, p.EndTime)

	switch eventType {
	case events.TestDriveBooked:
		body := fmt.Sprintf("Car: %s\nCustomer: %s\nWhen: %s", p.CarName, who, when)
		if p.Notes != "" {
			body += "\nNotes: " + p.Notes
		}
		return Message{Subject: "New test drive request", Body: body}, true
	case events.TestDriveCancelled:
		return Message{
			Subject: "Test drive cancelled",
			Body:    fmt.Sprintf("Car: %s\nCustomer: %s\nWhen: %s", p.CarName, who, when),
		}, true
	}
	return Message{}, false
}

// CustomerMessage renders the email to the customer, if the event warrants one.
func (n *Notifier) CustomerMessage(eventType string, p events.BookingPayload) (Message, bool) {
	if p.UserEmail == "" {
		return Message{}, false
	}
	greeting := "Hello"
	if p.UserName != "" {
		greeting += " " + p.UserName
	}
	slot := fmt.Sprintf("%s from %s to %s", humanDate(p.BookingDate), p.StartTime, p.EndTime)
	sign := "\n\n" + n.dealer

	var subject, line string
	switch eventType {
	case events.TestDriveBooked:
		subject = "Your test drive request"
		line = fmt.Sprintf("we received your request to test drive the %s on %s. We will confirm it shortly.", p.CarName, slot)
	case events.TestDriveCancelled:
		subject = "Your test drive was cancelled"
		line = fmt.Sprintf("your test drive of the %s on %s has been cancelled.", p.CarName, slot)
	case events.TestDriveStatusChanged:
		switch model.BookingStatus(p.Status) {
		case model.StatusConfirmed:
			subject = "Your test drive is confirmed"
			line = fmt.Sprintf("your test drive of the %s on %s is confirmed. See you there!", p.CarName, slot)
		case model.StatusCompleted:
			subject = "Thanks for visiting"
			line = fmt.Sprintf("thanks for test driving the %s. Reply to this email if you have any questions.", p.CarName)
		case model.StatusNoShow:
			subject = "We missed you"
			line = fmt.Sprintf("we missed you at your test drive of the %s on %s. You can book another slot any time.", p.CarName, slot)
		default:
			return Message{}, false
		}
	default:
		return Message{}, false
	}

	return Message{To: p.UserEmail, Subject: subject, Body: strings.TrimSpace(greeting+", "+line) + sign}, true
}

func humanDate(s string) string {
	d, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return s
	}
	return d.Format("Monday, January 2, 2006")
}
