package notify

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"vehiql/internal/events"
)

type fakeChannel struct {
	name string
	errs []error
	sent []Message
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(_ context.Context, msg Message) error {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.sent = append(f.sent, msg)
	return nil
}

func fastSender() *Sender {
	return NewSender(0, RetryConfig{MaxRetries: 2, RetryDelays: []time.Duration{time.Millisecond}}, zerolog.New(io.Discard))
}

func TestSendWithRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("RetriesTransientErrors", func(t *testing.T) {
		ch := &fakeChannel{name: "email", errs: []error{errors.New("smtp down"), errors.New("smtp down")}}
		require.NoError(t, fastSender().SendWithRetry(ctx, ch, Message{To: "a@b.c"}))
		assert.Len(t, ch.sent, 1)
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		ch := &fakeChannel{name: "email", errs: []error{errors.New("x"), errors.New("x"), errors.New("x")}}
		err := fastSender().SendWithRetry(ctx, ch, Message{To: "a@b.c"})
		assert.ErrorContains(t, err, "max retries exceeded")
		assert.Empty(t, ch.sent)
	})

	t.Run("TelegramForbiddenIsPermanent", func(t *testing.T) {
		ch := &fakeChannel{name: "telegram", errs: []error{&TelegramError{Code: 403, Message: "blocked"}}}
		err := fastSender().SendWithRetry(ctx, ch, Message{})
		assert.ErrorIs(t, err, ErrPermanent)
		assert.Empty(t, ch.sent)
	})

	t.Run("TelegramTooManyRequestsRetries", func(t *testing.T) {
		ch := &fakeChannel{name: "telegram", errs: []error{&TelegramError{Code: 429}}}
		require.NoError(t, fastSender().SendWithRetry(ctx, ch, Message{}))
		assert.Len(t, ch.sent, 1)
	})

	t.Run("ContextCancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		ch := &fakeChannel{name: "email"}
		assert.Error(t, fastSender().SendWithRetry(cctx, ch, Message{To: "a@b.c"}))
	})
}

type fakeBot struct {
	sent []tgbotapi.Chattable
	err  error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if b.err != nil {
		return tgbotapi.Message{}, b.err
	}
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, nil
}

func TestTelegramChannel(t *testing.T) {
	bot := &fakeBot{}
	ch := NewTelegramChannel(bot, []int64{1, 2})

	require.NoError(t, ch.Send(context.Background(), Message{Subject: "Hi", Body: "there"}))
	require.Len(t, bot.sent, 2)
	msg := bot.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(1), msg.ChatID)
	assert.Equal(t, "Hi\n\nthere", msg.Text)

	require.NoError(t, ch.SendDocument(context.Background(), "report.xlsx", []byte("x"), "Monthly"))
	doc := bot.sent[2].(tgbotapi.DocumentConfig)
	assert.Equal(t, "Monthly", doc.Caption)

	bot.err = &tgbotapi.Error{Code: 429, Message: "slow down", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}}
	err := ch.Send(context.Background(), Message{Body: "x"})
	tgErr, ok := IsTelegramError(err)
	require.True(t, ok)
	assert.Equal(t, 429, tgErr.Code)
	assert.Equal(t, 3, tgErr.RetryAfter)
}

type fakeDialer struct {
	msgs []*gomail.Message
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.msgs = append(d.msgs, m...)
	return nil
}

func TestEmailChannel(t *testing.T) {
	d := &fakeDialer{}
	ch := NewEmailChannel(d, "dealer@example.com")

	require.NoError(t, ch.Send(context.Background(), Message{To: "c@example.com", Subject: "S", Body: "B"}))
	require.Len(t, d.msgs, 1)
	assert.Equal(t, []string{"c@example.com"}, d.msgs[0].GetHeader("To"))
	assert.Equal(t, []string{"dealer@example.com"}, d.msgs[0].GetHeader("From"))

	assert.ErrorIs(t, ch.Send(context.Background(), Message{}), ErrNoRecipient)
}

func TestNotifier_Deliver(t *testing.T) {
	admin := &fakeChannel{name: "telegram"}
	customer := &fakeChannel{name: "email"}
	n := NewNotifier(admin, customer, fastSender(), "Vehiql Motors", zerolog.New(io.Discard))

	publish := func(eventType string, p any) events.Event {
		bus := events.NewEventBus(nil)
		var got events.Event
		bus.Subscribe(eventType, func(e events.Event) error { got = e; return nil })
		require.NoError(t, bus.PublishJSON(eventType, "b1", p))
		return got
	}

	booked := events.BookingPayload{BookingID: "b1", CarName: "2024 Toyota Supra", UserName: "Ann",
		UserEmail: "ann@example.com", BookingDate: "2026-11-02", StartTime: "10:00", EndTime: "11:00", Status: "PENDING"}

	require.NoError(t, n.Deliver(context.Background(), publish(events.TestDriveBooked, booked)))
	require.Len(t, admin.sent, 1)
	assert.Contains(t, admin.sent[0].Body, "Monday, November 2, 2026, 10:00-11:00")
	require.Len(t, customer.sent, 1)
	assert.Equal(t, "ann@example.com", customer.sent[0].To)
	assert.Contains(t, customer.sent[0].Body, "Vehiql Motors")

	confirmed := booked
	confirmed.Status = "CONFIRMED"
	require.NoError(t, n.Deliver(context.Background(), publish(events.TestDriveStatusChanged, confirmed)))
	assert.Len(t, admin.sent, 1, "status changes are not sent to staff")
	require.Len(t, customer.sent, 2)
	assert.Equal(t, "Your test drive is confirmed", customer.sent[1].Subject)

	pending := booked
	pending.UserEmail = ""
	require.NoError(t, n.Deliver(context.Background(), publish(events.TestDriveCancelled, pending)))
	assert.Len(t, admin.sent, 2)
	assert.Len(t, customer.sent, 2)

	require.NoError(t, n.Deliver(context.Background(), publish(events.DealershipHoursSaved, events.HoursPayload{Days: 6})))
	assert.Contains(t, admin.sent[2].Body, "6 days")

	assert.Error(t, n.Deliver(context.Background(), events.Event{Type: events.TestDriveBooked, Payload: []byte("{")}))
}

func TestNotifier_NoChannels(t *testing.T) {
	n := NewNotifier(nil, nil, fastSender(), "", zerolog.New(io.Discard))
	ev := events.Event{Type: events.TestDriveBooked, Payload: []byte(`{"userEmail":"a@b.c"}`)}
	assert.NoError(t, n.Deliver(context.Background(), ev))
}
