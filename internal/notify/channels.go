package notify

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gopkg.in/gomail.v2"
)

// Message is one outgoing notification. To is ignored by the admin channel.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Channel delivers messages over one transport.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// TelegramError represents an error from Telegram API.
type TelegramError struct {
	Code       int
	Message    string
	RetryAfter int // seconds, set on 429
}

func (e *TelegramError) Error() string {
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
}

// IsTelegramError checks if the error is a TelegramError.
func IsTelegramError(err error) (*TelegramError, bool) {
	var tgErr *TelegramError
	if errors.As(err, &tgErr) {
		return tgErr, true
	}
	return nil, false
}

// BotAPI is the subset of tgbotapi.BotAPI used here.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramChannel posts messages to the admin chats.
type TelegramChannel struct {
	bot     BotAPI
	chatIDs []int64
}

func NewTelegramChannel(bot BotAPI, chatIDs []int64) *TelegramChannel {
	return &TelegramChannel{bot: bot, chatIDs: chatIDs}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(_ context.Context, msg Message) error {
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n\n" + msg.Body
	}
	for _, id := range t.chatIDs {
		if _, err := t.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
			return translateTelegram(err)
		}
	}
	return nil
}

// SendDocument uploads a file to every admin chat.
func (t *TelegramChannel) SendDocument(_ context.Context, filename string, data []byte, caption string) error {
	for _, id := range t.chatIDs {
		doc := tgbotapi.NewDocument(id, tgbotapi.FileBytes{Name: filename, Bytes: data})
		doc.Caption = caption
		if _, err := t.bot.Send(doc); err != nil {
			return translateTelegram(err)
		}
	}
	return nil
}

func translateTelegram(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &TelegramError{Code: apiErr.Code, Message: apiErr.Message, RetryAfter: apiErr.RetryAfter}
	}
	return err
}

// Dialer is the subset of gomail.Dialer used here.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel mails customers through SMTP.
type EmailChannel struct {
	dialer Dialer
	from   string
}

func NewEmailChannel(dialer Dialer, from string) *EmailChannel {
	return &EmailChannel{dialer: dialer, from: from}
}

// NewSMTPDialer builds a gomail dialer.
func NewSMTPDialer(host string, port int, username, password string) *gomail.Dialer {
	return gomail.NewDialer(host, port, username, password)
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Body)
	return e.dialer.DialAndSend(m)
}

var ErrNoRecipient = errors.New("message has no recipient")
