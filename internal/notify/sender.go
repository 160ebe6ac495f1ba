package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"vehiql/internal/metrics"
)

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		RetryDelays: []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
	}
}

// ErrPermanent marks failures that retrying cannot fix.
var ErrPermanent = errors.New("permanent delivery failure")

// Sender paces outgoing messages and retries transient failures.
type Sender struct {
	limiter *rate.Limiter
	retry   RetryConfig
	logger  zerolog.Logger
}

// NewSender allows perSecond messages per second across all channels; 0 means unlimited.
func NewSender(perSecond float64, retry RetryConfig, logger zerolog.Logger) *Sender {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if len(retry.RetryDelays) == 0 {
		retry.RetryDelays = DefaultRetryConfig().RetryDelays
	}
	return &Sender{
		limiter: rate.NewLimiter(limit, 1),
		retry:   retry,
		logger:  logger.With().Str("component", "notify_sender").Logger(),
	}
}

func (s *Sender) delay(attempt int) time.Duration {
	if attempt < len(s.retry.RetryDelays) {
		return s.retry.RetryDelays[attempt]
	}
	return s.retry.RetryDelays[len(s.retry.RetryDelays)-1]
}

// SendWithRetry delivers msg over ch, waiting for the rate limiter first.
func (s *Sender) SendWithRetry(ctx context.Context, ch Channel, msg Message) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		err := ch.Send(ctx, msg)
		if err == nil {
			metrics.IncNotification(ch.Name(), "sent")
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrNoRecipient) {
			metrics.IncNotification(ch.Name(), "failed")
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}

		wait := s.delay(attempt)
		if tgErr, ok := IsTelegramError(err); ok {
			switch tgErr.Code {
			case 429:
				if tgErr.RetryAfter > 0 {
					wait = time.Duration(tgErr.RetryAfter) * time.Second
				}
				s.logger.Info().Dur("retry_after", wait).Int("attempt", attempt).Msg("rate limited by Telegram, waiting")
			case 400, 403:
				s.logger.Warn().Err(err).Msg("telegram rejected message")
				metrics.IncNotification(ch.Name(), "failed")
				return fmt.Errorf("%w: %v", ErrPermanent, err)
			}
		}

		if attempt == s.retry.MaxRetries {
			break
		}
		metrics.IncNotificationRetry()
		s.logger.Info().Err(err).Str("channel", ch.Name()).Int("attempt", attempt+1).Dur("delay", wait).Msg("retrying notification")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.IncNotification(ch.Name(), "failed")
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
