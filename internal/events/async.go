package events

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"vehiql/internal/metrics"
)

// SinkFunc delivers one event to an external system.
type SinkFunc func(ctx context.Context, event Event) error

// Async decouples a slow sink from the publisher with a bounded queue.
// Events arriving while the queue is full are dropped and counted.
type Async struct {
	name    string
	sink    SinkFunc
	queue   chan Event
	timeout time.Duration
	logger  zerolog.Logger
}

func NewAsync(name string, size int, sink SinkFunc, logger *zerolog.Logger) *Async {
	if size <= 0 {
		size = 256
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("sink", name).Logger()
	}
	return &Async{name: name, sink: sink, queue: make(chan Event, size), timeout: 10 * time.Second, logger: l}
}

// Handle enqueues the event; it matches EventHandler so it can be subscribed directly.
func (a *Async) Handle(event Event) error {
	select {
	case a.queue <- event:
	default:
		metrics.IncEventDropped(a.name)
		a.logger.Warn().Str("event_type", event.Type).Msg("Sink queue full, event dropped")
	}
	return nil
}

// Run delivers queued events until ctx is done, then flushes what is still buffered.
func (a *Async) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			a.flush()
			return
		case ev := <-a.queue:
			a.deliver(ctx, ev)
		}
	}
}

func (a *Async) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	for {
		select {
		case ev := <-a.queue:
			a.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (a *Async) deliver(ctx context.Context, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.sink(ctx, ev); err != nil {
		metrics.IncSinkError(a.name)
		a.logger.Error().Err(err).Str("event_type", ev.Type).Str("event_id", ev.ID).Msg("Sink delivery failed")
	}
}
