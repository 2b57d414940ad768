// Package outbox dispatches queued finalization side effects to their
// handlers with lease/ack semantics and bounded retries.
package outbox

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/offertoryapp/offertory/internal/services/attestation/storage"
)

// EventHandler consumes one finalization outbox event. A nil return
// acknowledges the event; an error schedules a retry until the attempt
// budget runs out.
type EventHandler interface {
	Handle(ctx context.Context, event storage.FinalizationOutboxEvent) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event storage.FinalizationOutboxEvent) error

// Handle implements EventHandler.
func (f EventHandlerFunc) Handle(ctx context.Context, event storage.FinalizationOutboxEvent) error {
	return f(ctx, event)
}

// Config controls dispatcher loop behavior.
type Config struct {
	Consumer      string
	PollInterval  time.Duration
	LeaseTTL      time.Duration
	BatchSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

const (
	defaultConsumer      = "attestation-outbox"
	defaultPollInterval  = 5 * time.Second
	defaultLeaseTTL      = time.Minute
	defaultBatchSize     = 10
	defaultMaxAttempts   = 5
	defaultRetryBackoff  = 30 * time.Second
	defaultRetryMaxDelay = 10 * time.Minute
)

func (c Config) normalized() Config {
	if strings.TrimSpace(c.Consumer) == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = defaultLeaseTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	return c
}

// Dispatcher polls the finalization outbox and routes due events to their
// handlers by event type.
type Dispatcher struct {
	store    storage.OutboxStore
	handlers map[string]EventHandler
	config   Config
	clock    func() time.Time
}

// New constructs an outbox dispatcher.
func New(store storage.OutboxStore, handlers map[string]EventHandler, config Config) *Dispatcher {
	return &Dispatcher{
		store:    store,
		handlers: handlers,
		config:   config.normalized(),
		clock:    time.Now,
	}
}

// Run polls until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil || d.store == nil {
		return fmt.Errorf("outbox store is not configured")
	}

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := d.DispatchDue(ctx); err != nil && ctx.Err() == nil {
			log.Printf("outbox dispatch error=%v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DispatchDue leases and processes one batch of due events. It returns the
// number of events handled to completion (succeeded or parked dead).
func (d *Dispatcher) DispatchDue(ctx context.Context) (int, error) {
	if d == nil || d.store == nil {
		return 0, fmt.Errorf("outbox store is not configured")
	}

	now := d.now()
	events, err := d.store.LeaseOutboxEvents(ctx, d.config.Consumer, d.config.BatchSize, now, d.config.LeaseTTL)
	if err != nil {
		return 0, fmt.Errorf("lease outbox events: %w", err)
	}

	finished := 0
	for _, event := range events {
		done, err := d.process(ctx, event)
		if err != nil {
			return finished, err
		}
		if done {
			finished++
		}
	}
	return finished, nil
}

func (d *Dispatcher) process(ctx context.Context, event storage.FinalizationOutboxEvent) (bool, error) {
	handler, ok := d.handlers[event.EventType]
	if !ok {
		log.Printf("outbox event parked event_id=%s event_type=%s reason=no_handler", event.ID, event.EventType)
		if err := d.store.MarkOutboxDead(ctx, event.ID, d.config.Consumer, "no handler for event type", d.now()); err != nil {
			return false, fmt.Errorf("park unhandled outbox event %s: %w", event.ID, err)
		}
		return true, nil
	}

	handleErr := handler.Handle(ctx, event)
	now := d.now()
	if handleErr == nil {
		if err := d.store.MarkOutboxSucceeded(ctx, event.ID, d.config.Consumer, now); err != nil {
			return false, fmt.Errorf("ack outbox event %s: %w", event.ID, err)
		}
		return true, nil
	}

	attempts := event.AttemptCount + 1
	if attempts >= d.config.MaxAttempts {
		log.Printf("outbox event dead event_id=%s event_type=%s attempts=%d error=%v", event.ID, event.EventType, attempts, handleErr)
		if err := d.store.MarkOutboxDead(ctx, event.ID, d.config.Consumer, handleErr.Error(), now); err != nil {
			return false, fmt.Errorf("park outbox event %s: %w", event.ID, err)
		}
		return true, nil
	}

	nextAttemptAt := now.Add(d.retryDelay(event.AttemptCount))
	log.Printf("outbox event retry event_id=%s event_type=%s attempts=%d next_attempt_at=%s error=%v",
		event.ID, event.EventType, attempts, nextAttemptAt.Format(time.RFC3339), handleErr)
	if err := d.store.MarkOutboxRetry(ctx, event.ID, d.config.Consumer, nextAttemptAt, handleErr.Error()); err != nil {
		return false, fmt.Errorf("reschedule outbox event %s: %w", event.ID, err)
	}
	return false, nil
}

// retryDelay doubles the base delay per prior attempt up to the cap.
func (d *Dispatcher) retryDelay(attemptCount int) time.Duration {
	delay := d.config.RetryBackoff
	for i := 0; i < attemptCount && delay < d.config.RetryMaxDelay; i++ {
		delay *= 2
	}
	if delay > d.config.RetryMaxDelay {
		delay = d.config.RetryMaxDelay
	}
	return delay
}

func (d *Dispatcher) now() time.Time {
	if d.clock == nil {
		return time.Now().UTC()
	}
	return d.clock().UTC()
}
