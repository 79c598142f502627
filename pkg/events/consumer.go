package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/warden/pkg/observability"
)

// Handler processes a decoded event envelope. Handlers must be idempotent:
// Redis pub/sub delivers at-most-once per subscriber, but the expiry sweep
// and manual flushes can replay the same logical change.
type Handler interface {
	HandleEvent(ctx context.Context, env Envelope) error
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, env Envelope) error

// HandleEvent implements Handler
func (f HandlerFunc) HandleEvent(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Consumer subscribes to the role-event channel and dispatches envelopes to
// a handler with bounded retries. Malformed events are dropped, never
// retried: a payload that failed to decode once will fail forever.
type Consumer struct {
	client  *redis.Client
	channel string
	handler Handler
	retry   *RetryPolicy
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewConsumer creates a consumer for the given channel
func NewConsumer(client *redis.Client, channel string, handler Handler, retry *RetryPolicy, logger *observability.Logger, metrics *observability.Metrics) *Consumer {
	if channel == "" {
		channel = Channel
	}
	if retry == nil {
		retry = NewRetryPolicy(DefaultRetryConfig())
	}
	return &Consumer{
		client:  client,
		channel: channel,
		handler: handler,
		retry:   retry,
		logger:  logger,
		metrics: metrics,
	}
}

// Run subscribes and processes messages until the context is cancelled
func (c *Consumer) Run(ctx context.Context) error {
	defer observability.RecoverPanic(c.logger, "event consumer")

	sub := c.client.Subscribe(ctx, c.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed so callers can rely on
	// Run being attached before they publish
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	c.logger.WithField("channel", c.channel).Info("event consumer started")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("event consumer stopping")
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			c.process(ctx, []byte(msg.Payload))
		}
	}
}

func (c *Consumer) process(ctx context.Context, payload []byte) {
	env, err := ParseEnvelope(payload)
	if err != nil {
		c.drop("malformed")
		c.logger.WithError(err).Warn("dropping malformed event")
		return
	}

	ctx = observability.WithCorrelationID(ctx, env.ID)
	logger := c.logger.WithFields(map[string]interface{}{
		"event_id":   env.ID,
		"event_kind": string(env.Kind),
	})

	attempts := 0
	for {
		attempts++
		err := c.handleSafely(ctx, env)
		if err == nil {
			return
		}

		if !c.retry.ShouldRetry(attempts, err) {
			c.drop("handler_failed")
			logger.WithError(err).WithField("attempts", attempts).Error("event handler failed, giving up")
			return
		}

		delay := c.retry.NextRetryDelay(attempts)
		logger.WithError(err).WithField("attempt", attempts).Warnf("event handler failed, retrying in %s", delay)

		select {
		case <-ctx.Done():
			c.drop("shutdown")
			return
		case <-time.After(delay):
		}
	}
}

// handleSafely converts handler panics into errors so one poisoned event
// cannot kill the consumer loop
func (c *Consumer) handleSafely(ctx context.Context, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = observability.MustRecover(r)
		}
	}()
	return c.handler.HandleEvent(ctx, env)
}

func (c *Consumer) drop(reason string) {
	if c.metrics != nil {
		c.metrics.EventsDroppedTotal.WithLabelValues(reason).Inc()
	}
}

// Publish sends an envelope on the channel. The expiry sweep and tests use
// this; the domain service has its own publisher.
func Publish(ctx context.Context, client *redis.Client, channel string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, data).Err()
}
