package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"projectflow/backend/internal/logging"
)

const defaultPublishTimeout = 2 * time.Second

// RedisForwarder publishes events as JSON to a Redis pub/sub channel so other
// services can follow instance progress.
type RedisForwarder struct {
	client  redis.UniversalClient
	channel string
	timeout time.Duration
	logger  *logging.Logger
}

// NewRedisForwarder creates a forwarder for channel.
func NewRedisForwarder(client redis.UniversalClient, channel string, logger *logging.Logger) *RedisForwarder {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RedisForwarder{
		client:  client,
		channel: channel,
		timeout: defaultPublishTimeout,
		logger:  logger,
	}
}

// Attach subscribes the forwarder to every event on bus.
func (f *RedisForwarder) Attach(bus *Bus) {
	bus.SubscribeAll(f.Forward)
}

// Forward publishes one event. Failures are logged, never returned: a
// Redis outage must not affect the request that produced the event.
func (f *RedisForwarder) Forward(event *Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		f.logger.Error("failed to encode event", "type", event.Type, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	if err := f.client.Publish(ctx, f.channel, payload).Err(); err != nil {
		f.logger.Warn("failed to publish event to redis",
			"type", event.Type,
			"channel", f.channel,
			"error", err,
		)
	}
}
