package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// envelope is what travels over the Redis channel
type envelope struct {
	UserID uuid.UUID `json:"user_id"`
	Event  Event     `json:"event"`
}

// RedisBus fans events out through a Redis channel so that a user connected
// to another instance still receives them. Every instance relays what it
// hears to its local Manager, including its own publishes.
type RedisBus struct {
	client  *redis.Client
	channel string
	local   *Manager
	log     *slog.Logger
}

func NewRedisBus(client *redis.Client, channel string, local *Manager, log *slog.Logger) *RedisBus {
	if channel == "" {
		channel = "ridepool:events"
	}
	return &RedisBus{client: client, channel: channel, local: local, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, userID uuid.UUID, eventType string, data any) error {
	payload, err := json.Marshal(envelope{UserID: userID, Event: NewEvent(eventType, data)})
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", eventType, err)
	}

	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// Run relays channel messages to local connections until ctx ends
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	b.log.Info("relaying realtime events from redis", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn("invalid realtime envelope", "error", err)
				continue
			}
			if err := b.local.Deliver(env.UserID, env.Event); err != nil {
				b.log.Warn("failed to relay event",
					"user_id", env.UserID,
					"type", env.Event.Type,
					"error", err)
			}
		}
	}
}
