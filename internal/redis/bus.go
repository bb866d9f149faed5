package redisc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/umar/roomchat/internal/events"
)

const busPrefix = "chat:"

// Deliverer hands a relayed frame to the local subscribers of channel.
type Deliverer interface {
	Deliver(ctx context.Context, channel string, data []byte) error
}

// Bus publishes events to every server instance. Each instance runs Relay
// to feed what it receives into its own hub.
type Bus struct {
	client *redis.Client
	log    *slog.Logger
}

func NewBus(client *redis.Client, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{client: client, log: logger.With("component", "bus")}
}

func (b *Bus) Publish(ctx context.Context, channel string, evt events.Event) error {
	data, err := evt.Encode(channel)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.Type, err)
	}
	if err := b.client.Publish(ctx, busChannel(channel), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Relay blocks until ctx is done, delivering every bus message to hub.
func (b *Bus) Relay(ctx context.Context, hub Deliverer) error {
	pubsub := b.client.PSubscribe(ctx, busPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe to bus: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			channel, ok := hubChannel(msg.Channel)
			if !ok {
				continue
			}
			if err := hub.Deliver(ctx, channel, []byte(msg.Payload)); err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return nil
				}
				b.log.Warn("relay delivery failed", "channel", channel, "error", err)
				continue
			}
			b.log.Debug("pubsub message", "channel", channel)
		}
	}
}

func busChannel(channel string) string { return busPrefix + channel }

func hubChannel(busChannel string) (string, bool) {
	channel, ok := strings.CutPrefix(busChannel, busPrefix)
	return channel, ok && channel != ""
}
