package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

// RedisBroker publishes notifications on a Redis channel so every API
// instance can deliver them to its own connections.
type RedisBroker struct {
	client  *redis.Client
	channel string
	hub     *Hub
	logger  *zap.Logger
}

// NewRedisBroker creates a broker that feeds hub.
func NewRedisBroker(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, channel: channel, hub: hub, logger: logger}
}

// Push publishes n. Delivery happens when Run receives it back.
func (b *RedisBroker) Push(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(frameFor(n).Data)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Run relays published notifications to the local hub until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	b.logger.Info("relaying notifications from redis", zap.String("channel", b.channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("redis subscription closed")
			}
			n, err := decodeNotification(msg.Payload)
			if err != nil {
				b.logger.Warn("discarding malformed notification", zap.Error(err))
				continue
			}
			b.hub.Deliver(n)
		}
	}
}

func decodeNotification(payload string) (domain.Notification, error) {
	var frame NotificationFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return domain.Notification{}, err
	}
	if frame.ID == "" || frame.RecipientID == "" {
		return domain.Notification{}, errors.New("notification id and recipient are required")
	}
	return domain.Notification{
		ID:          frame.ID,
		RecipientID: frame.RecipientID,
		RequestID:   frame.RequestID,
		Event:       frame.Event,
		Message:     frame.Message,
		IsRead:      frame.IsRead,
		CreatedAt:   frame.CreatedAt,
	}, nil
}
