package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// WatermillConsumer feeds invalidation events into the local revocation
// cache. It runs on its own goroutines and never blocks validation callers;
// out-of-order or duplicate deliveries are harmless because the cache only
// ever moves versions forward.
type WatermillConsumer struct {
	subscriber message.Subscriber
	cache      ports.RevocationCache
	logger     *zap.Logger
}

// NewWatermillConsumer creates a consumer that applies revocation events to
// the given cache.
func NewWatermillConsumer(subscriber message.Subscriber, cache ports.RevocationCache, logger *zap.Logger) *WatermillConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatermillConsumer{
		subscriber: subscriber,
		cache:      cache,
		logger:     logger,
	}
}

// Run subscribes to both revocation topics and consumes until the context is
// cancelled.
func (c *WatermillConsumer) Run(ctx context.Context) error {
	userRevoked, err := c.subscriber.Subscribe(ctx, core.TopicUserRevoked)
	if err != nil {
		return err
	}

	sessionRevoked, err := c.subscriber.Subscribe(ctx, core.TopicSessionRevoked)
	if err != nil {
		return err
	}

	go c.consumeUserRevoked(userRevoked)
	go c.consumeSessionRevoked(sessionRevoked)

	return nil
}

func (c *WatermillConsumer) consumeUserRevoked(messages <-chan *message.Message) {
	for msg := range messages {
		var event core.UserRevokedEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			c.logger.Warn("dropping undecodable user_revoked event", zap.Error(err))
			msg.Ack()
			continue
		}

		c.cache.StoreVersion(event.TenantID, event.UserID, event.Version)
		msg.Ack()
	}
}

func (c *WatermillConsumer) consumeSessionRevoked(messages <-chan *message.Message) {
	for msg := range messages {
		var event core.SessionRevokedEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			c.logger.Warn("dropping undecodable session_revoked event", zap.Error(err))
			msg.Ack()
			continue
		}

		c.cache.StoreSessionRevoked(event.TenantID, event.SessionID, true)
		msg.Ack()
	}
}
