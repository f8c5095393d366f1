package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/layer-3/rangda/core"
	"github.com/layer-3/rangda/ports"
)

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill-backed event publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishUserRevoked publishes a bulk user revocation event.
func (p *WatermillPublisher) PublishUserRevoked(ctx context.Context, event core.UserRevokedEvent) error {
	return p.publish(core.TopicUserRevoked, event)
}

// PublishSessionRevoked publishes a single-session revocation event.
func (p *WatermillPublisher) PublishSessionRevoked(ctx context.Context, event core.SessionRevokedEvent) error {
	return p.publish(core.TopicSessionRevoked, event)
}

func (p *WatermillPublisher) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
