package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dejobratic/storefront/internal/orders/ports"
)

// Publisher sends a keyed payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// PublishingSink turns notifications into JSON messages on the topic named by their kind,
// keyed by order id so one order's notifications stay in sequence.
type PublishingSink struct {
	publisher Publisher
}

func NewPublishingSink(publisher Publisher) *PublishingSink {
	return &PublishingSink{publisher: publisher}
}

func (s *PublishingSink) Notify(ctx context.Context, n ports.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return s.publisher.Publish(ctx, string(n.Kind), []byte(n.OrderID), payload)
}
