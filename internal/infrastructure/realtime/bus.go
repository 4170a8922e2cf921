// Package realtime carries MessageInserted events from producers to scoped
// subscribers. Delivery is at-least-once and ordered per scope; consumers
// deduplicate by message id.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"campusmarket/internal/domain/entity"
	"campusmarket/pkg/errors"
)

type Bus interface {
	Publish(ctx context.Context, event entity.MessageEvent) error
	Subscribe(ctx context.Context, scope entity.Scope) (*Subscription, error)
	Close() error
}

func validateEvent(event entity.MessageEvent) error {
	if event.Message == nil || event.Message.ID == "" || event.Message.ConversationID == "" {
		return errors.BadRequest("Event must carry a stored message", nil)
	}
	return nil
}

func encodeEvent(event entity.MessageEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

func decodeEvent(data []byte) (entity.MessageEvent, error) {
	var event entity.MessageEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if err := validateEvent(event); err != nil {
		return event, err
	}
	return event, nil
}
