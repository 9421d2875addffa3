package pubsub

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// ReasonAttribute carries why a message was dead-lettered.
const ReasonAttribute = "dead_letter_reason"

// DeadLetter republishes messages the worker cannot process.
type DeadLetter struct {
	publisher *pubsub.Publisher
}

// Forward publishes a copy of msg with reason attached and waits for the
// server to accept it.
func (d *DeadLetter) Forward(ctx context.Context, msg *pubsub.Message, reason error) error {
	if d == nil || d.publisher == nil {
		return errors.New("dead-letter topic not configured")
	}
	attrs := make(map[string]string, len(msg.Attributes)+2)
	for k, v := range msg.Attributes {
		attrs[k] = v
	}
	attrs["source_message_id"] = msg.ID
	if reason != nil {
		attrs[ReasonAttribute] = reason.Error()
	}
	result := d.publisher.Publish(ctx, &pubsub.Message{Data: msg.Data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("dead-letter publish: %w", err)
	}
	return nil
}
