// Package consumers drains the order events subscription and hands every
// decoded event to each registered handler exactly once per handler.
package consumers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/farmlink-backend/pkg/logger"
	"github.com/angelmondragon/farmlink-backend/pkg/outbox/registry"
)

// Handler processes one decoded domain event. Name scopes its idempotency claims.
type Handler interface {
	Name() string
	Handle(ctx context.Context, event *registry.ResolvedEvent) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type decoder interface {
	Decode(eventType string, raw []byte) (*registry.ResolvedEvent, error)
}

type deadLetterSink interface {
	Forward(ctx context.Context, msg *gcppubsub.Message, reason error) error
}

type idempotencyGuard interface {
	Claim(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

// Dispatcher consumes order events from Pub/Sub while honoring redis idempotency.
type Dispatcher struct {
	subscription receiver
	registry     decoder
	guard        idempotencyGuard
	handlers     []Handler
	deadLetter   deadLetterSink
	logg         *logger.Logger
}

// NewDispatcher wires a subscription to its handlers.
func NewDispatcher(subscription receiver, reg decoder, guard idempotencyGuard, logg *logger.Logger, handlers ...Handler) (*Dispatcher, error) {
	if subscription == nil {
		return nil, errors.New("orders subscription is required")
	}
	if reg == nil {
		return nil, errors.New("event registry is required")
	}
	if guard == nil {
		return nil, errors.New("idempotency guard is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	if len(handlers) == 0 {
		return nil, errors.New("at least one handler is required")
	}
	seen := map[string]bool{}
	for _, h := range handlers {
		if h == nil || strings.TrimSpace(h.Name()) == "" {
			return nil, errors.New("handlers must be named")
		}
		if seen[h.Name()] {
			return nil, fmt.Errorf("duplicate handler %q", h.Name())
		}
		seen[h.Name()] = true
	}
	return &Dispatcher{
		subscription: subscription,
		registry:     reg,
		guard:        guard,
		handlers:     handlers,
		logg:         logg,
	}, nil
}

// WithDeadLetter forwards undecodable messages to sink before acking them.
func (d *Dispatcher) WithDeadLetter(sink deadLetterSink) *Dispatcher {
	d.deadLetter = sink
	return d
}

// Run consumes messages until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if d.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

func (d *Dispatcher) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	eventType := strings.TrimSpace(msg.Attributes["event_type"])
	logCtx := d.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	event, err := d.registry.Decode(eventType, msg.Data)
	if err != nil {
		// undecodable messages never succeed on redelivery
		if d.deadLetter == nil {
			d.logg.Error(logCtx, "dropping undecodable event", err)
			return processResult{}
		}
		if fwdErr := d.deadLetter.Forward(ctx, msg, err); fwdErr != nil {
			d.logg.Error(logCtx, "dead-letter forward failed", fwdErr)
			return processResult{nack: true}
		}
		d.logg.Warn(logCtx, "undecodable event dead-lettered")
		return processResult{}
	}
	eventID := event.Envelope.EventID
	logCtx = d.logg.WithField(logCtx, "event_id", eventID)

	failed := false
	for _, handler := range d.handlers {
		name := handler.Name()
		handlerCtx := d.logg.WithField(logCtx, "consumer", name)

		claimed, err := d.guard.Claim(handlerCtx, name, eventID)
		if err != nil {
			d.logg.Error(handlerCtx, "idempotency check failed", err)
			failed = true
			continue
		}
		if !claimed {
			d.logg.Debug(handlerCtx, "event already processed")
			continue
		}

		if err := handler.Handle(handlerCtx, event); err != nil {
			d.logg.Error(handlerCtx, "handler error", err)
			if releaseErr := d.guard.Release(handlerCtx, name, eventID); releaseErr != nil {
				d.logg.Error(handlerCtx, "idempotency release failed", releaseErr)
			}
			failed = true
			continue
		}
	}

	if failed {
		return processResult{nack: true}
	}
	d.logg.Info(logCtx, "event handled")
	return processResult{}
}
