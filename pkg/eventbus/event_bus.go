// Package eventbus provides publish/subscribe delivery of dispatcher events.
package eventbus

import (
	"context"

	"github.com/imagechoom/imagechoom/pkg/events"
)

type Event interface {
	GetType() events.EventType
}

type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	Publish(ctx context.Context, key string, event Event) error
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
	Close() error
	GenerateID() string
}
