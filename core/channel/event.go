package channel

import (
	"context"
	"time"
)

// Operation is the kind of change carried by an Event.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	// OpResync means events may have been missed and consumers must reload.
	OpResync Operation = "RESYNC"
	// OpError means the subscription failed permanently.
	OpError Operation = "ERROR"
)

// Topic identifies a subscription.
type Topic struct {
	Table  string
	Filter string
}

// String renders the topic as table or table:filter.
func (t Topic) String() string {
	if t.Filter == "" {
		return t.Table
	}
	return t.Table + ":" + t.Filter
}

// Event is a change notification.
type Event struct {
	Topic        Topic
	Table        string
	Operation    Operation
	AffectedKeys []string
	Err          error
	ReceivedAt   time.Time
}

// Transport opens subscriptions on a change-notification service.
type Transport interface {
	// Subscribe opens a subscription for topic. deliver is called for every
	// event in order, from a single goroutine at a time. Subscribe returns
	// once the subscription is established.
	Subscribe(ctx context.Context, topic Topic, deliver func(Event)) (Subscription, error)
}

// Subscription is an open transport subscription.
type Subscription interface {
	// Done is closed when the subscription ends for any reason.
	Done() <-chan struct{}
	// Err reports why the subscription ended. Nil after Close.
	Err() error
	Close() error
}

// Handle identifies one attached consumer.
type Handle string

// Status is the connection state of a subscription.
type Status string

const (
	StatusConnecting Status = "connecting"
	StatusOpen       Status = "open"
	StatusClosed     Status = "closed"
	StatusErrored    Status = "errored"
)
