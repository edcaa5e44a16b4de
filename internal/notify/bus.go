// Package notify fans out PROGRESS/END/GLOBAL_MODE_CHANGED events to
// observers. The default Bus is in-process; an optional Redis-backed Bus
// lets multiple gateway processes share one simulation backend.
package notify

import "context"

// Event is a notification broadcast beyond the control socket's own
// connected-client set, e.g. to the websocket observer bridge or to sibling
// gateway processes.
type Event struct {
	Kind    string
	Payload []byte
}

// Bus is the fan-out interface shared by the in-process and Redis-backed
// implementations.
type Bus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, handler func(Event)) (func(), error)
	Close() error
}

// LocalBus is an in-process fan-out over the handlers registered with
// Subscribe. This is the default backend, with no external dependency; it
// does not write to control-socket clients, whose broadcasts go through the
// server's client registry.
type LocalBus struct {
	subs *subscriberSet
}

// NewLocalBus constructs an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{subs: newSubscriberSet()}
}

// Publish invokes every currently registered handler synchronously.
func (b *LocalBus) Publish(_ context.Context, event Event) error {
	b.subs.broadcast(event)
	return nil
}

// Subscribe registers a handler and returns an unsubscribe function.
func (b *LocalBus) Subscribe(_ context.Context, handler func(Event)) (func(), error) {
	return b.subs.add(handler), nil
}

// Close is a no-op for LocalBus; present to satisfy Bus.
func (b *LocalBus) Close() error { return nil }
