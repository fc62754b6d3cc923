package events

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives an event. A returned error is logged and otherwise ignored.
type Handler func(Event) error

// SubscriptionID identifies a registered handler.
type SubscriptionID uint64

type subscription struct {
	id      SubscriptionID
	handler Handler
}

// Dispatcher is a registry of named event channels.
type Dispatcher struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[Name][]subscription
	nextID SubscriptionID
}

// NewDispatcher creates a Dispatcher with the built-in channels registered.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		logger: logger,
		subs:   make(map[Name][]subscription, len(Names)),
	}
	for _, name := range Names {
		d.subs[name] = nil
	}
	return d
}

// Subscribe appends a handler to the named channel, creating it if needed.
func (d *Dispatcher) Subscribe(name Name, h Handler) SubscriptionID {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextID++
	id := d.nextID
	d.subs[name] = append(d.subs[name], subscription{id: id, handler: h})

	d.logger.Debug("registered event handler", "event", name, "id", id)
	return id
}

// Unsubscribe removes a single handler. It returns false if the handler
// was not registered on that channel.
func (d *Dispatcher) Unsubscribe(name Name, id SubscriptionID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.subs[name]
	for i, s := range list {
		if s.id != id {
			continue
		}
		// Copy so in-flight Publish calls keep their snapshot.
		next := make([]subscription, 0, len(list)-1)
		next = append(next, list[:i]...)
		next = append(next, list[i+1:]...)
		d.subs[name] = next

		d.logger.Debug("removed event handler", "event", name, "id", id)
		return true
	}
	return false
}

// UnsubscribeAll clears every handler on the named channel.
func (d *Dispatcher) UnsubscribeAll(name Name) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.subs[name]; ok {
		d.subs[name] = nil
		d.logger.Debug("removed all event handlers", "event", name)
	}
}

// Count returns the number of handlers on the named channel.
func (d *Dispatcher) Count(name Name) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[name])
}

// Publish delivers ev to every handler on its channel in subscription order.
// Handlers run on the caller's goroutine.
func (d *Dispatcher) Publish(ev Event) {
	name := ev.EventName()

	d.mu.RLock()
	list := d.subs[name]
	d.mu.RUnlock()

	for _, s := range list {
		if err := d.invoke(s, ev); err != nil {
			d.logger.Warn("event handler failed",
				"event", name,
				"id", s.id,
				"error", err,
			)
		}
	}
}

// invoke runs one handler, converting a panic into an error.
func (d *Dispatcher) invoke(s subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ev)
}

// On subscribes a handler typed to a single payload. E must be a value
// (non-pointer) event type.
func On[E Event](d *Dispatcher, fn func(E) error) SubscriptionID {
	var zero E
	return d.Subscribe(zero.EventName(), func(ev Event) error {
		e, ok := ev.(E)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", ev, zero.EventName())
		}
		return fn(e)
	})
}
