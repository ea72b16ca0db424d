package urlinfo

import (
	"context"
	"errors"
	"fmt"
)

// Event names. Host specific names are built with HostEvent and ShortenEvent.
const (
	EventHostAll    = "url.host.all"
	EventShortenAll = "url.shorten.all"

	hostEventPrefix    = "url.host."
	shortenEventPrefix = "url.shorten."
)

// ErrRouterSealed is returned by Register once the router has been sealed.
var ErrRouterSealed = errors.New("event router sealed")

// HostEvent returns the override event name for a host key.
func HostEvent(host string) string { return hostEventPrefix + host }

// ShortenEvent returns the shortener event name for a host key.
func ShortenEvent(host string) string { return shortenEventPrefix + host }

// Listener handles one emitted payload.
type Listener[T any] func(ctx context.Context, payload T) error

// Router maps event names to ordered listeners.
//
// Register is only valid before Seal. After Seal the router is read-only and
// safe for concurrent HasListeners/Emit calls without locking.
type Router[T any] struct {
	listeners map[string][]Listener[T]
	sealed    bool
}

// NewRouter creates an empty, unsealed router.
func NewRouter[T any]() *Router[T] {
	return &Router[T]{listeners: make(map[string][]Listener[T])}
}

// Register appends l to the listeners of name.
func (r *Router[T]) Register(name string, l Listener[T]) error {
	if r.sealed {
		return fmt.Errorf("register %q: %w", name, ErrRouterSealed)
	}
	if l == nil {
		return fmt.Errorf("register %q: nil listener", name)
	}
	r.listeners[name] = append(r.listeners[name], l)
	return nil
}

// MustRegister is Register for wiring code; it panics on error.
func (r *Router[T]) MustRegister(name string, l Listener[T]) {
	if err := r.Register(name, l); err != nil {
		panic(err)
	}
}

// Seal freezes the registry.
func (r *Router[T]) Seal() { r.sealed = true }

// Sealed reports whether Seal has been called.
func (r *Router[T]) Sealed() bool { return r.sealed }

// HasListeners reports whether at least one listener is registered for name.
func (r *Router[T]) HasListeners(name string) bool { return len(r.listeners[name]) > 0 }

// Listeners returns the number of listeners registered for name.
func (r *Router[T]) Listeners(name string) int { return len(r.listeners[name]) }

// Emit calls every listener of name in registration order. The first error
// stops emission and is returned; panics are not recovered here.
func (r *Router[T]) Emit(ctx context.Context, name string, payload T) error {
	for i, l := range r.listeners[name] {
		if err := l(ctx, payload); err != nil {
			return fmt.Errorf("emit %s (listener %d): %w", name, i, err)
		}
	}
	return nil
}

// Events is the process-wide registry shared by the dispatcher and the race.
type Events struct {
	Hosts      *Router[*Request]
	Shorteners *Router[ShortenRequest]
}

// NewEvents creates empty, unsealed routers.
func NewEvents() *Events {
	return &Events{
		Hosts:      NewRouter[*Request](),
		Shorteners: NewRouter[ShortenRequest](),
	}
}

// routable reports whether host may address a host specific event. The key
// "all" is reserved for the catch-all names.
func routable(host string) bool { return host != "" && host != "all" }

// Seal freezes both routers.
func (e *Events) Seal() {
	e.Hosts.Seal()
	e.Shorteners.Seal()
}

// OnHost registers an override for every URL whose host key is host.
func (e *Events) OnHost(host string, l Listener[*Request]) error {
	return e.Hosts.Register(HostEvent(host), l)
}

// OnAnyURL registers a passive observer for every valid URL.
func (e *Events) OnAnyURL(l Listener[*Request]) error {
	return e.Hosts.Register(EventHostAll, l)
}

// OnShorten registers a shortener for URLs whose host key is host.
func (e *Events) OnShorten(host string, l Listener[ShortenRequest]) error {
	return e.Shorteners.Register(ShortenEvent(host), l)
}

// OnShortenAll registers a catch-all shortener.
func (e *Events) OnShortenAll(l Listener[ShortenRequest]) error {
	return e.Shorteners.Register(EventShortenAll, l)
}
