// Package notify delivers ticket lifecycle events to whoever listens for them.
// Delivery is best effort from the core's point of view.
package notify

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-inventory/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, ev domain.Event) error
}

// Fanout hands each event to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, ev domain.Event) error {
	var errs error
	for _, n := range f {
		if err := n.Notify(ctx, ev); err != nil {
			errs = errors.CombineErrors(errs, err)
		}
	}
	return errs
}

type nop struct{}

func (nop) Notify(context.Context, domain.Event) error { return nil }

func Nop() Notifier { return nop{} }

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Notify(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}
