// Package transport defines the bus contract the toolkit consumes. Bindings
// live in subpackages; the core never depends on a concrete wire format.
package transport

import (
	"context"

	"github.com/plaiground/agentkit/internal/event"
)

// Client is a publish/subscribe bus connection.
//
// SendEvents must deliver the batch to the bus in the given order, keyed by
// session id so a single session's events are never reordered downstream.
//
// Subscribe blocks, invoking handler once per inbound event, until ctx is
// cancelled or the transport fails. A nil return means the context was
// cancelled; any other return is a transport fault.
type Client interface {
	SendEvents(ctx context.Context, events []event.Event) error
	Subscribe(ctx context.Context, handler func(event.Event)) error
}
