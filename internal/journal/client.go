package journal

import (
	"context"
	"log"

	"github.com/plaiground/agentkit/internal/event"
	"github.com/plaiground/agentkit/internal/transport"
)

// Client decorates a transport client so every event crossing the bus
// boundary is journaled. Journal write failures are logged, not surfaced;
// recording must never interfere with gameplay traffic.
type Client struct {
	inner   transport.Client
	journal *Journal
}

// Wrap decorates inner with journaling. A nil journal returns inner
// unchanged.
func Wrap(inner transport.Client, journal *Journal) transport.Client {
	if journal == nil {
		return inner
	}
	return &Client{inner: inner, journal: journal}
}

// SendEvents journals the batch after the inner client accepts it.
func (c *Client) SendEvents(ctx context.Context, events []event.Event) error {
	if err := c.inner.SendEvents(ctx, events); err != nil {
		return err
	}
	for _, evt := range events {
		if err := c.journal.Record(ctx, Outbound, evt); err != nil {
			log.Printf("journal: recording outbound event %s: %v", evt.ID, err)
		}
	}
	return nil
}

// Subscribe journals each inbound event before handing it to handler.
func (c *Client) Subscribe(ctx context.Context, handler func(event.Event)) error {
	return c.inner.Subscribe(ctx, func(evt event.Event) {
		if err := c.journal.Record(ctx, Inbound, evt); err != nil {
			log.Printf("journal: recording inbound event %s: %v", evt.ID, err)
		}
		handler(evt)
	})
}
