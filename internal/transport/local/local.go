// Package local is an in-memory bus binding used by tests and the local
// platform simulator. Inbound events are injected with Receive; outbound
// batches are recorded and queryable.
package local

import (
	"context"
	"sync"

	"github.com/plaiground/agentkit/internal/event"
)

// Client is an in-memory transport.Client. It supports one subscriber at a
// time, which matches how the toolkit uses a bus connection.
type Client struct {
	mu      sync.Mutex
	batches [][]event.Event
	sendErr error

	inbound chan event.Event
}

// NewClient builds a loopback client with a buffered inbound queue.
func NewClient() *Client {
	return &Client{inbound: make(chan event.Event, 256)}
}

// SendEvents records the outbound batch.
func (c *Client) SendEvents(_ context.Context, events []event.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	batch := make([]event.Event, len(events))
	copy(batch, events)
	c.batches = append(c.batches, batch)
	return nil
}

// Subscribe delivers injected events to handler until ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, handler func(event.Event)) error {
	for {
		select {
		case evt := <-c.inbound:
			handler(evt)
		case <-ctx.Done():
			return nil
		}
	}
}

// Receive injects an inbound event as if the bus delivered it.
func (c *Client) Receive(evt event.Event) {
	c.inbound <- evt
}

// FailSends makes subsequent SendEvents calls return err. A nil err restores
// normal delivery.
func (c *Client) FailSends(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// Batches returns a copy of every recorded outbound batch in send order.
func (c *Client) Batches() [][]event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	batches := make([][]event.Event, len(c.batches))
	for i, batch := range c.batches {
		batches[i] = make([]event.Event, len(batch))
		copy(batches[i], batch)
	}
	return batches
}

// Sent returns every recorded outbound event in send order.
func (c *Client) Sent() []event.Event {
	var events []event.Event
	for _, batch := range c.Batches() {
		events = append(events, batch...)
	}
	return events
}

// SentOfType filters Sent by event type.
func (c *Client) SentOfType(t event.Type) []event.Event {
	var matched []event.Event
	for _, evt := range c.Sent() {
		if evt.Type == t {
			matched = append(matched, evt)
		}
	}
	return matched
}
