// Package ws is the websocket bus binding: JSON event frames over a single
// connection, partitioned by session id so one session's events keep their
// order downstream.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/plaiground/agentkit/internal/event"
)

// Config is the websocket bus connection configuration.
type Config struct {
	// BusURL is the websocket endpoint, e.g. ws://bus.local/events.
	BusURL string `env:"AGENTKIT_BUS_URL"`
	// AccessGrant is the signed bus credential presented on handshake.
	AccessGrant string `env:"AGENTKIT_BUS_TOKEN"`
	// Origin is the handshake origin header.
	Origin string `env:"AGENTKIT_BUS_ORIGIN" envDefault:"http://localhost"`
}

// Frame is the wire envelope exchanged with the bus. Outbound frames carry
// the partition key the bus shards on.
type Frame struct {
	Type         string        `json:"type"`
	PartitionKey string        `json:"partitionKey,omitempty"`
	Events       []event.Event `json:"events,omitempty"`
}

// FrameTypeEvents is the only frame type the toolkit exchanges today.
const FrameTypeEvents = "events"

// Client is a transport.Client over one websocket connection.
type Client struct {
	conn *websocket.Conn

	// writeMu serialises frame writes; SendEvents may be called from several
	// session goroutines.
	writeMu sync.Mutex
	encoder *json.Encoder
}

// Dial connects to the bus. The access grant, when set, is presented as a
// bearer token on the handshake.
func Dial(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BusURL) == "" {
		return nil, errors.New("bus url is required")
	}
	origin := cfg.Origin
	if origin == "" {
		origin = "http://localhost"
	}

	wsConfig, err := websocket.NewConfig(cfg.BusURL, origin)
	if err != nil {
		return nil, fmt.Errorf("configure bus connection: %w", err)
	}
	if grant := strings.TrimSpace(cfg.AccessGrant); grant != "" {
		wsConfig.Header = http.Header{"Authorization": {"Bearer " + grant}}
	}

	conn, err := websocket.DialConfig(wsConfig)
	if err != nil {
		return nil, fmt.Errorf("dial bus %s: %w", cfg.BusURL, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established websocket connection. Used by Dial and by
// tests that bring their own server side.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{conn: conn, encoder: json.NewEncoder(conn)}
}

// SendEvents writes the batch as one frame per partition key, preserving the
// batch order within each partition. Readiness announcements carry no
// session id and partition on the agent's filter key instead.
func (c *Client) SendEvents(_ context.Context, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}

	frames := make([]Frame, 0, 1)
	for _, evt := range events {
		key := partitionKey(evt)
		if n := len(frames); n > 0 && frames[n-1].PartitionKey == key {
			frames[n-1].Events = append(frames[n-1].Events, evt)
			continue
		}
		frames = append(frames, Frame{
			Type:         FrameTypeEvents,
			PartitionKey: key,
			Events:       []event.Event{evt},
		})
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, frame := range frames {
		if err := c.encoder.Encode(frame); err != nil {
			return fmt.Errorf("write %s frame for partition %s: %w", frame.Type, frame.PartitionKey, err)
		}
	}
	return nil
}

// Subscribe reads frames until ctx is cancelled or the connection fails,
// invoking handler once per event in frame order.
func (c *Client) Subscribe(ctx context.Context, handler func(event.Event)) error {
	// Closing the connection is the only way to unblock the decoder.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-watchDone:
		}
	}()

	decoder := json.NewDecoder(c.conn)
	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("bus connection closed")
			}
			return fmt.Errorf("decode bus frame: %w", err)
		}
		if frame.Type != FrameTypeEvents {
			continue
		}
		for _, evt := range frame.Events {
			handler(evt)
		}
	}
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}

func partitionKey(evt event.Event) string {
	if evt.SessionID != "" {
		return evt.SessionID
	}
	return evt.SubscriptionFilterKey
}
