package event

import (
	"encoding/json"
	"fmt"
)

// Encode serialises an event into its JSON bus envelope. The eventType field
// doubles as the variant discriminator.
func Encode(evt Event) ([]byte, error) {
	if err := evt.Validate(); err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", evt.ID, err)
	}
	return payload, nil
}

// Decode parses a JSON bus envelope into an Event. Envelopes with an unknown
// eventType still decode: the raw type tag is preserved so routing metadata
// stays usable and the aggregator can ignore the variant. This keeps older
// agents forward compatible with new platform event types.
func Decode(payload []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, fmt.Errorf("decode event envelope: %w", err)
	}
	if err := evt.Validate(); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return evt, nil
}
