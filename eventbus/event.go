package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventVersion is the schema version stamped by NewEvent.
const EventVersion = "1.0"

// Event is the envelope carried by every message on the bus. It is encoded
// as canonical JSON with the field names below.
//
// Producers outside this package may send any text as the timestamp. A value
// that is not RFC 3339 leaves Timestamp zero and is kept verbatim in
// RawTimestamp, and re-encoding the event writes that text back as a string.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlationId"`
	UserID        string          `json:"userId,omitempty"`
	CompanyID     string          `json:"companyId,omitempty"`
	Data          json.RawMessage `json:"data"`
	Version       string          `json:"version"`

	RawTimestamp string `json:"-"`
}

// envelope has Event's fields without its JSON methods.
type envelope Event

// UnmarshalJSON decodes the envelope, accepting any timestamp text.
func (e *Event) UnmarshalJSON(b []byte) error {
	aux := struct {
		*envelope
		Timestamp json.RawMessage `json:"timestamp"`
	}{envelope: (*envelope)(e)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	e.Timestamp, e.RawTimestamp = time.Time{}, ""
	if len(aux.Timestamp) == 0 || string(aux.Timestamp) == "null" {
		return nil
	}
	var text string
	if err := json.Unmarshal(aux.Timestamp, &text); err != nil {
		e.RawTimestamp = string(aux.Timestamp)
		return nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, text); err == nil {
		e.Timestamp = ts
		return nil
	}
	e.RawTimestamp = text
	return nil
}

// MarshalJSON encodes the envelope, writing RawTimestamp back when the
// timestamp could not be parsed.
func (e Event) MarshalJSON() ([]byte, error) {
	aux := struct {
		envelope
		Timestamp interface{} `json:"timestamp"`
	}{envelope: envelope(e), Timestamp: e.Timestamp}
	if e.Timestamp.IsZero() && e.RawTimestamp != "" {
		aux.Timestamp = e.RawTimestamp
	}
	return json.Marshal(aux)
}

// EventOption customizes an event built by NewEvent.
type EventOption func(*Event)

// WithUserID records the user who triggered the event.
func WithUserID(id string) EventOption {
	return func(e *Event) { e.UserID = id }
}

// WithCompanyID records the tenant the event belongs to.
func WithCompanyID(id string) EventOption {
	return func(e *Event) { e.CompanyID = id }
}

// WithCorrelationID links the event to an existing flow instead of
// starting a new one.
func WithCorrelationID(id string) EventOption {
	return func(e *Event) { e.CorrelationID = id }
}

// WithVersion overrides the schema version.
func WithVersion(v string) EventOption {
	return func(e *Event) { e.Version = v }
}

// WithTimestamp overrides the event time.
func WithTimestamp(ts time.Time) EventOption {
	return func(e *Event) { e.Timestamp = ts }
}

// NewEvent builds an event with a fresh ULID id and correlation id, the
// current UTC time and version EventVersion. data is JSON encoded.
//
//	ev, err := eventbus.NewEvent("credit.purchased", "marketplace-service",
//	    map[string]any{"creditId": "c-1", "amount": 10},
//	    eventbus.WithCompanyID("acme"),
//	)
func NewEvent(eventType, source string, data interface{}, opts ...EventOption) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode event data: %w", err)
	}

	e := Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: ulid.Make().String(),
		Data:          raw,
		Version:       EventVersion,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}

// PartitionKey selects the message key: the company id, else the user id,
// else the source.
func (e Event) PartitionKey() string {
	switch {
	case e.CompanyID != "":
		return e.CompanyID
	case e.UserID != "":
		return e.UserID
	default:
		return e.Source
	}
}

// DecodeData unmarshals the event payload into target.
func (e Event) DecodeData(target interface{}) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no data", e.ID)
	}
	return json.Unmarshal(e.Data, target)
}

// parseEvent decodes a message value into an Event. An empty value, invalid
// JSON or a missing id is a ParseError.
func parseEvent(value []byte) (Event, error) {
	if len(value) == 0 {
		return Event{}, &ParseError{Reason: "empty message value"}
	}
	var e Event
	if err := json.Unmarshal(value, &e); err != nil {
		return Event{}, &ParseError{Reason: "invalid JSON", Err: err}
	}
	if e.ID == "" {
		return Event{}, &ParseError{Reason: "missing event id"}
	}
	return e, nil
}
