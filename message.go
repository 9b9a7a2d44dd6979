package eventstream

import (
	"bytes"
	"fmt"
	"time"
)

// Message holds data for a single event record in an SSE stream.
type Message struct {
	// ID is an optional event identifier. Clients repeat the ID of the
	// last event they have seen in the Last-Event-ID request header when
	// reconnecting.
	ID string

	// Event is an optional event type name. Clients that listen for
	// unnamed events receive records without this field under the generic
	// "message" type.
	Event string

	// Retry is an optional reconnect delay recommendation for the client.
	// It is emitted only when it is a positive whole number of
	// milliseconds, fractional values produce no retry line.
	Retry time.Duration

	// Data is the event payload. Structured values should be marshaled
	// (for example to JSON) before constructing a Message. Exactly one
	// data line is emitted, payloads containing newline characters will
	// break the framing and it is the callers responsibility to avoid
	// them.
	Data string
}

// Bytes returns the SSE wire format encoding of a single event record.
// Fields are emitted in id, event, retry, data order, one line each,
// followed by a blank line terminating the record. Unset optional fields
// produce no output lines.
func (m Message) Bytes() []byte {
	var b bytes.Buffer
	m.writeTo(&b)
	return b.Bytes()
}

// String returns the SSE wire format encoding of a single event record.
func (m Message) String() string {
	return string(m.Bytes())
}

// writeTo dumps a single event record in SSE wire format to a buffer.
func (m Message) writeTo(b *bytes.Buffer) {
	if m.ID != "" {
		fmt.Fprintf(b, "id: %s\n", m.ID)
	}

	if m.Event != "" {
		fmt.Fprintf(b, "event: %s\n", m.Event)
	}

	if m.Retry > 0 && m.Retry%time.Millisecond == 0 {
		fmt.Fprintf(b, "retry: %d\n", m.Retry.Milliseconds())
	}

	fmt.Fprintf(b, "data: %s\n\n", m.Data)
}

// encodeMessages returns the wire format encoding of messages written back to
// back. The blank line terminating each record is the only separator between
// records. An empty batch encodes to an empty payload.
func encodeMessages(messages []Message) []byte {
	if len(messages) == 0 {
		return nil
	}

	var b bytes.Buffer
	for i := range messages {
		messages[i].writeTo(&b)
	}
	return b.Bytes()
}
