package eventstream

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Stream is a single writable SSE stream bound to one client connection.
// Single instance of stream should be created for each request handled.
// Messages are queued with Push and delivered to the client by Send, which
// streams them until the stream is closed.
//
// All methods are safe for concurrent use. Payloads queued by sequential
// pushes are delivered in push order, the order of pushes racing from
// separate goroutines is not defined beyond each payload being written as
// one unit.
type Stream struct {
	w   http.ResponseWriter
	r   *http.Request
	cfg Config
	log logrus.FieldLogger

	id          string
	lastEventID string

	// payloads carries encoded event records from pushes to the delivery
	// loop. The stream owns the sender side exclusively, Send consumes
	// the receiver side.
	payloads chan []byte

	mu            sync.Mutex
	closed        bool   // sender side of payloads is closed
	paused        bool   // pushes accumulate in pending instead of writing
	disposed      bool   // Close already ran, repeated calls return early
	handled       bool   // response headers and status were written
	sent          bool   // delivery of the stream to the client has started
	pending       []byte // records buffered while paused
	onClose       []func()
	stopAutoclose func() bool
}

// New creates a stream bound to a single HTTP request. The Last-Event-ID
// request header is captured once at construction time and exposed via
// LastEventID. Passing nil cfg selects DefaultConfig.
//
// Unless Config.DisableAutoclose is set the stream closes itself as soon as
// the client connection ends.
func New(w http.ResponseWriter, r *http.Request, cfg *Config) *Stream {
	if cfg == nil {
		cfg = &DefaultConfig
	}

	c := *cfg
	if c.QueueLength < 1 {
		c.QueueLength = DefaultConfig.QueueLength
	}

	logger := c.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	s := &Stream{
		w:           w,
		r:           r,
		cfg:         c,
		id:          uuid.NewString(),
		lastEventID: r.Header.Get("Last-Event-ID"),
		payloads:    make(chan []byte, c.QueueLength),
	}
	s.log = logger.WithField("stream", s.id)

	if !c.DisableAutoclose {
		s.stopAutoclose = context.AfterFunc(r.Context(), s.Close)
	}
	return s
}

// ID returns the identifier assigned to this stream instance. It is included
// in log entries emitted by the stream.
func (s *Stream) ID() string {
	return s.id
}

// LastEventID returns the Last-Event-ID header value received with the
// request, or an empty string if the client did not send one. Reconnecting
// clients use this header to report the last event they have seen.
func (s *Stream) LastEventID() string {
	return s.lastEventID
}

// Push encodes the given messages and queues them for delivery. Messages
// pushed while the stream is paused accumulate in an internal buffer and are
// transmitted as a single payload on the next flush. Pushing to a closed
// stream is a silent no-op, closing is not a fault. Pushing no messages is a
// no-op.
func (s *Stream) Push(messages ...Message) {
	s.push(messages)
}

// PushData is a shorthand for pushing messages that carry only a data
// payload.
func (s *Stream) PushData(data ...string) {
	if len(data) == 0 {
		return
	}

	messages := make([]Message, len(data))
	for i, d := range data {
		messages[i] = Message{Data: d}
	}
	s.push(messages)
}

func (s *Stream) push(messages []Message) {
	if len(messages) == 0 {
		return
	}
	payload := encodeMessages(messages)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		// Closing is not a fault, late pushes are dropped silently.
	case s.paused:
		s.pending = append(s.pending, payload...)
	default:
		s.write(payload)
	}
}

// write queues one encoded payload for the delivery loop. Callers must hold
// the stream mutex. It reports whether the payload was accepted.
func (s *Stream) write(payload []byte) bool {
	if s.closed {
		return false
	}

	select {
	case s.payloads <- payload:
		return true
	default:
		// Queue is full, the client is consuming too slowly or delivery
		// was never started. The payload is lost but the stream stays
		// usable.
		s.log.WithField("bytes", len(payload)).Warn("send queue full, payload dropped")
		return false
	}
}

// Pause suspends transmission. Messages pushed while paused are buffered
// until Resume or Flush. Pausing an already paused stream has no effect.
func (s *Stream) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// Resume reenables transmission and flushes messages buffered while the
// stream was paused. Resuming a stream that is not paused is safe.
func (s *Stream) Resume() {
	s.mu.Lock()
	s.paused = false
	s.flush()
	s.mu.Unlock()
}

// Flush transmits messages buffered while the stream was paused without
// changing the paused state. It is a no-op when nothing is buffered or the
// stream is closed.
func (s *Stream) Flush() {
	s.mu.Lock()
	s.flush()
	s.mu.Unlock()
}

// flush writes all buffered records as a single payload. Callers must hold
// the stream mutex. The buffer is cleared only after its contents were
// accepted for delivery, a failed flush keeps them for the next attempt and
// a successful one never retransmits them.
func (s *Stream) flush() {
	if s.closed || len(s.pending) == 0 {
		return
	}

	if s.write(s.pending) {
		s.pending = nil
	}
}

// OnClose registers fn to run once the writer side of the stream is closed,
// either by an explicit Close or by autoclose reacting to the end of the
// client connection. This is not the moment the HTTP response finishes,
// delivery of already queued payloads may still be in progress. Registering
// on an already closed stream invokes fn immediately.
func (s *Stream) OnClose(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn()
		return
	}
	s.onClose = append(s.onClose, fn)
	s.mu.Unlock()
}

// Close releases the writer side of the stream. Later pushes are dropped
// silently. If delivery was started with Send, payloads queued before Close
// are still written out and the response ends once the queue is drained; a
// stream that was never sent leaves the response untouched. Close is
// idempotent, repeated calls are no-ops. Registered OnClose callbacks run
// exactly once.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true

	var callbacks []func()
	if !s.closed {
		s.closed = true
		close(s.payloads)
		callbacks = s.onClose
		s.onClose = nil
	}
	stop := s.stopAutoclose
	s.stopAutoclose = nil
	s.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, fn := range callbacks {
		fn()
	}
}
