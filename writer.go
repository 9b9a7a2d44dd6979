package eventstream

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds SSE stream configuration. Single Config instance can be safely
// used for multiple streams simultaneously without locking.
type Config struct {
	// Reconnect is a time duration before successive reconnects, it is
	// emitted once at the start of the stream as a recommendation for SSE
	// clients. Setting Reconnect to zero disables sending a reconnect
	// hint and the client will use its default value. Recommended value
	// is 500 milliseconds.
	Reconnect time.Duration

	// KeepAlive sets how often the stream should include a dummy keep
	// alive comment. Setting KeepAlive to zero disables sending keep
	// alive messages. It is recommended to keep this value lower than 60
	// seconds if nginx proxy is used. By default nginx will timeout the
	// request if there is more than 60 seconds gap between two successive
	// reads.
	KeepAlive time.Duration

	// Lifetime is a maximum amount of time a stream is allowed to stay
	// open before a forced reconnect. Setting Lifetime to zero allows SSE
	// connections to be open indefinitely.
	Lifetime time.Duration

	// QueueLength is the capacity of the outbound payload queue. Pushes
	// that find the queue full are dropped and logged instead of blocking
	// the producer. Values below one select the DefaultConfig capacity.
	QueueLength int

	// DisableAutoclose stops the stream from closing itself when the
	// client connection ends. With autoclose disabled the owner of the
	// stream is responsible for calling Close.
	DisableAutoclose bool

	// Logger receives entries about payloads dropped on queue overflow.
	// Leaving it nil selects the logrus standard logger.
	Logger logrus.FieldLogger
}

// DefaultConfig is a recommended SSE stream configuration.
var DefaultConfig = Config{
	Reconnect:   500 * time.Millisecond,
	KeepAlive:   30 * time.Second,
	Lifetime:    5 * time.Minute,
	QueueLength: 32,
}

var errFlusherIface = errors.New("http.ResponseWriter does not implement http.Flusher interface")

var errAlreadySent = errors.New("stream is already being sent")

// Send hands the stream over to the HTTP transport and delivers queued
// payloads to the client. It sets the SSE response headers, writes a 200
// status and then streams payloads as they are pushed, interleaved with keep
// alive comments, until the stream is closed, the configured lifetime
// expires or the client disconnects.
//
// Send blocks for the whole lifetime of the stream and is typically the last
// call in an HTTP handler. Events must be pushed from separate goroutines,
// waiting for Send to return before pushing means no push ever happens. Send
// must be called at most once per stream.
//
// This function returns nil if the stream was closed, its lifetime expired
// or the client closed the connection. Otherwise it returns an error.
func (s *Stream) Send() error {
	flusher, ok := s.w.(http.Flusher)
	if !ok {
		panic(errFlusherIface)
	}

	s.mu.Lock()
	if s.sent {
		s.mu.Unlock()
		return errAlreadySent
	}
	s.sent = true
	s.mu.Unlock()

	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	if s.r.ProtoMajor < 2 {
		// Connection management headers are forbidden in multiplexed
		// protocols.
		h.Set("Connection", "keep-alive")
	}
	s.w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.mu.Lock()
	s.handled = true
	s.mu.Unlock()

	if s.cfg.Reconnect != 0 {
		if _, err := fmt.Fprintf(s.w, "retry: %d\n\n", s.cfg.Reconnect/time.Millisecond); err != nil {
			return err
		}
		flusher.Flush()
	}

	var timeoutChan <-chan time.Time
	if s.cfg.Lifetime > 0 {
		timeoutChan = time.After(s.cfg.Lifetime)
	}

	var keepaliveChan <-chan time.Time
	if s.cfg.KeepAlive > 0 {
		ticker := time.NewTicker(s.cfg.KeepAlive)
		defer ticker.Stop()
		keepaliveChan = ticker.C
	}

	closeChan := s.r.Context().Done()

loop:
	for {
		select {
		case <-timeoutChan:
			// Stream lifetime has ended, client should reconnect
			break loop
		case <-closeChan:
			// Client closed the connection
			break loop
		case <-keepaliveChan:
			if _, err := io.WriteString(s.w, ":keep-alive\n\n"); err != nil {
				return err
			}
			flusher.Flush()
		case payload, ok := <-s.payloads:
			if !ok {
				// Writer side is closed and the queue is drained
				break loop
			}
			if _, err := s.w.Write(payload); err != nil {
				return err
			}
			flusher.Flush()
		}
	}
	return nil
}
