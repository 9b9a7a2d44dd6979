// Package eventstream is a library for producing SSE streams from HTTP
// handlers.
//
// This library manages a single Server-Sent-Events stream per client
// connection. It encodes messages to the SSE wire format, buffers messages
// pushed while the stream is paused and transmits them on resume, and
// coordinates closing the stream with the underlying HTTP connection. It
// handles keep-alive messages, allows setting a client reconnect hint and
// automatically disconnects long-lived connections.
//
// This library deliberately stays out of the fan-out business. It is a
// building block for one connection at a time, message broadcasting and
// resyncing clients that reconnect with a Last-Event-ID header belong to the
// application on top of it.
//
// Typical usage of this package is:
//	* Create a new stream with New at the start of an HTTP handler.
//	* Start a goroutine that generates events and queues them via the
//	  Push method.
//	* Call Send as the last statement of the handler, it blocks until the
//	  stream closes or the client disconnects.
//	* Use the LastEventID value to let application code resend events a
//	  reconnecting client has missed.
//	* If early termination is required use Close, by default streams also
//	  close themselves when the client connection ends.
package eventstream
