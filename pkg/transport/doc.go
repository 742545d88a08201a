// Package transport carries requests, replies and events between clients
// and device servers.
//
// A Transport offers two request paths:
//   - Invoke sends a request and waits for its reply (synchronous calls)
//   - Send sends a request whose reply is handed to the Handler later
//     (asynchronous calls, correlated by request id)
//
// Events are delivered to the Handler for every watched topic, in the order
// the server published them.
//
// Two bindings exist: Loopback connects clients to an in-process device
// server, and the zmq subpackage carries CBOR frames over ZeroMQ
// (ROUTER/DEALER for requests, PUB/SUB for events).
//
// # Frames
//
//	requests:  [tag, cbor(Request)]    tag "S" (sync) or "A" (async)
//	replies:   [tag, cbor(Reply)]
//	events:    [topic, cbor(EventMessage)]
package transport
