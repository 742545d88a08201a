// Package zmq binds the transport to ZeroMQ.
//
// A Server owns a ROUTER socket for requests and a PUB socket for events.
// A Client connects a DEALER socket and a SUB socket to them. Requests and
// replies carry a tag frame so that synchronous replies reach the waiting
// Invoke and asynchronous ones reach the Handler:
//
//	client -> server:  [tag, cbor(Request)]
//	server -> client:  [tag, cbor(Reply)]
//	events:            [topic, cbor(EventMessage)]
//
// Event topics are the wire topics ("tango://dev/name.kind"), so a SUB
// subscription selects exactly the watched events.
package zmq
