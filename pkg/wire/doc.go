// Package wire defines the CBOR wire format types exchanged between clients
// and device servers.
//
// All structures use CBOR (RFC 8949) with integer keys for compact encoding.
//
// # Message Types
//
// There are three message types:
//   - Request: client to device server (command, attribute read/write,
//     event subscription)
//   - Reply: device server to client, correlated by RequestID
//   - EventMessage: device server to client, correlated by
//     (device, name, kind)
//
// # Errors as Data
//
// A failed remote operation is not a transport error. The server fills
// Reply.Errors with a DevFailed stack and the client delivers it to the
// caller or callback as an error value.
package wire
