// Package connection tracks device reachability for the client.
//
// A Link probes one device. While the probe fails, the link retries with
// exponential backoff and jitter:
//
//  1. Initial delay: 500 ms
//  2. Doubling: 1 s, 2 s, 4 s, 8 s
//  3. Maximum delay: 10 s, the event keep-alive period
//  4. Reset to 500 ms after a successful probe
//
// The client uses links to restore stateless event subscriptions: the
// probe re-subscribes, so a subscription made while the device server was
// down starts delivering once the server is back.
package connection
