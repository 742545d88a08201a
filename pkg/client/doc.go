// Package client is the client side of the device access API.
//
// A Session owns one transport, the registry of outstanding asynchronous
// requests and the event dispatcher. DeviceProxy values created from a
// session issue synchronous and asynchronous calls and manage event
// subscriptions for one device:
//
//	tr, _ := zmq.Dial(zmq.DefaultClientConfig())
//	s := client.NewSession(tr, client.DefaultConfig())
//	defer s.Close()
//
//	dev := s.NewDeviceProxy("sys/tg_test/1")
//	id, _ := dev.ReadAttributeAsynch(ctx, "double_scalar")
//	av, _ := dev.ReadAttributeReply(ctx, id, time.Second)
//
// Replies of callback-mode requests are delivered by GetAsynchReplies, or
// as they arrive once StartCallbackLoop has been called.
//
// The session keeps its event subscriptions alive: devices with
// subscriptions are pinged every KeepAlivePeriod and lost subscriptions are
// re-established with backoff. Subscribers see an API_EventTimeout error
// event when a device is lost.
//
// Default returns a lazily created process-wide session for programs that
// do not manage sessions themselves; Cleanup releases it.
package client
