// Package event implements client-side event subscriptions and the
// device-side change detection that produces events from poll results.
//
// # Subscriptions
//
// A Subscription is one registration for (device, name, kind). Every
// delivered event is appended to the subscription's queue, and passed to
// the callback first if one is set. The queue holds at most Capacity events;
// when it is full the oldest event is evicted.
//
//	Capacity  Unbounded (-1)  queue grows without limit
//	Capacity  LastOnly  (1)   only the newest event is kept (default)
//	Capacity  N               the N newest events are kept
//
// An optional filter expression is evaluated against the event metadata.
// Events rejected by the filter are neither queued nor passed to the callback.
//
// # Priming
//
// Subscriptions of kinds with a current value (change, periodic, archive,
// attr_conf, data_ready) start in a priming state. Pushed events are held
// back until the first event is delivered with Dispatcher.Deliver, so that
// the value read at subscription time is always the first event seen.
//
// # Detection
//
// Detector compares successive poll snapshots of an attribute and decides
// which change, archive and periodic events to emit. Read failures produce
// one error event per failure onset.
package event
