// Package polling implements the device-side polling engine.
//
// A Bridge owns one Cycle per polled object (device attribute or command).
// Each cycle ticks on its own period and calls the tick handler, which reads
// the object and feeds event detection.
//
// # Scheduling
//
// The first tick runs as soon as the object is added. Each following tick is
// scheduled at last_fire + period once the previous tick handler returned, so
// a slow read delays the next tick instead of overlapping it.
//
// # Reconfiguration
//
// SetPeriod with the current period is a no-op. A new period realigns the
// pending tick to last_fire + new period without restarting the cycle.
//
// # Stopping
//
// Stop removes the cycle and calls the stop hook, which the event layer uses
// to report the loss of polling to its subscribers.
package polling
