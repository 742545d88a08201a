// Package devserver hosts devices and answers client requests.
//
// A Server owns a set of model.Device values plus its admin device
// "dserver/<instance>". Requests arrive as wire.Request values from a
// transport and are answered with wire.Reply values. Device failures are
// carried in the reply as a DevFailed stack.
//
// # Events
//
// Change, periodic and archive events come from polling: a polling.Bridge
// ticks every polled attribute, each reading is fed to an event.Detector and
// the resulting events are handed to the Publisher. Events are only published
// for topics some client subscribed to. Device code pushes user, data-ready,
// pipe, change and archive events with the Push methods. Configuration and
// interface changes of hosted devices are published as attr_conf and
// interface events.
//
// When polling of a subscribed attribute stops, subscribers get an error
// event, re-raised every KeepAlivePeriod until polling restarts.
package devserver
