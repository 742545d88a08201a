// Package model implements the device data model.
//
// # Device Model
//
// A Device is addressed by a three-part name ("domain/family/member") and
// exports three kinds of resources, each addressed by a case-insensitive name:
//
//	Device (sys/tg_test/1)
//	├── Attributes   double_scalar, long_spectrum, State, Status, ...
//	├── Commands     State, Status, Init, DevDouble, ...
//	└── Pipes        string_long_short_ro, ...
//
// Attributes carry metadata (type, format, access, event thresholds) and a
// value that is either stored or produced by a read hook. A read hook may fail;
// the failure is reported to the caller and to event subscribers.
//
// # Dynamic Interface
//
// Attributes and commands can be added and removed while the device runs.
// Every mutation is reported to DeviceSubscribers, except during Init which
// reports once at the end so that an unchanged interface can be detected.
package model
