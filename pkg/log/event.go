package log

import (
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// Event represents a protocol log event.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID identifies the client session or server instance (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// LocalRole indicates whether this is a client or a device server.
	LocalRole Role `cbor:"6,keyasint,omitempty"`

	// Device is the target device name.
	Device string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Message      *MessageEvent      `cbor:"10,keyasint,omitempty"`
	Subscription *SubscriptionEvent `cbor:"11,keyasint,omitempty"`
	StateChange  *StateChangeEvent  `cbor:"12,keyasint,omitempty"`
	Error        *ErrorEventData    `cbor:"13,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the transport binding.
	LayerTransport Layer = 0
	// LayerRequest is the asynchronous request registry.
	LayerRequest Layer = 1
	// LayerEvent is the event dispatcher.
	LayerEvent Layer = 2
	// LayerServer is the device server.
	LayerServer Layer = 3
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerRequest:
		return "REQUEST"
	case LayerEvent:
		return "EVENT"
	case LayerServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a request, reply or event notification.
	CategoryMessage Category = 0
	// CategorySubscription indicates a subscription change.
	CategorySubscription Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategorySubscription:
		return "SUBSCRIPTION"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Role indicates whether the local side is a client or a device server.
type Role uint8

const (
	// RoleClient indicates a client session.
	RoleClient Role = 0
	// RoleServer indicates a device server.
	RoleServer Role = 1
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RoleClient:
		return "CLIENT"
	case RoleServer:
		return "SERVER"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent captures a request, reply or event notification.
type MessageEvent struct {
	// Type distinguishes request/reply/event.
	Type MessageType `cbor:"1,keyasint"`

	// RequestID correlates request/reply pairs (0 for events).
	RequestID uint32 `cbor:"2,keyasint"`

	// For requests: the operation being performed.
	Operation *wire.Operation `cbor:"3,keyasint,omitempty"`

	// Name is the attribute, command or pipe name.
	Name string `cbor:"4,keyasint,omitempty"`

	// For events: the event kind.
	Kind *wire.EventKind `cbor:"5,keyasint,omitempty"`

	// For replies: the status code.
	Status *wire.Status `cbor:"6,keyasint,omitempty"`

	// Callback is true for callback-mode requests.
	Callback bool `cbor:"7,keyasint,omitempty"`

	// ProcessingTime is the duration from submit to arrival (reply only).
	// Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"8,keyasint,omitempty"`
}

// MessageType distinguishes request/reply/event.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request message.
	MessageTypeRequest MessageType = 0
	// MessageTypeReply indicates a reply message.
	MessageTypeReply MessageType = 1
	// MessageTypeEvent indicates an event notification.
	MessageTypeEvent MessageType = 2
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeReply:
		return "REPLY"
	case MessageTypeEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// SubscriptionEvent captures subscription lifecycle changes.
type SubscriptionEvent struct {
	// Action performed on the subscription.
	Action SubscriptionAction `cbor:"1,keyasint"`

	// SubscriptionID is the local subscription id.
	SubscriptionID uint32 `cbor:"2,keyasint"`

	// Name is the attribute or pipe name.
	Name string `cbor:"3,keyasint"`

	// Kind is the event kind.
	Kind wire.EventKind `cbor:"4,keyasint"`

	// Stateless is true for subscriptions that retry until the device is reachable.
	Stateless bool `cbor:"5,keyasint,omitempty"`
}

// SubscriptionAction indicates what happened to a subscription.
type SubscriptionAction uint8

const (
	// SubscriptionAdded indicates a new subscription.
	SubscriptionAdded SubscriptionAction = 0
	// SubscriptionRemoved indicates an unsubscribe.
	SubscriptionRemoved SubscriptionAction = 1
	// SubscriptionRenewed indicates a successful resubscription.
	SubscriptionRenewed SubscriptionAction = 2
	// SubscriptionRetrying indicates a failed (re)subscription that will be retried.
	SubscriptionRetrying SubscriptionAction = 3
)

// String returns the action name.
func (a SubscriptionAction) String() string {
	switch a {
	case SubscriptionAdded:
		return "ADDED"
	case SubscriptionRemoved:
		return "REMOVED"
	case SubscriptionRenewed:
		return "RENEWED"
	case SubscriptionRetrying:
		return "RETRYING"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures session, polling and device lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySession indicates a client session state change.
	StateEntitySession StateEntity = 0
	// StateEntityPolling indicates a polling configuration change.
	StateEntityPolling StateEntity = 1
	// StateEntityDevice indicates a device lifecycle change.
	StateEntityDevice StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityPolling:
		return "POLLING"
	case StateEntityDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Reason is the DevFailed reason (if applicable).
	Reason string `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
