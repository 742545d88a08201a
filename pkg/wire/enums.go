package wire

import "strings"

// EventKind identifies the type of an event.
type EventKind uint8

const (
	EventChange          EventKind = 1
	EventPeriodic        EventKind = 2
	EventArchive         EventKind = 3
	EventUser            EventKind = 4
	EventDataReady       EventKind = 5
	EventAttrConf        EventKind = 6
	EventPipe            EventKind = 7
	EventInterfaceChange EventKind = 8
)

// String returns the event kind name as used in topics.
func (k EventKind) String() string {
	switch k {
	case EventChange:
		return "change"
	case EventPeriodic:
		return "periodic"
	case EventArchive:
		return "archive"
	case EventUser:
		return "user_event"
	case EventDataReady:
		return "data_ready"
	case EventAttrConf:
		return "attr_conf"
	case EventPipe:
		return "pipe"
	case EventInterfaceChange:
		return "intr_change"
	default:
		return "unknown"
	}
}

// IsValid returns true if the kind is known.
func (k EventKind) IsValid() bool {
	return k >= EventChange && k <= EventInterfaceChange
}

// HasCurrentValue returns true for kinds whose subscription delivers
// the value at subscription time as a first event.
func (k EventKind) HasCurrentValue() bool {
	switch k {
	case EventChange, EventPeriodic, EventArchive, EventAttrConf, EventDataReady:
		return true
	}
	return false
}

// NeedsPolling returns true for kinds driven by the polling engine.
func (k EventKind) NeedsPolling() bool {
	return k == EventChange || k == EventPeriodic || k == EventArchive
}

// ParseEventKind parses an event kind name. It accepts the topic names and
// the upper-case constant style ("CHANGE_EVENT").
func ParseEventKind(s string) (EventKind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "_event")
	for k := EventChange; k <= EventInterfaceChange; k++ {
		if strings.TrimSuffix(k.String(), "_event") == s {
			return k, true
		}
	}
	if s == "interface_change" {
		return EventInterfaceChange, true
	}
	return 0, false
}

// Quality is the quality factor of an attribute reading.
type Quality uint8

const (
	QualityValid    Quality = 0
	QualityInvalid  Quality = 1
	QualityAlarm    Quality = 2
	QualityChanging Quality = 3
	QualityWarning  Quality = 4
)

// String returns the quality name.
func (q Quality) String() string {
	switch q {
	case QualityValid:
		return "ATTR_VALID"
	case QualityInvalid:
		return "ATTR_INVALID"
	case QualityAlarm:
		return "ATTR_ALARM"
	case QualityChanging:
		return "ATTR_CHANGING"
	case QualityWarning:
		return "ATTR_WARNING"
	default:
		return "UNKNOWN"
	}
}

// DevState is the state of a device.
type DevState uint8

const (
	StateOn DevState = iota
	StateOff
	StateClose
	StateOpen
	StateInsert
	StateExtract
	StateMoving
	StateStandby
	StateFault
	StateInit
	StateRunning
	StateAlarm
	StateDisable
	StateUnknown
)

var stateNames = [...]string{
	"ON", "OFF", "CLOSE", "OPEN", "INSERT", "EXTRACT", "MOVING",
	"STANDBY", "FAULT", "INIT", "RUNNING", "ALARM", "DISABLE", "UNKNOWN",
}

// String returns the state name.
func (s DevState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// DataType is the type of an attribute or command argument.
type DataType uint8

const (
	DataTypeVoid DataType = iota
	DataTypeBool
	DataTypeInt32
	DataTypeInt64
	DataTypeFloat64
	DataTypeString
	DataTypeState
	DataTypeEncoded
)

// String returns the data type name.
func (t DataType) String() string {
	switch t {
	case DataTypeVoid:
		return "DevVoid"
	case DataTypeBool:
		return "DevBoolean"
	case DataTypeInt32:
		return "DevLong"
	case DataTypeInt64:
		return "DevLong64"
	case DataTypeFloat64:
		return "DevDouble"
	case DataTypeString:
		return "DevString"
	case DataTypeState:
		return "DevState"
	case DataTypeEncoded:
		return "DevEncoded"
	default:
		return "Unknown"
	}
}

// DataFormat is the shape of an attribute.
type DataFormat uint8

const (
	FormatScalar   DataFormat = 0
	FormatSpectrum DataFormat = 1
	FormatImage    DataFormat = 2
)

// String returns the format name.
func (f DataFormat) String() string {
	switch f {
	case FormatScalar:
		return "SCALAR"
	case FormatSpectrum:
		return "SPECTRUM"
	case FormatImage:
		return "IMAGE"
	default:
		return "UNKNOWN"
	}
}
