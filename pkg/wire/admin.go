package wire

import (
	"strings"
	"time"
)

// AdminPrefix is the domain/family of the admin device of a server instance.
const AdminPrefix = "dserver/"

// InterfaceEventName is the object name of device interface change events.
const InterfaceEventName = "interface"

// Admin device commands.
const (
	AdminDevRestart          = "DevRestart"
	AdminRestartServer       = "RestartServer"
	AdminAddObjPolling       = "AddObjPolling"
	AdminUpdObjPollingPeriod = "UpdObjPollingPeriod"
	AdminRemObjPolling       = "RemObjPolling"
	AdminPolledDevice        = "PolledDevice"
	AdminQueryDevice         = "QueryDevice"
	AdminDevPollStatus       = "DevPollStatus"
)

// AdminName returns the admin device name of a server instance.
func AdminName(instance string) string {
	return AdminPrefix + NormalizeName(instance)
}

// IsAdminName reports whether name is an admin device name.
func IsAdminName(name string) bool {
	return strings.HasPrefix(NormalizeName(name), AdminPrefix)
}

// PollArgs is the argument of the polling admin commands.
type PollArgs struct {
	Device  string        `cbor:"1,keyasint"`
	Name    string        `cbor:"2,keyasint"`
	Command bool          `cbor:"3,keyasint,omitempty"`
	Period  time.Duration `cbor:"4,keyasint,omitempty"`
}
