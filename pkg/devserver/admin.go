package devserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/tango-controls/tango-go/pkg/log"
	"github.com/tango-controls/tango-go/pkg/model"
	"github.com/tango-controls/tango-go/pkg/wire"
)

// AdminClass is the class of admin devices.
const AdminClass = "DServer"

func (s *Server) newAdminDevice() *model.Device {
	d := model.NewDevice(wire.AdminName(s.cfg.Instance), AdminClass)
	d.SetState(wire.StateOn)

	cmds := []struct {
		name    string
		in, out wire.DataType
		handler model.CommandHandler
	}{
		{wire.AdminDevRestart, wire.DataTypeString, wire.DataTypeVoid, s.cmdDevRestart},
		{wire.AdminRestartServer, wire.DataTypeVoid, wire.DataTypeVoid, s.cmdRestartServer},
		{wire.AdminAddObjPolling, wire.DataTypeEncoded, wire.DataTypeVoid, s.cmdAddObjPolling},
		{wire.AdminUpdObjPollingPeriod, wire.DataTypeEncoded, wire.DataTypeVoid, s.cmdUpdObjPollingPeriod},
		{wire.AdminRemObjPolling, wire.DataTypeEncoded, wire.DataTypeVoid, s.cmdRemObjPolling},
		{wire.AdminPolledDevice, wire.DataTypeVoid, wire.DataTypeString, s.cmdPolledDevice},
		{wire.AdminQueryDevice, wire.DataTypeVoid, wire.DataTypeString, s.cmdQueryDevice},
		{wire.AdminDevPollStatus, wire.DataTypeString, wire.DataTypeString, s.cmdDevPollStatus},
	}
	for _, c := range cmds {
		// Names are unique, so AddCommand cannot fail.
		_ = d.AddCommand(model.NewCommand(&model.CommandMetadata{Name: c.name, InType: c.in, OutType: c.out}, c.handler))
	}
	return d
}

// RestartDevice re-initializes a device. Its interface is published with
// DevStarted set only when the restart changed it.
func (s *Server) RestartDevice(ctx context.Context, name string) error {
	return s.restartDevice(ctx, name, false)
}

func (s *Server) restartDevice(ctx context.Context, name string, force bool) error {
	h, ok := s.lookup(name)
	if !ok || h.dev == s.admin {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, name)
	}

	h.mu.Lock()
	h.restarting = true
	h.mu.Unlock()

	s.detector.Reset(h.dev.Name())
	err := h.dev.Init(ctx)

	h.mu.Lock()
	h.restarting = false
	h.mu.Unlock()
	s.interfaceChanged(h, true, force)
	s.logState(log.StateEntityDevice, h.dev.Name(), "", "STARTED", "device restarted")
	s.debugLog("device restarted", "device", h.dev.Name(), "error", err)
	return err
}

// RestartServer restarts every hosted device. Each device publishes its
// interface exactly once, changed or not.
func (s *Server) RestartServer(ctx context.Context) error {
	var errs []error
	for _, name := range s.Devices() {
		if err := s.restartDevice(ctx, name, true); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// QueryDevice returns "<class>::<name>" for every hosted device.
func (s *Server) QueryDevice() []string {
	names := s.Devices()
	out := make([]string, 0, len(names))
	for _, n := range names {
		if h, ok := s.lookup(n); ok {
			out = append(out, h.dev.Class()+"::"+h.dev.Name())
		}
	}
	return out
}

func (s *Server) cmdDevRestart(ctx context.Context, arg any) (any, error) {
	name, err := wire.As[string](arg)
	if err != nil {
		return nil, err
	}
	return nil, s.RestartDevice(ctx, name)
}

func (s *Server) cmdRestartServer(ctx context.Context, _ any) (any, error) {
	return nil, s.RestartServer(ctx)
}

func (s *Server) cmdAddObjPolling(ctx context.Context, arg any) (any, error) {
	a, err := wire.As[wire.PollArgs](arg)
	if err != nil {
		return nil, err
	}
	return nil, s.StartPolling(a.Device, a.Name, a.Command, a.Period)
}

func (s *Server) cmdUpdObjPollingPeriod(ctx context.Context, arg any) (any, error) {
	a, err := wire.As[wire.PollArgs](arg)
	if err != nil {
		return nil, err
	}
	return nil, s.UpdatePollingPeriod(a.Device, a.Name, a.Period)
}

func (s *Server) cmdRemObjPolling(ctx context.Context, arg any) (any, error) {
	a, err := wire.As[wire.PollArgs](arg)
	if err != nil {
		return nil, err
	}
	return nil, s.StopPolling(a.Device, a.Name)
}

func (s *Server) cmdPolledDevice(ctx context.Context, _ any) (any, error) {
	return s.PolledDevices(), nil
}

func (s *Server) cmdQueryDevice(ctx context.Context, _ any) (any, error) {
	return s.QueryDevice(), nil
}

func (s *Server) cmdDevPollStatus(ctx context.Context, arg any) (any, error) {
	name, err := wire.As[string](arg)
	if err != nil {
		return nil, err
	}
	return s.PollStatus(name)
}
