package client

import (
	"bufio"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// PollAttribute starts polling an attribute, or changes its period if it is
// already polled.
func (p *DeviceProxy) PollAttribute(ctx context.Context, name string, period time.Duration) error {
	return p.poll(ctx, name, false, period)
}

// PollCommand starts polling a command without input, or changes its
// period.
func (p *DeviceProxy) PollCommand(ctx context.Context, name string, period time.Duration) error {
	return p.poll(ctx, name, true, period)
}

// StopPollAttribute stops polling an attribute.
func (p *DeviceProxy) StopPollAttribute(ctx context.Context, name string) error {
	_, err := p.adminCommand(ctx, wire.AdminRemObjPolling, wire.PollArgs{Device: p.name, Name: name})
	return err
}

// StopPollCommand stops polling a command.
func (p *DeviceProxy) StopPollCommand(ctx context.Context, name string) error {
	_, err := p.adminCommand(ctx, wire.AdminRemObjPolling, wire.PollArgs{Device: p.name, Name: name, Command: true})
	return err
}

// GetAttributePollPeriod returns the polling period of an attribute, or 0
// if it is not polled.
func (p *DeviceProxy) GetAttributePollPeriod(ctx context.Context, name string) (time.Duration, error) {
	return p.pollPeriod(ctx, name, false)
}

// GetCommandPollPeriod returns the polling period of a command, or 0.
func (p *DeviceProxy) GetCommandPollPeriod(ctx context.Context, name string) (time.Duration, error) {
	return p.pollPeriod(ctx, name, true)
}

// IsAttributePolled reports whether an attribute is polled.
func (p *DeviceProxy) IsAttributePolled(ctx context.Context, name string) (bool, error) {
	period, err := p.pollPeriod(ctx, name, false)
	return period > 0, err
}

// PollingStatus returns the polling status of every polled object of the
// device, one multi-line entry per object.
func (p *DeviceProxy) PollingStatus(ctx context.Context) ([]string, error) {
	v, err := p.adminCommand(ctx, wire.AdminDevPollStatus, p.name)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return wire.As[[]string](v)
}

func (p *DeviceProxy) poll(ctx context.Context, name string, command bool, period time.Duration) error {
	current, err := p.pollPeriod(ctx, name, command)
	if err != nil {
		return err
	}
	cmd := wire.AdminAddObjPolling
	if current > 0 {
		if current == period {
			return nil
		}
		cmd = wire.AdminUpdObjPollingPeriod
	}
	_, err = p.adminCommand(ctx, cmd, wire.PollArgs{Device: p.name, Name: name, Command: command, Period: period})
	return err
}

func (p *DeviceProxy) pollPeriod(ctx context.Context, name string, command bool) (time.Duration, error) {
	status, err := p.PollingStatus(ctx)
	if err != nil {
		return 0, err
	}
	kind := "attribute"
	if command {
		kind = "command"
	}
	for _, entry := range status {
		if period, ok := parsePollStatus(entry, kind, name); ok {
			return period, nil
		}
	}
	return 0, nil
}

// adminCommand runs a command on the admin device of the proxy's server.
func (p *DeviceProxy) adminCommand(ctx context.Context, cmd string, arg any) (any, error) {
	admin, err := p.AdmName(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	reply, err := p.s.call(ctx, p.Timeout(), &wire.Request{
		Operation: wire.OpCommand,
		Device:    admin,
		Names:     []string{cmd},
		Args:      arg,
	})
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// parsePollStatus extracts the period from one DevPollStatus entry if it
// describes the object name of the given kind.
//
//	Polled attribute name = double_scalar
//	Polling period (mS) = 200
func parsePollStatus(entry, kind, name string) (time.Duration, bool) {
	var matched bool
	sc := bufio.NewScanner(strings.NewReader(entry))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), " = ")
		if !ok {
			continue
		}
		switch {
		case key == "Polled "+kind+" name":
			if wire.NormalizeName(value) != wire.NormalizeName(name) {
				return 0, false
			}
			matched = true
		case key == "Polling period (mS)" && matched:
			ms, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err != nil {
				return 0, false
			}
			return time.Duration(ms) * time.Millisecond, true
		}
	}
	return 0, false
}
