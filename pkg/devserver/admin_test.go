package devserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tango-controls/tango-go/pkg/property"
	"github.com/tango-controls/tango-go/pkg/wire"
)

func TestAdminPollingCommands(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())
	admin := s.AdminName()

	command(t, s, admin, wire.AdminAddObjPolling, wire.PollArgs{Device: testDev, Name: AttrDoubleScalar, Period: time.Second})
	command(t, s, admin, wire.AdminAddObjPolling, wire.PollArgs{Device: testDev, Name: CmdDevVoid, Command: true, Period: time.Second})

	period, ok := s.PollPeriod(testDev, AttrDoubleScalar)
	require.True(t, ok)
	assert.Equal(t, time.Second, period)

	polled := command(t, s, admin, wire.AdminPolledDevice, nil)
	assert.Equal(t, []string{testDev}, polled.Value)

	command(t, s, admin, wire.AdminUpdObjPollingPeriod, wire.PollArgs{Device: testDev, Name: AttrDoubleScalar, Period: 200 * time.Millisecond})
	period, _ = s.PollPeriod(testDev, AttrDoubleScalar)
	assert.Equal(t, 200*time.Millisecond, period)

	status := command(t, s, admin, wire.AdminDevPollStatus, testDev)
	lines, ok := status.Value.([]string)
	require.True(t, ok)
	require.Len(t, lines, 2)
	joined := strings.Join(lines, "\n")
	assert.Contains(t, joined, "Polled attribute name = double_scalar")
	assert.Contains(t, joined, "Polled command name = devvoid")
	assert.Contains(t, joined, "Polling period (mS) = 200")

	command(t, s, admin, wire.AdminRemObjPolling, wire.PollArgs{Device: testDev, Name: AttrDoubleScalar})
	_, ok = s.PollPeriod(testDev, AttrDoubleScalar)
	assert.False(t, ok)

	req := newRequest(wire.OpCommand, admin, wire.AdminRemObjPolling)
	req.Args = wire.PollArgs{Device: testDev, Name: AttrDoubleScalar}
	reply := s.HandleRequest(context.Background(), req)
	assert.Equal(t, wire.StatusInvalidArgument, reply.Status)
	require.NotEmpty(t, reply.Errors)
	assert.Equal(t, wire.ReasonPollObjNotFound, reply.Errors[0].Reason)
}

func TestAdminPollingRejects(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	assert.ErrorIs(t, s.StartPolling("sys/none/1", AttrDoubleScalar, false, time.Second), ErrDeviceNotFound)
	assert.Error(t, s.StartPolling(testDev, "missing", false, time.Second))
	assert.Error(t, s.StartPolling(testDev, CmdDevDouble, true, time.Second), "commands with an argument cannot be polled")
	assert.Error(t, s.StartPolling(testDev, AttrDoubleScalar, false, time.Millisecond))

	require.NoError(t, s.StartPolling(testDev, AttrDoubleScalar, false, time.Second))
	assert.Error(t, s.StartPolling(testDev, AttrDoubleScalar, false, time.Second))
}

func TestAdminQueryDevice(t *testing.T) {
	s, _, _ := newTestServer(t, DefaultConfig())

	reply := command(t, s, s.AdminName(), wire.AdminQueryDevice, nil)
	assert.Equal(t, []string{TestDeviceClass + "::" + testDev}, reply.Value)
}

func TestPollingSurvivesRestart(t *testing.T) {
	store := property.NewMemoryStore()
	cfg := DefaultConfig()
	cfg.Store = store

	first, td, _ := newTestServer(t, cfg)
	require.NoError(t, first.StartPolling(testDev, AttrDoubleScalar, false, 300*time.Millisecond))
	attr, err := td.GetAttribute(AttrLongScalar)
	require.NoError(t, err)
	conf := attr.Config()
	conf.Events.RelChange = 10
	require.NoError(t, td.SetAttributeConfig(conf))
	first.Close()

	second, td2, _ := newTestServer(t, cfg)
	period, ok := second.PollPeriod(testDev, AttrDoubleScalar)
	require.True(t, ok)
	assert.Equal(t, 300*time.Millisecond, period)

	attr2, err := td2.GetAttribute(AttrLongScalar)
	require.NoError(t, err)
	assert.Equal(t, 10.0, attr2.EventProperties().RelChange)
}

func TestRestartServer(t *testing.T) {
	s, _, rec := newTestServer(t, DefaultConfig())
	require.True(t, subscribe(t, s, wire.InterfaceEventName, wire.EventInterfaceChange).IsSuccess())

	command(t, s, s.AdminName(), wire.AdminRestartServer, nil)

	msgs := rec.of(wire.EventInterfaceChange)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].Interface.DevStarted)
	assert.Equal(t, testDev, msgs[0].Device)

	// A second restart reports again, once per device.
	command(t, s, s.AdminName(), wire.AdminRestartServer, nil)
	assert.Len(t, rec.of(wire.EventInterfaceChange), 2)
}
