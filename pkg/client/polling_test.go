package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tango-controls/tango-go/pkg/devserver"
	"github.com/tango-controls/tango-go/pkg/transport"
)

func TestAttributePolling(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	p := env.proxy

	polled, err := p.IsAttributePolled(ctx, devserver.AttrDoubleScalar)
	require.NoError(t, err)
	assert.False(t, polled)

	require.NoError(t, p.PollAttribute(ctx, devserver.AttrDoubleScalar, 100*time.Millisecond))
	period, err := p.GetAttributePollPeriod(ctx, devserver.AttrDoubleScalar)
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, period)

	require.NoError(t, p.PollAttribute(ctx, "Double_Scalar", 200*time.Millisecond))
	got, ok := env.srv.PollPeriod(testDev, devserver.AttrDoubleScalar)
	require.True(t, ok)
	assert.Equal(t, 200*time.Millisecond, got)

	// same period again is a no-op
	require.NoError(t, p.PollAttribute(ctx, devserver.AttrDoubleScalar, 200*time.Millisecond))

	status, err := p.PollingStatus(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Contains(t, status[0], "Polling period (mS) = 200")

	require.NoError(t, p.StopPollAttribute(ctx, devserver.AttrDoubleScalar))
	polled, err = p.IsAttributePolled(ctx, devserver.AttrDoubleScalar)
	require.NoError(t, err)
	assert.False(t, polled)
}

func TestCommandPolling(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	p := env.proxy

	require.NoError(t, p.PollCommand(ctx, devserver.CmdDevVoid, 300*time.Millisecond))
	period, err := p.GetCommandPollPeriod(ctx, devserver.CmdDevVoid)
	require.NoError(t, err)
	assert.Equal(t, 300*time.Millisecond, period)

	// an attribute of the same name is not reported
	period, err = p.GetAttributePollPeriod(ctx, devserver.CmdDevVoid)
	require.NoError(t, err)
	assert.Zero(t, period)

	require.NoError(t, p.StopPollCommand(ctx, devserver.CmdDevVoid))
	period, err = p.GetCommandPollPeriod(ctx, devserver.CmdDevVoid)
	require.NoError(t, err)
	assert.Zero(t, period)
}

func TestParsePollStatus(t *testing.T) {
	entry := "Polled attribute name = double_scalar\n" +
		"Polling period (mS) = 250\n" +
		"Polling ring buffer depth = 10"

	tests := []struct {
		name       string
		entry      string
		kind       string
		object     string
		wantPeriod time.Duration
		wantOK     bool
	}{
		{"match", entry, "attribute", "double_scalar", 250 * time.Millisecond, true},
		{"case insensitive", entry, "attribute", "Double_Scalar", 250 * time.Millisecond, true},
		{"other object", entry, "attribute", "long_scalar", 0, false},
		{"other kind", entry, "command", "double_scalar", 0, false},
		{"bad period", "Polled attribute name = x\nPolling period (mS) = soon", "attribute", "x", 0, false},
		{"empty", "", "attribute", "x", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			period, ok := parsePollStatus(tt.entry, tt.kind, tt.object)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPeriod, period)
		})
	}
}

func TestDefaultSession(t *testing.T) {
	t.Cleanup(func() {
		_ = Cleanup()
		SetDefaultDialer(nil, DefaultConfig())
	})

	SetDefaultDialer(nil, DefaultConfig())
	_, err := Default()
	assert.ErrorIs(t, err, ErrNoDialer)

	srv := devserver.NewServer(devserver.DefaultConfig())
	defer srv.Close()
	_, err = srv.AddTestDevice(testDev)
	require.NoError(t, err)

	dials := 0
	SetDefaultDialer(func() (transport.Transport, error) {
		dials++
		lb := transport.NewLoopback(srv, transport.LoopbackConfig{})
		return lb.Conn(), nil
	}, testConfig())

	s1, err := Default()
	require.NoError(t, err)
	s2, err := Default()
	require.NoError(t, err)
	assert.Same(t, s1, s2)
	assert.Equal(t, 1, dials)

	p, err := s1.NewDeviceProxy(testDev)
	require.NoError(t, err)
	_, err = p.Ping(context.Background())
	require.NoError(t, err)

	require.NoError(t, Cleanup())
	_, err = p.Ping(context.Background())
	assert.ErrorIs(t, err, ErrSessionClosed)

	s3, err := Default()
	require.NoError(t, err)
	assert.NotSame(t, s1, s3)
	assert.Equal(t, 2, dials)
}
