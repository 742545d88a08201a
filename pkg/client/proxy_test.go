package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tango-controls/tango-go/pkg/devserver"
	"github.com/tango-controls/tango-go/pkg/request"
	"github.com/tango-controls/tango-go/pkg/transport/mocks"
	"github.com/tango-controls/tango-go/pkg/wire"
)

func reason(t *testing.T, err error) string {
	t.Helper()
	df, ok := wire.AsDevFailed(err)
	require.True(t, ok, "want a DevFailed, got %v", err)
	return df.Reason()
}

func TestSyncCalls(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	p := env.proxy

	t.Run("Command", func(t *testing.T) {
		v, err := p.CommandInout(ctx, devserver.CmdDevDouble, 1.5)
		require.NoError(t, err)
		assert.Equal(t, 1.5, v)

		_, err = p.CommandInout(ctx, devserver.CmdIOThrow, "boom")
		assert.Equal(t, devserver.ReasonTestFailure, reason(t, err))

		_, err = p.CommandInout(ctx, "NoSuchCommand", nil)
		assert.Equal(t, wire.ReasonCommandNotFound, reason(t, err))
	})

	t.Run("Attributes", func(t *testing.T) {
		require.NoError(t, p.WriteAttribute(ctx, devserver.AttrDoubleScalar, 2.5))
		av, err := p.ReadAttribute(ctx, devserver.AttrDoubleScalar)
		require.NoError(t, err)
		assert.Equal(t, 2.5, av.Value)

		values, err := p.ReadAttributes(ctx, []string{devserver.AttrDoubleScalar, "missing"})
		require.NoError(t, err)
		require.Len(t, values, 2)
		assert.NoError(t, values[0].Err())
		assert.Error(t, values[1].Err())

		err = p.WriteAttributes(ctx, []wire.AttributeValue{
			{Name: devserver.AttrDoubleScalar, Value: 3.5},
			{Name: devserver.AttrStringScalar, Value: "x"},
		})
		require.NoError(t, err)
		av, err = p.ReadAttribute(ctx, devserver.AttrDoubleScalar)
		require.NoError(t, err)
		assert.Equal(t, 3.5, av.Value)
	})

	t.Run("PingAndAdmName", func(t *testing.T) {
		_, err := p.Ping(ctx)
		require.NoError(t, err)
		name, err := p.AdmName(ctx)
		require.NoError(t, err)
		assert.Equal(t, env.srv.AdminName(), name)
	})

	t.Run("UnknownDevice", func(t *testing.T) {
		other, err := env.s.NewDeviceProxy("sys/none/1")
		require.NoError(t, err)
		defer other.Close()
		_, err = other.Ping(ctx)
		assert.Equal(t, wire.ReasonDeviceNotFound, reason(t, err))
	})
}

func TestSyncTimeout(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.proxy.SetTimeout(30 * time.Millisecond)

	_, err := env.proxy.CommandInout(context.Background(), devserver.CmdIOSleep, int64(500))
	require.Error(t, err)
	df, ok := wire.AsDevFailed(err)
	require.True(t, ok)
	assert.Equal(t, wire.StatusTimeout, df.Status)
	assert.Equal(t, wire.ReasonDeviceTimedOut, df.Reason())
}

func TestAsynchPollingMode(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	p := env.proxy

	t.Run("ReadReply", func(t *testing.T) {
		require.NoError(t, p.WriteAttribute(ctx, devserver.AttrDoubleScalar, 4.0))
		id, err := p.ReadAttributeAsynch(ctx, devserver.AttrDoubleScalar)
		require.NoError(t, err)

		av, err := p.ReadAttributeReply(ctx, id, 0)
		require.NoError(t, err)
		assert.Equal(t, 4.0, av.Value)

		_, err = p.ReadAttributeReply(ctx, id, 0)
		assert.ErrorIs(t, err, request.ErrRequestNotFound, "a reply is collected once")
	})

	t.Run("NotYetArrivedThenTimeout", func(t *testing.T) {
		id, err := p.CommandInoutAsynch(ctx, devserver.CmdIOSleep, int64(200))
		require.NoError(t, err)

		_, err = p.CommandInoutReply(ctx, id, -1)
		assert.ErrorIs(t, err, request.ErrNotYetArrived)
		_, err = p.CommandInoutReply(ctx, id, 10*time.Millisecond)
		assert.ErrorIs(t, err, request.ErrTimeout)

		// the request survives both attempts
		_, err = p.CommandInoutReply(ctx, id, 0)
		assert.NoError(t, err)
	})

	t.Run("DeviceFailure", func(t *testing.T) {
		id, err := p.CommandInoutAsynch(ctx, devserver.CmdIOThrow, "async boom")
		require.NoError(t, err)
		_, err = p.CommandInoutReply(ctx, id, 0)
		assert.Equal(t, devserver.ReasonTestFailure, reason(t, err))
	})

	t.Run("Writes", func(t *testing.T) {
		id, err := p.WriteAttributeAsynch(ctx, devserver.AttrStringScalar, "async")
		require.NoError(t, err)
		require.NoError(t, p.WriteAttributeReply(ctx, id, 0))

		id, err = p.WriteAttributesAsynch(ctx, []wire.AttributeValue{{Name: devserver.AttrDoubleScalar, Value: 8.0}})
		require.NoError(t, err)
		require.NoError(t, p.WriteAttributesReply(ctx, id, 0))

		id, err = p.ReadAttributesAsynch(ctx, []string{devserver.AttrStringScalar, devserver.AttrDoubleScalar})
		require.NoError(t, err)
		values, err := p.ReadAttributesReply(ctx, id, 0)
		require.NoError(t, err)
		require.Len(t, values, 2)
		assert.Equal(t, "async", values[0].Value)
		assert.Equal(t, 8.0, values[1].Value)
	})

	t.Run("MismatchedID", func(t *testing.T) {
		id, err := p.CommandInoutAsynch(ctx, devserver.CmdDevVoid, nil)
		require.NoError(t, err)

		_, err = p.ReadAttributeReply(ctx, id, 0)
		assert.ErrorIs(t, err, ErrBadAsynchID)

		other, err := env.s.NewDeviceProxy(env.srv.AdminName())
		require.NoError(t, err)
		defer other.Close()
		_, err = other.CommandInoutReply(ctx, id, 0)
		assert.ErrorIs(t, err, ErrBadAsynchID)

		_, err = p.CommandInoutReply(ctx, id, 0)
		assert.NoError(t, err)
	})
}

func TestAsynchCallbackMode(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	p := env.proxy

	var mu sync.Mutex
	var results []*request.Result
	cb := &request.Callbacks{
		CmdEnded: func(r *request.Result) {
			mu.Lock()
			defer mu.Unlock()
			results = append(results, r)
		},
	}
	fired := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(results)
	}

	t.Run("Pull", func(t *testing.T) {
		require.NoError(t, p.CommandInoutAsynchCB(ctx, devserver.CmdDevDouble, 6.5, cb))
		assert.Equal(t, 1, env.s.PendingAsynchCount(request.ModeCallback))
		assert.Zero(t, env.s.PendingAsynchCount(request.ModePolling))

		require.NoError(t, p.GetAsynchReplies(ctx, 0))
		require.Equal(t, 1, fired())
		assert.Equal(t, 6.5, results[0].Value())
		assert.NoError(t, results[0].Err)

		require.NoError(t, env.s.GetAsynchReplies(ctx, -1))
		assert.Equal(t, 1, fired(), "callbacks fire once")
		assert.Zero(t, env.s.PendingAsynchCount(request.ModeAll))
	})

	t.Run("WaitForever", func(t *testing.T) {
		require.NoError(t, p.CommandInoutAsynchCB(ctx, devserver.CmdIOSleep, int64(50), cb))
		before := fired()
		require.NoError(t, env.s.GetAsynchReplies(ctx, 0))
		assert.Equal(t, before+1, fired())
	})

	t.Run("Push", func(t *testing.T) {
		env.s.SetCallbackModel(CallbackPush)
		defer env.s.SetCallbackModel(CallbackPull)

		before := fired()
		require.NoError(t, p.CommandInoutAsynchCB(ctx, devserver.CmdIOThrow, "pushed", cb))
		require.Eventually(t, func() bool { return fired() == before+1 }, eventWait, 5*time.Millisecond)

		mu.Lock()
		last := results[len(results)-1]
		mu.Unlock()
		assert.Equal(t, devserver.ReasonTestFailure, reason(t, last.Err))
	})
}

func TestAsynchSendFailure(t *testing.T) {
	tr := mocks.NewMockTransport(t)
	tr.EXPECT().SetHandler(mock.Anything).Return()
	tr.EXPECT().Send(mock.Anything, mock.Anything).Return(errors.New("broken pipe"))
	tr.EXPECT().Close().Return(nil)

	s := NewSession(tr, testConfig())
	p, err := s.NewDeviceProxy(testDev)
	require.NoError(t, err)

	called := false
	err = p.ReadAttributeAsynchCB(context.Background(), devserver.AttrDoubleScalar, &request.Callbacks{
		AttrRead: func(*request.Result) { called = true },
	})
	require.Error(t, err)
	df, ok := wire.AsDevFailed(err)
	require.True(t, ok)
	assert.Equal(t, wire.StatusDeviceUnreachable, df.Status)
	assert.Equal(t, wire.ReasonCantConnect, df.Reason())

	assert.Zero(t, s.PendingAsynchCount(request.ModeAll), "failed submissions are discarded")
	require.NoError(t, s.GetAsynchReplies(context.Background(), -1))
	assert.False(t, called)

	require.NoError(t, s.Close())
}

func TestInvokeUsesSessionIdentity(t *testing.T) {
	tr := mocks.NewMockTransport(t)
	tr.EXPECT().SetHandler(mock.Anything).Return()
	tr.EXPECT().Invoke(mock.Anything, mock.Anything).RunAndReturn(
		func(ctx context.Context, req *wire.Request) (*wire.Reply, error) {
			assert.NotZero(t, req.RequestID)
			assert.Equal(t, "session-1", req.Client)
			assert.Equal(t, testDev, req.Device)
			return &wire.Reply{RequestID: req.RequestID, Value: "dserver/test"}, nil
		})
	tr.EXPECT().Close().Return(nil)

	cfg := testConfig()
	cfg.SessionID = "session-1"
	s := NewSession(tr, cfg)
	defer s.Close()

	p, err := s.NewDeviceProxy("SYS/TG_TEST/1")
	require.NoError(t, err)
	name, err := p.AdmName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dserver/test", name)

	// cached
	name, err = p.AdmName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dserver/test", name)
}

func TestProxyClose(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	p := env.proxy

	id, err := p.SubscribeEvent(ctx, devserver.AttrDoubleScalar, wire.EventAttrConf, SubscribeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, env.srv.Interest(testDev, devserver.AttrDoubleScalar, wire.EventAttrConf))

	_, err = p.CommandInoutAsynch(ctx, devserver.CmdIOSleep, int64(100))
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())

	assert.Zero(t, env.srv.Interest(testDev, devserver.AttrDoubleScalar, wire.EventAttrConf))
	assert.Zero(t, env.s.PendingAsynchCount(request.ModeAll))
	_, err = env.s.dispatcher.Get(id)
	assert.Error(t, err)

	_, err = p.Ping(ctx)
	assert.ErrorIs(t, err, ErrProxyClosed)
	_, err = p.ReadAttributeAsynch(ctx, devserver.AttrDoubleScalar)
	assert.ErrorIs(t, err, ErrProxyClosed)
}

func TestSessionClose(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	_, err := env.proxy.SubscribeEvent(ctx, devserver.AttrDoubleScalar, wire.EventAttrConf, SubscribeOptions{})
	require.NoError(t, err)

	require.NoError(t, env.s.Close())
	require.NoError(t, env.s.Close())

	assert.Zero(t, env.srv.Interest(testDev, devserver.AttrDoubleScalar, wire.EventAttrConf))
	assert.Zero(t, env.lb.ConnectionCount())

	_, err = env.proxy.Ping(ctx)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = env.s.NewDeviceProxy(testDev)
	assert.ErrorIs(t, err, ErrSessionClosed)
}
