package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tango-controls/tango-go/pkg/wire"
)

// echoServer replies with the first request name as value and records
// dropped clients.
type echoServer struct {
	mu      sync.Mutex
	dropped []string
	block   chan struct{}
}

func (s *echoServer) HandleRequest(ctx context.Context, req *wire.Request) *wire.Reply {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return wire.FailedReply(req.RequestID, wire.StatusTimeout, ctx.Err())
		}
	}
	return &wire.Reply{RequestID: req.RequestID, Value: req.Name()}
}

func (s *echoServer) DropClient(client string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, client)
}

// collector is a Handler keeping everything it receives.
type collector struct {
	mu      sync.Mutex
	replies []*wire.Reply
	events  []*wire.EventMessage
}

func (c *collector) HandleReply(r *wire.Reply) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, r)
}

func (c *collector) HandleEvent(m *wire.EventMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, m)
}

func (c *collector) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.replies), len(c.events)
}

func request(id uint32, name string) *wire.Request {
	return &wire.Request{RequestID: id, Operation: wire.OpCommand, Device: "sys/tg_test/1", Names: []string{name}, Client: "c1"}
}

func changeEvent(name string, v float64) *wire.EventMessage {
	return &wire.EventMessage{
		Device: "sys/tg_test/1",
		Name:   name,
		Kind:   wire.EventChange,
		Time:   time.Now(),
		Value:  &wire.AttributeValue{Name: name, Value: v},
	}
}

func TestLoopbackInvoke(t *testing.T) {
	for _, codec := range []bool{false, true} {
		lb := NewLoopback(&echoServer{}, LoopbackConfig{Codec: codec})
		conn := lb.Conn()

		reply, err := conn.Invoke(context.Background(), request(7, "DevVoid"))
		require.NoError(t, err)
		assert.Equal(t, uint32(7), reply.RequestID)
		assert.Equal(t, "DevVoid", reply.Value)
		require.NoError(t, conn.Close())
	}
}

func TestLoopbackSendDeliversReply(t *testing.T) {
	lb := NewLoopback(&echoServer{}, LoopbackConfig{})
	conn := lb.Conn()
	defer conn.Close()

	h := &collector{}
	conn.SetHandler(h)
	require.NoError(t, conn.Send(context.Background(), request(3, "DevString")))

	assert.Eventually(t, func() bool {
		n, _ := h.counts()
		return n == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint32(3), h.replies[0].RequestID)
}

func TestLoopbackEventsFollowWatches(t *testing.T) {
	lb := NewLoopback(&echoServer{}, LoopbackConfig{})
	a, b := lb.Conn(), lb.Conn()
	defer a.Close()
	defer b.Close()

	ha, hb := &collector{}, &collector{}
	a.SetHandler(ha)
	b.SetHandler(hb)

	topic := changeEvent("double_scalar", 0).Topic()
	require.NoError(t, a.Watch(topic))

	for i := 1; i <= 5; i++ {
		lb.Publish(changeEvent("double_scalar", float64(i)))
	}
	lb.Publish(changeEvent("long_scalar", 1))

	assert.Eventually(t, func() bool {
		_, n := ha.counts()
		return n == 5
	}, time.Second, 5*time.Millisecond)

	ha.mu.Lock()
	for i, m := range ha.events {
		assert.Equal(t, float64(i+1), m.Value.Value, "events keep their publication order")
	}
	ha.mu.Unlock()
	_, n := hb.counts()
	assert.Zero(t, n)

	require.NoError(t, a.Unwatch(topic))
	lb.Publish(changeEvent("double_scalar", 6))
	time.Sleep(20 * time.Millisecond)
	_, n = ha.counts()
	assert.Equal(t, 5, n)
}

func TestLoopbackWatchesAreCounted(t *testing.T) {
	lb := NewLoopback(&echoServer{}, LoopbackConfig{})
	conn := lb.Conn()
	defer conn.Close()

	topic := changeEvent("double_scalar", 0).Topic()
	require.NoError(t, conn.Watch(topic))
	require.NoError(t, conn.Watch(topic))
	require.NoError(t, conn.Unwatch(topic))
	assert.True(t, conn.watching(topic))
	require.NoError(t, conn.Unwatch(topic))
	assert.False(t, conn.watching(topic))
}

func TestLoopbackInvokeHonorsContext(t *testing.T) {
	srv := &echoServer{block: make(chan struct{})}
	lb := NewLoopback(srv, LoopbackConfig{})
	conn := lb.Conn()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := conn.Invoke(ctx, request(1, "IOSleep"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(srv.block)
	require.NoError(t, conn.Close())
}

func TestLoopbackClose(t *testing.T) {
	srv := &echoServer{}
	lb := NewLoopback(srv, LoopbackConfig{})
	conn := lb.Conn()

	_, err := conn.Invoke(context.Background(), request(1, "DevVoid"))
	require.NoError(t, err)
	assert.Equal(t, 1, lb.ConnectionCount())

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	assert.Zero(t, lb.ConnectionCount())
	assert.Equal(t, []string{"c1"}, srv.dropped)

	_, err = conn.Invoke(context.Background(), request(2, "DevVoid"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, conn.Send(context.Background(), request(3, "DevVoid")), ErrClosed)
	assert.ErrorIs(t, conn.Watch("x"), ErrClosed)

	// publishing to a closed connection is a no-op
	lb.Publish(changeEvent("double_scalar", 1))
}

func TestFrames(t *testing.T) {
	frames, err := EncodeRequestFrames(TagAsync, request(9, "DevDouble"))
	require.NoError(t, err)

	tag, req, err := DecodeRequestFrames(append([][]byte{[]byte("identity")}, frames...))
	require.NoError(t, err)
	assert.Equal(t, TagAsync, tag)
	assert.Equal(t, uint32(9), req.RequestID)

	_, _, err = DecodeRequestFrames([][]byte{[]byte("X"), frames[1]})
	assert.ErrorIs(t, err, ErrInvalidTag)
	_, _, err = DecodeReplyFrames(frames[:1])
	assert.ErrorIs(t, err, ErrShortFrames)

	msg := changeEvent("double_scalar", 1)
	data, err := wire.EncodeEvent(msg)
	require.NoError(t, err)
	_, err = DecodeEventFrames([][]byte{[]byte(msg.Topic()), data})
	require.NoError(t, err)
	_, err = DecodeEventFrames([][]byte{[]byte("tango://other"), data})
	assert.Error(t, err)
}
