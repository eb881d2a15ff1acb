package ws

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hscale/adx-gateway/pkg/auth"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(30*time.Second, zaptest.NewLogger(t))
}

func openConn(r *Registry, id, subject, tenantID string) *Connection {
	c := NewConnection(id, &auth.Identity{Subject: subject, TenantID: tenantID, SessionID: "s-" + subject}, nil)
	r.Register(c)
	return c
}

func drainOne(t *testing.T, c *Connection) Envelope {
	t.Helper()
	select {
	case frame := <-c.send:
		e, err := ParseEnvelope(frame)
		require.NoError(t, err)
		return e
	default:
		t.Fatalf("no frame queued on %s", c.ID)
		return Envelope{}
	}
}

func TestSendTargetsSingleConnection(t *testing.T) {
	r := newTestRegistry(t)
	c := openConn(r, "c1", "user-1", "t1")

	assert.True(t, r.Send("c1", Pong()))
	assert.Equal(t, TypePong, drainOne(t, c).Type)

	assert.False(t, r.Send("ghost", Pong()))
}

func TestFanOutCounts(t *testing.T) {
	r := newTestRegistry(t)
	openConn(r, "c1", "user-1", "t1")
	openConn(r, "c2", "user-1", "t1")
	openConn(r, "c3", "user-2", "t1")
	openConn(r, "c4", "user-3", "t2")

	msg := Envelope{Type: TypeAuthStatusUpdate}
	assert.Equal(t, 2, r.SendToUser("user-1", msg))
	assert.Equal(t, 3, r.SendToTenant("t1", msg))
	assert.Equal(t, 1, r.SendToTenant("t2", msg))
	assert.Equal(t, 0, r.SendToTenant("t3", msg))
}

func TestIndexConsistencyAfterClose(t *testing.T) {
	// N connections open, M close: tenant fan-out reaches exactly N-M and
	// a closed connection's id is absent from every index.
	r := newTestRegistry(t)
	n, m := 5, 2
	for i := 0; i < n; i++ {
		c := openConn(r, fmt.Sprintf("c%d", i), fmt.Sprintf("user-%d", i), "t1")
		require.True(t, r.Subscribe(c.ID, []string{"announcements"}))
	}
	for i := 0; i < m; i++ {
		r.Close(fmt.Sprintf("c%d", i), "test")
	}

	msg := Envelope{Type: TypeAuthStatusUpdate}
	assert.Equal(t, n-m, r.SendToTenant("t1", msg))
	assert.Equal(t, n-m, r.SendToTopic("announcements", msg))
	assert.Equal(t, n-m, r.Len())

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < m; i++ {
		id := fmt.Sprintf("c%d", i)
		assert.NotContains(t, r.byID, id)
		assert.NotContains(t, r.bySubject[fmt.Sprintf("user-%d", i)], id)
		assert.NotContains(t, r.byTenant["t1"], id)
		assert.NotContains(t, r.byTopic["announcements"], id)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	c := openConn(r, "c1", "user-1", "t1")

	r.Close("c1", "test")
	r.Close("c1", "test")

	assert.Equal(t, StateClosed, c.state)
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Send("c1", Pong()))
}

func TestTopicMatchingIsExact(t *testing.T) {
	r := newTestRegistry(t)
	c := openConn(r, "c1", "user-1", "t1")
	require.True(t, r.Subscribe(c.ID, []string{"files:*"}))

	msg := Envelope{Type: TypeAuthStatusUpdate}
	// No wildcard support at the registry level: "files:*" only matches
	// the literal topic "files:*".
	assert.Equal(t, 0, r.SendToTopic("files:123", msg))
	assert.Equal(t, 1, r.SendToTopic("files:*", msg))
}

func TestUnsubscribe(t *testing.T) {
	r := newTestRegistry(t)
	c := openConn(r, "c1", "user-1", "t1")
	require.True(t, r.Subscribe(c.ID, []string{"a", "b"}))
	require.True(t, r.Unsubscribe(c.ID, []string{"a"}))

	msg := Envelope{Type: TypeAuthStatusUpdate}
	assert.Equal(t, 0, r.SendToTopic("a", msg))
	assert.Equal(t, 1, r.SendToTopic("b", msg))
}

func TestSubscribeUnknownConnection(t *testing.T) {
	r := newTestRegistry(t)
	assert.False(t, r.Subscribe("ghost", []string{"a"}))
}

func TestReapStale(t *testing.T) {
	r := newTestRegistry(t)
	base := time.Now()
	r.now = func() time.Time { return base }

	openConn(r, "c1", "user-1", "t1")
	openConn(r, "c2", "user-2", "t1")

	// c2 responds to pings, c1 goes silent.
	r.now = func() time.Time { return base.Add(45 * time.Second) }
	r.Touch("c2")

	r.now = func() time.Time { return base.Add(61 * time.Second) }
	r.reapStale()

	assert.False(t, r.Send("c1", Pong()))
	assert.True(t, r.Send("c2", Pong()))
	assert.Equal(t, 1, r.Len())
}

func TestRunReapsWithinTwoIntervals(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, zaptest.NewLogger(t))
	openConn(r, "c1", "user-1", "t1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool { return r.Len() == 0 },
		10*20*time.Millisecond, 5*time.Millisecond,
		"silent connection must be reaped within two heartbeat intervals")
}

func TestRunDrainsOnShutdown(t *testing.T) {
	r := NewRegistry(time.Minute, zaptest.NewLogger(t))
	openConn(r, "c1", "user-1", "t1")
	openConn(r, "c2", "user-2", "t2")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	assert.Equal(t, 0, r.Len())
}

func TestEnvelopeShapes(t *testing.T) {
	e := Connected("c1", "user-1", "t1")
	frame, err := e.Marshal()
	require.NoError(t, err)

	parsed, err := ParseEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, TypeConnected, parsed.Type)
	data, ok := parsed.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "c1", data["connectionId"])
	assert.Equal(t, "user-1", data["userId"])
	assert.Equal(t, "t1", data["tenantId"])

	sub, err := ParseEnvelope([]byte(`{"type":"subscribe","channels":["files:1","jobs:2"]}`))
	require.NoError(t, err)
	assert.Equal(t, TypeSubscribe, sub.Type)
	assert.Equal(t, []string{"files:1", "jobs:2"}, sub.Channels)
}
