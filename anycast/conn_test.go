package anycast

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMedium is an in-process simulated network shared by the fake
// flood and mesh transports below. It exists only for these tests; it
// plays the role the real flood/mesh primitives play in production,
// the same way the jroosing-HydraDNS test suite drives its server
// through an in-memory net.PacketConn pair instead of a real socket.
type fakeMedium struct {
	mu    sync.Mutex
	flood map[int][]*fakeFloodTransport
	mesh  map[NodeAddress]*fakeMeshTransport
}

func newFakeMedium() *fakeMedium {
	return &fakeMedium{
		flood: make(map[int][]*fakeFloodTransport),
		mesh:  make(map[NodeAddress]*fakeMeshTransport),
	}
}

type fakeFloodTransport struct {
	medium  *fakeMedium
	self    NodeAddress
	channel int
	handler FloodHandler
	sends   int32
}

func (f *fakeFloodTransport) Open(channel int, handler FloodHandler) error {
	f.channel = channel
	f.handler = handler
	f.medium.mu.Lock()
	f.medium.flood[channel] = append(f.medium.flood[channel], f)
	f.medium.mu.Unlock()
	return nil
}

func (f *fakeFloodTransport) Send(seq uint8, payload byte) error {
	atomic.AddInt32(&f.sends, 1)
	f.medium.mu.Lock()
	peers := append([]*fakeFloodTransport(nil), f.medium.flood[f.channel]...)
	f.medium.mu.Unlock()
	for _, p := range peers {
		if p == f {
			continue
		}
		p := p
		go p.handler.OnFloodRecv(f.self, seq, 1, payload)
	}
	return nil
}

func (f *fakeFloodTransport) Close() error { return nil }

type fakeMeshTransport struct {
	medium  *fakeMedium
	self    NodeAddress
	handler MeshHandler
	dropTo  map[NodeAddress]bool
}

func (m *fakeMeshTransport) Open(channel int, handler MeshHandler) error {
	m.handler = handler
	m.medium.mu.Lock()
	m.medium.mesh[m.self] = m
	m.medium.mu.Unlock()
	return nil
}

func (m *fakeMeshTransport) Send(dest NodeAddress, payload []byte) error {
	go func() {
		if m.dropTo[dest] {
			m.handler.OnMeshTimedout(dest, payload)
			return
		}
		m.medium.mu.Lock()
		target := m.medium.mesh[dest]
		m.medium.mu.Unlock()
		if target == nil {
			m.handler.OnMeshTimedout(dest, payload)
			return
		}
		target.handler.OnMeshRecv(m.self, 1, payload)
		m.handler.OnMeshSent(dest, payload)
	}()
	return nil
}

func (m *fakeMeshTransport) Close() error { return nil }

func newFakeNode(medium *fakeMedium, self NodeAddress) (*fakeFloodTransport, *fakeMeshTransport) {
	return &fakeFloodTransport{medium: medium, self: self},
		&fakeMeshTransport{medium: medium, self: self, dropTo: make(map[NodeAddress]bool)}
}

const testChannel = 11

func waitFor(t *testing.T, ch <-chan struct{}, d time.Duration, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(d):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestConnTwoNodeHappyPath(t *testing.T) {
	medium := newFakeMedium()
	cFlood, cMesh := newFakeNode(medium, 1)
	sFlood, sMesh := newFakeNode(medium, 2)

	received := make(chan []byte, 1)
	server, err := Open(sFlood, sMesh, testChannel, Callbacks{
		Recv: func(conn *Connection, originator NodeAddress, address AnycastAddress, payload []byte) {
			received <- payload
		},
	})
	require.NoError(t, err)
	defer server.Close()
	require.NoError(t, server.ListenOn(50))

	sent := make(chan struct{}, 1)
	client, err := Open(cFlood, cMesh, testChannel, Callbacks{
		Sent: func(conn *Connection, address AnycastAddress, payload []byte) {
			sent <- struct{}{}
		},
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(50, []byte("hello")))

	select {
	case payload := <-received:
		assert.Equal(t, []byte("hello"), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("server never received DATA")
	}
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("client never observed Sent")
	}
}

func TestConnNoServerFound(t *testing.T) {
	medium := newFakeMedium()
	cFlood, cMesh := newFakeNode(medium, 1)

	timedout := make(chan *TimeoutError, 1)
	client, err := Open(cFlood, cMesh, testChannel, Callbacks{
		Timedout: func(conn *Connection, e *TimeoutError) {
			timedout <- e
		},
	}, WithTimeout(50*time.Millisecond))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(50, []byte("x")))

	select {
	case e := <-timedout:
		assert.Equal(t, ErrNoServerFound, e.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a timeout callback")
	}
}

func TestConnServerFoundButNoRoute(t *testing.T) {
	medium := newFakeMedium()
	cFlood, cMesh := newFakeNode(medium, 1)
	sFlood, sMesh := newFakeNode(medium, 2)

	// The client's DATA send back to the server is the hop that fails.
	cMesh.dropTo[2] = true

	server, err := Open(sFlood, sMesh, testChannel, Callbacks{})
	require.NoError(t, err)
	defer server.Close()
	require.NoError(t, server.ListenOn(50))

	timedout := make(chan *TimeoutError, 1)
	client, err := Open(cFlood, cMesh, testChannel, Callbacks{
		Timedout: func(conn *Connection, e *TimeoutError) {
			timedout <- e
		},
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(50, []byte("x")))

	select {
	case e := <-timedout:
		assert.Equal(t, ErrNoRoute, e.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("expected ErrNoRoute")
	}
}

func TestConnTwoServersFirstWins(t *testing.T) {
	medium := newFakeMedium()
	cFlood, cMesh := newFakeNode(medium, 1)
	s1Flood, s1Mesh := newFakeNode(medium, 2)
	s2Flood, s2Mesh := newFakeNode(medium, 3)

	var recvCount int32
	recvCb := func(conn *Connection, originator NodeAddress, address AnycastAddress, payload []byte) {
		atomic.AddInt32(&recvCount, 1)
	}

	s1, err := Open(s1Flood, s1Mesh, testChannel, Callbacks{Recv: recvCb})
	require.NoError(t, err)
	defer s1.Close()
	require.NoError(t, s1.ListenOn(50))

	s2, err := Open(s2Flood, s2Mesh, testChannel, Callbacks{Recv: recvCb})
	require.NoError(t, err)
	defer s2.Close()
	require.NoError(t, s2.ListenOn(50))

	client, err := Open(cFlood, cMesh, testChannel, Callbacks{})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(50, []byte("x")))

	// Give both servers' RESPONSE a chance to race the client's
	// single-match pending buffer (§3 invariant 2).
	time.Sleep(300 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&recvCount), "exactly one server must deliver DATA")
}

func TestConnCacheHitSkipsFlood(t *testing.T) {
	medium := newFakeMedium()
	cFlood, cMesh := newFakeNode(medium, 1)
	sFlood, sMesh := newFakeNode(medium, 2)

	received := make(chan []byte, 2)
	server, err := Open(sFlood, sMesh, testChannel, Callbacks{
		Recv: func(conn *Connection, originator NodeAddress, address AnycastAddress, payload []byte) {
			received <- payload
		},
	})
	require.NoError(t, err)
	defer server.Close()
	require.NoError(t, server.ListenOn(50))

	client, err := Open(cFlood, cMesh, testChannel, Callbacks{}, WithCache(true))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Send(50, []byte("first")))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("first send never arrived")
	}

	floodsBefore := atomic.LoadInt32(&cFlood.sends)
	require.NoError(t, client.Send(50, []byte("second")))
	select {
	case payload := <-received:
		assert.Equal(t, []byte("second"), payload)
	case <-time.After(2 * time.Second):
		t.Fatal("second send never arrived")
	}
	assert.Equal(t, floodsBefore, atomic.LoadInt32(&cFlood.sends), "a cache hit must not re-flood")
}

func TestConnSendCapacityRejectsSixthConcurrentSend(t *testing.T) {
	medium := newFakeMedium()
	cFlood, cMesh := newFakeNode(medium, 1)

	client, err := Open(cFlood, cMesh, testChannel, Callbacks{}, WithTimeout(time.Hour))
	require.NoError(t, err)
	defer client.Close()

	for i := 1; i <= pendingCapacity; i++ {
		require.NoError(t, client.Send(AnycastAddress(i), []byte("x")))
	}
	require.NoError(t, client.Send(AnycastAddress(pendingCapacity+1), []byte("x")))

	// handleSend runs on the loop goroutine; round-trip a ListenOn
	// call through it first so every queued send has been processed.
	require.NoError(t, client.ListenOn(200))

	assert.Equal(t, pendingCapacity, client.pending.size())
	assert.EqualValues(t, 1, client.metrics.bufferFull.Count())
}

func TestListenOnBindCapacity(t *testing.T) {
	medium := newFakeMedium()
	flood, mesh := newFakeNode(medium, 1)
	conn, err := Open(flood, mesh, testChannel, Callbacks{})
	require.NoError(t, err)
	defer conn.Close()

	for i := 1; i <= bindCapacity; i++ {
		require.NoError(t, conn.ListenOn(AnycastAddress(i)))
	}
	err = conn.ListenOn(AnycastAddress(bindCapacity + 1))
	assert.ErrorIs(t, err, errBindFull)
}

func TestCloseStopsTimersAndIsIdempotent(t *testing.T) {
	medium := newFakeMedium()
	flood, mesh := newFakeNode(medium, 1)
	conn, err := Open(flood, mesh, testChannel, Callbacks{}, WithTimeout(time.Hour))
	require.NoError(t, err)

	require.NoError(t, conn.Send(50, []byte("x")))
	time.Sleep(20 * time.Millisecond)
	timer := conn.pending.timerAt(0)
	require.NotNil(t, timer, "the send must have armed a pending timer")

	require.NoError(t, conn.Close())
	assert.False(t, timer.Stop(), "Close must already have stopped the pending timer")
	assert.Equal(t, 0, conn.pending.size())
	require.NoError(t, conn.Close(), "Close must be idempotent")
}
