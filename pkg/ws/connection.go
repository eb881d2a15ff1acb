package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hscale/adx-gateway/pkg/auth"
)

// State is a connection's lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

const sendBufferSize = 256

// Connection is one long-lived client connection. It belongs to exactly one
// Identity and is owned exclusively by the Registry: created on handshake,
// destroyed on close or heartbeat timeout, never shared outside it.
type Connection struct {
	ID       string
	Identity *auth.Identity

	conn      *websocket.Conn // nil for registry-only connections in tests
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	// Guarded by the registry mutex.
	state         State
	lastPing      time.Time
	subscriptions map[string]struct{}
}

// NewConnection creates a connection in the Connecting state. It is not
// reachable by any fan-out until the Registry registers it.
func NewConnection(id string, identity *auth.Identity, conn *websocket.Conn) *Connection {
	return &Connection{
		ID:            id,
		Identity:      identity,
		conn:          conn,
		send:          make(chan []byte, sendBufferSize),
		closed:        make(chan struct{}),
		state:         StateConnecting,
		subscriptions: make(map[string]struct{}),
	}
}

// enqueue hands a frame to the write pump without blocking. A full buffer
// drops the frame: a slow consumer must not stall fan-out to its tenant.
func (c *Connection) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	case <-c.closed:
		return false
	default:
		return false
	}
}

// shutdown unblocks the pumps and closes the transport. Idempotent.
func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
