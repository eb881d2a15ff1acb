// Package ws multiplexes long-lived push connections, indexed by connection
// id, subject, tenant, and subscribed topic. The registry is the only owner
// of the indexes; everything mutable is guarded by one mutex, which is
// correct and simple at the expected scale of thousands of connections per
// process.
package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hscale/adx-gateway/pkg/metrics"
)

// Registry is the in-process index of open connections.
type Registry struct {
	mu        sync.Mutex
	byID      map[string]*Connection
	bySubject map[string]map[string]*Connection
	byTenant  map[string]map[string]*Connection
	byTopic   map[string]map[string]*Connection

	pingInterval time.Duration
	log          *zap.Logger
	now          func() time.Time
}

// NewRegistry creates an empty registry. pingInterval drives both the
// per-connection transport pings and the liveness sweep; a connection whose
// last liveness signal is older than twice the interval is reaped.
func NewRegistry(pingInterval time.Duration, log *zap.Logger) *Registry {
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Registry{
		byID:         make(map[string]*Connection),
		bySubject:    make(map[string]map[string]*Connection),
		byTenant:     make(map[string]map[string]*Connection),
		byTopic:      make(map[string]map[string]*Connection),
		pingInterval: pingInterval,
		log:          log.With(zap.String("module", "ws")),
		now:          time.Now,
	}
}

// PingInterval returns the configured heartbeat interval.
func (r *Registry) PingInterval() time.Duration { return r.pingInterval }

// Register moves a connection from Connecting to Open and indexes it by id,
// subject, and tenant. Only registered connections are reachable by sends.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c.state = StateOpen
	c.lastPing = r.now()
	r.byID[c.ID] = c

	if r.bySubject[c.Identity.Subject] == nil {
		r.bySubject[c.Identity.Subject] = make(map[string]*Connection)
	}
	r.bySubject[c.Identity.Subject][c.ID] = c

	if r.byTenant[c.Identity.TenantID] == nil {
		r.byTenant[c.Identity.TenantID] = make(map[string]*Connection)
	}
	r.byTenant[c.Identity.TenantID][c.ID] = c

	metrics.ActiveConnections.Inc()
	r.log.Info("connection registered",
		zap.String("connection_id", c.ID),
		zap.String("subject", c.Identity.Subject),
		zap.String("tenant_id", c.Identity.TenantID),
	)
}

// Close removes the connection from every index and shuts its transport
// down. Index entries are released before Close returns, so no fan-out can
// observe a closed connection. Safe to call more than once.
func (r *Registry) Close(connectionID string, reason string) {
	r.mu.Lock()
	c, ok := r.byID[connectionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	c.state = StateClosing
	delete(r.byID, connectionID)
	r.removeFromIndex(r.bySubject, c.Identity.Subject, connectionID)
	r.removeFromIndex(r.byTenant, c.Identity.TenantID, connectionID)
	for topic := range c.subscriptions {
		r.removeFromIndex(r.byTopic, topic, connectionID)
	}
	c.state = StateClosed
	r.mu.Unlock()

	c.shutdown()
	metrics.ActiveConnections.Dec()
	r.log.Info("connection closed",
		zap.String("connection_id", connectionID),
		zap.String("reason", reason),
	)
}

func (r *Registry) removeFromIndex(index map[string]map[string]*Connection, key, connectionID string) {
	if conns, ok := index[key]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(index, key)
		}
	}
}

// Subscribe adds topics to the connection's subscription set. Matching is
// exact-string only; a pattern like "files:*" is just another literal topic.
func (r *Registry) Subscribe(connectionID string, topics []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[connectionID]
	if !ok || c.state != StateOpen {
		return false
	}
	for _, topic := range topics {
		c.subscriptions[topic] = struct{}{}
		if r.byTopic[topic] == nil {
			r.byTopic[topic] = make(map[string]*Connection)
		}
		r.byTopic[topic][connectionID] = c
	}
	return true
}

// Unsubscribe removes topics from the connection's subscription set.
func (r *Registry) Unsubscribe(connectionID string, topics []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byID[connectionID]
	if !ok {
		return false
	}
	for _, topic := range topics {
		delete(c.subscriptions, topic)
		r.removeFromIndex(r.byTopic, topic, connectionID)
	}
	return true
}

// Touch records a liveness signal for the connection.
func (r *Registry) Touch(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byID[connectionID]; ok {
		c.lastPing = r.now()
	}
}

// Send delivers a message to one connection, best-effort. Returns false if
// the connection is not Open or its buffer is full.
func (r *Registry) Send(connectionID string, msg Envelope) bool {
	frame, err := msg.Marshal()
	if err != nil {
		r.log.Error("failed to marshal message", zap.Error(err))
		return false
	}

	r.mu.Lock()
	c, ok := r.byID[connectionID]
	open := ok && c.state == StateOpen
	r.mu.Unlock()

	if !open {
		return false
	}
	return c.enqueue(frame)
}

// SendToUser fans out to every Open connection of the subject. Returns the
// delivered count.
func (r *Registry) SendToUser(subject string, msg Envelope) int {
	return r.fanOut(r.collect(r.bySubject, subject), msg)
}

// SendToTenant fans out to every Open connection of the tenant.
func (r *Registry) SendToTenant(tenantID string, msg Envelope) int {
	return r.fanOut(r.collect(r.byTenant, tenantID), msg)
}

// SendToTopic fans out to every Open connection subscribed to the topic.
func (r *Registry) SendToTopic(topic string, msg Envelope) int {
	return r.fanOut(r.collect(r.byTopic, topic), msg)
}

func (r *Registry) collect(index map[string]map[string]*Connection, key string) []*Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns := make([]*Connection, 0, len(index[key]))
	for _, c := range index[key] {
		if c.state == StateOpen {
			conns = append(conns, c)
		}
	}
	return conns
}

func (r *Registry) fanOut(conns []*Connection, msg Envelope) int {
	if len(conns) == 0 {
		return 0
	}
	frame, err := msg.Marshal()
	if err != nil {
		r.log.Error("failed to marshal message", zap.Error(err))
		return 0
	}

	delivered := 0
	for _, c := range conns {
		if c.enqueue(frame) {
			delivered++
		} else {
			r.log.Warn("send buffer full, dropping frame",
				zap.String("connection_id", c.ID),
				zap.String("type", msg.Type),
			)
		}
	}
	return delivered
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Run sweeps for stale connections until the context is cancelled. The
// sweep runs on its own ticker, never piggybacked on request handling, so
// request load cannot starve it.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case <-ticker.C:
			r.reapStale()
		}
	}
}

// reapStale closes every connection whose last liveness signal is older
// than twice the ping interval. This bounds memory growth from half-open
// transports.
func (r *Registry) reapStale() {
	cutoff := r.now().Add(-2 * r.pingInterval)

	r.mu.Lock()
	stale := make([]string, 0)
	for id, c := range r.byID {
		if c.state == StateOpen && c.lastPing.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.Close(id, "heartbeat timeout")
	}
}

// drain closes every connection. Used at shutdown.
func (r *Registry) drain() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Close(id, "server shutdown")
	}
}
