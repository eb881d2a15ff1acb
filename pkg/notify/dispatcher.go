// Package notify routes domain events to connected clients. The dispatcher
// is a stateless mapping from event kind to fan-out target; delivery is
// delegated to a Sink so it never holds transport details itself.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/hscale/adx-gateway/pkg/metrics"
	"github.com/hscale/adx-gateway/pkg/ws"
)

// Kind identifies a domain event.
type Kind string

const (
	KindSessionExpired    Kind = "session_expired"
	KindTenantSwitched    Kind = "tenant_switched"
	KindTenantUpdated     Kind = "tenant_updated"
	KindProfileUpdated    Kind = "profile_updated"
	KindWorkflowProgress  Kind = "workflow_progress"
	KindWorkflowCompleted Kind = "workflow_completed"
	KindWorkflowFailed    Kind = "workflow_failed"
)

// Event is an ephemeral domain notification. It is mapped to a wire
// envelope and dropped; nothing is persisted.
type Event struct {
	Kind        Kind
	UserID      string
	TenantID    string
	SessionID   string
	OperationID string
	Data        interface{}
}

// Sink is the delivery side of the registry. Fan-out methods return the
// number of connections reached.
type Sink interface {
	SendToUser(subject string, msg ws.Envelope) int
	SendToTenant(tenantID string, msg ws.Envelope) int
	SendToTopic(topic string, msg ws.Envelope) int
}

// TenantInvalidator evicts a cached tenant context so the next request
// observes the update.
type TenantInvalidator interface {
	Invalidate(ctx context.Context, tenantID string) error
}

// Dispatcher maps events to registry targets.
type Dispatcher struct {
	sink    Sink
	tenants TenantInvalidator
	log     *zap.Logger
	now     func() time.Time
}

func NewDispatcher(sink Sink, tenants TenantInvalidator, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sink:    sink,
		tenants: tenants,
		log:     log,
		now:     time.Now,
	}
}

// Dispatch delivers an event to its targets and returns the number of
// connections reached. Events with no reachable target are dropped
// silently; a disconnected client simply misses the push.
func (d *Dispatcher) Dispatch(ctx context.Context, e Event) int {
	env := d.envelope(e)
	delivered := 0

	switch e.Kind {
	case KindSessionExpired, KindTenantSwitched, KindProfileUpdated:
		delivered = d.sink.SendToUser(e.UserID, env)
		metrics.NotificationsSent.WithLabelValues("user").Add(float64(delivered))

	case KindTenantUpdated:
		if d.tenants != nil && e.TenantID != "" {
			if err := d.tenants.Invalidate(ctx, e.TenantID); err != nil {
				d.log.Warn("tenant cache invalidation failed",
					zap.String("tenant_id", e.TenantID), zap.Error(err))
			}
		}
		delivered = d.sink.SendToTenant(e.TenantID, env)
		metrics.NotificationsSent.WithLabelValues("tenant").Add(float64(delivered))

	case KindWorkflowProgress, KindWorkflowCompleted, KindWorkflowFailed:
		delivered = d.sink.SendToTopic(WorkflowTopic(e.OperationID), env)
		metrics.NotificationsSent.WithLabelValues("topic").Add(float64(delivered))
		if e.UserID != "" {
			n := d.sink.SendToUser(e.UserID, env)
			metrics.NotificationsSent.WithLabelValues("user").Add(float64(n))
			delivered += n
		}

	default:
		d.log.Warn("unknown event kind dropped", zap.String("kind", string(e.Kind)))
	}

	return delivered
}

// WorkflowTopic names the subscription topic for one workflow operation.
func WorkflowTopic(operationID string) string {
	return "workflow:" + operationID
}

func (d *Dispatcher) envelope(e Event) ws.Envelope {
	data := map[string]interface{}{
		"type":      string(e.Kind),
		"userId":    e.UserID,
		"timestamp": d.now().UTC().Format(time.RFC3339),
	}
	if e.TenantID != "" {
		data["tenantId"] = e.TenantID
	}
	if e.SessionID != "" {
		data["sessionId"] = e.SessionID
	}
	if e.OperationID != "" {
		data["operationId"] = e.OperationID
	}
	if e.Data != nil {
		data["data"] = e.Data
	}
	return ws.Envelope{Type: ws.TypeAuthStatusUpdate, Data: data}
}
