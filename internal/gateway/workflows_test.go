package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hscale/adx-gateway/internal/workflow"
	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
	"github.com/hscale/adx-gateway/pkg/notify"
	"github.com/hscale/adx-gateway/pkg/tenant"
)

type nullEvents struct{}

func (nullEvents) Dispatch(context.Context, notify.Event) int { return 0 }

func newWorkflowFixture(t *testing.T, engine http.Handler) (*chainFixture, http.Handler) {
	t.Helper()
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	log := zaptest.NewLogger(t)
	client := workflow.NewClient(srv.URL, time.Second, log)
	streamer := workflow.NewStreamer(client, nullEvents{}, 5*time.Millisecond, log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := newChainFixture(t)
	h := f.chain(t, "workflow", newWorkflowHandler(ctx, client, streamer, log))
	return f, h
}

func engineStub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`{"operationId":"op-7"}`))
		case strings.HasPrefix(r.URL.Path, "/api/operations/"):
			_ = json.NewEncoder(w).Encode(workflow.OperationStatus{
				OperationID: "op-7", Status: workflow.StatusCompleted, Progress: 100,
			})
		default:
			http.NotFound(w, r)
		}
	})
}

func TestWorkflowStartRequiresFeature(t *testing.T) {
	f, h := newWorkflowFixture(t, engineStub())

	req := httptest.NewRequest(http.MethodPost, "/api/workflows",
		strings.NewReader(`{"type":"bulk_export"}`))
	req.Header.Set("Authorization", "Bearer "+f.token(t, "user-1", "t1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, string(gwerrors.CodeFeatureUnavailable), env.Error.Code)
}

func TestWorkflowStartAndStatus(t *testing.T) {
	f, h := newWorkflowFixture(t, engineStub())
	f.tenants["t1"].Features = []string{"workflows"}
	token := f.token(t, "user-1", "t1")

	req := httptest.NewRequest(http.MethodPost, "/api/workflows",
		strings.NewReader(`{"type":"bulk_export","input":{"format":"csv"}}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var started map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.Equal(t, "op-7", started["operationId"])

	req = httptest.NewRequest(http.MethodGet, "/api/workflows/op-7", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var status workflow.OperationStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, workflow.StatusCompleted, status.Status)
}

func TestWorkflowStatusRejectsNestedPath(t *testing.T) {
	f, h := newWorkflowFixture(t, engineStub())
	f.tenants["t1"].Features = []string{"workflows"}

	req := httptest.NewRequest(http.MethodGet, "/api/workflows/op-7/extra", nil)
	req.Header.Set("Authorization", "Bearer "+f.token(t, "user-1", "t1"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

var _ tenant.Service = (*staticTenants)(nil)
