package workflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
	"github.com/hscale/adx-gateway/pkg/notify"
)

func TestStartOperation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/operations", r.URL.Path)

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "bulk_export", body["type"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"operationId":"op-1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zaptest.NewLogger(t))
	id, err := c.Start(context.Background(), "bulk_export", map[string]interface{}{"format": "csv"})
	require.NoError(t, err)
	assert.Equal(t, "op-1", id)
}

func TestStatusMapsEngineErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/operations/missing":
			http.NotFound(w, r)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, zaptest.NewLogger(t))

	_, err := c.Status(context.Background(), "missing")
	assert.Equal(t, gwerrors.CodeInvalidInput, gwerrors.CodeOf(err))

	_, err = c.Status(context.Background(), "op-1")
	assert.Equal(t, gwerrors.CodeUpstreamUnavailable, gwerrors.CodeOf(err))
}

func TestStatusUnreachableEngine(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, zaptest.NewLogger(t))
	_, err := c.Status(context.Background(), "op-1")
	assert.Equal(t, gwerrors.CodeUpstreamUnavailable, gwerrors.CodeOf(err))
}

type recordingEvents struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingEvents) Dispatch(_ context.Context, e notify.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return 1
}

func (r *recordingEvents) snapshot() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

func TestStreamProgressRelaysUntilTerminal(t *testing.T) {
	var mu sync.Mutex
	responses := []OperationStatus{
		{OperationID: "op-1", Status: StatusRunning, Progress: 20},
		{OperationID: "op-1", Status: StatusRunning, Progress: 20}, // unchanged, no relay
		{OperationID: "op-1", Status: StatusRunning, Progress: 80},
		{OperationID: "op-1", Status: StatusCompleted, Progress: 100, Result: json.RawMessage(`{"rows":3}`)},
	}
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[call]
		if call < len(responses)-1 {
			call++
		}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	events := &recordingEvents{}
	s := NewStreamer(NewClient(srv.URL, time.Second, zaptest.NewLogger(t)), events,
		5*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.StreamProgress(ctx, "op-1", "user-1"))

	got := events.snapshot()
	require.Len(t, got, 3)
	assert.Equal(t, notify.KindWorkflowProgress, got[0].Kind)
	assert.Equal(t, notify.KindWorkflowProgress, got[1].Kind)
	assert.Equal(t, notify.KindWorkflowCompleted, got[2].Kind)
	assert.Equal(t, "user-1", got[2].UserID)
	assert.Equal(t, "op-1", got[2].OperationID)

	final := got[2].Data.(map[string]interface{})
	assert.Equal(t, 100, final["progress"])
}

func TestStreamProgressRecoversFromOutage(t *testing.T) {
	var mu sync.Mutex
	call := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		call++
		n := call
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OperationStatus{
			OperationID: "op-2", Status: StatusFailed, Progress: 50, Error: "step 3 timed out",
		})
	}))
	defer srv.Close()

	events := &recordingEvents{}
	s := NewStreamer(NewClient(srv.URL, time.Second, zaptest.NewLogger(t)), events,
		5*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.StreamProgress(ctx, "op-2", "user-1"))

	got := events.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, notify.KindWorkflowFailed, got[0].Kind)
	data := got[0].Data.(map[string]interface{})
	assert.Equal(t, "step 3 timed out", data["error"])
}

func TestStreamProgressStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(OperationStatus{OperationID: "op-3", Status: StatusRunning, Progress: 10})
	}))
	defer srv.Close()

	events := &recordingEvents{}
	s := NewStreamer(NewClient(srv.URL, time.Second, zaptest.NewLogger(t)), events,
		5*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	err := s.StreamProgress(ctx, "op-3", "user-1")
	assert.ErrorIs(t, err, context.Canceled)
}
