package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/hscale/adx-gateway/internal/workflow"
	"github.com/hscale/adx-gateway/pkg/contextx"
	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
)

// workflowHandler forwards operation starts and status polls to the
// workflow engine. Each started operation gets a progress stream that
// relays engine updates to the initiating user until the operation ends.
type workflowHandler struct {
	client   *workflow.Client
	streamer *workflow.Streamer
	// baseCtx bounds progress streams to the server lifetime, not the
	// start request's lifetime.
	baseCtx context.Context
	log     *zap.Logger
}

func newWorkflowHandler(baseCtx context.Context, client *workflow.Client, streamer *workflow.Streamer, log *zap.Logger) *workflowHandler {
	return &workflowHandler{client: client, streamer: streamer, baseCtx: baseCtx, log: log}
}

func (h *workflowHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/workflows":
		h.start(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/workflows/"):
		h.status(w, r)
	default:
		writeError(w, contextx.Logger(r.Context()), gwerrors.New(gwerrors.CodeInvalidInput, "unsupported workflow route"))
	}
}

func (h *workflowHandler) start(w http.ResponseWriter, r *http.Request) {
	log := contextx.Logger(r.Context())

	if tctx := contextx.Tenant(r.Context()); tctx != nil {
		if err := tctx.RequireFeature("workflows"); err != nil {
			writeError(w, log, err)
			return
		}
	}

	var req struct {
		Type  string                 `json:"type"`
		Input map[string]interface{} `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Type == "" {
		writeError(w, log, gwerrors.New(gwerrors.CodeInvalidInput, "workflow type is required"))
		return
	}

	operationID, err := h.client.Start(r.Context(), req.Type, req.Input)
	if err != nil {
		writeError(w, log, err)
		return
	}

	userID := ""
	if identity := contextx.Identity(r.Context()); identity != nil {
		userID = identity.Subject
	}
	go func() {
		if err := h.streamer.StreamProgress(h.baseCtx, operationID, userID); err != nil {
			h.log.Warn("progress stream ended early",
				zap.String("operation_id", operationID), zap.Error(err))
		}
	}()

	writeJSON(w, log, http.StatusAccepted, map[string]string{"operationId": operationID})
}

func (h *workflowHandler) status(w http.ResponseWriter, r *http.Request) {
	log := contextx.Logger(r.Context())

	operationID := strings.TrimPrefix(r.URL.Path, "/api/workflows/")
	if operationID == "" || strings.Contains(operationID, "/") {
		writeError(w, log, gwerrors.New(gwerrors.CodeInvalidInput, "invalid operation id"))
		return
	}

	status, err := h.client.Status(r.Context(), operationID)
	if err != nil {
		writeError(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, status)
}
