// Package workflow is the client for the external workflow engine. The
// gateway never executes workflows itself; it starts operations, polls
// status, and relays progress to subscribed connections.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
)

// Operation statuses reported by the engine.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// OperationStatus is one snapshot of a running operation.
type OperationStatus struct {
	OperationID string          `json:"operationId"`
	Status      string          `json:"status"`
	Progress    int             `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Terminal reports whether the operation will see no further updates.
func (s *OperationStatus) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Client talks HTTP JSON to the workflow engine.
type Client struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Start submits a new operation and returns its id.
func (c *Client) Start(ctx context.Context, workflowType string, input map[string]interface{}) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"type":  workflowType,
		"input": input,
	})
	if err != nil {
		return "", gwerrors.Wrap(err, gwerrors.CodeInvalidInput, "invalid workflow input")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/operations", bytes.NewReader(body))
	if err != nil {
		return "", gwerrors.Wrap(err, gwerrors.CodeInternal, "build workflow request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", gwerrors.Wrap(pkgerrors.Wrap(err, "start operation"),
			gwerrors.CodeUpstreamUnavailable, "workflow engine unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.statusError(resp)
	}

	var out struct {
		OperationID string `json:"operationId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", gwerrors.Wrap(err, gwerrors.CodeUpstreamUnavailable, "malformed workflow engine response")
	}
	return out.OperationID, nil
}

// Status fetches the current snapshot of one operation.
func (c *Client) Status(ctx context.Context, operationID string) (*OperationStatus, error) {
	url := fmt.Sprintf("%s/api/operations/%s", c.baseURL, operationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.CodeInternal, "build workflow request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, gwerrors.Wrap(pkgerrors.Wrap(err, "operation status"),
			gwerrors.CodeUpstreamUnavailable, "workflow engine unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var status OperationStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, gwerrors.Wrap(err, gwerrors.CodeUpstreamUnavailable, "malformed workflow engine response")
	}
	if status.OperationID == "" {
		status.OperationID = operationID
	}
	return &status, nil
}

func (c *Client) statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	c.log.Warn("workflow engine error response",
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", snippet))
	if resp.StatusCode == http.StatusNotFound {
		return gwerrors.New(gwerrors.CodeInvalidInput, "unknown operation")
	}
	return gwerrors.New(gwerrors.CodeUpstreamUnavailable,
		fmt.Sprintf("workflow engine returned %d", resp.StatusCode))
}
