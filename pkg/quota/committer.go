package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"

	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
)

// HTTPCommitter debits usage against the downstream service that owns the
// quota ledger. The gateway never holds authoritative counters.
type HTTPCommitter struct {
	baseURL string
	client  *http.Client
}

func NewHTTPCommitter(baseURL string, timeout time.Duration) *HTTPCommitter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPCommitter{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPCommitter) CommitUsage(ctx context.Context, tenantID, quotaType string, amount int64) error {
	body, err := json.Marshal(map[string]interface{}{"amount": amount})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/tenants/%s/quotas/%s/usage", c.baseURL, tenantID, quotaType)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "commit usage")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return gwerrors.New(gwerrors.CodeUpstreamUnavailable,
			fmt.Sprintf("quota ledger returned %d", resp.StatusCode))
	}
	return nil
}

var _ Committer = (*HTTPCommitter)(nil)
