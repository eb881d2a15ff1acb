package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	gwerrors "github.com/hscale/adx-gateway/pkg/errors"
)

// HTTPService fetches tenant metadata over HTTP from the tenant service.
type HTTPService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPService creates an HTTP-backed tenant Service.
func NewHTTPService(baseURL string, client *http.Client) *HTTPService {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPService{baseURL: baseURL, client: client}
}

// FetchTenant retrieves a tenant context from GET {base}/api/tenants/{id}.
func (s *HTTPService) FetchTenant(ctx context.Context, id string) (*Context, error) {
	url := fmt.Sprintf("%s/api/tenants/%s", s.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build tenant request")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "tenant service request")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var tctx Context
		if err := json.NewDecoder(resp.Body).Decode(&tctx); err != nil {
			return nil, errors.Wrap(err, "decode tenant response")
		}
		return &tctx, nil
	case http.StatusNotFound:
		return nil, gwerrors.ErrTenantNotFound
	default:
		return nil, gwerrors.Wrap(
			errors.Errorf("tenant service returned %d", resp.StatusCode),
			gwerrors.CodeUpstreamUnavailable, "tenant service error",
		)
	}
}

var _ Service = (*HTTPService)(nil)
