package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPStatusClient calls a remote status endpoint with a bearer token. Used
// when the entitlement source of truth lives behind another service.
type HTTPStatusClient struct {
	endpoint string
	http     *http.Client
}

func NewHTTPStatusClient(endpoint string) *HTTPStatusClient {
	return &HTTPStatusClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPStatusClient) FetchStatus(ctx context.Context, token string) (*StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building status request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var out StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return &out, nil
}

// ServiceStatusClient resolves the status in-process through the
// subscription service. The session token is already implied by the user the
// client was built for.
type ServiceStatusClient struct {
	svc    Service
	userID string
}

func NewServiceStatusClient(svc Service, userID string) *ServiceStatusClient {
	return &ServiceStatusClient{svc: svc, userID: userID}
}

func (c *ServiceStatusClient) FetchStatus(ctx context.Context, _ string) (*StatusResponse, error) {
	return c.svc.CurrentStatus(ctx, c.userID)
}
