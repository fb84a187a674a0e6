// Package restclient implements the plan and entity status stores against a
// remote ReleaseForge API.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Strob0t/ReleaseForge/internal/domain/feature"
	"github.com/Strob0t/ReleaseForge/internal/domain/plan"
	"github.com/Strob0t/ReleaseForge/internal/domain/product"
	"github.com/Strob0t/ReleaseForge/internal/logger"
	"github.com/Strob0t/ReleaseForge/internal/port/planstore"
	"github.com/Strob0t/ReleaseForge/internal/port/statusstore"
	"github.com/Strob0t/ReleaseForge/internal/resilience"
)

const maxResponseBody = 4 << 20

var (
	_ planstore.Store            = (*Client)(nil)
	_ statusstore.FeatureStore   = (*Client)(nil)
	_ statusstore.ComponentStore = (*Client)(nil)
)

// Client talks to the ReleaseForge REST API. Non-2xx answers come back as
// *resilience.StatusError and requests that got no answer wrap
// resilience.ErrNetwork.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// New creates a client for the API at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetTransport replaces the HTTP transport, e.g. with a tracing one.
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.httpClient.Transport = rt
}

// GetPlan fetches one plan.
func (c *Client) GetPlan(ctx context.Context, id string) (*plan.Plan, error) {
	var p plan.Plan
	if err := c.do(ctx, http.MethodGet, "/api/v1/plans/"+url.PathEscape(id), nil, &p); err != nil {
		return nil, fmt.Errorf("get plan %s: %w", id, err)
	}
	return &p, nil
}

// UpdatePlan sends a conditional patch.
func (c *Client) UpdatePlan(ctx context.Context, id string, patch plan.Patch, expected time.Time) (*plan.Plan, error) {
	var p plan.Plan
	body := plan.UpdateRequest{Patch: patch, ExpectedUpdatedAt: expected}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/plans/"+url.PathEscape(id), body, &p); err != nil {
		return nil, fmt.Errorf("update plan %s: %w", id, err)
	}
	return &p, nil
}

// UpdateFeatureStatus sends a conditional feature status write.
func (c *Client) UpdateFeatureStatus(ctx context.Context, id string, status feature.Status, expected time.Time) (*feature.Feature, error) {
	var f feature.Feature
	body := feature.StatusUpdate{Status: status, ExpectedUpdatedAt: expected}
	if err := c.do(ctx, http.MethodPut, "/api/v1/features/"+url.PathEscape(id)+"/status", body, &f); err != nil {
		return nil, fmt.Errorf("update feature %s: %w", id, err)
	}
	return &f, nil
}

// UpdateComponents sends a conditional component list write.
func (c *Client) UpdateComponents(ctx context.Context, productID string, u product.ComponentsUpdate, expected time.Time) (*product.Product, error) {
	var p product.Product
	body := product.ComponentsRequest{ComponentsUpdate: u, ExpectedUpdatedAt: expected}
	if err := c.do(ctx, http.MethodPut, "/api/v1/products/"+url.PathEscape(productID)+"/components", body, &p); err != nil {
		return nil, fmt.Errorf("update components of product %s: %w", productID, err)
	}
	return &p, nil
}

// Health reports whether the API answers /health.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	call := func(ctx context.Context) error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if id := logger.RequestID(ctx); id != "" {
			req.Header.Set("X-Request-ID", id)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			return fmt.Errorf("%w: %w", resilience.ErrNetwork, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return fmt.Errorf("%w: read response: %w", resilience.ErrNetwork, err)
		}
		if resp.StatusCode >= 300 {
			return &resilience.StatusError{Status: resp.StatusCode, Message: problemDetail(data)}
		}
		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}

	if c.breaker != nil {
		return c.breaker.Execute(ctx, call)
	}
	return call(ctx)
}

// problemDetail extracts the detail of an RFC 7807 body. Other bodies are
// not shown to users.
func problemDetail(data []byte) string {
	var p struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return ""
	}
	return p.Detail
}
