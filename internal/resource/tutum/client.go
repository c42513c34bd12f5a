// Package tutum implements resource.Client against the Tutum v1 REST API.
package tutum

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dockup-scheduler/internal/apperrors"
	"dockup-scheduler/internal/job"
	"dockup-scheduler/internal/resource"
	"dockup-scheduler/pkg/circuitbreaker"
)

const userAgent = "dockup-scheduler"

// Client implements resource.Client over HTTP.
type Client struct {
	client  *http.Client
	base    string
	auth    string
	breaker *circuitbreaker.Breaker
}

// NewClient creates a new Tutum API client with standard transport settings.
func NewClient(cfg Config) (*Client, error) {
	auth := cfg.authorization()
	if auth == "" {
		return nil, apperrors.Validation("TUTUM_AUTH", "TUTUM_AUTH or TUTUM_USER and TUTUM_APIKEY are required")
	}
	if cfg.Host == "" {
		return nil, apperrors.Validation("TUTUM_REST_HOST", "TUTUM_REST_HOST is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		base: cfg.Host,
		auth: auth,
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
			IsFailure: isAPIFailure,
		}),
	}, nil
}

// Fetch returns the resource of the given kind and identifier.
func (c *Client) Fetch(ctx context.Context, kind resource.Kind, id string) (*resource.Resource, error) {
	var out apiResource
	if err := c.do(ctx, http.MethodGet, resource.URI(kind, id), nil, &out); err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", kind, id, err)
	}
	return out.toResource(kind), nil
}

// Create builds an unsaved service. No remote call is made.
func (c *Client) Create(_ context.Context, desc *job.Description) (*resource.Resource, error) {
	for i, b := range desc.Bindings {
		if b.Volume != "" {
			return nil, apperrors.Validation(fmt.Sprintf("bindings[%d]", i), fmt.Sprintf("named volume %q is not supported by Tutum", b.Volume))
		}
	}
	spec := *desc
	return &resource.Resource{
		Kind:                resource.KindService,
		Name:                desc.Name,
		ImageName:           desc.Image,
		Bindings:            desc.Bindings,
		TargetNumContainers: desc.TargetNumContainers,
		Spec:                &spec,
	}, nil
}

// Save creates an unsaved service with POST, or updates a saved one with
// PATCH.
func (c *Client) Save(ctx context.Context, r *resource.Resource) (*resource.Resource, error) {
	if r.Kind != "" && r.Kind != resource.KindService {
		return nil, apperrors.Validation("kind", fmt.Sprintf("only services can be saved, got %s", r.Kind))
	}

	var (
		out    apiResource
		method = http.MethodPost
		path   = "/api/v1/service/"
		body   *serviceRequest
	)
	switch {
	case !r.Saved() && r.Spec == nil:
		return nil, apperrors.Validation("spec", "unsaved service has no description")
	case !r.Saved():
		body = newServiceRequest(r.Spec)
	case r.Spec != nil:
		method, path = http.MethodPatch, resource.URI(resource.KindService, r.ID)
		body = newServiceRequest(r.Spec)
		// Image and name are immutable after creation.
		body.Image, body.Name = "", ""
	default:
		method, path = http.MethodPatch, resource.URI(resource.KindService, r.ID)
		body = &serviceRequest{TargetNumContainers: r.TargetNumContainers}
	}

	if err := c.do(ctx, method, path, body, &out); err != nil {
		return nil, fmt.Errorf("save service %s: %w", r.Name, err)
	}
	saved := out.toResource(resource.KindService)
	saved.Spec = r.Spec
	return saved, nil
}

// Start starts a saved service.
func (c *Client) Start(ctx context.Context, r *resource.Resource) error {
	if err := c.do(ctx, http.MethodPost, resource.URI(resource.KindService, r.ID)+"start/", nil, nil); err != nil {
		return fmt.Errorf("start service %s: %w", r.ID, err)
	}
	return nil
}

// Delete terminates a saved service and its containers.
func (c *Client) Delete(ctx context.Context, r *resource.Resource) error {
	if err := c.do(ctx, http.MethodDelete, resource.URI(resource.KindService, r.ID), nil, nil); err != nil {
		return fmt.Errorf("delete service %s: %w", r.ID, err)
	}
	return nil
}

// Ready checks that the API is reachable and the credentials are accepted.
func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/service/?limit=1", nil, nil)
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// Calls fail fast with ErrInternal while the API keeps failing.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	err := c.breaker.Do(func() error { return c.send(ctx, method, path, in, out) })
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return apperrors.Internal("tutum."+strings.ToLower(method), err)
	}
	return err
}

// isAPIFailure reports whether err means the API itself is unhealthy:
// transport errors and 5xx responses. Client errors and cancellation do not
// count.
func isAPIFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return true
}

func (c *Client) send(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.auth)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	slog.Debug("Tutum API call", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var _ resource.Client = (*Client)(nil)
