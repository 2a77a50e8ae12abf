// Package reconapi is the HTTP client for the ReconAI backend's domain
// envelope endpoints. It returns raw envelope bytes; contract validation
// happens downstream and nothing here inspects the body.
package reconapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Default endpoint paths per domain.
var defaultPaths = map[string]string{
	"core":         "/v1/core/summary",
	"cfo":          "/v1/cfo/snapshot",
	"intelligence": "/v1/intelligence/digest",
}

const defaultTimeout = 15 * time.Second

// Client fetches raw domain envelopes.
type Client interface {
	// FetchEnvelope returns the raw envelope body for a domain along
	// with the request ID that was sent as provenance.
	FetchEnvelope(ctx context.Context, domain string) (*EnvelopeResponse, error)
}

// EnvelopeResponse is one successful backend fetch.
type EnvelopeResponse struct {
	Body      []byte
	RequestID string
}

// APIError is returned when the backend responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("reconapi: HTTP %d (request %s): %s", e.StatusCode, e.RequestID, e.Body)
}

// HTTPStatus reports the status for transient-error classification.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the backend base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds each fetch. Every request gets a deadline; this
// only changes it.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithEndpoint overrides the path for one domain.
func WithEndpoint(domain, path string) Option {
	return func(c *httpClient) {
		c.paths[domain] = path
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	paths   map[string]string
	http    *http.Client
}

// NewClient creates a backend client. apiKey may be empty for
// unauthenticated deployments.
func NewClient(baseURL, apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		timeout: defaultTimeout,
		paths:   make(map[string]string, len(defaultPaths)),
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for domain, path := range defaultPaths {
		c.paths[domain] = path
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) FetchEnvelope(ctx context.Context, domain string) (*EnvelopeResponse, error) {
	path, ok := c.paths[domain]
	if !ok {
		return nil, eris.Errorf("reconapi: no endpoint for domain %q", domain)
	}

	// Every fetch carries a deadline; a hung backend must never hang a
	// panel.
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestID := uuid.NewString()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "reconapi: build request for %s", domain)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "reconapi: fetch %s envelope", domain)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrapf(err, "reconapi: read %s envelope", domain)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(body),
			RequestID:  requestID,
		}
	}

	return &EnvelopeResponse{Body: body, RequestID: requestID}, nil
}
