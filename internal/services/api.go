// Rate limited JSON client shared by the catalog providers and the media server client
package services

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

	"github.com/desertthunder/jellysync/internal/shared"
	"golang.org/x/time/rate"
)

// maxErrorBody bounds the response body kept on an [APIError].
const maxErrorBody = 512

// APIError is returned for non-2xx responses. It matches [shared.ErrAPIRequest], and
// [shared.ErrNotFound] for 404s.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Service, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() []error {
	if e.StatusCode == http.StatusNotFound {
		return []error{shared.ErrAPIRequest, shared.ErrNotFound}
	}
	return []error{shared.ErrAPIRequest}
}

// apiClient performs JSON requests against one base URL, waiting on a token bucket before each request.
type apiClient struct {
	service    string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	header     http.Header
}

// newAPIClient creates an apiClient. A non-positive rps disables rate limiting.
func newAPIClient(service, baseURL string, client *http.Client, rps float64, header http.Header) *apiClient {
	if client == nil {
		client = http.DefaultClient
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
	if header == nil {
		header = http.Header{}
	}
	return &apiClient{
		service:    service,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		limiter:    limiter,
		header:     header,
	}
}

// do sends the request and decodes a JSON response into out when out is non-nil.
func (a *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	fullURL := a.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	for k, vs := range a.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", shared.ErrAPIRequest, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Service: a.service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty %s response", shared.ErrAPIRequest, a.service)
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (a *apiClient) get(ctx context.Context, path string, query url.Values, out any) error {
	return a.do(ctx, http.MethodGet, path, query, nil, out)
}
