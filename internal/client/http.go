package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/alfredjeanlab/marketplace/internal/model"
	"github.com/alfredjeanlab/marketplace/internal/status"
)

// HTTPClient implements MarketplaceClient over the HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ MarketplaceClient = (*HTTPClient)(nil)

// NewHTTPClient creates a client for the given base URL (e.g.
// "http://localhost:8080"). A non-empty token is sent as a Bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

// --- Operations ---

// Health returns the server's health. An unhealthy server answers 503 with
// the same body, which is returned without an error.
func (c *HTTPClient) Health(ctx context.Context) (*HealthResponse, error) {
	code, body, err := c.do(ctx, http.MethodGet, "/v1/health", nil)
	if err != nil {
		return nil, err
	}
	if code != http.StatusOK && code != http.StatusServiceUnavailable {
		return nil, apiError(code, body)
	}
	var resp HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &resp, nil
}

func (c *HTTPClient) ListProjections(ctx context.Context) ([]status.Entry, error) {
	var entries []status.Entry
	if err := c.doJSON(ctx, http.MethodGet, "/v1/projections", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *HTTPClient) GetProjection(ctx context.Context, name string) (*status.Entry, error) {
	var e status.Entry
	if err := c.doJSON(ctx, http.MethodGet, "/v1/projections/"+url.PathEscape(name), nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *HTTPClient) ListCheckpoints(ctx context.Context) ([]*model.Checkpoint, error) {
	var checkpoints []*model.Checkpoint
	if err := c.doJSON(ctx, http.MethodGet, "/v1/checkpoints", nil, &checkpoints); err != nil {
		return nil, err
	}
	return checkpoints, nil
}

func (c *HTTPClient) ResetCheckpoint(ctx context.Context, projection string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/checkpoints/"+url.PathEscape(projection), nil, nil)
}

// --- Ad commands ---

func (c *HTTPClient) RegisterAd(ctx context.Context, id, ownerID string) (*CommandResult, error) {
	return c.command(ctx, http.MethodPost, "/v1/ads", map[string]string{"id": id, "owner_id": ownerID})
}

func (c *HTTPClient) ChangeTitle(ctx context.Context, id, title string) (*CommandResult, error) {
	return c.command(ctx, http.MethodPut, adPath(id, "title"), map[string]string{"title": title})
}

func (c *HTTPClient) UpdateText(ctx context.Context, id, text string) (*CommandResult, error) {
	return c.command(ctx, http.MethodPut, adPath(id, "text"), map[string]string{"text": text})
}

func (c *HTTPClient) ChangePrice(ctx context.Context, id string, price float64, currency string) (*CommandResult, error) {
	return c.command(ctx, http.MethodPut, adPath(id, "price"), map[string]any{"price": price, "currency": currency})
}

func (c *HTTPClient) PublishAd(ctx context.Context, id, approvedBy string) (*CommandResult, error) {
	return c.command(ctx, http.MethodPost, adPath(id, "publish"), map[string]string{"approved_by": approvedBy})
}

func (c *HTTPClient) MarkAsSold(ctx context.Context, id string) (*CommandResult, error) {
	return c.command(ctx, http.MethodPost, adPath(id, "sold"), nil)
}

func (c *HTTPClient) command(ctx context.Context, method, path string, body any) (*CommandResult, error) {
	var res CommandResult
	if err := c.doJSON(ctx, method, path, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func adPath(id, action string) string {
	return "/v1/ads/" + url.PathEscape(id) + "/" + action
}

// --- Read models ---

func (c *HTTPClient) ListAvailableAds(ctx context.Context, all bool) ([]*model.AvailableAd, error) {
	path := "/v1/ads"
	if all {
		path += "?all=true"
	}
	var ads []*model.AvailableAd
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &ads); err != nil {
		return nil, err
	}
	return ads, nil
}

func (c *HTTPClient) ListOwnerAds(ctx context.Context, ownerID string) ([]*model.OwnerAd, error) {
	var ads []*model.OwnerAd
	if err := c.doJSON(ctx, http.MethodGet, "/v1/owners/"+url.PathEscape(ownerID)+"/ads", nil, &ads); err != nil {
		return nil, err
	}
	return ads, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func apiError(code int, body []byte) *APIError {
	var errResp struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: code, Message: errResp.Error}
	}
	return &APIError{StatusCode: code, Message: string(body)}
}

// doJSON performs a request and decodes the JSON response into result. A
// nil result discards the body.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	code, respBody, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if code >= 400 {
		return apiError(code, respBody)
	}
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// do performs a request with an optional JSON body and returns the status
// code and raw response body.
func (c *HTTPClient) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}
