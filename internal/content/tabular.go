package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/terra-clan/course-engine/internal/httpx"
	"github.com/terra-clan/course-engine/internal/models"
)

// TabularSource loads the catalog from a SeaTable-style base
type TabularSource struct {
	baseURL    string
	baseID     string
	apiToken   string
	schema     Schema
	httpClient *http.Client
	backoff    httpx.Backoff
}

// TabularOption configures a TabularSource
type TabularOption func(*TabularSource)

// WithTabularHTTPClient sets a custom HTTP client
func WithTabularHTTPClient(client *http.Client) TabularOption {
	return func(s *TabularSource) {
		s.httpClient = client
	}
}

// WithTabularTimeout sets the per-request timeout
func WithTabularTimeout(timeout time.Duration) TabularOption {
	return func(s *TabularSource) {
		s.httpClient.Timeout = timeout
	}
}

// WithTabularBackoff overrides the retry policy for network failures
func WithTabularBackoff(b httpx.Backoff) TabularOption {
	return func(s *TabularSource) {
		s.backoff = b
	}
}

// WithSchema overrides DefaultSchema
func WithSchema(schema Schema) TabularOption {
	return func(s *TabularSource) {
		s.schema = schema
	}
}

// NewTabularSource creates a source for the base at baseURL
func NewTabularSource(baseURL, baseID, apiToken string, opts ...TabularOption) *TabularSource {
	s := &TabularSource{
		baseURL:  strings.TrimRight(baseURL, "/"),
		baseID:   baseID,
		apiToken: apiToken,
		schema:   DefaultSchema(),
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		backoff: httpx.Backoff{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
			Jitter:      true,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

type accessTokenResponse struct {
	AccessToken string `json:"access_token"`
	DTableUUID  string `json:"dtable_uuid"`
}

// LoadCatalog exchanges the app token for a base token, fetches the whole
// base and joins it into the course tree
func (s *TabularSource) LoadCatalog(ctx context.Context) ([]models.Course, error) {
	var payload Payload
	err := httpx.Retry(ctx, "tabular.load", s.backoff, func(ctx context.Context) error {
		token, err := s.baseToken(ctx)
		if err != nil {
			return err
		}
		body, err := s.get(ctx, "/api-gateway/api/v2/dtables/"+s.baseID+"/", token)
		if err != nil {
			return err
		}
		payload = Payload{}
		if err := json.NewDecoder(bytes.NewReader(body)).Decode(&payload); err != nil {
			return fmt.Errorf("%w: failed to decode base payload: %v", ErrSourceUnavailable, err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSourceUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	if payload.Tables == nil {
		return nil, fmt.Errorf("%w: response has no tables", ErrSourceUnavailable)
	}

	return BuildCatalog(payload, s.schema)
}

// Ping checks that the app token can still be exchanged
func (s *TabularSource) Ping(ctx context.Context) error {
	_, err := s.baseToken(ctx)
	return err
}

func (s *TabularSource) baseToken(ctx context.Context) (string, error) {
	body, err := s.get(ctx, "/api/v2.1/dtable/app-access-token/", s.apiToken)
	if err != nil {
		return "", err
	}

	var resp accessTokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: failed to decode access token: %v", ErrSourceUnavailable, err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrSourceUnavailable)
	}
	return resp.AccessToken, nil
}

func (s *TabularSource) get(ctx context.Context, path, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpx.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
