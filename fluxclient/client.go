// Package fluxclient implements the API onto the Flux cloud. Flux supplies the
// day-ahead base schedules and receives our operational telemetry.
package fluxclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// AuthError reports an authentication failure that persisted through one
// re-authentication attempt. Callers treat it like any other failed attempt and go
// through their normal backoff, never unbounded retry.
type AuthError struct {
	StatusCode int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected with status %d after re-auth", e.StatusCode)
}

// Client implements the API onto the Flux cloud.
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string

	mu          sync.Mutex
	accessToken string

	logger *slog.Logger
}

// authResponse is the JSON body sent by Flux when we query the auth endpoint.
type authResponse struct {
	AccessToken string `json:"access_token"`
}

// New creates a client for the Flux API at baseURL.
func New(httpClient *http.Client, baseURL, username, password string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		username:   username,
		password:   password,
		logger:     slog.Default().With("host", baseURL),
	}
}

// Authenticate eagerly establishes a session. The credential is also renewed
// reactively whenever a request comes back 401/403, so calling this is only needed
// to verify connectivity up front.
func (c *Client) Authenticate(ctx context.Context) error {
	return c.updateAccessToken(ctx)
}

// GetSchedule pulls the day-ahead schedule for the given asset ID from Flux.
func (c *Client) GetSchedule(ctx context.Context, assetID string) (Schedule, error) {
	body, err := c.do(ctx, "GET", fmt.Sprintf("%s/entities/asset/%s/dispatch-schedule", c.baseURL, assetID), nil)
	if err != nil {
		return Schedule{}, fmt.Errorf("get schedule: %w", err)
	}

	parsed := Schedule{}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Schedule{}, fmt.Errorf("parse schedule body: %w", err)
	}
	parsed.ReceivedTime = time.Now()

	return parsed, nil
}

// PostReading sends one metric sample to Flux. The API accepts exactly one sample
// per call.
func (c *Client) PostReading(ctx context.Context, reading Reading) error {
	payload, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}

	if _, err := c.do(ctx, "POST", fmt.Sprintf("%s/data/readings", c.baseURL), payload); err != nil {
		return fmt.Errorf("post reading: %w", err)
	}

	c.logger.Debug("Posted Flux reading", "series_id", reading.SeriesID, "value", reading.Value, "time", reading.Timestamp)

	return nil
}

// do sends one authorized request. On a 401/403 response it renews the access token
// and retries the same request exactly once; a second consecutive rejection is
// surfaced as an AuthError.
func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	body, status, err := c.send(ctx, method, rawURL, payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if err := c.updateAccessToken(ctx); err != nil {
			return nil, fmt.Errorf("re-authenticate: %w", err)
		}
		body, status, err = c.send(ctx, method, rawURL, payload)
		if err != nil {
			return nil, err
		}
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, &AuthError{StatusCode: status}
		}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", status)
	}
	return body, nil
}

// send performs a single HTTP exchange with the current access token attached.
func (c *Client) send(ctx context.Context, method, rawURL string, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, 0, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read body: %w", err)
	}

	return body, response.StatusCode, nil
}

// updateAccessToken queries the Flux auth endpoint for a new access token and saves it.
func (c *Client) updateAccessToken(ctx context.Context) error {
	// The body of the request uses url encoding
	data := url.Values{}
	data.Set("username", c.username)
	data.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/auth/token-form", c.baseURL), strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	response, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get auth: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected auth status code: %d", response.StatusCode)
	}

	parsed := authResponse{}
	if err := json.NewDecoder(response.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("parse auth body: %w", err)
	}

	c.mu.Lock()
	c.accessToken = parsed.AccessToken
	c.mu.Unlock()

	return nil
}
