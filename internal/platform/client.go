package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/knowledgeops/kbmigrate/internal/logger"
)

const (
	// Connection pool bounds, shared by every stage in a run.
	maxIdleConns = 20

	// Fixed delay after a connection failure or timeout.
	connRetryDelay = 5 * time.Second

	// Wait applied to a 429 without a Retry-After header.
	defaultRetryAfter = 30 * time.Second

	// Exponential backoff for 5xx responses.
	serverErrBase     = 1.5
	serverErrAttempts = 5
)

// AuthFunc decorates an outgoing request with credentials.
type AuthFunc func(ctx context.Context, req *http.Request) error

// BearerAuth attaches a token from ts to every request.
func BearerAuth(ts *TokenSource) AuthFunc {
	return func(ctx context.Context, req *http.Request) error {
		tok, err := ts.Token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		return nil
	}
}

// HeaderAuth attaches a static header, e.g. the ServiceNow x-sn-apikey key.
func HeaderAuth(key, value string) AuthFunc {
	return func(ctx context.Context, req *http.Request) error {
		req.Header.Set(key, value)
		return nil
	}
}

// Client is the shared HTTP transport. It retries transient failures with an
// explicit bounded loop: connection errors and timeouts after a fixed delay,
// 429 after the server-supplied Retry-After, and 5xx with exponential backoff.
// Safe for concurrent use by all worker pools in a run.
type Client struct {
	baseURL     string
	auth        AuthFunc
	httpClient  *http.Client
	maxAttempts int
	log         logger.Logger

	// sleep is swapped out in tests so retry paths run instantly.
	sleep func(time.Duration)
}

// NewClient builds a Client rooted at baseURL. auth may be nil for
// unauthenticated endpoints. maxAttempts bounds the whole retry loop;
// values below 1 fall back to a single attempt.
func NewClient(baseURL string, auth AuthFunc, timeout time.Duration, maxAttempts int, log logger.Logger) *Client {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		baseURL: baseURL,
		auth:    auth,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        maxIdleConns,
				MaxIdleConnsPerHost: maxIdleConns,
			},
		},
		maxAttempts: maxAttempts,
		log:         log,
		sleep:       time.Sleep,
	}
}

// BaseURL returns the root this client is bound to.
func (c *Client) BaseURL() string { return c.baseURL }

// Do performs one logical request, absorbing transient failures. path may be
// relative to the client's base URL or absolute (pagination links come back
// absolute). The body is replayed on every retry.
func (c *Client) Do(ctx context.Context, method, path string, params url.Values, body []byte, headers map[string]string) ([]byte, int, error) {
	u := path
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		u = c.baseURL + path
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var serverErrs int
	for attempt := 1; ; attempt++ {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
		if err != nil {
			return nil, 0, fmt.Errorf("creating request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		if c.auth != nil {
			if err := c.auth(ctx, req); err != nil {
				return nil, 0, err
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			// Connection failure or timeout: fixed short delay, bounded only
			// by the overall attempt ceiling.
			if ctx.Err() != nil {
				return nil, 0, &TransportError{Method: method, URL: u, Err: ctx.Err()}
			}
			if attempt >= c.maxAttempts {
				return nil, 0, &TransportError{Method: method, URL: u, Err: err}
			}
			c.log.Warnf("%s %s: %v, retrying in %s (attempt %d/%d)", method, u, err, connRetryDelay, attempt, c.maxAttempts)
			c.sleep(connRetryDelay)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			if attempt >= c.maxAttempts {
				return nil, resp.StatusCode, &TransportError{Method: method, URL: u, Err: readErr}
			}
			c.sleep(connRetryDelay)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return respBody, resp.StatusCode, nil

		case resp.StatusCode == http.StatusTooManyRequests:
			if attempt >= c.maxAttempts {
				return respBody, resp.StatusCode, &TransportError{Method: method, URL: u, Status: resp.StatusCode, Body: truncate(string(respBody), 200)}
			}
			wait := retryAfter(resp.Header)
			c.log.Warnf("%s %s: rate limited, waiting %s", method, u, wait)
			c.sleep(wait)
			continue

		case resp.StatusCode >= 500:
			serverErrs++
			if serverErrs >= serverErrAttempts || attempt >= c.maxAttempts {
				return respBody, resp.StatusCode, &TransportError{Method: method, URL: u, Status: resp.StatusCode, Body: truncate(string(respBody), 200)}
			}
			wait := time.Duration(math.Pow(serverErrBase, float64(serverErrs)) * float64(time.Second))
			c.log.Warnf("%s %s: HTTP %d, backing off %s", method, u, resp.StatusCode, wait)
			c.sleep(wait)
			continue

		default:
			// Client errors other than 429 are never retried.
			return respBody, resp.StatusCode, &TransportError{Method: method, URL: u, Status: resp.StatusCode, Body: truncate(string(respBody), 200)}
		}
	}
}

// Get performs a GET and returns the response body.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	body, _, err := c.Do(ctx, http.MethodGet, path, params, nil, nil)
	return body, err
}

// GetJSON performs a GET and unmarshals the response into dest.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, dest interface{}) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	return unmarshalJSON(path, body, dest)
}

// PostJSON performs a POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, payload interface{}) ([]byte, int, error) {
	data, err := marshalJSON(payload)
	if err != nil {
		return nil, 0, err
	}
	return c.Do(ctx, http.MethodPost, path, nil, data, map[string]string{"Content-Type": "application/json"})
}

// PatchJSON performs a PATCH with a JSON body.
func (c *Client) PatchJSON(ctx context.Context, path string, payload interface{}) ([]byte, int, error) {
	data, err := marshalJSON(payload)
	if err != nil {
		return nil, 0, err
	}
	return c.Do(ctx, http.MethodPatch, path, nil, data, map[string]string{"Content-Type": "application/json"})
}

// Download streams url into w without authentication. Pre-signed download
// URLs carry their own credentials, so no auth decoration is applied and the
// body is not buffered.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Method: "GET", URL: rawURL, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return &TransportError{Method: "GET", URL: rawURL, Status: resp.StatusCode, Body: string(body)}
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("streaming %s: %w", rawURL, err)
	}
	return nil
}

func marshalJSON(payload interface{}) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling body: %w", err)
	}
	return data, nil
}

func unmarshalJSON(path string, body []byte, dest interface{}) error {
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("parsing response from %s: %w", path, err)
	}
	return nil
}

func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
