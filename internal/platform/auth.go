package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Margin subtracted from the provider-reported lifetime so a token is never
// used right at its expiry.
const tokenExpiryMargin = 5 * time.Minute

// TokenSource acquires bearer tokens through the OAuth2 client-credential
// flow and caches the result process-wide. Safe for concurrent use.
type TokenSource struct {
	authorityURL string // https://login.microsoftonline.com/{tenant}
	clientID     string
	clientSecret string
	scope        string

	httpClient *http.Client
	now        func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenSource builds a TokenSource for the given tenant authority.
// scope defaults to the Graph API default scope when empty.
func NewTokenSource(authorityURL, clientID, clientSecret, scope string, timeout time.Duration) *TokenSource {
	if scope == "" {
		scope = "https://graph.microsoft.com/.default"
	}
	return &TokenSource{
		authorityURL: strings.TrimRight(authorityURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
		scope:        scope,
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Token returns a valid bearer token, reacquiring only when the cached one is
// absent or inside the expiry margin.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.token != "" && ts.now().Before(ts.expiresAt) {
		return ts.token, nil
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {ts.clientID},
		"client_secret": {ts.clientSecret},
		"scope":         {ts.scope},
	}
	tokenURL := ts.authorityURL + "/oauth2/v2.0/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Detail: "building token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		return "", &AuthError{Detail: "requesting token", Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &AuthError{Detail: "reading token response", Err: err}
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", &AuthError{Detail: fmt.Sprintf("parsing token response (HTTP %d)", resp.StatusCode), Err: err}
	}
	if tok.AccessToken == "" {
		detail := tok.ErrorDescription
		if detail == "" {
			detail = "no details available"
		}
		return "", &AuthError{Detail: detail}
	}

	ts.token = tok.AccessToken
	ts.expiresAt = ts.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpiryMargin)
	return ts.token, nil
}
