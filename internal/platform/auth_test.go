package platform

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestTokenSource(ts *httptest.Server) *TokenSource {
	src := NewTokenSource(ts.URL, "client-1", "secret", "", 5*time.Second)
	src.httpClient = ts.Client()
	return src
}

func TestTokenSource_Token_FormFields(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth2/v2.0/token" {
			t.Errorf("path = %q, want /oauth2/v2.0/token", r.URL.Path)
		}
		r.ParseForm()
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("client_id"); got != "client-1" {
			t.Errorf("client_id = %q", got)
		}
		if got := r.PostForm.Get("scope"); got != "https://graph.microsoft.com/.default" {
			t.Errorf("scope = %q", got)
		}
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	}))
	defer ts.Close()

	tok, err := newTestTokenSource(ts).Token(context.Background())
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("token = %q, want tok-1", tok)
	}
}

func TestTokenSource_Token_Caching(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"access_token":"tok-1","expires_in":3600}`))
	}))
	defer ts.Close()

	src := newTestTokenSource(ts)
	now := time.Now()
	src.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if _, err := src.Token(context.Background()); err != nil {
			t.Fatalf("Token returned error: %v", err)
		}
	}
	if calls != 1 {
		t.Errorf("token endpoint called %d times, want 1 (cached)", calls)
	}

	// Within the expiry margin the token must be reacquired.
	now = now.Add(time.Hour - tokenExpiryMargin + time.Second)
	if _, err := src.Token(context.Background()); err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if calls != 2 {
		t.Errorf("token endpoint called %d times after expiry, want 2", calls)
	}
}

func TestTokenSource_Token_AuthError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_client","error_description":"bad secret"}`))
	}))
	defer ts.Close()

	_, err := newTestTokenSource(ts).Token(context.Background())
	if err == nil {
		t.Fatal("Token should fail when no access_token is returned")
	}
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("error = %T, want *AuthError", err)
	}
	if aerr.Detail != "bad secret" {
		t.Errorf("Detail = %q, want provider error description", aerr.Detail)
	}
}

func TestTokenSource_Token_NoDetails(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	_, err := newTestTokenSource(ts).Token(context.Background())
	var aerr *AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("error = %T, want *AuthError", err)
	}
	if aerr.Detail != "no details available" {
		t.Errorf("Detail = %q", aerr.Detail)
	}
}
