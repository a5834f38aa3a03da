package platform

import "fmt"

// TransportError is a request that failed after the retry budget was spent:
// network failure, timeout, or a non-2xx status. 4xx (other than 429) responses
// are never retried and surface immediately as a TransportError.
type TransportError struct {
	Method string
	URL    string
	Status int // 0 when the request never produced a response
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means the identity provider did not hand back a usable credential.
// It is fatal: callers abort the run instead of retrying per-record.
type AuthError struct {
	Detail string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Detail)
}

func (e *AuthError) Unwrap() error { return e.Err }
