package pbx

import "fmt"

// maxBodyLog bounds how much of an upstream body is kept on errors.
const maxBodyLog = 2000

// TransportError is a network-level failure: connection refused, DNS,
// timeout. The request never produced an HTTP response.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("pbx: transport error for %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError means the credential exchange was rejected or returned a
// malformed response. It is never retried by the token manager.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("pbx: auth error (code %s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("pbx: auth error: HTTP %d: %s", e.Status, e.Message)
}

// RequestError is a non-success HTTP status or an application-level
// error code on a data call.
type RequestError struct {
	Status int
	URL    string
	Code   string
	Body   string
}

func (e *RequestError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("pbx: request error for %s: code %s", e.URL, e.Code)
	}
	return fmt.Sprintf("pbx: request error for %s: HTTP %d", e.URL, e.Status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
