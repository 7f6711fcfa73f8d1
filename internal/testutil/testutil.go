// Package testutil provides shared test helpers for the admin routes and the
// polling loops of the link manager.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// LoopbackAddr is the RemoteAddr given to debug requests. tsweb only serves
// /debug/ to loopback and tailnet peers.
const LoopbackAddr = "127.0.0.1:12345"

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t testing.TB, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewDebugRequest creates a request that appears to come from localhost. A
// non-nil body is sent as a form.
func NewDebugRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = LoopbackAddr
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req
}

// ServeDebug sends a debug request to h and returns the recorded response.
// A nil form sends no body.
func ServeDebug(h http.Handler, method, path string, form url.Values) *httptest.ResponseRecorder {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, NewDebugRequest(method, path, body))
	return w
}

// WaitFor polls cond every millisecond until it holds or timeout passes, and
// reports whether it held.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}
