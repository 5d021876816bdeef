// Package testutil provides testing utilities for the fetch pipeline.
package testutil

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// MockResponse defines the behavior for a mock marketplace endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockMarketplace is a configurable mock marketplace API server. It tracks
// how many requests are in flight at once so tests can assert on the
// dispatcher's concurrency ceiling.
type MockMarketplace struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	requestCount      int
	inFlight          int
	peakInFlight      int
	lastRequestHeader http.Header
}

// NewMockMarketplace creates and starts a new mock server.
func NewMockMarketplace() *MockMarketplace {
	mock := &MockMarketplace{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.inFlight++
		if mock.inFlight > mock.peakInFlight {
			mock.peakInFlight = mock.inFlight
		}
		mock.lastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		defer func() {
			mock.mu.Lock()
			mock.inFlight--
			mock.mu.Unlock()
		}()

		if exists {
			handler(w, r)
			return
		}
		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server base URL.
func (m *MockMarketplace) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockMarketplace) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockMarketplace) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.peakInFlight = 0
	m.lastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockMarketplace) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockMarketplace) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		w.WriteHeader(status)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// RequestCount returns the number of requests received.
func (m *MockMarketplace) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PeakInFlight returns the highest number of concurrent requests observed.
func (m *MockMarketplace) PeakInFlight() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.peakInFlight
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockMarketplace) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader
}

// defaultHandler echoes the request path and query as a JSON object, which
// gives every distinct URL a distinct deterministic body.
func (m *MockMarketplace) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"path":  r.URL.Path,
		"query": r.URL.RawQuery,
	})
}

// NewPageResponse creates a 200 response whose body nests items under key.
func NewPageResponse(key string, items ...string) MockResponse {
	body, _ := json.Marshal(map[string][]string{key: items})
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewSlowResponse creates a 200 JSON response delivered after delay.
func NewSlowResponse(delay time.Duration, body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Delay:      delay,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewHTMLResponse creates a 200 response that is not valid JSON.
func NewHTMLResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       "<html><body>maintenance</body></html>",
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}

// RefusedURL returns an http URL on a loopback port with no listener, so
// connecting to it fails with connection refused.
func RefusedURL(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	addr := l.Addr().String()
	l.Close()

	return "http://" + addr + "/refused"
}
