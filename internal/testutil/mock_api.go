// Package testutil provides testing utilities for the scraper.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock endpoint response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock upstream API: a paginated listing endpoint
// plus per-item detail endpoints, with request tracking and per-path
// handler overrides.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	listPath   string
	detailBase string
	pageSize   int
	items      []map[string]any
	details    map[string]map[string]any

	// Tracking
	RequestCount      int
	ListRequestCount  int
	LastRequestHeader http.Header
}

// NewMockAPI creates a mock server with empty listing data.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		listPath:   "/candidates",
		detailBase: "/candidates/",
		pageSize:   2,
		details:    make(map[string]map[string]any),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		if r.URL.Path == mock.listPath {
			mock.ListRequestCount++
		}
		mock.LastRequestHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// ListURL returns the absolute listing endpoint.
func (m *MockAPI) ListURL() string {
	return m.server.URL + m.listPath
}

// DetailURL returns the detail-endpoint template with a {ref} placeholder.
func (m *MockAPI) DetailURL() string {
	return m.server.URL + m.detailBase + "{ref}"
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.ListRequestCount = 0
	m.LastRequestHeader = nil
}

// SetPageSize sets how many items each listing page carries.
func (m *MockAPI) SetPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageSize = n
}

// AddItem registers one item: its listing summary and its detail payload.
func (m *MockAPI) AddItem(ref string, summary, detail map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, summary)
	m.details[ref] = detail
}

// SetHandler sets a custom handler for a specific path.
func (m *MockAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a canned response for a path.
func (m *MockAPI) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// FailDetail makes one item's detail endpoint return the given status.
func (m *MockAPI) FailDetail(ref string, status int) {
	m.SetResponse(m.detailBase+ref, MockResponse{
		StatusCode: status,
		Body:       fmt.Sprintf(`{"error": "status %d"}`, status),
		Headers:    map[string]string{"Content-Type": "application/json"},
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockAPI) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// defaultHandler serves the listing and detail endpoints from registered
// items.
func (m *MockAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")

	if r.URL.Path == m.listPath {
		m.serveListing(w, r)
		return
	}
	if len(r.URL.Path) > len(m.detailBase) && r.URL.Path[:len(m.detailBase)] == m.detailBase {
		m.serveDetail(w, r.URL.Path[len(m.detailBase):])
		return
	}

	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error": "not found"}`))
}

func (m *MockAPI) serveListing(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	items := m.items
	pageSize := m.pageSize
	m.mu.RUnlock()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	totalPages := (len(items) + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}

	pageItems := make([]any, 0, end-start)
	for _, item := range items[start:end] {
		pageItems = append(pageItems, item)
	}

	payload := map[string]any{
		"items":       pageItems,
		"total_pages": totalPages,
	}
	if page < totalPages {
		payload["next"] = fmt.Sprintf("%s%s?page=%d&ignore=tok%d&ignore_hash=h%d",
			m.server.URL, m.listPath, page+1, page, page)
	}
	json.NewEncoder(w).Encode(payload)
}

func (m *MockAPI) serveDetail(w http.ResponseWriter, ref string) {
	m.mu.RLock()
	detail, ok := m.details[ref]
	m.mu.RUnlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "not found"}`))
		return
	}
	json.NewEncoder(w).Encode(detail)
}

// NewRateLimitResponse creates a 429 Too Many Requests response.
func NewRateLimitResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
