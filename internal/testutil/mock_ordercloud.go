// Package testutil provides fake OrderCloud and portal servers for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
)

// MockResponse defines a canned response for a path.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// Request is one request seen by a mock server.
type Request struct {
	Method   string
	Path     string
	Page     int
	PageSize int
	Query    map[string]string
	Token    string
}

// MockAPI is a configurable fake OrderCloud API. List routes are served
// from in-memory item sets with the platform's pagination envelope.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	lists    map[string][]json.RawMessage
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	clients  map[string]clientCredential
	requests []Request

	// DefaultPageSize is used when a request omits pageSize.
	DefaultPageSize int
}

type clientCredential struct {
	secret string
	token  string
}

// NewMockAPI starts a fake OrderCloud API.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		lists:           make(map[string][]json.RawMessage),
		handlers:        make(map[string]func(w http.ResponseWriter, r *http.Request)),
		clients:         make(map[string]clientCredential),
		DefaultPageSize: 20,
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth/token" {
			mock.handleToken(w, r)
			return
		}

		mock.record(r)

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}
		mock.handleList(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockAPI) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetList serves items for route (relative to /v1, unescaped), e.g.
// "products/p1/variants".
func (m *MockAPI) SetList(route string, items ...*record.Record) {
	raw := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		data, err := item.MarshalJSON()
		if err != nil {
			panic(fmt.Sprintf("testutil: marshal item: %v", err))
		}
		raw = append(raw, data)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[listPath(route)] = raw
}

// SetHandler overrides the handler for route (relative to /v1).
func (m *MockAPI) SetHandler(route string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[listPath(route)] = handler
}

// SetResponse configures a canned response for route.
func (m *MockAPI) SetResponse(route string, resp MockResponse) {
	m.SetHandler(route, resp.Handler())
}

// SetClientCredentials registers an API client for the client-credentials
// grant. The issued token is returned as is.
func (m *MockAPI) SetClientCredentials(clientID, clientSecret, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[clientID] = clientCredential{secret: clientSecret, token: token}
}

// Requests returns a copy of the recorded list requests.
func (m *MockAPI) Requests() []Request {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of list requests served.
func (m *MockAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// RequestsFor counts requests made to route.
func (m *MockAPI) RequestsFor(route string) int {
	path := listPath(route)
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

func listPath(route string) string {
	return "/v1/" + strings.TrimPrefix(route, "/")
}

func (m *MockAPI) record(r *http.Request) {
	query := make(map[string]string)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	page, _ := strconv.Atoi(query["page"])
	pageSize, _ := strconv.Atoi(query["pageSize"])

	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		Page:     page,
		PageSize: pageSize,
		Query:    query,
		Token:    BearerToken(r),
	})
}

// handleList serves one page. Unknown routes are empty lists.
func (m *MockAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if BearerToken(r) == "" {
		writeJSON(w, http.StatusUnauthorized, `{"Errors":[{"ErrorCode":"NotAuthorized","Message":"missing token"}]}`)
		return
	}

	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if err != nil || pageSize < 1 {
		pageSize = m.DefaultPageSize
	}

	m.mu.RLock()
	items := m.lists[r.URL.Path]
	m.mu.RUnlock()

	totalPages := (len(items) + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > len(items) {
		start = len(items)
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}

	pageItems := items[start:end]
	if pageItems == nil {
		pageItems = []json.RawMessage{}
	}
	body, _ := json.Marshal(map[string]any{
		"Meta": map[string]int{
			"Page":       page,
			"PageSize":   pageSize,
			"TotalCount": len(items),
			"TotalPages": totalPages,
		},
		"Items": pageItems,
	})
	writeJSON(w, http.StatusOK, string(body))
}

func (m *MockAPI) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, `{"error":"unsupported_grant_type"}`)
		return
	}

	m.mu.RLock()
	cred, ok := m.clients[r.PostForm.Get("client_id")]
	m.mu.RUnlock()

	if !ok || cred.secret != r.PostForm.Get("client_secret") {
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid_client","error_description":"client not found"}`)
		return
	}
	writeJSON(w, http.StatusOK, tokenBody(cred.token, ""))
}

// Handler returns an http handler serving resp.
func (resp MockResponse) Handler() func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
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
	}
}

// NewThrottleResponse creates a 429 response with a Retry-After header.
func NewThrottleResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"Errors":[{"ErrorCode":"TooManyRequests","Message":"slow down"}]}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(retryAfterSeconds),
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"Errors":[{"ErrorCode":"InternalServerError","Message":"boom"}]}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// BearerToken returns the bearer credential of r, or "".
func BearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

func tokenBody(access, refresh string) string {
	body := map[string]any{
		"access_token": access,
		"token_type":   "bearer",
		"expires_in":   36000,
	}
	if refresh != "" {
		body["refresh_token"] = refresh
	}
	data, _ := json.Marshal(body)
	return string(data)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
