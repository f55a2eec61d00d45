package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

// Organization is a marketplace known to MockPortal.
type Organization struct {
	ID         string
	Name       string
	CoreAPIURL string
}

// MockPortal is a fake portal: password and refresh grants, organization
// lookup and organization token exchange.
type MockPortal struct {
	server *httptest.Server
	mu     sync.RWMutex

	users  map[string]string
	orgs   map[string]Organization
	issued map[string]bool // portal access tokens currently accepted
	refs   map[string]bool // refresh tokens currently accepted

	serial atomic.Int64

	// FailRefresh makes every refresh grant fail.
	FailRefresh atomic.Bool

	Logins    atomic.Int64
	Refreshes atomic.Int64
	OrgTokens atomic.Int64
}

// NewMockPortal starts a fake portal.
func NewMockPortal() *MockPortal {
	p := &MockPortal{
		users:  make(map[string]string),
		orgs:   make(map[string]Organization),
		issued: make(map[string]bool),
		refs:   make(map[string]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", p.handleToken)
	mux.HandleFunc("/organizations/", p.handleOrganization)
	p.server = httptest.NewServer(mux)
	return p
}

// URL returns the portal API root.
func (p *MockPortal) URL() string {
	return p.server.URL
}

// Close shuts down the mock server.
func (p *MockPortal) Close() {
	p.server.Close()
}

// AddUser registers a portal login.
func (p *MockPortal) AddUser(username, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users[username] = password
}

// AddOrganization registers a marketplace.
func (p *MockPortal) AddOrganization(org Organization) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orgs[org.ID] = org
}

// AcceptPortalToken makes token valid for organization calls.
func (p *MockPortal) AcceptPortalToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.issued[token] = true
}

// OrgToken is the organization token the portal issues for orgID to the
// holder of portalToken.
func OrgToken(orgID, portalToken string) string {
	return "org:" + orgID + ":" + portalToken
}

func (p *MockPortal) issue() (access, refresh string) {
	n := p.serial.Add(1)
	access = fmt.Sprintf("portal-access-%d", n)
	refresh = fmt.Sprintf("portal-refresh-%d", n)
	p.issued[access] = true
	p.refs[refresh] = true
	return access, refresh
}

func (p *MockPortal) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, `{"error":"invalid_request"}`)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "password":
		p.Logins.Add(1)
		want, ok := p.users[r.PostForm.Get("username")]
		if !ok || want != r.PostForm.Get("password") {
			writeJSON(w, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"bad credentials"}`)
			return
		}
		access, refresh := p.issue()
		writeJSON(w, http.StatusOK, tokenBody(access, refresh))

	case "refresh_token":
		p.Refreshes.Add(1)
		old := r.PostForm.Get("refresh_token")
		if p.FailRefresh.Load() || !p.refs[old] {
			writeJSON(w, http.StatusBadRequest, `{"error":"invalid_grant","error_description":"refresh rejected"}`)
			return
		}
		delete(p.refs, old)
		access, refresh := p.issue()
		writeJSON(w, http.StatusOK, tokenBody(access, refresh))

	default:
		writeJSON(w, http.StatusBadRequest, `{"error":"unsupported_grant_type"}`)
	}
}

// handleOrganization serves /organizations/{id} and /organizations/{id}/token.
func (p *MockPortal) handleOrganization(w http.ResponseWriter, r *http.Request) {
	token := BearerToken(r)

	p.mu.RLock()
	authorized := p.issued[token]
	p.mu.RUnlock()
	if !authorized {
		writeJSON(w, http.StatusUnauthorized, `{"Errors":[{"ErrorCode":"NotAuthorized","Message":"invalid portal token"}]}`)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/organizations/")
	id, suffix, _ := strings.Cut(rest, "/")

	p.mu.RLock()
	org, ok := p.orgs[id]
	p.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, `{"Errors":[{"ErrorCode":"NotFound","Message":"organization not found"}]}`)
		return
	}

	switch suffix {
	case "":
		body, _ := json.Marshal(map[string]string{
			"Id":          org.ID,
			"Name":        org.Name,
			"Environment": "Sandbox",
			"CoreApiUrl":  org.CoreAPIURL,
		})
		writeJSON(w, http.StatusOK, string(body))
	case "token":
		p.OrgTokens.Add(1)
		writeJSON(w, http.StatusOK, tokenBody(OrgToken(org.ID, token), ""))
	default:
		http.NotFound(w, r)
	}
}
