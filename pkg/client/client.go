// Package client lists OrderCloud resources one page at a time.
//
// The client performs exactly one HTTP request per List call. It does not
// retry and it does not pace itself; callers route every call through the
// shared ratelimit.Scheduler. Throttle responses are reported to the
// ratelimit.Tracker so later admissions wait out the server's window.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/oc-marketplace-export/pkg/catalog"
	"github.com/Sternrassler/oc-marketplace-export/pkg/ratelimit"
	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for list requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocexport_requests_total",
		Help: "Total list requests by resource and status",
	}, []string{"resource", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ocexport_request_duration_seconds",
		Help:    "List request duration in seconds by resource",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"resource"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocexport_errors_total",
		Help: "Total failed list requests by error class",
	}, []string{"class"})
)

const (
	// DefaultPageSize is the largest page the platform serves.
	DefaultPageSize = 100

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 4096
)

// TokenSource supplies the current access token. It is read once per
// request.
type TokenSource interface {
	AccessToken() string
}

// Meta is the pagination block of a list response.
type Meta struct {
	Page       int `json:"Page"`
	PageSize   int `json:"PageSize"`
	TotalCount int `json:"TotalCount"`
	TotalPages int `json:"TotalPages"`
}

// Page is one page of a list response.
type Page struct {
	Items   []*record.Record
	Meta    Meta
	HasMore bool
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the marketplace API root, e.g. https://sandboxapi.ordercloud.io.
	BaseURL string

	// PageSize requested per call (1..100).
	PageSize int

	// Timeout per request.
	Timeout time.Duration

	// UserAgent header sent with every request.
	UserAgent string
}

// DefaultConfig returns a configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		PageSize:  DefaultPageSize,
		Timeout:   30 * time.Second,
		UserAgent: "oc-export",
	}
}

// Client lists resources against one marketplace API.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	tokens     TokenSource
	tracker    *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// New creates a client. tracker may be nil.
func New(cfg Config, tokens TokenSource, tracker *ratelimit.Tracker) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	if cfg.PageSize <= 0 || cfg.PageSize > DefaultPageSize {
		return nil, fmt.Errorf("page_size must be in 1..%d (got %d)", DefaultPageSize, cfg.PageSize)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    base,
		tokens:     tokens,
		tracker:    tracker,
		config:     cfg,
		logger:     log.With().Str("component", "client").Logger(),
	}, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// List fetches one page of res scoped by scopeIDs. page starts at 1.
func (c *Client) List(ctx context.Context, res *catalog.Resource, scopeIDs []string, page int) (*Page, error) {
	route, err := res.Route(scopeIDs...)
	if err != nil {
		return nil, err
	}

	token := c.tokens.AccessToken()
	if token == "" {
		return nil, &APIError{ErrorClass: ErrorClassAuth, Route: route, Message: "missing credential", Err: ErrNoToken}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL(route, res.Query, page), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	start := time.Now()
	defer func() {
		requestDuration.WithLabelValues(res.Name).Observe(time.Since(start).Seconds())
	}()

	c.logger.Debug().
		Str("resource", res.Name).
		Str("route", route).
		Int("page", page).
		Msg("Listing page")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(res.Name, "network_error").Inc()
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Route: route, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(res.Name, strconv.Itoa(resp.StatusCode)).Inc()

	if c.tracker != nil {
		if err := c.tracker.UpdateFromResponse(ctx, resp.StatusCode, resp.Header); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to record throttle signal")
		}
	}

	if resp.StatusCode >= 400 {
		class := ClassifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(class)).Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		c.logger.Warn().
			Str("resource", res.Name).
			Str("route", route).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("List request error")

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Route:      route,
			Message:    errorMessage(resp.Status, body),
		}
	}

	return decodePage(resp.Body, route)
}

// pageURL joins the escaped route onto the API root.
func (c *Client) pageURL(route string, query map[string]string, page int) string {
	q := url.Values{}
	for k, v := range query {
		q.Set(k, v)
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(c.config.PageSize))
	return c.baseURL.String() + "/v1/" + route + "?" + q.Encode()
}

type listBody struct {
	Meta  Meta            `json:"Meta"`
	Items json.RawMessage `json:"Items"`
}

func decodePage(r io.Reader, route string) (*Page, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Route: route, Message: "read body", Err: err}
	}

	var body listBody
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("decode %s page: %w", route, err)
	}

	items := []*record.Record{}
	if len(body.Items) > 0 && string(body.Items) != "null" {
		items, err = record.DecodeList(body.Items)
		if err != nil {
			return nil, fmt.Errorf("decode %s items: %w", route, err)
		}
	}

	return &Page{
		Items:   items,
		Meta:    body.Meta,
		HasMore: len(items) > 0 && body.Meta.Page < body.Meta.TotalPages,
	}, nil
}
