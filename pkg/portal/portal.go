// Package portal authenticates against the OrderCloud portal and the
// marketplace API: portal logins and refreshes, API client credentials,
// organization lookup and marketplace-scoped token exchange.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultBaseURL is the portal API root.
const DefaultBaseURL = "https://portal.ordercloud.io/api/v1"

// FullAccessRole is requested for client-credentials exports.
const FullAccessRole = "FullAccess"

var (
	// ErrInvalidCredentials is returned when a grant is rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthorized is returned when the portal rejects a token.
	ErrUnauthorized = errors.New("portal token rejected")

	// ErrOrganizationNotFound is returned for unknown marketplaces.
	ErrOrganizationNotFound = errors.New("organization not found")

	// ErrNoMarketplaceClaim is returned when a token carries no cid claim.
	ErrNoMarketplaceClaim = errors.New("token has no marketplace claim")
)

// Token is the result of a grant.
type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Organization is a marketplace as the portal describes it.
type Organization struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	Environment string `json:"Environment"`
	CoreAPIURL  string `json:"CoreApiUrl"`
}

// Config holds portal client configuration.
type Config struct {
	// BaseURL is the portal API root (default DefaultBaseURL).
	BaseURL string

	// Timeout per request.
	Timeout time.Duration

	// HTTPClient overrides the transport (for testing).
	HTTPClient *http.Client
}

// DefaultConfig returns the production portal configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: DefaultBaseURL,
		Timeout: 30 * time.Second,
	}
}

// Client talks to the portal.
type Client struct {
	baseURL    string
	httpClient *http.Client
	rest       *resty.Client
	oauth      oauth2.Config
	logger     zerolog.Logger
}

// New creates a portal client.
func New(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	rest := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		rest:       rest,
		oauth: oauth2.Config{
			Endpoint: oauth2.Endpoint{
				TokenURL:  baseURL + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		logger: logger,
	}
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// Login runs the portal password grant.
func (c *Client) Login(ctx context.Context, username, password string) (*Token, error) {
	tok, err := c.oauth.PasswordCredentialsToken(c.oauthContext(ctx), username, password)
	if err != nil {
		return nil, grantError("portal login", err)
	}
	c.logger.Debug().Str("username", username).Msg("Portal login succeeded")
	return fromOAuth(tok), nil
}

// Refresh exchanges a portal refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("portal refresh: %w: empty refresh token", ErrInvalidCredentials)
	}
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, grantError("portal refresh", err)
	}
	return fromOAuth(tok), nil
}

// ClientCredentials authenticates an API client against the marketplace
// API at baseURL with the FullAccess role.
func (c *Client) ClientCredentials(ctx context.Context, clientID, clientSecret, baseURL string) (*Token, error) {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     strings.TrimRight(baseURL, "/") + "/oauth/token",
		Scopes:       []string{FullAccessRole},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	tok, err := cfg.Token(c.oauthContext(ctx))
	if err != nil {
		return nil, grantError("client credentials", err)
	}
	return fromOAuth(tok), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// OrganizationToken exchanges a portal token for a token scoped to orgID.
func (c *Client) OrganizationToken(ctx context.Context, orgID, portalToken string) (string, error) {
	var out tokenResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(portalToken).
		SetPathParam("id", orgID).
		SetResult(&out).
		Get("/organizations/{id}/token")
	if err != nil {
		return "", fmt.Errorf("organization token: %w", err)
	}
	if err := statusError(resp, orgID); err != nil {
		return "", fmt.Errorf("organization token: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("organization token: empty token for %q", orgID)
	}
	return out.AccessToken, nil
}

// GetOrganization looks up a marketplace.
func (c *Client) GetOrganization(ctx context.Context, orgID, portalToken string) (*Organization, error) {
	var org Organization
	resp, err := c.rest.R().
		SetContext(ctx).
		SetAuthToken(portalToken).
		SetPathParam("id", orgID).
		SetResult(&org).
		Get("/organizations/{id}")
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if err := statusError(resp, orgID); err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	if org.CoreAPIURL == "" {
		return nil, fmt.Errorf("get organization: %q has no API url", orgID)
	}
	return &org, nil
}

// MarketplaceIDFromToken reads the cid claim of an access token. The
// signature is not verified; the token was just issued to us.
func MarketplaceIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	cid, ok := claims["cid"].(string)
	if !ok || cid == "" {
		return "", ErrNoMarketplaceClaim
	}
	return cid, nil
}

func statusError(resp *resty.Response, orgID string) error {
	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %q", ErrOrganizationNotFound, orgID)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrUnauthorized, code)
	case resp.IsError():
		return fmt.Errorf("portal status %d", code)
	}
	return nil
}

func grantError(op string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		desc := rerr.ErrorDescription
		if desc == "" {
			desc = rerr.ErrorCode
		}
		if desc == "" && rerr.Response != nil {
			desc = rerr.Response.Status
		}
		return fmt.Errorf("%s: %w: %s", op, ErrInvalidCredentials, desc)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func fromOAuth(tok *oauth2.Token) *Token {
	return &Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}
