package export

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/oc-marketplace-export/pkg/bulk"
	"github.com/Sternrassler/oc-marketplace-export/pkg/catalog"
	"github.com/Sternrassler/oc-marketplace-export/pkg/client"
	"github.com/Sternrassler/oc-marketplace-export/pkg/config"
	"github.com/Sternrassler/oc-marketplace-export/pkg/logging"
	"github.com/Sternrassler/oc-marketplace-export/pkg/portal"
	"github.com/Sternrassler/oc-marketplace-export/pkg/ratelimit"
	"github.com/Sternrassler/oc-marketplace-export/pkg/session"
	"github.com/Sternrassler/oc-marketplace-export/pkg/snapshot"
	"github.com/rs/zerolog"
)

var (
	// ErrAuthentication wraps every failure to obtain a marketplace token.
	ErrAuthentication = errors.New("authentication failed")

	// ErrMarketplaceMismatch is returned when the supplied marketplace ID
	// differs from the one the client credentials belong to.
	ErrMarketplaceMismatch = errors.New("marketplace id mismatch")

	// ErrMissingArgument is returned when the chosen auth mode lacks input.
	ErrMissingArgument = errors.New("missing required argument")
)

// Args selects the marketplace and how to authenticate against it.
//
// Target set: client credentials from the targets file. Otherwise an
// empty PortalToken means a portal login with Username and Password,
// refreshed in the background; a PortalToken is used as is.
type Args struct {
	Username      string
	Password      string
	MarketplaceID string
	PortalToken   string
	Target        string
	ConfigPath    string
	Reporter      logging.Reporter
}

// Options configures the Downloader. Zero values select defaults.
type Options struct {
	// Portal authenticates portal logins and client credentials.
	Portal *portal.Client

	// Graph is the resource directory (default catalog.Default()).
	Graph *catalog.Graph

	// Scheduler limits every list request of one download.
	Scheduler ratelimit.Config

	// ThrottleStore holds throttle windows (default in-memory).
	ThrottleStore ratelimit.StateStore

	// Bulk configures page fetching.
	Bulk bulk.Config

	// Retry enables whole-resource retries when set.
	Retry *bulk.RetryConfig

	// PageSize requested per list call (default client.DefaultPageSize).
	PageSize int

	// RequestTimeout per list call.
	RequestTimeout time.Duration

	// RefreshInterval for interactive sessions.
	RefreshInterval time.Duration

	// HTTPClient overrides the API transport (for testing).
	HTTPClient *http.Client

	// Version is recorded in snapshot meta.
	Version string
}

// DefaultOptions returns production settings.
func DefaultOptions() Options {
	return Options{
		Graph:           catalog.Default(),
		Scheduler:       ratelimit.DefaultConfig(),
		Bulk:            bulk.DefaultConfig(),
		PageSize:        client.DefaultPageSize,
		RequestTimeout:  30 * time.Second,
		RefreshInterval: session.DefaultRefreshInterval,
	}
}

// Downloader runs downloads.
type Downloader struct {
	opts   Options
	logger zerolog.Logger
}

// NewDownloader creates a downloader, filling unset options with defaults.
func NewDownloader(opts Options, logger zerolog.Logger) *Downloader {
	def := DefaultOptions()
	if opts.Portal == nil {
		opts.Portal = portal.New(portal.DefaultConfig(), logger.With().Str("component", "portal").Logger())
	}
	if opts.Graph == nil {
		opts.Graph = def.Graph
	}
	if opts.Scheduler.MaxConcurrent == 0 {
		opts.Scheduler = def.Scheduler
	}
	if opts.Bulk.Workers == 0 {
		opts.Bulk = def.Bulk
	}
	if opts.PageSize == 0 {
		opts.PageSize = def.PageSize
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = def.RequestTimeout
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = def.RefreshInterval
	}
	return &Downloader{opts: opts, logger: logger}
}

// Download runs one download with default options.
func Download(ctx context.Context, args Args) (*snapshot.Marketplace, error) {
	logger := logging.NewLogger("export")
	return NewDownloader(Options{}, logger).Download(ctx, args)
}

// target is where and as whom list calls go.
type target struct {
	marketplaceID string
	baseURL       string
}

// Download authenticates, extracts and returns the snapshot. Failures are
// reported through args.Reporter and returned; the refresh loop is stopped
// on every path.
func (d *Downloader) Download(ctx context.Context, args Args) (*snapshot.Marketplace, error) {
	reporter := args.Reporter
	if reporter == nil {
		reporter = logging.NewZerologReporter(d.logger)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	sess := session.New(d.logger.With().Str("component", "session").Logger())
	defer sess.Terminate()

	tgt, err := d.authenticate(ctx, sess, args, reporter)
	if err != nil {
		return nil, err
	}

	if sess.Mode() == session.ModeInteractive {
		refresh := d.refreshFunc(tgt.marketplaceID, reporter)
		if err := sess.StartRefresh(ctx, d.opts.RefreshInterval, refresh, func(err error) {
			cancel(err)
		}); err != nil {
			return nil, err
		}
	}

	reporter.Report(fmt.Sprintf("Found your Marketplace %q. Beginning download.", tgt.marketplaceID), logging.SeveritySuccess)

	extractor, err := d.extractor(tgt, sess, reporter)
	if err != nil {
		return nil, err
	}

	m, err := extractor.Extract(ctx, tgt.marketplaceID)
	if err != nil {
		if refreshErr := sess.Err(); refreshErr != nil {
			err = refreshErr
		}
		reporter.Report(fmt.Sprintf("Download of %q failed: %v", tgt.marketplaceID, err), logging.SeverityError)
		return nil, err
	}

	reporter.Report(fmt.Sprintf("Done downloading data from org %q.", tgt.marketplaceID), logging.SeveritySuccess)
	return m, nil
}

func (d *Downloader) extractor(tgt target, tokens client.TokenSource, reporter logging.Reporter) (*Extractor, error) {
	tracker := ratelimit.NewTracker(d.opts.ThrottleStore, d.logger.With().Str("component", "throttle").Logger())

	scheduler, err := ratelimit.NewScheduler(d.opts.Scheduler, tracker, d.logger.With().Str("component", "scheduler").Logger())
	if err != nil {
		return nil, err
	}

	cfg := client.DefaultConfig(tgt.baseURL)
	cfg.PageSize = d.opts.PageSize
	cfg.Timeout = d.opts.RequestTimeout
	if d.opts.Version != "" {
		cfg.UserAgent = "oc-export/" + d.opts.Version
	}
	api, err := client.New(cfg, tokens, tracker)
	if err != nil {
		return nil, err
	}
	if d.opts.HTTPClient != nil {
		api.SetHTTPClient(d.opts.HTTPClient)
	}

	bulkLogger := d.logger.With().Str("component", "bulk").Logger()
	var lister bulk.ResourceLister = bulk.NewFetcher(api, scheduler, d.opts.Bulk, bulkLogger)
	if d.opts.Retry != nil {
		lister = bulk.NewRetrying(lister, *d.opts.Retry, bulkLogger)
	}

	return NewExtractor(d.opts.Graph, lister, reporter, d.logger).WithVersion(d.opts.Version), nil
}

func (d *Downloader) authenticate(ctx context.Context, sess *session.Supervisor, args Args, reporter logging.Reporter) (target, error) {
	if args.Target != "" {
		return d.authenticateService(ctx, sess, args, reporter)
	}

	if args.MarketplaceID == "" {
		reporter.Report("Missing required argument: marketplaceID", logging.SeverityError)
		return target{}, fmt.Errorf("%w: marketplace id", ErrMissingArgument)
	}

	mode := session.ModeToken
	if args.PortalToken == "" {
		if args.Username == "" || args.Password == "" {
			reporter.Report("Missing required arguments: username and password", logging.SeverityError)
			return target{}, fmt.Errorf("%w: username and password", ErrMissingArgument)
		}
		mode = session.ModeInteractive
	}

	tgt := target{marketplaceID: args.MarketplaceID}
	err := sess.Authenticate(ctx, mode, func(ctx context.Context) (session.Credentials, error) {
		creds := session.Credentials{PortalToken: args.PortalToken}
		if mode == session.ModeInteractive {
			tok, err := d.opts.Portal.Login(ctx, args.Username, args.Password)
			if err != nil {
				reporter.Report(fmt.Sprintf("Username %q and password were not valid", args.Username), logging.SeverityError)
				return creds, err
			}
			creds.PortalToken = tok.AccessToken
			creds.RefreshToken = tok.RefreshToken
		}

		orgToken, err := d.opts.Portal.OrganizationToken(ctx, args.MarketplaceID, creds.PortalToken)
		if err == nil {
			var org *portal.Organization
			if org, err = d.opts.Portal.GetOrganization(ctx, args.MarketplaceID, creds.PortalToken); err == nil {
				tgt.baseURL = org.CoreAPIURL
			}
		}
		if err != nil {
			reporter.Report(fmt.Sprintf("Marketplace with ID %q not found", args.MarketplaceID), logging.SeverityError)
			return creds, err
		}

		creds.AccessToken = orgToken
		return creds, nil
	})
	if err != nil {
		return target{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	return tgt, nil
}

func (d *Downloader) authenticateService(ctx context.Context, sess *session.Supervisor, args Args, reporter logging.Reporter) (target, error) {
	cfg, err := config.Load(args.Target, args.ConfigPath)
	if err != nil {
		reporter.Report(fmt.Sprintf("Client credentials authentication failed: %v", err), logging.SeverityError)
		return target{}, err
	}
	reporter.Report(fmt.Sprintf("Using client credentials from target %q", args.Target), logging.SeveritySuccess)

	tgt := target{marketplaceID: args.MarketplaceID, baseURL: cfg.OrderCloudBaseURL}
	err = sess.Authenticate(ctx, session.ModeService, func(ctx context.Context) (session.Credentials, error) {
		tok, err := d.opts.Portal.ClientCredentials(ctx, cfg.APIClientID, cfg.APIClientSecret, cfg.OrderCloudBaseURL)
		if err != nil {
			reporter.Report(fmt.Sprintf("Client credentials authentication failed: %v", err), logging.SeverityError)
			return session.Credentials{}, err
		}

		tokenMarketplaceID, err := portal.MarketplaceIDFromToken(tok.AccessToken)
		if err != nil {
			reporter.Report(fmt.Sprintf("Client credentials authentication failed: %v", err), logging.SeverityError)
			return session.Credentials{}, err
		}

		switch {
		case tgt.marketplaceID == "":
			tgt.marketplaceID = tokenMarketplaceID
			reporter.Report(fmt.Sprintf("Using marketplace ID from token: %s", tokenMarketplaceID), logging.SeveritySuccess)
		case tgt.marketplaceID != tokenMarketplaceID:
			reporter.Report(fmt.Sprintf("Provided marketplace ID %q does not match the client credentials marketplace ID %q",
				tgt.marketplaceID, tokenMarketplaceID), logging.SeverityError)
			return session.Credentials{}, fmt.Errorf("%w: provided %q, credentials belong to %q",
				ErrMarketplaceMismatch, tgt.marketplaceID, tokenMarketplaceID)
		}

		return session.Credentials{AccessToken: tok.AccessToken}, nil
	})
	if err != nil {
		return target{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}

	reporter.Report(fmt.Sprintf("Authenticated with client credentials to %s", cfg.OrderCloudBaseURL), logging.SeveritySuccess)
	return tgt, nil
}

// refreshFunc renews the portal token and exchanges it for a new
// marketplace token.
func (d *Downloader) refreshFunc(marketplaceID string, reporter logging.Reporter) session.RefreshFunc {
	return func(ctx context.Context, current session.Credentials) (session.Credentials, error) {
		reporter.Report(fmt.Sprintf("Refreshing the access token for Marketplace %q. This should happen every %s.",
			marketplaceID, d.opts.RefreshInterval), logging.SeverityWarn)

		tok, err := d.opts.Portal.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return session.Credentials{}, fmt.Errorf("refresh portal token: %w", err)
		}
		orgToken, err := d.opts.Portal.OrganizationToken(ctx, marketplaceID, tok.AccessToken)
		if err != nil {
			return session.Credentials{}, fmt.Errorf("exchange organization token: %w", err)
		}
		return session.Credentials{
			AccessToken:  orgToken,
			PortalToken:  tok.AccessToken,
			RefreshToken: tok.RefreshToken,
		}, nil
	}
}
