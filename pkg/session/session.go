// Package session holds the access credential every list request reads,
// and renews it in the background for interactive logins.
//
// The Supervisor is the single writer of session state. Readers receive an
// immutable Credentials snapshot; a refresh replaces the whole snapshot in
// one atomic pointer swap, so no reader ever sees a new access token paired
// with an old refresh token.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ocexport_session_refreshes_total",
	Help: "Total credential refreshes by result",
}, []string{"result"})

// DefaultRefreshInterval is shorter than the portal token lifetime.
const DefaultRefreshInterval = 10 * time.Minute

var (
	// ErrInvalidTransition is returned for an operation not allowed in the
	// current state.
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrRefreshFailed wraps the cause of a failed background refresh.
	ErrRefreshFailed = errors.New("credential refresh failed")
)

// State is the supervisor lifecycle state.
type State int32

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	Refreshing
	Terminated
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Mode is how the session was authenticated.
type Mode string

const (
	// ModeInteractive is a portal username/password login. It carries a
	// refresh token and is renewed in the background.
	ModeInteractive Mode = "interactive"

	// ModeService is an API client credentials grant, used as is for the
	// whole download.
	ModeService Mode = "service"

	// ModeToken is a caller-supplied portal token. It cannot be renewed.
	ModeToken Mode = "token"
)

// Credentials is one consistent set of tokens. Never modified after it
// has been handed to the supervisor.
type Credentials struct {
	// AccessToken is the marketplace-scoped token sent with list requests.
	AccessToken string

	// PortalToken is the portal access token (interactive and token modes).
	PortalToken string

	// RefreshToken renews PortalToken (interactive mode only).
	RefreshToken string
}

// RefreshFunc exchanges current for a new credential set.
type RefreshFunc func(ctx context.Context, current Credentials) (Credentials, error)

// Supervisor owns session state.
type Supervisor struct {
	creds atomic.Pointer[Credentials]
	state atomic.Int32
	mode  atomic.Value // Mode

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	logger zerolog.Logger
}

// New creates an unauthenticated supervisor.
func New(logger zerolog.Logger) *Supervisor {
	s := &Supervisor{logger: logger}
	s.mode.Store(Mode(""))
	return s
}

// State returns the current state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Mode returns the authentication mode, or "" before authentication.
func (s *Supervisor) Mode() Mode {
	return s.mode.Load().(Mode)
}

// Credentials returns the current snapshot. The zero value is returned
// before authentication.
func (s *Supervisor) Credentials() Credentials {
	if c := s.creds.Load(); c != nil {
		return *c
	}
	return Credentials{}
}

// AccessToken returns the current access token. Safe for concurrent use.
func (s *Supervisor) AccessToken() string {
	if c := s.creds.Load(); c != nil {
		return c.AccessToken
	}
	return ""
}

// Authenticate runs login and installs its credentials. On failure the
// supervisor returns to Unauthenticated.
func (s *Supervisor) Authenticate(ctx context.Context, mode Mode, login func(ctx context.Context) (Credentials, error)) error {
	if !s.state.CompareAndSwap(int32(Unauthenticated), int32(Authenticating)) {
		return fmt.Errorf("%w: authenticate from %s", ErrInvalidTransition, s.State())
	}

	creds, err := login(ctx)
	if err != nil {
		s.state.CompareAndSwap(int32(Authenticating), int32(Unauthenticated))
		return err
	}

	s.install(mode, creds)
	return nil
}

// SetInitial installs credentials obtained outside the supervisor.
func (s *Supervisor) SetInitial(mode Mode, creds Credentials) error {
	if st := s.State(); st != Unauthenticated && st != Authenticating {
		return fmt.Errorf("%w: set credentials from %s", ErrInvalidTransition, st)
	}
	s.state.Store(int32(Authenticating))
	s.install(mode, creds)
	return nil
}

func (s *Supervisor) install(mode Mode, creds Credentials) {
	c := creds
	s.mode.Store(mode)
	s.creds.Store(&c)
	s.state.CompareAndSwap(int32(Authenticating), int32(Authenticated))
	s.logger.Info().Str("mode", string(mode)).Msg("Session authenticated")
}

// Swap atomically replaces the credential set. Requests that already read
// the old access token finish with it.
func (s *Supervisor) Swap(creds Credentials) error {
	if st := s.State(); st != Authenticated && st != Refreshing {
		return fmt.Errorf("%w: swap from %s", ErrInvalidTransition, st)
	}
	c := creds
	s.creds.Store(&c)
	return nil
}

// StartRefresh renews the credentials every interval until Terminate or
// ctx is done. Only interactive sessions refresh. A failed refresh is not
// retried: the loop stops, Err reports the failure and onFailure (if not
// nil) is called with it from the refresh goroutine. onFailure must not
// call Terminate.
func (s *Supervisor) StartRefresh(ctx context.Context, interval time.Duration, refresh RefreshFunc, onFailure func(error)) error {
	if s.Mode() != ModeInteractive {
		return fmt.Errorf("%w: refresh requires an interactive session, have %q", ErrInvalidTransition, s.Mode())
	}
	if s.State() != Authenticated {
		return fmt.Errorf("%w: start refresh from %s", ErrInvalidTransition, s.State())
	}
	if interval <= 0 {
		return fmt.Errorf("refresh interval must be > 0 (got %s)", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return fmt.Errorf("%w: refresh already running", ErrInvalidTransition)
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.refreshLoop(ctx, interval, refresh, onFailure, s.done)
	return nil
}

func (s *Supervisor) refreshLoop(ctx context.Context, interval time.Duration, refresh RefreshFunc, onFailure func(error), done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.refreshOnce(ctx, refresh); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.fail(err, onFailure)
				return
			}
		}
	}
}

func (s *Supervisor) refreshOnce(ctx context.Context, refresh RefreshFunc) error {
	if !s.state.CompareAndSwap(int32(Authenticated), int32(Refreshing)) {
		return fmt.Errorf("%w: refresh from %s", ErrInvalidTransition, s.State())
	}
	defer s.state.CompareAndSwap(int32(Refreshing), int32(Authenticated))

	s.logger.Warn().Msg("Refreshing access token")

	next, err := refresh(ctx, s.Credentials())
	if err != nil {
		refreshesTotal.WithLabelValues("failure").Inc()
		return err
	}

	c := next
	s.creds.Store(&c)
	refreshesTotal.WithLabelValues("success").Inc()
	s.logger.Debug().Msg("Access token swapped")
	return nil
}

func (s *Supervisor) fail(err error, onFailure func(error)) {
	wrapped := fmt.Errorf("%w: %w", ErrRefreshFailed, err)

	s.mu.Lock()
	s.err = wrapped
	s.mu.Unlock()

	s.logger.Error().Err(err).Msg("Credential refresh failed")
	if onFailure != nil {
		onFailure(wrapped)
	}
}

// Err returns the background refresh failure, if any.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Terminate stops any refresh and waits for it to exit. Safe to call more
// than once and from any state.
func (s *Supervisor) Terminate() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if prev := State(s.state.Swap(int32(Terminated))); prev != Terminated {
		s.logger.Debug().Str("from", prev.String()).Msg("Session terminated")
	}
}
