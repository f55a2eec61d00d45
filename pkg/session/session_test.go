package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testLogger = zerolog.New(os.Stderr).Level(zerolog.Disabled)

func authenticated(t *testing.T, mode Mode) *Supervisor {
	t.Helper()
	s := New(testLogger)
	err := s.Authenticate(context.Background(), mode, func(context.Context) (Credentials, error) {
		return Credentials{AccessToken: "access-0", PortalToken: "portal-0", RefreshToken: "refresh-0"}, nil
	})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	return s
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Unauthenticated: "unauthenticated",
		Authenticating:  "authenticating",
		Authenticated:   "authenticated",
		Refreshing:      "refreshing",
		Terminated:      "terminated",
		State(42):       "state(42)",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	s := New(testLogger)
	if s.State() != Unauthenticated || s.AccessToken() != "" {
		t.Fatalf("new supervisor state = %s, token %q", s.State(), s.AccessToken())
	}

	var during State
	err := s.Authenticate(context.Background(), ModeService, func(context.Context) (Credentials, error) {
		during = s.State()
		return Credentials{AccessToken: "svc"}, nil
	})
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if during != Authenticating {
		t.Errorf("state during login = %s, want authenticating", during)
	}
	if s.State() != Authenticated || s.Mode() != ModeService || s.AccessToken() != "svc" {
		t.Errorf("after login: state %s, mode %s, token %q", s.State(), s.Mode(), s.AccessToken())
	}

	if err := s.Authenticate(context.Background(), ModeService, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Authenticate() error = %v, want ErrInvalidTransition", err)
	}
}

func TestAuthenticate_Failure(t *testing.T) {
	s := New(testLogger)
	boom := errors.New("bad password")

	err := s.Authenticate(context.Background(), ModeInteractive, func(context.Context) (Credentials, error) {
		return Credentials{}, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Authenticate() error = %v, want %v", err, boom)
	}
	if s.State() != Unauthenticated {
		t.Errorf("state after failed login = %s, want unauthenticated", s.State())
	}
}

func TestSetInitialAndSwap(t *testing.T) {
	s := New(testLogger)
	if err := s.Swap(Credentials{AccessToken: "x"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Swap() before auth error = %v, want ErrInvalidTransition", err)
	}

	if err := s.SetInitial(ModeToken, Credentials{AccessToken: "a", PortalToken: "p"}); err != nil {
		t.Fatalf("SetInitial() error = %v", err)
	}
	if err := s.Swap(Credentials{AccessToken: "b", PortalToken: "q"}); err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	if got := s.Credentials(); got.AccessToken != "b" || got.PortalToken != "q" {
		t.Errorf("Credentials() = %+v", got)
	}

	s.Terminate()
	if err := s.SetInitial(ModeToken, Credentials{}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("SetInitial() after terminate error = %v, want ErrInvalidTransition", err)
	}
}

func TestStartRefresh_RequiresInteractive(t *testing.T) {
	for _, mode := range []Mode{ModeService, ModeToken} {
		s := authenticated(t, mode)
		err := s.StartRefresh(context.Background(), time.Millisecond, nil, nil)
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("StartRefresh(%s) error = %v, want ErrInvalidTransition", mode, err)
		}
	}
}

func TestStartRefresh_SwapsCredentials(t *testing.T) {
	s := authenticated(t, ModeInteractive)
	defer s.Terminate()

	var calls atomic.Int64
	refresh := func(_ context.Context, cur Credentials) (Credentials, error) {
		n := calls.Add(1)
		if cur.RefreshToken != fmt.Sprintf("refresh-%d", n-1) {
			return Credentials{}, fmt.Errorf("refresh got stale token %q", cur.RefreshToken)
		}
		return Credentials{
			AccessToken:  fmt.Sprintf("access-%d", n),
			PortalToken:  fmt.Sprintf("portal-%d", n),
			RefreshToken: fmt.Sprintf("refresh-%d", n),
		}, nil
	}

	if err := s.StartRefresh(context.Background(), 5*time.Millisecond, refresh, nil); err != nil {
		t.Fatalf("StartRefresh() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("refresh did not run three times")
		}
		time.Sleep(time.Millisecond)
	}
	s.Terminate()

	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
	got := s.Credentials()
	if got.AccessToken != fmt.Sprintf("access-%d", calls.Load()) {
		t.Errorf("final credentials = %+v after %d refreshes", got, calls.Load())
	}
}

func TestStartRefresh_FailureIsReported(t *testing.T) {
	s := authenticated(t, ModeInteractive)
	defer s.Terminate()

	boom := errors.New("refresh rejected")
	failed := make(chan error, 1)
	var calls atomic.Int64

	err := s.StartRefresh(context.Background(), 5*time.Millisecond, func(context.Context, Credentials) (Credentials, error) {
		calls.Add(1)
		return Credentials{}, boom
	}, func(err error) { failed <- err })
	if err != nil {
		t.Fatalf("StartRefresh() error = %v", err)
	}

	select {
	case err := <-failed:
		if !errors.Is(err, ErrRefreshFailed) || !errors.Is(err, boom) {
			t.Errorf("onFailure got %v, want ErrRefreshFailed wrapping cause", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("refresh failure not reported")
	}

	// No retry of the refresh itself.
	time.Sleep(30 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("refresh called %d times, want 1", n)
	}
	if !errors.Is(s.Err(), boom) {
		t.Errorf("Err() = %v, want cause", s.Err())
	}
	if s.AccessToken() != "access-0" {
		t.Error("failed refresh replaced the credential")
	}
}

func TestTerminate_Idempotent(t *testing.T) {
	s := authenticated(t, ModeInteractive)

	var calls atomic.Int64
	err := s.StartRefresh(context.Background(), time.Millisecond, func(_ context.Context, c Credentials) (Credentials, error) {
		calls.Add(1)
		return c, nil
	}, nil)
	if err != nil {
		t.Fatalf("StartRefresh() error = %v", err)
	}

	s.Terminate()
	s.Terminate()

	after := calls.Load()
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != after {
		t.Error("refresh kept running after Terminate")
	}
	if s.State() != Terminated {
		t.Errorf("state = %s, want terminated", s.State())
	}
	if err := s.StartRefresh(context.Background(), time.Millisecond, nil, nil); err == nil {
		t.Error("StartRefresh() after Terminate succeeded")
	}
}

func TestTerminate_WithoutRefresh(t *testing.T) {
	s := New(testLogger)
	s.Terminate()
	if s.State() != Terminated {
		t.Errorf("state = %s, want terminated", s.State())
	}
}

// Readers racing a refresh loop must only ever see complete pairs.
func TestCredentials_SwapIsAtomic(t *testing.T) {
	s := authenticated(t, ModeInteractive)
	defer s.Terminate()

	var n atomic.Int64
	err := s.StartRefresh(context.Background(), time.Microsecond*50, func(context.Context, Credentials) (Credentials, error) {
		i := n.Add(1)
		return Credentials{
			AccessToken:  fmt.Sprintf("access-%d", i),
			PortalToken:  fmt.Sprintf("portal-%d", i),
			RefreshToken: fmt.Sprintf("refresh-%d", i),
		}, nil
	}, nil)
	if err != nil {
		t.Fatalf("StartRefresh() error = %v", err)
	}

	var wg sync.WaitGroup
	stop := time.Now().Add(50 * time.Millisecond)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(stop) {
				c := s.Credentials()
				var a, p, f int
				fmt.Sscanf(c.AccessToken, "access-%d", &a)
				fmt.Sscanf(c.PortalToken, "portal-%d", &p)
				fmt.Sscanf(c.RefreshToken, "refresh-%d", &f)
				if a != p || p != f {
					t.Errorf("torn read: %+v", c)
					return
				}
			}
		}()
	}
	wg.Wait()
}
