package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// countingTokenServer fails the test if hit more times than allowed and
// otherwise answers with a fresh token set.
func countingTokenServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	calls := 0
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, successTokenBody())
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestOrchestrator(tokenURL string, now time.Time) *Orchestrator {
	o := NewOrchestrator(NewTokenRefresher(Endpoints{TokenURL: tokenURL}, nil))
	o.now = func() time.Time { return now }
	return o
}

func TestGetValidAccessToken_NotAuthenticated(t *testing.T) {
	srv, calls := countingTokenServer(t)
	o := newTestOrchestrator(srv.URL, time.Now())

	for _, cred := range []*Credential{nil, {Kind: KindOAuth, ClientID: "cid"}} {
		_, err := o.GetValidAccessToken(context.Background(), "copilot", cred)
		if !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated, got %v", err)
		}
	}
	if *calls != 0 {
		t.Errorf("expected no network I/O, token endpoint was hit %d times", *calls)
	}
}

func TestGetValidAccessToken_PATPassthrough(t *testing.T) {
	srv, calls := countingTokenServer(t)
	o := newTestOrchestrator(srv.URL, time.Now())

	cred := &Credential{Kind: KindPAT, AccessToken: "ghp_abc"}
	result, err := o.GetValidAccessToken(context.Background(), "copilot", cred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token != "ghp_abc" || result.Updated != nil {
		t.Errorf("unexpected result: %+v", result)
	}
	if *calls != 0 {
		t.Errorf("expected no network I/O for PAT, got %d calls", *calls)
	}
}

func TestGetValidAccessToken_FreshTokenPassthrough(t *testing.T) {
	now := time.Now()
	srv, calls := countingTokenServer(t)
	o := newTestOrchestrator(srv.URL, now)

	cred := &Credential{
		Kind: KindOAuth, ClientID: "cid", AccessToken: "still-good",
		RefreshToken: "r", ExpiresAt: now.Add(time.Hour).UnixMilli(),
	}
	result, err := o.GetValidAccessToken(context.Background(), "copilot", cred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token != "still-good" || result.Updated != nil {
		t.Errorf("unexpected result: %+v", result)
	}
	if *calls != 0 {
		t.Errorf("expected no network I/O for fresh token, got %d calls", *calls)
	}
}

func TestGetValidAccessToken_ReauthenticationRequired(t *testing.T) {
	now := time.Now()
	srv, calls := countingTokenServer(t)
	o := newTestOrchestrator(srv.URL, now)

	cred := &Credential{
		Kind: KindOAuth, ClientID: "cid", AccessToken: "stale",
		ExpiresAt: now.Add(-time.Hour).UnixMilli(),
	}
	_, err := o.GetValidAccessToken(context.Background(), "copilot", cred)
	if !errors.Is(err, ErrReauthenticationRequired) {
		t.Fatalf("expected ErrReauthenticationRequired, got %v", err)
	}
	if *calls != 0 {
		t.Errorf("expected no network I/O without a refresh token, got %d calls", *calls)
	}
}

func TestGetValidAccessToken_RefreshRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv, calls := countingTokenServer(t)
	o := newTestOrchestrator(srv.URL, now)

	cred := &Credential{
		Kind: KindOAuth, ClientID: "cid", AccessToken: "stale",
		RefreshToken: "old-refresh", TokenType: "token",
		ExpiresAt: now.Add(-time.Minute).UnixMilli(),
	}
	result, err := o.GetValidAccessToken(context.Background(), "copilot", cred)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Token != "new-access" {
		t.Errorf("token = %q, want new-access", result.Token)
	}
	if result.Updated == nil {
		t.Fatal("expected Updated to signal a required persistence write")
	}
	if cred.AccessToken != "new-access" || cred.RefreshToken != "new-refresh" || cred.TokenType != "bearer" {
		t.Errorf("credential not fully replaced: %+v", cred)
	}
	wantExpiry := now.Add(28800 * time.Second).UnixMilli()
	if cred.ExpiresAt != wantExpiry {
		t.Errorf("expires_at = %d, want %d", cred.ExpiresAt, wantExpiry)
	}
	if *calls != 1 {
		t.Fatalf("expected exactly 1 refresh call, got %d", *calls)
	}

	// The credential is now fresh: a second call must not hit the network.
	second, err := o.GetValidAccessToken(context.Background(), "copilot", cred)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if second.Token != "new-access" || second.Updated != nil {
		t.Errorf("unexpected second result: %+v", second)
	}
	if *calls != 1 {
		t.Errorf("expected no further network calls, got %d total", *calls)
	}
}

func TestGetValidAccessToken_RefreshServerErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"revoked"}`)
	}))
	defer srv.Close()

	now := time.Now()
	o := newTestOrchestrator(srv.URL, now)
	cred := &Credential{
		Kind: KindOAuth, ClientID: "cid", AccessToken: "stale",
		RefreshToken: "revoked", ExpiresAt: now.Add(-time.Minute).UnixMilli(),
	}
	_, err := o.GetValidAccessToken(context.Background(), "copilot", cred)
	var serverErr *AuthServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected AuthServerError, got %v", err)
	}
	if cred.AccessToken != "stale" {
		t.Error("credential must not be mutated on refresh failure")
	}
}

func TestGetValidAccessToken_ConcurrentRefreshSingleFlight(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, successTokenBody())
	}))
	defer srv.Close()

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o := NewOrchestrator(NewTokenRefresher(Endpoints{TokenURL: srv.URL}, nil))
	var nowMu sync.Mutex
	current := start
	o.now = func() time.Time {
		nowMu.Lock()
		defer nowMu.Unlock()
		return current
	}

	cred := &Credential{
		Kind: KindOAuth, ClientID: "cid", AccessToken: "stale",
		RefreshToken: "old-refresh", ExpiresAt: start.Add(-time.Minute).UnixMilli(),
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := o.GetValidAccessToken(context.Background(), "copilot", cred); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// The winner refreshes; everyone who waited on the lock re-checks and
	// reuses the fresh token.
	if calls != 1 {
		t.Errorf("expected a single refresh across concurrent callers, got %d", calls)
	}
}
