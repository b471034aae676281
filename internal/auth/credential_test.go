package auth

import (
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		expiresAt int64
		want      bool
	}{
		{name: "absent expiry", expiresAt: 0, want: true},
		{name: "negative expiry", expiresAt: -1, want: true},
		{name: "already past", expiresAt: now.Add(-time.Hour).UnixMilli(), want: true},
		{name: "exactly now", expiresAt: now.UnixMilli(), want: true},
		{name: "inside safety margin", expiresAt: now.Add(4 * time.Minute).UnixMilli(), want: true},
		{name: "exactly at margin boundary", expiresAt: now.Add(5 * time.Minute).UnixMilli(), want: true},
		{name: "just beyond margin", expiresAt: now.Add(5*time.Minute + time.Millisecond).UnixMilli(), want: false},
		{name: "far future", expiresAt: now.Add(24 * time.Hour).UnixMilli(), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(tt.expiresAt, now); got != tt.want {
				t.Errorf("IsExpired(%d) = %v, want %v", tt.expiresAt, got, tt.want)
			}
		})
	}
}

func TestNeedsRefresh_PATNeverRefreshes(t *testing.T) {
	now := time.Now()
	expiries := []int64{0, 1, now.Add(-time.Hour).UnixMilli(), now.Add(time.Hour).UnixMilli()}
	for _, expiresAt := range expiries {
		cred := &Credential{Kind: KindPAT, AccessToken: "ghp_token", ExpiresAt: expiresAt}
		if NeedsRefresh(cred, now) {
			t.Errorf("NeedsRefresh(PAT with expires_at=%d) = true, want false", expiresAt)
		}
	}
}

func TestNeedsRefresh_OAuthDelegatesToExpiry(t *testing.T) {
	now := time.Now()
	fresh := &Credential{Kind: KindOAuth, ClientID: "cid", AccessToken: "tok", ExpiresAt: now.Add(time.Hour).UnixMilli()}
	if NeedsRefresh(fresh, now) {
		t.Error("expected fresh oauth credential to not need refresh")
	}
	stale := &Credential{Kind: KindOAuth, ClientID: "cid", AccessToken: "tok", ExpiresAt: now.Add(time.Minute).UnixMilli()}
	if !NeedsRefresh(stale, now) {
		t.Error("expected oauth credential inside the margin to need refresh")
	}
}

func TestCredentialValidate(t *testing.T) {
	tests := []struct {
		name    string
		cred    *Credential
		wantErr bool
	}{
		{name: "valid oauth", cred: &Credential{Kind: KindOAuth, ClientID: "cid"}},
		{name: "valid pat", cred: &Credential{Kind: KindPAT, AccessToken: "tok"}},
		{name: "oauth missing client id", cred: &Credential{Kind: KindOAuth}, wantErr: true},
		{name: "unknown kind", cred: &Credential{Kind: "api-key"}, wantErr: true},
		{name: "empty kind", cred: &Credential{}, wantErr: true},
		{name: "nil credential", cred: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cred.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCredentialClone(t *testing.T) {
	orig := &Credential{Kind: KindOAuth, ClientID: "cid", AccessToken: "a", RefreshToken: "r"}
	cloned := orig.Clone()
	cloned.AccessToken = "b"
	if orig.AccessToken != "a" {
		t.Error("mutating the clone changed the original")
	}
	if (*Credential)(nil).Clone() != nil {
		t.Error("expected nil clone for nil credential")
	}
}
