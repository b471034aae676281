package auth

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes how a credential was obtained and whether it can expire.
type Kind string

const (
	// KindOAuth marks a token pair minted through the device-authorization grant.
	KindOAuth Kind = "oauth"
	// KindPAT marks a user-supplied personal access token. PATs never expire
	// under this model and are never refreshed.
	KindPAT Kind = "pat"
)

// Credential is the stored authentication state for the upstream provider.
// ExpiresAt is unix milliseconds; zero means absent.
type Credential struct {
	Kind         Kind   `json:"kind"`
	ClientID     string `json:"client_id,omitempty"`
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
}

// Validate rejects credentials that could not have come from a completed setup
// flow. It runs at the store boundary so the rest of the code can trust the
// shape of whatever it is handed.
func (c *Credential) Validate() error {
	if c == nil {
		return fmt.Errorf("copilotgate auth: credential is nil")
	}
	switch c.Kind {
	case KindOAuth:
		if strings.TrimSpace(c.ClientID) == "" {
			return fmt.Errorf("copilotgate auth: oauth credential missing client_id")
		}
	case KindPAT:
	default:
		return fmt.Errorf("copilotgate auth: unknown credential kind %q", c.Kind)
	}
	return nil
}

// Clone returns a deep copy so callers can persist a snapshot without racing
// later in-place mutation.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	cloned := *c
	return &cloned
}

// expiryMargin is how long before the recorded expiry an access token is
// already treated as expired, so requests in flight never carry a token that
// dies mid-exchange.
const expiryMargin = 5 * time.Minute

// IsExpired reports whether an access token with the given expiry (unix
// milliseconds, zero = absent) is unusable at the given instant. An absent
// expiry counts as expired.
func IsExpired(expiresAt int64, now time.Time) bool {
	if expiresAt <= 0 {
		return true
	}
	return !now.Before(time.UnixMilli(expiresAt).Add(-expiryMargin))
}

// NeedsRefresh reports whether the credential's access token must be refreshed
// before use. PATs never need refresh.
func NeedsRefresh(cred *Credential, now time.Time) bool {
	if cred == nil || cred.Kind == KindPAT {
		return false
	}
	return IsExpired(cred.ExpiresAt, now)
}
