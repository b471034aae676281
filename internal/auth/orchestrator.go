package auth

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// TokenResult is the outcome of GetValidAccessToken. Updated is nil when the
// stored credential is unchanged; otherwise it points at the refreshed
// credential and the caller must persist it.
type TokenResult struct {
	Token   string
	Updated *Credential
}

// Orchestrator hands out a currently valid bearer token for a stored
// credential, refreshing it when needed. At most one refresh runs per
// credential identity at a time; concurrent callers that lose the race reuse
// the winner's token.
type Orchestrator struct {
	refresher *TokenRefresher

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewOrchestrator constructs an orchestrator around the given refresher.
func NewOrchestrator(refresher *TokenRefresher) *Orchestrator {
	return &Orchestrator{
		refresher: refresher,
		locks:     make(map[string]*sync.Mutex),
		now:       time.Now,
	}
}

// lockFor returns the mutex guarding refreshes of the given credential
// identity, creating it on first use.
func (o *Orchestrator) lockFor(key string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.locks[key]
	if !ok {
		l = &sync.Mutex{}
		o.locks[key] = l
	}
	return l
}

// GetValidAccessToken returns a usable bearer token for the credential,
// refreshing it first when the stored access token is expired. The credential
// is mutated in place on a successful refresh and also returned in
// TokenResult.Updated so the side effect is visible in the return type.
//
// key identifies the credential (e.g. the provider name) for refresh
// serialization. No network I/O happens on the PAT, unexpired, or error-ladder
// fast paths.
func (o *Orchestrator) GetValidAccessToken(ctx context.Context, key string, cred *Credential) (TokenResult, error) {
	if cred == nil {
		return TokenResult{}, ErrNotAuthenticated
	}

	// The keyed lock covers the whole check-and-refresh sequence: callers that
	// lose a refresh race re-check under the lock and reuse the fresh token.
	lock := o.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if cred.AccessToken == "" {
		return TokenResult{}, ErrNotAuthenticated
	}
	if cred.Kind == KindPAT {
		return TokenResult{Token: cred.AccessToken}, nil
	}
	if !NeedsRefresh(cred, o.now()) {
		return TokenResult{Token: cred.AccessToken}, nil
	}
	if cred.RefreshToken == "" {
		return TokenResult{}, ErrReauthenticationRequired
	}

	tokens, errRefresh := o.refresher.Refresh(ctx, cred.RefreshToken, cred.ClientID)
	if errRefresh != nil {
		return TokenResult{}, errRefresh
	}

	cred.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		cred.RefreshToken = tokens.RefreshToken
	}
	cred.TokenType = tokens.TokenType
	cred.ExpiresAt = o.now().Add(time.Duration(tokens.ExpiresIn) * time.Second).UnixMilli()
	log.Debugf("auth orchestrator: refreshed %s token, expires at %s", key, time.UnixMilli(cred.ExpiresAt).Format(time.RFC3339))

	return TokenResult{Token: cred.AccessToken, Updated: cred}, nil
}
