package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// TokenRefresher exchanges a refresh token for a fresh token set. It holds no
// per-credential state and is safe for concurrent use across credentials;
// serializing refreshes of a single credential is the orchestrator's job.
type TokenRefresher struct {
	endpoints  Endpoints
	httpClient *http.Client
}

// NewTokenRefresher constructs a refresher for the given endpoints.
func NewTokenRefresher(endpoints Endpoints, httpClient *http.Client) *TokenRefresher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &TokenRefresher{endpoints: endpoints, httpClient: httpClient}
}

// Refresh performs the refresh_token grant against the token endpoint.
func (r *TokenRefresher) Refresh(ctx context.Context, refreshToken, clientID string) (*TokenSet, error) {
	body, errMarshal := json.Marshal(map[string]string{
		"client_id":     clientID,
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	})
	if errMarshal != nil {
		return nil, fmt.Errorf("copilotgate auth: marshal refresh request: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoints.TokenURL, bytes.NewReader(body))
	if errReq != nil {
		return nil, fmt.Errorf("copilotgate auth: create refresh request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, errDo := r.httpClient.Do(req)
	if errDo != nil {
		return nil, &NetworkError{Op: "token refresh", Err: errDo}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("token refresh: close response body: %v", errClose)
		}
	}()

	respBody, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, &NetworkError{Op: "token refresh", Err: errRead}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, serverError(resp.StatusCode, respBody)
	}

	var tokens TokenSet
	if errDecode := json.Unmarshal(respBody, &tokens); errDecode != nil {
		return nil, fmt.Errorf("copilotgate auth: decode refresh response: %w", errDecode)
	}
	if tokens.AccessToken == "" {
		return nil, serverError(resp.StatusCode, respBody)
	}
	return &tokens, nil
}
