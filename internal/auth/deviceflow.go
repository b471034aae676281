package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// pollCeiling bounds the total time spent waiting for the user to approve
	// the device code in their browser.
	pollCeiling = 15 * time.Minute
	// slowDownIncrement is added to the polling interval every time the server
	// answers slow_down.
	slowDownIncrement = 5 * time.Second
	// defaultPollInterval is used when the device-code response carries no
	// usable interval.
	defaultPollInterval = 5 * time.Second

	deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

// Endpoints identifies the authorization server and provider API a flow talks to.
type Endpoints struct {
	DeviceCodeURL string
	TokenURL      string
	APIBaseURL    string
	Scopes        []string
}

// DeviceCode is the authorization server's answer to a device-code request.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// TokenSet is a successful token-endpoint response, from either the device
// grant or the refresh grant.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// FlowState enumerates the device-authorization state machine.
type FlowState int

const (
	StateRequestingCode FlowState = iota
	StatePolling
	StateSucceeded
	StateFailed
)

func (s FlowState) String() string {
	switch s {
	case StateRequestingCode:
		return "requesting-code"
	case StatePolling:
		return "polling"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ProgressFunc receives human-readable progress while the flow waits on the user.
type ProgressFunc func(state FlowState, message string)

// DeviceAuthorizer drives the OAuth2 device-authorization grant end to end:
// one device-code request, then polling the token endpoint until the user
// approves, denies, or the flow times out.
type DeviceAuthorizer struct {
	endpoints  Endpoints
	httpClient *http.Client

	// now and sleep are swapped out in tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDeviceAuthorizer constructs an authorizer for the given endpoints. A nil
// client falls back to a default with a per-attempt timeout.
func NewDeviceAuthorizer(endpoints Endpoints, httpClient *http.Client) *DeviceAuthorizer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &DeviceAuthorizer{
		endpoints:  endpoints,
		httpClient: httpClient,
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RequestDeviceCode asks the authorization server for a device/user code pair.
func (d *DeviceAuthorizer) RequestDeviceCode(ctx context.Context, clientID string) (*DeviceCode, error) {
	body, errMarshal := json.Marshal(map[string]string{
		"client_id": clientID,
		"scope":     strings.Join(d.endpoints.Scopes, " "),
	})
	if errMarshal != nil {
		return nil, fmt.Errorf("copilotgate auth: marshal device code request: %w", errMarshal)
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoints.DeviceCodeURL, bytes.NewReader(body))
	if errReq != nil {
		return nil, fmt.Errorf("copilotgate auth: create device code request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, errDo := d.httpClient.Do(req)
	if errDo != nil {
		return nil, &NetworkError{Op: "device code request", Err: errDo}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("device flow: close device code response body: %v", errClose)
		}
	}()

	respBody, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, &NetworkError{Op: "device code request", Err: errRead}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, serverError(resp.StatusCode, respBody)
	}

	var code DeviceCode
	if errDecode := json.Unmarshal(respBody, &code); errDecode != nil {
		return nil, fmt.Errorf("copilotgate auth: decode device code response: %w", errDecode)
	}
	if code.DeviceCode == "" || code.UserCode == "" {
		return nil, &AuthServerError{Status: resp.StatusCode, Description: "device code response missing fields"}
	}
	return &code, nil
}

// pollOutcome classifies a single poll attempt.
type pollOutcome int

const (
	pollContinue pollOutcome = iota
	pollSucceeded
	pollFailed
)

// pollStep is the result of one token-endpoint attempt. interval carries the
// possibly increased back-off for the next sleep.
type pollStep struct {
	outcome  pollOutcome
	tokens   *TokenSet
	err      error
	interval time.Duration
	note     string
}

// PollForAuthorization polls the token endpoint until the user completes the
// browser-side approval. Transport hiccups during an attempt are swallowed and
// polling continues; only structured authorization errors and the 15 minute
// ceiling terminate the flow.
func (d *DeviceAuthorizer) PollForAuthorization(ctx context.Context, code *DeviceCode, clientID string, onProgress ProgressFunc) (*TokenSet, error) {
	if code == nil || code.DeviceCode == "" {
		return nil, fmt.Errorf("copilotgate auth: device code is required")
	}
	progress := onProgress
	if progress == nil {
		progress = func(FlowState, string) {}
	}

	interval := time.Duration(code.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}
	deadline := d.now().Add(pollCeiling)

	for {
		if !d.now().Before(deadline) {
			progress(StateFailed, "authorization timed out")
			return nil, ErrAuthorizationTimeout
		}
		if errSleep := d.sleep(ctx, interval); errSleep != nil {
			progress(StateFailed, "cancelled")
			return nil, errSleep
		}

		step := d.step(ctx, code.DeviceCode, clientID, interval)
		switch step.outcome {
		case pollSucceeded:
			progress(StateSucceeded, "authorization complete")
			return step.tokens, nil
		case pollFailed:
			progress(StateFailed, step.err.Error())
			return nil, step.err
		default:
			interval = step.interval
			progress(StatePolling, step.note)
		}
	}
}

// step performs a single token-endpoint attempt and classifies the response.
// It never sleeps; back-off lives in the caller.
func (d *DeviceAuthorizer) step(ctx context.Context, deviceCode, clientID string, interval time.Duration) pollStep {
	cont := func(note string) pollStep {
		return pollStep{outcome: pollContinue, interval: interval, note: note}
	}

	body, errMarshal := json.Marshal(map[string]string{
		"client_id":   clientID,
		"device_code": deviceCode,
		"grant_type":  deviceGrantType,
	})
	if errMarshal != nil {
		return pollStep{outcome: pollFailed, err: fmt.Errorf("copilotgate auth: marshal poll request: %w", errMarshal)}
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoints.TokenURL, bytes.NewReader(body))
	if errReq != nil {
		return pollStep{outcome: pollFailed, err: fmt.Errorf("copilotgate auth: create poll request: %w", errReq)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, errDo := d.httpClient.Do(req)
	if errDo != nil {
		log.Debugf("device flow: poll attempt transport error, retrying: %v", errDo)
		return cont("waiting for authorization")
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("device flow: close poll response body: %v", errClose)
		}
	}()

	respBody, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		log.Debugf("device flow: poll attempt read error, retrying: %v", errRead)
		return cont("waiting for authorization")
	}

	if errCode := gjson.GetBytes(respBody, "error").String(); errCode != "" {
		switch errCode {
		case "authorization_pending":
			return cont("waiting for authorization")
		case "slow_down":
			step := cont("server asked to slow down")
			step.interval = interval + slowDownIncrement
			return step
		case "expired_token":
			return pollStep{outcome: pollFailed, err: ErrDeviceCodeExpired}
		case "access_denied":
			return pollStep{outcome: pollFailed, err: ErrAuthorizationDenied}
		default:
			return pollStep{outcome: pollFailed, err: &AuthServerError{
				Code:        errCode,
				Description: gjson.GetBytes(respBody, "error_description").String(),
				Status:      resp.StatusCode,
			}}
		}
	}

	var tokens TokenSet
	if errDecode := json.Unmarshal(respBody, &tokens); errDecode != nil {
		log.Debugf("device flow: poll attempt malformed body, retrying: %v", errDecode)
		return cont("waiting for authorization")
	}
	if tokens.AccessToken == "" {
		return cont("waiting for authorization")
	}
	return pollStep{outcome: pollSucceeded, tokens: &tokens}
}

// serverError builds an AuthServerError out of a non-success response body,
// picking up the server's error code and description when present.
func serverError(status int, body []byte) *AuthServerError {
	return &AuthServerError{
		Code:        gjson.GetBytes(body, "error").String(),
		Description: gjson.GetBytes(body, "error_description").String(),
		Status:      status,
	}
}
