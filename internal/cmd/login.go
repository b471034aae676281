// Package cmd implements the gateway's run modes: interactive credential
// setup and serving.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/shariqriazz/copilotgate/internal/auth"
	"github.com/shariqriazz/copilotgate/internal/auth/store"
	"github.com/shariqriazz/copilotgate/internal/config"
	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// LoginOptions captures knobs for the interactive device-flow setup.
type LoginOptions struct {
	NoBrowser bool
}

// Login runs the OAuth2 device-authorization flow end to end and persists the
// resulting credential.
func Login(ctx context.Context, cfg *config.Config, opts *LoginOptions) error {
	if opts == nil {
		opts = &LoginOptions{}
	}
	provider := cfg.Provider
	authorizer := auth.NewDeviceAuthorizer(provider.Endpoints(), nil)

	code, errCode := authorizer.RequestDeviceCode(ctx, provider.ClientID)
	if errCode != nil {
		return fmt.Errorf("request device code: %w", errCode)
	}

	fmt.Printf("\nFirst, copy your one-time code: %s\n", code.UserCode)
	fmt.Printf("Then visit: %s\n\n", code.VerificationURI)
	if !opts.NoBrowser {
		if errOpen := browser.OpenURL(code.VerificationURI); errOpen != nil {
			log.Warnf("failed to open browser automatically: %v", errOpen)
		}
	}
	fmt.Println("Waiting for authorization...")

	tokens, errPoll := authorizer.PollForAuthorization(ctx, code, provider.ClientID, func(state auth.FlowState, message string) {
		log.Debugf("device flow [%s]: %s", state, message)
	})
	if errPoll != nil {
		return errPoll
	}

	cred := &auth.Credential{
		Kind:         auth.KindOAuth,
		ClientID:     provider.ClientID,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    tokens.TokenType,
	}
	if tokens.ExpiresIn > 0 {
		cred.ExpiresAt = time.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second).UnixMilli()
	}

	verifyAndReport(ctx, provider.APIBaseURL, cred.AccessToken)

	if errSave := persistCredential(ctx, cfg, cred); errSave != nil {
		return errSave
	}
	fmt.Println("Authentication successful")
	return nil
}

// LoginPAT prompts for a personal access token with echo disabled, verifies
// it against the provider API, and persists it.
func LoginPAT(ctx context.Context, cfg *config.Config) error {
	fmt.Print("Enter personal access token: ")
	raw, errRead := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if errRead != nil {
		return fmt.Errorf("read token: %w", errRead)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return fmt.Errorf("empty token")
	}

	verifyAndReport(ctx, cfg.Provider.APIBaseURL, token)

	cred := &auth.Credential{
		Kind:        auth.KindPAT,
		AccessToken: token,
		TokenType:   "bearer",
	}
	if errSave := persistCredential(ctx, cfg, cred); errSave != nil {
		return errSave
	}
	fmt.Println("Personal access token saved")
	return nil
}

func verifyAndReport(ctx context.Context, apiBaseURL, token string) {
	ok, errProbe := auth.ProbeAccess(ctx, apiBaseURL, token, nil)
	switch {
	case errProbe != nil:
		log.Warnf("could not verify API access: %v", errProbe)
	case !ok:
		fmt.Fprintln(os.Stderr, "Warning: the token was rejected by the provider API (no access)")
	default:
		fmt.Println("Verified API access")
	}
}

func persistCredential(ctx context.Context, cfg *config.Config, cred *auth.Credential) error {
	credStore := store.Registered()
	if credStore == nil {
		credStore = store.NewFileStore(cfg.AuthDir, cfg.Provider.Name)
	}
	if errSave := credStore.Save(ctx, cred); errSave != nil {
		return fmt.Errorf("save credential: %w", errSave)
	}
	return nil
}
