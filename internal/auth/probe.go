package auth

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shariqriazz/copilotgate/internal/jsonutil"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"
)

const (
	probeChatPath = "/chat/completions"
	probeModel    = "gpt-4o-mini"
)

// probePayload builds the minimal chat-style request used to verify access.
// The body is intentionally tiny; only the response status matters.
func probePayload() []byte {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "model", probeModel)
	if raw, ok := jsonutil.RawValue([]map[string]string{{"role": "user", "content": "ping"}}); ok {
		body, _ = sjson.SetRawBytes(body, "messages", raw)
	}
	body, _ = sjson.SetBytes(body, "max_tokens", 1)
	return body
}

// ProbeAccess sends a bearer-authenticated probe request to the provider API
// and reports whether the token is accepted by the authorization layer.
// Only 401 and 403 mean "no access"; any other status, including
// application-level 400s, means the token itself was accepted.
func ProbeAccess(ctx context.Context, apiBaseURL, accessToken string, httpClient *http.Client) (bool, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	url := strings.TrimSuffix(apiBaseURL, "/") + probeChatPath
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(probePayload()))
	if errReq != nil {
		return false, &NetworkError{Op: "access probe", Err: errReq}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, errDo := httpClient.Do(req)
	if errDo != nil {
		return false, &NetworkError{Op: "access probe", Err: errDo}
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("access probe: close response body: %v", errClose)
		}
	}()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false, nil
	}
	return true, nil
}
