package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	phonePeTokenSkew        = 60 * time.Second
	phonePeDefaultTokenTTL  = 15 * time.Minute
	phonePeDefaultTokenType = "O-Bearer"
)

type phonePeTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
	ExpiresIn   int64  `json:"expires_in"`
}

// phonePeTokenSource caches the client-credentials access token until shortly before expiry.
type phonePeTokenSource struct {
	authURL       string
	clientID      string
	clientSecret  string
	clientVersion string
	http          HTTPDoer
	clock         func() time.Time

	mu        sync.Mutex
	header    string
	expiresAt time.Time
}

// Token returns a ready-to-send Authorization header value.
func (s *phonePeTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if s.header != "" && now.Add(phonePeTokenSkew).Before(s.expiresAt) {
		return s.header, nil
	}

	header, expiresAt, err := s.fetch(ctx, now)
	if err != nil {
		return "", err
	}
	s.header = header
	s.expiresAt = expiresAt
	return header, nil
}

// Invalidate drops the cached token so the next call fetches a fresh one.
func (s *phonePeTokenSource) Invalidate() {
	s.mu.Lock()
	s.header = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

func (s *phonePeTokenSource) fetch(ctx context.Context, now time.Time) (string, time.Time, error) {
	form := url.Values{}
	form.Set("client_id", s.clientID)
	form.Set("client_version", s.clientVersion)
	form.Set("client_secret", s.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, &GatewayError{Op: "fetch token", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return "", time.Time{}, &GatewayError{Op: "fetch token", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, phonePeMaxResponseBytes))
	if err != nil {
		return "", time.Time{}, &GatewayError{Op: "fetch token", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, newGatewayError("fetch token", resp.StatusCode, data)
	}

	var body phonePeTokenResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return "", time.Time{}, &GatewayError{Op: "fetch token", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	token := strings.TrimSpace(body.AccessToken)
	if token == "" {
		return "", time.Time{}, &GatewayError{Op: "fetch token", StatusCode: resp.StatusCode, Message: "empty access token"}
	}

	tokenType := strings.TrimSpace(body.TokenType)
	if tokenType == "" {
		tokenType = phonePeDefaultTokenType
	}

	var expiresAt time.Time
	switch {
	case body.ExpiresAt > 0:
		expiresAt = time.Unix(body.ExpiresAt, 0).UTC()
	case body.ExpiresIn > 0:
		expiresAt = now.Add(time.Duration(body.ExpiresIn) * time.Second)
	default:
		expiresAt = now.Add(phonePeDefaultTokenTTL)
	}

	return tokenType + " " + token, expiresAt, nil
}
