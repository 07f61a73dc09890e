package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"pushdispatch/internal/config"
	"pushdispatch/internal/types"
)

const (
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	jwtBearerGrant    = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	messagingScope    = "https://www.googleapis.com/auth/firebase.messaging"
	assertionLifetime = time.Hour

	// Cached tokens are treated as expired this long before their actual
	// expiry so a token never goes stale mid-send.
	expiryMargin = 60 * time.Second
)

// TokenSource exchanges a service-account key for short-lived OAuth2 access
// tokens using the JWT-bearer grant, and caches the result across runs.
// Concurrent refreshes are collapsed into a single upstream exchange.
type TokenSource struct {
	base     *BaseClient
	clock    types.Clock
	logger   types.Logger
	tokenURL string

	clientEmail  string
	privateKeyID string
	privateKey   types.SecretString

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenSource creates a TokenSource from the messaging configuration.
func NewTokenSource(httpClient *http.Client, cfg config.FCMConfig, clock types.Clock, logger types.Logger) *TokenSource {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = googleTokenURL
	}

	base := NewBaseClient(
		httpClient,
		"google-token",
		RetryPolicy{
			MaxRetries: 1,
			MinWait:    500 * time.Millisecond,
			MaxWait:    3 * time.Second,
		},
		"PushDispatch/1.0",
	)

	return &TokenSource{
		base:         base,
		clock:        clock,
		logger:       logger,
		tokenURL:     tokenURL,
		clientEmail:  cfg.ClientEmail,
		privateKeyID: cfg.PrivateKeyID,
		privateKey:   cfg.PrivateKey,
	}
}

// Token returns a valid access token, refreshing it against the token
// endpoint when the cached one is missing or within the expiry margin.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.clock.Now().Before(s.expiresAt) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	result, err, _ := s.group.Do("token", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops the cached token so the next Token call refreshes.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.expiresAt = time.Time{}
	s.mu.Unlock()
}

func (s *TokenSource) refresh(ctx context.Context) (string, error) {
	// Another waiter may have refreshed while this call queued on the group.
	s.mu.Lock()
	if s.token != "" && s.clock.Now().Before(s.expiresAt) {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	assertion, err := s.signAssertion()
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("grant_type", jwtBearerGrant)
	params.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(params.Encode()))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create token exchange request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.base.Do(req)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeCredentialExchange,
			"token exchange request failed",
			err,
		)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.NewAppError(
			types.ErrCodeCredentialExchange,
			fmt.Sprintf("token endpoint returned %d", resp.StatusCode),
			nil,
		)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", types.NewAppError(
			types.ErrCodeCredentialExchange,
			"failed to decode token response",
			err,
		)
	}
	if tokenResp.AccessToken == "" {
		return "", types.NewAppError(
			types.ErrCodeCredentialExchange,
			"token endpoint returned empty access token",
			nil,
		)
	}

	expiresAt := s.clock.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - expiryMargin)

	s.mu.Lock()
	s.token = tokenResp.AccessToken
	s.expiresAt = expiresAt
	s.mu.Unlock()

	s.logger.Info("refreshed messaging access token", "expires_at", expiresAt)
	return tokenResp.AccessToken, nil
}

// signAssertion builds and signs the RS256 JWT-bearer assertion from the
// service-account key material.
func (s *TokenSource) signAssertion() (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalizePEM(s.privateKey.Unmask())))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeCredentialExchange,
			"failed to parse service account private key",
			err,
		)
	}

	now := s.clock.Now()
	claims := jwt.MapClaims{
		"iss":   s.clientEmail,
		"scope": messagingScope,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionLifetime).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.privateKeyID != "" {
		token.Header["kid"] = s.privateKeyID
	}

	signed, err := token.SignedString(key)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeCredentialExchange,
			"failed to sign token assertion",
			err,
		)
	}
	return signed, nil
}

// normalizePEM converts escaped newlines to real ones. Key material injected
// through environment variables often arrives with literal "\n" sequences.
func normalizePEM(pem string) string {
	return strings.ReplaceAll(pem, `\n`, "\n")
}
