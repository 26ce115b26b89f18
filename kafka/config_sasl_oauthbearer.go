package kafka

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v2"
	"golang.org/x/sync/singleflight"
)

type OAuthBearerConfig struct {
	TokenEndpoint string `koanf:"tokenEndpoint"`
	ClientID      string `koanf:"clientId"`
	ClientSecret  string `koanf:"clientSecret"`
	Scope         string `koanf:"scope"`

	// TokenExpiryMargin is subtracted from the token lifetime the identity provider reports, so that a cached token
	// is renewed before the broker rejects it.
	TokenExpiryMargin time.Duration `koanf:"tokenExpiryMargin"`
}

func (c *OAuthBearerConfig) SetDefaults() {
	c.TokenExpiryMargin = 30 * time.Second
}

func (c *OAuthBearerConfig) Validate() error {
	if c.TokenEndpoint == "" {
		return NewConfigurationError("the `tokenEndpoint` (url) setting is required for OAUTHBEARER")
	}
	if c.ClientID == "" {
		return NewConfigurationError("the `clientId` setting is required for OAUTHBEARER")
	}
	if c.ClientSecret == "" {
		return NewConfigurationError("the `clientSecret` setting is required for OAUTHBEARER")
	}
	return nil
}

const oauthTokenCacheKey = "access_token"

// oauthTokenSource fetches client credential tokens and keeps them until they are about to expire. Concurrent
// SASL handshakes against multiple brokers share a single in flight token request.
type oauthTokenSource struct {
	cfg            OAuthBearerConfig
	httpClient     *http.Client
	requestTimeout time.Duration

	cache        *ttlcache.Cache
	requestGroup singleflight.Group
}

func newOAuthTokenSource(cfg OAuthBearerConfig, requestTimeout time.Duration) *oauthTokenSource {
	cache := ttlcache.NewCache()
	cache.SkipTTLExtensionOnHit(true)

	return &oauthTokenSource{
		cfg:            cfg,
		httpClient:     &http.Client{Timeout: requestTimeout},
		requestTimeout: requestTimeout,
		cache:          cache,
	}
}

func (s *oauthTokenSource) Token(ctx context.Context) (string, error) {
	if cached, err := s.cache.Get(oauthTokenCacheKey); err == nil {
		return cached.(string), nil
	}

	// The flight is shared by all waiting handshakes, so it is bound to the request timeout only and not to the
	// context of the caller that started it.
	resCh := s.requestGroup.DoChan(oauthTokenCacheKey, func() (interface{}, error) {
		requestCtx, cancel := context.WithTimeout(context.Background(), s.requestTimeout)
		defer cancel()

		token, expiresIn, err := s.requestToken(requestCtx)
		if err != nil {
			return nil, err
		}
		if ttl := expiresIn - s.cfg.TokenExpiryMargin; ttl > 0 {
			_ = s.cache.SetWithTTL(oauthTokenCacheKey, token, ttl)
		}
		return token, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resCh:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// requestToken runs the client credentials flow against the configured token endpoint. The returned duration is
// zero if the identity provider didn't report an expiry.
func (s *oauthTokenSource) requestToken(ctx context.Context) (string, time.Duration, error) {
	authHeaderValue := base64.StdEncoding.EncodeToString([]byte(s.cfg.ClientID + ":" + s.cfg.ClientSecret))

	queryParams := url.Values{
		"grant_type": []string{"client_credentials"},
	}
	if s.cfg.Scope != "" {
		queryParams.Set("scope", s.cfg.Scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenEndpoint, strings.NewReader(queryParams.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+authHeaderValue)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("token request failed with status code %d", resp.StatusCode)
	}

	var tokenResponse struct {
		AccessToken string  `json:"access_token"`
		ExpiresIn   float64 `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResponse); err != nil {
		return "", 0, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResponse.AccessToken == "" {
		return "", 0, fmt.Errorf("access_token not found in token response")
	}

	return tokenResponse.AccessToken, time.Duration(tokenResponse.ExpiresIn * float64(time.Second)), nil
}

func (s *oauthTokenSource) Close() {
	_ = s.cache.Close()
}
