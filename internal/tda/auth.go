package tda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	// Access tokens are issued with a 30 minute lifespan.
	accessTokenLifespan = 30 * time.Minute

	tokenFileName = "tda-tokens.json"

	oauthClientSuffix = "@AMER.OAUTHAP"
)

// GetSignInURL returns the browser URL a user opens to authorize the app and
// obtain the initial authorization code.
func GetSignInURL(consumerKey string) string {
	return "https://auth.tdameritrade.com/auth?response_type=code&redirect_uri=http%3a%2f%2flocalhost&client_id=" + consumerKey + "%40AMER.OAUTHAP"
}

// TokenPair is the persisted OAuth state.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ObtainedAt   time.Time `json:"obtained_at"`
}

// tokenSession is the cached bearer token plus its creation time. Guarded by
// the client's REST mutex.
type tokenSession struct {
	accessToken string
	obtainedAt  time.Time
	lifespan    time.Duration
}

func (s *tokenSession) valid() bool {
	return s.accessToken != "" && time.Since(s.obtainedAt) < s.lifespan
}

func (s *tokenSession) invalidate() {
	s.accessToken = ""
}

// tokenResponse is the oauth2/token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// ExchangeAuthCode trades an authorization code for an access/refresh token
// pair and persists it.
func (c *Client) ExchangeAuthCode(ctx context.Context, code string) (*TokenPair, error) {
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"access_type":  {"offline"},
		"code":         {code},
		"client_id":    {c.cfg.ConsumerKey + oauthClientSuffix},
		"redirect_uri": {c.cfg.CallbackURL},
	}

	tok, err := c.postTokenForm(ctx, form)
	if err != nil {
		return nil, fmt.Errorf("authorization code exchange: %w", err)
	}

	pair := &TokenPair{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ObtainedAt:   time.Now(),
	}

	c.mu.Lock()
	c.refreshToken = pair.RefreshToken
	c.session.accessToken = pair.AccessToken
	c.session.obtainedAt = pair.ObtainedAt
	c.mu.Unlock()

	if err := c.saveTokens(pair); err != nil {
		c.logger.WithError(err).Warn("Failed to persist tokens")
	}

	return pair, nil
}

// RefreshAccessToken forces a token refresh regardless of expiry. The token
// keeper calls this ahead of schedule so live trading never waits on a
// refresh mid-call.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.invalidate()
	_, err := c.tokenLocked(ctx)
	return err
}

// tokenLocked returns a valid bearer token, refreshing it when expired.
// Callers must hold c.mu; the refresh blocks all other REST traffic, which
// is acceptable at this call volume.
func (c *Client) tokenLocked(ctx context.Context) (string, error) {
	if c.session.valid() {
		return c.session.accessToken, nil
	}

	if c.refreshToken == "" {
		return "", fmt.Errorf("no refresh token configured, run auth login first")
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {c.refreshToken},
		"client_id":     {c.cfg.ConsumerKey + oauthClientSuffix},
	}

	tok, err := c.postTokenForm(ctx, form)
	if err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}

	c.session.accessToken = tok.AccessToken
	c.session.obtainedAt = time.Now()
	if tok.RefreshToken != "" {
		c.refreshToken = tok.RefreshToken
	}

	c.logger.WithField("expires_in", tok.ExpiresIn).Info("Access token refreshed")

	if err := c.saveTokens(&TokenPair{
		AccessToken:  c.session.accessToken,
		RefreshToken: c.refreshToken,
		ObtainedAt:   c.session.obtainedAt,
	}); err != nil {
		c.logger.WithError(err).Warn("Failed to persist tokens")
	}

	return c.session.accessToken, nil
}

// postTokenForm posts to the oauth2/token endpoint.
func (c *Client) postTokenForm(ctx context.Context, form url.Values) (*tokenResponse, error) {
	resp, err := c.http.PostForm(ctx, c.cfg.BaseURL+"/oauth2/token", form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("token endpoint status %d: %s", resp.StatusCode, apiErr.Error)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}

	return &tok, nil
}

// saveTokens writes the token pair to the configured token directory.
func (c *Client) saveTokens(pair *TokenPair) error {
	if c.cfg.TokenDir == "" {
		return nil
	}

	if err := os.MkdirAll(c.cfg.TokenDir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	data, err := json.MarshalIndent(pair, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(c.cfg.TokenDir, tokenFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}

	return nil
}

// loadSavedTokens restores a previously persisted token pair. The configured
// refresh token wins over the saved one.
func (c *Client) loadSavedTokens() {
	if c.cfg.TokenDir == "" {
		return
	}

	path := filepath.Join(c.cfg.TokenDir, tokenFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}

	var pair TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		c.logger.WithError(err).Warn("Ignoring malformed token file")
		return
	}

	if c.refreshToken == "" {
		c.refreshToken = pair.RefreshToken
	}
	if pair.AccessToken != "" {
		c.session.accessToken = pair.AccessToken
		c.session.obtainedAt = pair.ObtainedAt
	}
}
