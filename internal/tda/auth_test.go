package tda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbridge/tda/pkg/config"
	"github.com/quantbridge/tda/pkg/httputil"
	"github.com/quantbridge/tda/pkg/logger"
	"github.com/quantbridge/tda/pkg/ratelimit"
)

func TestGetSignInURL(t *testing.T) {
	want := "https://auth.tdameritrade.com/auth?response_type=code&redirect_uri=http%3a%2f%2flocalhost&client_id=MYKEY%40AMER.OAUTHAP"
	assert.Equal(t, want, GetSignInURL("MYKEY"))
}

func TestExchangeAuthCodePersistsTokens(t *testing.T) {
	var gotForm map[string][]string

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotForm = r.PostForm
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiresIn:    1800,
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	tokenDir := t.TempDir()
	cfg := config.TDAConfig{
		ConsumerKey: "MYKEY",
		CallbackURL: "http://localhost",
		BaseURL:     server.URL,
		TokenDir:    tokenDir,
	}

	log := logger.NewNop()
	client := NewClient(cfg, httputil.New(log).DisableRetry(), ratelimit.NopGate{}, log)

	pair, err := client.ExchangeAuthCode(context.Background(), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "new-access", pair.AccessToken)
	assert.Equal(t, "new-refresh", pair.RefreshToken)

	assert.Equal(t, []string{"authorization_code"}, gotForm["grant_type"])
	assert.Equal(t, []string{"offline"}, gotForm["access_type"])
	assert.Equal(t, []string{"MYKEY@AMER.OAUTHAP"}, gotForm["client_id"])
	assert.Equal(t, []string{"the-code"}, gotForm["code"])

	// Tokens were written to disk.
	data, err := os.ReadFile(filepath.Join(tokenDir, tokenFileName))
	require.NoError(t, err)

	var saved TokenPair
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, "new-refresh", saved.RefreshToken)
}

func TestLoadSavedTokensConfigRefreshWins(t *testing.T) {
	tokenDir := t.TempDir()

	saved := TokenPair{AccessToken: "saved-access", RefreshToken: "saved-refresh"}
	data, err := json.Marshal(saved)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(tokenDir, tokenFileName), data, 0o600))

	cfg := config.TDAConfig{
		ConsumerKey:  "MYKEY",
		RefreshToken: "configured-refresh",
		TokenDir:     tokenDir,
	}

	log := logger.NewNop()
	client := NewClient(cfg, httputil.New(log), ratelimit.NopGate{}, log)

	assert.Equal(t, "configured-refresh", client.refreshToken)
}

func TestLoadSavedTokensFallsBackToFile(t *testing.T) {
	tokenDir := t.TempDir()

	saved := TokenPair{AccessToken: "saved-access", RefreshToken: "saved-refresh"}
	data, err := json.Marshal(saved)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(tokenDir, tokenFileName), data, 0o600))

	cfg := config.TDAConfig{
		ConsumerKey: "MYKEY",
		TokenDir:    tokenDir,
	}

	log := logger.NewNop()
	client := NewClient(cfg, httputil.New(log), ratelimit.NopGate{}, log)

	assert.Equal(t, "saved-refresh", client.refreshToken)
}

func TestTokenSessionValidity(t *testing.T) {
	session := tokenSession{lifespan: accessTokenLifespan}
	assert.False(t, session.valid())

	session.accessToken = "tok"
	assert.False(t, session.valid(), "zero obtainedAt means expired")

	session.obtainedAt = time.Now()
	assert.True(t, session.valid())

	session.invalidate()
	assert.False(t, session.valid())
}
