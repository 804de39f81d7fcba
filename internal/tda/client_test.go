package tda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/pkg/config"
	"github.com/quantbridge/tda/pkg/httputil"
	"github.com/quantbridge/tda/pkg/logger"
	"github.com/quantbridge/tda/pkg/ratelimit"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.TDAConfig{
		ConsumerKey:  "test-key",
		RefreshToken: "test-refresh",
		AccountID:    "123456",
		BaseURL:      server.URL,
		TokenDir:     t.TempDir(),
	}

	log := logger.NewNop()
	client := NewClient(cfg, httputil.New(log).DisableRetry(), ratelimit.NopGate{}, log)
	client.retryBackoff = 0
	return client, server
}

func tokenHandler(refreshes *int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(refreshes, 1)
		_ = json.NewEncoder(w).Encode(tokenResponse{
			AccessToken: "fresh-token",
			ExpiresIn:   1800,
		})
	}
}

func TestExecuteRefreshesExpiredToken(t *testing.T) {
	var refreshes int64
	var orderCalls int64

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", tokenHandler(&refreshes))
	mux.HandleFunc("/accounts/123456/orders", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&orderCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"The access token being passed has expired or is invalid."}`))
			return
		}
		assert.Equal(t, "Bearer fresh-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[]`))
	})

	client, _ := newTestClient(t, mux)

	orders, err := client.GetOrders(context.Background(), "123456")
	require.NoError(t, err)
	assert.Empty(t, orders)

	// One refresh for the initial token, one after the expiry rejection.
	assert.Equal(t, int64(2), atomic.LoadInt64(&refreshes))
	assert.Equal(t, int64(2), atomic.LoadInt64(&orderCalls))
}

func TestExecuteAPIErrorDegrades(t *testing.T) {
	var refreshes int64

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", tokenHandler(&refreshes))
	mux.HandleFunc("/accounts/123456/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Order validation failed"}`))
	})

	client, _ := newTestClient(t, mux)

	var messages []contracts.BrokerageMessage
	client.OnMessage(func(msg contracts.BrokerageMessage) {
		messages = append(messages, msg)
	})

	strategy := &OrderStrategy{OrderType: OrderTypeMarket}
	brokerID, err := client.PlaceOrder(context.Background(), "123456", strategy)

	// A rejection is not a transport error: empty id, nil error, one message.
	require.NoError(t, err)
	assert.Empty(t, brokerID)
	require.Len(t, messages, 1)
	assert.Equal(t, contracts.MessageTypeError, messages[0].Type)
	assert.Equal(t, "400", messages[0].Code)
	assert.Contains(t, messages[0].Message, "Order validation failed")
}

func TestExecuteTransportFailureReturnsError(t *testing.T) {
	var refreshes int64

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", tokenHandler(&refreshes))

	client, server := newTestClient(t, mux)
	client.maxAttempts = 2
	server.Close()

	_, err := client.GetOrders(context.Background(), "123456")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}

func TestDecodeBodyRootUnwrap(t *testing.T) {
	client, _ := newTestClient(t, http.NewServeMux())

	t.Run("unwraps named root", func(t *testing.T) {
		var account SecuritiesAccount
		client.decodeBody([]byte(`{"securitiesAccount":{"accountId":"123456","type":"MARGIN"}}`), "securitiesAccount", &account)
		assert.Equal(t, "123456", account.AccountID)
	})

	t.Run("missing root leaves zero value", func(t *testing.T) {
		var account SecuritiesAccount
		client.decodeBody([]byte(`{"somethingElse":{}}`), "securitiesAccount", &account)
		assert.Empty(t, account.AccountID)
	})

	t.Run("null root leaves zero value", func(t *testing.T) {
		var account SecuritiesAccount
		client.decodeBody([]byte(`{"securitiesAccount":null}`), "securitiesAccount", &account)
		assert.Empty(t, account.AccountID)
	})

	t.Run("malformed body swallowed", func(t *testing.T) {
		var account SecuritiesAccount
		client.decodeBody([]byte(`not json`), "securitiesAccount", &account)
		assert.Empty(t, account.AccountID)
	})
}

func TestPlaceOrderReadsLocationHeader(t *testing.T) {
	var refreshes int64

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", tokenHandler(&refreshes))
	mux.HandleFunc("/accounts/123456/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Location", "https://api.example.com/v1/accounts/123456/orders/987654321")
		w.WriteHeader(http.StatusCreated)
	})

	client, _ := newTestClient(t, mux)

	brokerID, err := client.PlaceOrder(context.Background(), "123456", &OrderStrategy{OrderType: OrderTypeLimit})
	require.NoError(t, err)
	assert.Equal(t, "987654321", brokerID)
}

func TestOrderIDFromLocation(t *testing.T) {
	assert.Equal(t, "42", orderIDFromLocation("https://x/orders/42"))
	assert.Equal(t, "", orderIDFromLocation(""))
	assert.Equal(t, "", orderIDFromLocation("https://x/orders/"))
	assert.Equal(t, "", orderIDFromLocation("no-slashes"))
}

func TestIsExpiredTokenBody(t *testing.T) {
	assert.True(t, isExpiredTokenBody([]byte(`{"error":"The Access Token has expired"}`)))
	assert.False(t, isExpiredTokenBody([]byte(`{"error":"Order validation failed"}`)))
	assert.False(t, isExpiredTokenBody([]byte(`{"error":"token expired"}`)))
}
