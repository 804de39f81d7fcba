package tda

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/quantbridge/tda/internal/contracts"
	"github.com/quantbridge/tda/pkg/config"
	"github.com/quantbridge/tda/pkg/httputil"
	"github.com/quantbridge/tda/pkg/logger"
	"github.com/quantbridge/tda/pkg/ratelimit"
)

const (
	defaultMaxAttempts  = 10
	defaultRetryBackoff = 3 * time.Second
)

// MessageFunc receives brokerage messages surfaced by the client.
type MessageFunc func(contracts.BrokerageMessage)

// Client handles communication with the TD Ameritrade REST API.
// SSOT: broker REST calls are made from this client only.
type Client struct {
	cfg    config.TDAConfig
	http   *httputil.Client
	gate   ratelimit.Gate
	logger *logger.Logger

	onMessage MessageFunc

	// mu serializes every REST call and guards the token session. At most
	// one in-flight broker call per client instance.
	mu           sync.Mutex
	session      tokenSession
	refreshToken string

	maxAttempts  int
	retryBackoff time.Duration
}

// NewClient creates a new TD Ameritrade API client. The gate throttles
// market-data calls only; order calls bypass it.
func NewClient(cfg config.TDAConfig, httpClient *httputil.Client, gate ratelimit.Gate, log *logger.Logger) *Client {
	c := &Client{
		cfg:          cfg,
		http:         httpClient,
		gate:         gate,
		logger:       log,
		session:      tokenSession{lifespan: accessTokenLifespan},
		refreshToken: cfg.RefreshToken,
		maxAttempts:  defaultMaxAttempts,
		retryBackoff: defaultRetryBackoff,
	}
	c.loadSavedTokens()
	return c
}

// OnMessage registers the brokerage message callback.
func (c *Client) OnMessage(fn MessageFunc) {
	c.onMessage = fn
}

// AccountID returns the configured account id.
func (c *Client) AccountID() string {
	return c.cfg.AccountID
}

// restRequest describes one REST call.
type restRequest struct {
	method string
	path   string // relative to the API base URL
	query  url.Values
	body   interface{}
	root   string // non-empty: unwrap this property before decoding
	gated  bool   // subject to the market-data rate gate
}

// execute runs a REST call with bearer injection and a bounded retry loop
// shared by transient failures and token expiry. Returns ok=false when the
// broker rejected the call at API level; the rejection has already been
// surfaced as a brokerage message and out is left at its zero value.
func (c *Client) execute(ctx context.Context, req restRequest, out interface{}) (http.Header, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.gated {
		if err := c.gate.WaitToProceed(ctx); err != nil {
			return nil, false, err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, false, ctx.Err()
			case <-time.After(c.retryBackoff):
			}
		}

		token, err := c.tokenLocked(ctx)
		if err != nil {
			lastErr = err
			c.logger.WithError(err).WithField("attempt", attempt).Warn("Token acquisition failed")
			continue
		}

		resp, err := c.send(ctx, req, token)
		if err != nil {
			lastErr = err
			c.logger.WithError(err).WithFields(map[string]interface{}{
				"method":  req.method,
				"path":    req.path,
				"attempt": attempt,
			}).Warn("Broker request failed")
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out != nil {
				c.decodeBody(body, req.root, out)
			}
			return resp.Header, true, nil
		}

		if isExpiredTokenBody(body) {
			c.logger.WithField("attempt", attempt).Warn("Access token reported expired, clearing cached token")
			c.session.invalidate()
			lastErr = fmt.Errorf("access token expired (status %d)", resp.StatusCode)
			continue
		}

		// API-level rejection: surface a message, degrade to an empty result.
		c.emitAPIError(resp.StatusCode, body, req)
		return resp.Header, false, nil
	}

	return nil, false, fmt.Errorf("%s %s failed after %d attempts: %w", req.method, req.path, c.maxAttempts, lastErr)
}

// send issues one HTTP request with the bearer token attached.
func (c *Client) send(ctx context.Context, req restRequest, token string) (*http.Response, error) {
	u := c.cfg.BaseURL + req.path
	if len(req.query) > 0 {
		u += "?" + req.query.Encode()
	}

	var bodyReader io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+token)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return c.http.Do(httpReq)
}

// decodeBody deserializes a successful response. When root is set, the body
// is decoded generically first and the named property extracted; failures on
// this path are logged and swallowed, leaving out at its zero value.
func (c *Client) decodeBody(data []byte, root string, out interface{}) {
	if root == "" {
		if err := json.Unmarshal(data, out); err != nil {
			c.logger.WithError(err).Warn("Failed to decode broker response")
		}
		return
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logger.WithError(err).WithField("root", root).Warn("Failed to decode broker envelope")
		return
	}

	raw, ok := envelope[root]
	if !ok || string(raw) == "null" {
		return
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.WithError(err).WithField("root", root).Warn("Failed to decode unwrapped broker payload")
	}
}

// isExpiredTokenBody matches the broker's expired-token rejection text.
func isExpiredTokenBody(body []byte) bool {
	lower := bytes.ToLower(body)
	return bytes.Contains(lower, []byte("access token")) && bytes.Contains(lower, []byte("expired"))
}

// emitAPIError decodes a structured error body when present and raises a
// brokerage message event.
func (c *Client) emitAPIError(status int, body []byte, req restRequest) {
	var apiErr ErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
		if len(msg) > 256 {
			msg = msg[:256]
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"method": req.method,
		"path":   req.path,
		"status": status,
		"error":  msg,
	}).Error("Broker API rejection")

	c.emit(contracts.MessageTypeError, strconv.Itoa(status), msg)
}

func (c *Client) emit(t contracts.MessageType, code, msg string) {
	if c.onMessage == nil {
		return
	}
	c.onMessage(contracts.BrokerageMessage{
		Type:    t,
		Code:    code,
		Message: msg,
		Time:    time.Now(),
	})
}
