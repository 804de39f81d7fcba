package tda

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantbridge/tda/pkg/logger"
)

// Streaming services and commands.
const (
	ServiceAdmin = "ADMIN"
	ServiceQuote = "QUOTE"

	CommandLogin  = "LOGIN"
	CommandLogout = "LOGOUT"
	CommandSubs   = "SUBS"
	CommandUnsubs = "UNSUBS"
)

const (
	handshakeTimeout      = 10 * time.Second
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 30 * time.Second
	maxReconnectAttempts  = 10
)

// ConnState is the streamer lifecycle state.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnected              // control-channel LOGIN acknowledged
	StateStreaming              // at least one SUBS acknowledged
)

// String returns the state name.
func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateStreaming:
		return "streaming"
	}
	return "disconnected"
}

// streamRequest is the outbound control frame envelope.
type streamRequest struct {
	Requests []streamCommand `json:"requests"`
}

type streamCommand struct {
	Service    string            `json:"service"`
	Command    string            `json:"command"`
	RequestID  string            `json:"requestid"`
	Account    string            `json:"account"`
	Source     string            `json:"source"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// inboundEnvelope is an incoming frame, keyed by message class.
type inboundEnvelope struct {
	Response []commandAck      `json:"response,omitempty"`
	Notify   []json.RawMessage `json:"notify,omitempty"`
	Data     []dataBlock       `json:"data,omitempty"`
	Snapshot []dataBlock       `json:"snapshot,omitempty"`
}

type commandAck struct {
	Service   string     `json:"service"`
	Command   string     `json:"command"`
	RequestID string     `json:"requestid"`
	Content   ackContent `json:"content"`
}

type ackContent struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type dataBlock struct {
	Service   string            `json:"service"`
	Command   string            `json:"command"`
	Timestamp int64             `json:"timestamp"`
	Content   []json.RawMessage `json:"content"`
}

// QuoteContent is a level-one quote update. The broker sends only changed
// fields, so everything except the key is optional.
type QuoteContent struct {
	Key         string   `json:"key"`
	BidPrice    *float64 `json:"1,omitempty"`
	AskPrice    *float64 `json:"2,omitempty"`
	LastPrice   *float64 `json:"3,omitempty"`
	BidSize     *float64 `json:"4,omitempty"`
	AskSize     *float64 `json:"5,omitempty"`
	TotalVolume *float64 `json:"8,omitempty"`
	LastSize    *float64 `json:"9,omitempty"`
}

// Streamer handles the TD Ameritrade streaming WebSocket: ADMIN login and
// the market data channel. Subscription bookkeeping lives in the adapter;
// the streamer only moves frames.
type Streamer struct {
	client *Client
	logger *logger.Logger

	conn   *websocket.Conn
	connMu sync.Mutex

	state int32 // ConnState, atomic

	principal *UserPrincipal
	account   PrincipalAccount
	requestID int64

	// Callbacks
	onQuote      func(QuoteContent)
	onError      func(error)
	onConnected  func()
	onDisconnect func()

	// stopped and notifiedDisconnect are guarded by connMu and reset on
	// every successful dial, so Disconnect is idempotent and the disconnect
	// callback fires at most once per connect cycle.
	stopCh             chan struct{}
	stopped            bool
	notifiedDisconnect bool
	wg                 sync.WaitGroup
}

// NewStreamer creates a streamer bound to a REST client, which supplies the
// user principal credentials.
func NewStreamer(client *Client, log *logger.Logger) *Streamer {
	return &Streamer{
		client: client,
		logger: log,
		stopCh: make(chan struct{}),
	}
}

// OnQuote registers the quote content callback.
func (s *Streamer) OnQuote(fn func(QuoteContent)) { s.onQuote = fn }

// OnError registers the stream error callback.
func (s *Streamer) OnError(fn func(error)) { s.onError = fn }

// OnConnected fires after every acknowledged LOGIN, including reconnects.
func (s *Streamer) OnConnected(fn func()) { s.onConnected = fn }

// OnDisconnect fires when the connection drops or is closed.
func (s *Streamer) OnDisconnect(fn func()) { s.onDisconnect = fn }

// State returns the current lifecycle state.
func (s *Streamer) State() ConnState {
	return ConnState(atomic.LoadInt32(&s.state))
}

// IsConnected reports whether the control channel is logged in.
func (s *Streamer) IsConnected() bool {
	return s.State() >= StateConnected
}

func (s *Streamer) setState(state ConnState) {
	atomic.StoreInt32(&s.state, int32(state))
}

// Connect fetches streamer credentials, dials the socket and sends LOGIN.
// The state moves to Connected when the LOGIN ack arrives on the read loop.
func (s *Streamer) Connect(ctx context.Context) error {
	principal, err := s.client.GetUserPrincipals(ctx, "streamerConnectionInfo", "streamerSubscriptionKeys")
	if err != nil {
		return fmt.Errorf("get user principals: %w", err)
	}
	if principal == nil || len(principal.Accounts) == 0 {
		return fmt.Errorf("user principals unavailable")
	}

	s.principal = principal
	s.account = principal.Accounts[0]

	if err := s.dial(ctx); err != nil {
		return fmt.Errorf("streamer dial: %w", err)
	}

	s.wg.Add(1)
	go s.readLoop()

	if err := s.login(ctx); err != nil {
		s.teardown()
		return fmt.Errorf("streamer login: %w", err)
	}

	s.logger.WithField("socket", s.principal.StreamerInfo.StreamerSocketURL).Info("Streamer socket connected, awaiting login ack")
	return nil
}

// dial opens the WebSocket connection.
func (s *Streamer) dial(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	wsURL := "wss://" + s.principal.StreamerInfo.StreamerSocketURL + "/ws"

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}

	s.conn = conn
	s.stopCh = make(chan struct{})
	s.stopped = false
	s.notifiedDisconnect = false
	return nil
}

// login sends the ADMIN LOGIN frame built from the user principal.
func (s *Streamer) login(ctx context.Context) error {
	credential, err := buildCredential(s.principal, s.account)
	if err != nil {
		return err
	}

	return s.SendRequest(ctx, ServiceAdmin, CommandLogin, map[string]string{
		"credential": credential,
		"token":      s.principal.StreamerInfo.Token,
		"version":    "1.0",
	})
}

// buildCredential assembles the LOGIN credential query string from the user
// principal payload.
func buildCredential(p *UserPrincipal, acct PrincipalAccount) (string, error) {
	ts, err := time.Parse("2006-01-02T15:04:05-0700", p.StreamerInfo.TokenTimestamp)
	if err != nil {
		return "", fmt.Errorf("parse token timestamp %q: %w", p.StreamerInfo.TokenTimestamp, err)
	}

	v := url.Values{
		"userid":      {acct.AccountID},
		"token":       {p.StreamerInfo.Token},
		"company":     {acct.Company},
		"segment":     {acct.Segment},
		"cddomain":    {acct.AccountCdDomainID},
		"usergroup":   {p.StreamerInfo.UserGroup},
		"accesslevel": {p.StreamerInfo.AccessLevel},
		"authorized":  {"Y"},
		"timestamp":   {strconv.FormatInt(ts.UnixMilli(), 10)},
		"appid":       {p.StreamerInfo.AppID},
		"acl":         {p.StreamerInfo.ACL},
	}

	return v.Encode(), nil
}

// SendRequest sends one control frame. Fails when the socket is not up yet;
// callers issuing subscriptions before Connect get an error, not a frame.
func (s *Streamer) SendRequest(ctx context.Context, service, command string, params map[string]string) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil || s.principal == nil {
		return fmt.Errorf("streamer not connected")
	}

	id := atomic.AddInt64(&s.requestID, 1)

	cmd := streamCommand{
		Service:    service,
		Command:    command,
		RequestID:  strconv.FormatInt(id, 10),
		Account:    s.account.AccountID,
		Source:     s.principal.StreamerInfo.AppID,
		Parameters: params,
	}

	return s.conn.WriteJSON(streamRequest{Requests: []streamCommand{cmd}})
}

// Disconnect logs out and closes the connection. Safe to call repeatedly
// and before any Connect.
func (s *Streamer) Disconnect() error {
	if s.IsConnected() {
		_ = s.SendRequest(context.Background(), ServiceAdmin, CommandLogout, nil)
	}

	s.teardown()
	s.notifyDisconnect()

	s.logger.Info("Streamer disconnected")
	return nil
}

// teardown stops the read loop, closes the socket and waits for the loop to
// exit. Idempotent per connect cycle.
func (s *Streamer) teardown() {
	s.connMu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	s.wg.Wait()
	s.setState(StateDisconnected)
}

// notifyDisconnect fires the disconnect callback at most once per connect
// cycle, whether the drop came from the read loop or from Disconnect.
func (s *Streamer) notifyDisconnect() {
	s.connMu.Lock()
	if s.notifiedDisconnect {
		s.connMu.Unlock()
		return
	}
	s.notifiedDisconnect = true
	s.connMu.Unlock()

	if s.onDisconnect != nil {
		s.onDisconnect()
	}
}

// readLoop handles incoming frames. Frames are handled synchronously on
// this goroutine; a slow handler stalls subsequent frame delivery.
func (s *Streamer) readLoop() {
	defer s.wg.Done()

	s.connMu.Lock()
	stopCh := s.stopCh
	conn := s.conn
	s.connMu.Unlock()

	if conn == nil {
		return
	}

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			// A planned shutdown closes the socket under us; that read
			// error is not a drop.
			select {
			case <-stopCh:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			if s.onError != nil {
				s.onError(fmt.Errorf("stream read: %w", err))
			}
			s.handleDisconnect()
			return
		}

		s.handleMessage(message)
	}
}

// handleMessage dispatches one inbound frame by its top-level key. Malformed
// frames are logged and dropped, never fatal.
func (s *Streamer) handleMessage(data []byte) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.WithError(err).Warn("Dropping malformed stream frame")
		return
	}

	for _, ack := range env.Response {
		s.handleAck(ack)
	}
	for _, raw := range env.Notify {
		s.handleNotify(raw)
	}
	for _, block := range env.Data {
		s.handleData(block)
	}
	for _, block := range env.Snapshot {
		s.handleData(block)
	}
}

// handleAck processes command acknowledgements and drives the lifecycle
// state machine.
func (s *Streamer) handleAck(ack commandAck) {
	if ack.Content.Code != 0 {
		s.logger.WithFields(map[string]interface{}{
			"service": ack.Service,
			"command": ack.Command,
			"code":    ack.Content.Code,
			"msg":     ack.Content.Msg,
		}).Error("Stream command rejected")
		if s.onError != nil {
			s.onError(fmt.Errorf("stream %s %s rejected: code=%d msg=%s", ack.Service, ack.Command, ack.Content.Code, ack.Content.Msg))
		}
		return
	}

	switch ack.Command {
	case CommandLogin:
		s.setState(StateConnected)
		s.logger.Info("Streamer login acknowledged")
		if s.onConnected != nil {
			s.onConnected()
		}
	case CommandSubs:
		s.setState(StateStreaming)
		s.logger.WithField("service", ack.Service).Debug("Subscription acknowledged")
	case CommandLogout:
		s.logger.Info("Streamer logout acknowledged")
	default:
		s.logger.WithFields(map[string]interface{}{
			"service": ack.Service,
			"command": ack.Command,
		}).Debug("Stream command acknowledged")
	}
}

// handleNotify processes heartbeat and service notifications.
func (s *Streamer) handleNotify(raw json.RawMessage) {
	var heartbeat struct {
		Heartbeat string `json:"heartbeat"`
	}
	if err := json.Unmarshal(raw, &heartbeat); err == nil && heartbeat.Heartbeat != "" {
		s.logger.Debug("Stream heartbeat")
		return
	}

	s.logger.WithField("notify", string(raw)).Warn("Stream service notification")
}

// handleData routes market content by service.
func (s *Streamer) handleData(block dataBlock) {
	switch block.Service {
	case ServiceQuote:
		for _, raw := range block.Content {
			var quote QuoteContent
			if err := json.Unmarshal(raw, &quote); err != nil {
				s.logger.WithError(err).Warn("Dropping malformed quote content")
				continue
			}
			if quote.Key == "" {
				continue
			}
			if s.onQuote != nil {
				s.onQuote(quote)
			}
		}
	default:
		s.logger.WithField("service", block.Service).Debug("Unhandled stream data service")
	}
}

// handleDisconnect handles connection loss detected by the read loop.
func (s *Streamer) handleDisconnect() {
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connMu.Unlock()

	s.setState(StateDisconnected)
	s.notifyDisconnect()
}

// Reconnect re-establishes the socket with exponential backoff. The
// registry owner resubscribes via the OnConnected callback once the new
// LOGIN is acknowledged.
func (s *Streamer) Reconnect(ctx context.Context) error {
	delay := reconnectInitialDelay

	for attempt := 1; attempt <= maxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		s.logger.WithField("attempt", attempt).Info("Attempting streamer reconnection")

		if err := s.Connect(ctx); err != nil {
			s.logger.WithError(err).Warn("Streamer reconnection failed")
			delay *= 2
			if delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		s.logger.Info("Streamer reconnected")
		return nil
	}

	return fmt.Errorf("streamer reconnect: max attempts reached")
}
