package openclaw

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"opengoat/internal/authsession"
	"opengoat/internal/logger"
)

// RequestFrame is an outbound JSON-RPC-over-WebSocket request.
type RequestFrame struct {
	Type   string      `json:"type"`
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// ResponseFrame is an inbound reply correlated to a RequestFrame by ID.
type ResponseFrame struct {
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// EventFrame is an inbound out-of-band push: connect challenges, ticks,
// and runtime-log lines all arrive shaped like this.
type EventFrame struct {
	Event   string          `json:"event"`
	Seq     *int            `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message) }

// ConnectParams is sent in response to a connect.challenge event,
// signing the device identity so the gateway trusts this client.
type ConnectParams struct {
	DeviceID  string `json:"deviceId"`
	Token     string `json:"token,omitempty"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

// GatewayConfig describes how to reach an OpenClaw gateway over WS.
// Persisted named profiles of this shape live in the ambient
// GatewayProfileRepo (internal/database).
type GatewayConfig struct {
	Name     string
	URL      string
	Token    string
	DeviceID string
}

// GWClient is a reconnecting JSON-RPC-over-WebSocket client to the
// OpenClaw gateway. Requests correlate to responses via a UUID id and
// a buffered channel registered per in-flight request; event frames
// (connect.challenge, tick, runtime-log lines) are delivered to
// OnEvent.
type GWClient struct {
	cfg     GatewayConfig
	authMgr *authsession.Manager

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan ResponseFrame

	OnEvent func(EventFrame)

	restartThreshold int
	failedHealth     int

	stopCh chan struct{}
}

// NewGWClient builds a client against cfg. authMgr is optional: when
// set, the connect handshake carries a signed JWT in
// ConnectParams.Token alongside the plain SHA-256 signature over device
// id, nonce and token, so a gateway
// that trusts OpenGoat's signing key can skip re-deriving the shared
// secret per device.
func NewGWClient(cfg GatewayConfig, authMgr *authsession.Manager) *GWClient {
	return &GWClient{
		cfg:              cfg,
		authMgr:          authMgr,
		pending:          make(map[string]chan ResponseFrame),
		restartThreshold: 3,
		stopCh:           make(chan struct{}),
	}
}

// Connect dials the gateway and starts the background reconnect loop.
// It returns once the first attempt settles; later reconnects happen
// in the background with exponential backoff.
func (c *GWClient) Connect(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.reconnectLoop(ctx)
	return nil
}

func (c *GWClient) dial(ctx context.Context) error {
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial openclaw gateway: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop()
	return nil
}

func (c *GWClient) reconnectLoop(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			time.Sleep(time.Second)
			continue
		}

		logger.OpenClaw.Warn().Dur("backoff", backoff).Msg("reconnecting to openclaw gateway")
		if err := c.dial(ctx); err != nil {
			logger.OpenClaw.Error().Err(err).Msg("openclaw gateway reconnect failed")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second
	}
}

func (c *GWClient) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.OpenClaw.Warn().Err(err).Msg("openclaw gateway connection lost")
			c.mu.Lock()
			c.conn = nil
			c.mu.Unlock()
			conn.Close()
			return
		}

		var resp ResponseFrame
		if err := json.Unmarshal(data, &resp); err == nil && resp.ID != "" {
			c.mu.Lock()
			ch, ok := c.pending[resp.ID]
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
			continue
		}

		var evt EventFrame
		if err := json.Unmarshal(data, &evt); err == nil && evt.Event != "" {
			c.handleEvent(evt)
		}
	}
}

func (c *GWClient) handleEvent(evt EventFrame) {
	switch evt.Event {
	case "connect.challenge":
		var challenge struct {
			Nonce string `json:"nonce"`
		}
		_ = json.Unmarshal(evt.Payload, &challenge)
		params := c.signConnect(challenge.Nonce)
		_ = c.send(RequestFrame{Type: "req", ID: uuid.NewString(), Method: "connect", Params: params})
	case "tick":
		c.failedHealth = 0
	}
	if c.OnEvent != nil {
		c.OnEvent(evt)
	}
}

// signConnect signs the device identity for the connect handshake.
func (c *GWClient) signConnect(nonce string) ConnectParams {
	if nonce == "" {
		nonce = randomNonce()
	}
	sum := sha256.Sum256([]byte(c.cfg.DeviceID + nonce + c.cfg.Token))
	params := ConnectParams{
		DeviceID:  c.cfg.DeviceID,
		Signature: hex.EncodeToString(sum[:]),
		Nonce:     nonce,
	}
	if c.authMgr != nil {
		if tok, err := c.authMgr.IssueGatewayConnectToken(c.cfg.DeviceID); err == nil {
			params.Token = tok
		}
	}
	return params
}

func randomNonce() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func (c *GWClient) send(frame RequestFrame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("openclaw gateway not connected")
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Call sends a JSON-RPC request and blocks for the correlated response
// or ctx cancellation.
func (c *GWClient) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan ResponseFrame, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(RequestFrame{Type: "req", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// HealthCheck pings the gateway and, after restartThreshold
// consecutive failures, force-closes the connection so the reconnect
// loop re-dials from scratch.
func (c *GWClient) HealthCheck(ctx context.Context) bool {
	_, err := c.Call(ctx, "ping", map[string]string{})
	if err == nil {
		c.failedHealth = 0
		return true
	}
	c.failedHealth++
	logger.OpenClaw.Warn().Err(err).Int("consecutive_failures", c.failedHealth).Msg("openclaw gateway health check failed")
	if c.failedHealth >= c.restartThreshold {
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
		c.failedHealth = 0
	}
	return false
}

func (c *GWClient) Close() error {
	close(c.stopCh)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// DeviceIdentity derives a stable device id for this host, used as the
// gateway connect handshake identity when none is configured.
func DeviceIdentity() string {
	if id := strings.TrimSpace(os.Getenv("OPENGOAT_DEVICE_ID")); id != "" {
		return id
	}
	host, err := os.Hostname()
	if err != nil {
		host = "opengoat-host"
	}
	sum := sha256.Sum256([]byte(host))
	return "opengoat-" + hex.EncodeToString(sum[:8])
}
