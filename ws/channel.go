package ws

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"github.com/PulpCattel/jmrpc/core"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/gorilla/websocket"
	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"net"
	"net/http"
	"sync"
	"time"
)

const closeGracePeriod = time.Second

type State int

const (
	Disconnected State = iota
	Connecting
	AuthPending
	Authenticated
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case AuthPending:
		return "auth pending"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

var (
	ErrInvalidState   = errors.New("invalid channel state")
	ErrConcurrentRead = errors.New("notification stream is already being read")
	ErrMalformedFrame = errors.New("malformed notification frame")
)

// MalformedFrameError is returned for a frame that does not decode. It
// matches ErrMalformedFrame and unwraps to the decode error.
type MalformedFrameError struct {
	Frame []byte
	Err   error
}

func (e *MalformedFrameError) Error() string {
	return ErrMalformedFrame.Error() + ": " + e.Err.Error()
}

func (e *MalformedFrameError) Is(target error) bool {
	return target == ErrMalformedFrame
}

func (e *MalformedFrameError) Unwrap() error { return e.Err }

type Config struct {
	TLSConfig      *tls.Config
	ConnectTimeout time.Duration
}

// Channel is the daemon's notification websocket. It is connected once,
// authenticated once with the ws token and then read through a single Stream.
type Channel struct {
	cfg    Config
	mutex  sync.Mutex
	state  State
	conn   *websocket.Conn
	stream *Stream
	log    log.Logger
}

func NewChannel(cfg Config) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.New("component", "ws"),
	}
}

func (c *Channel) State() State {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.state
}

// Connect opens the websocket. On failure the channel returns to
// Disconnected and may be connected again.
func (c *Channel) Connect(ctx context.Context, url string) error {
	c.mutex.Lock()
	if c.state != Disconnected {
		state := c.state
		c.mutex.Unlock()
		return errors.Wrapf(ErrInvalidState, "connect while %s", state)
	}
	c.state = Connecting
	c.mutex.Unlock()

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		NetDialContext:   (&net.Dialer{Timeout: c.cfg.ConnectTimeout}).DialContext,
		TLSClientConfig:  c.cfg.TLSConfig,
		HandshakeTimeout: c.cfg.ConnectTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err != nil {
		if c.state == Connecting {
			c.state = Disconnected
		}
		c.log.Warn("Unable to connect websocket", "url", url, "err", err)
		return &core.TransportError{Op: "connect", URL: url, Err: err}
	}
	if c.state != Connecting {
		conn.Close()
		return errors.Wrapf(ErrInvalidState, "channel %s while connecting", c.state)
	}
	c.conn = conn
	c.log.Debug("Websocket connected", "url", url)
	return nil
}

// Authenticate sends the ws token as the first frame and waits for the
// daemon's acknowledgement. Any other reply fails the channel.
func (c *Channel) Authenticate(ctx context.Context, wsToken string) error {
	c.mutex.Lock()
	if c.state != Connecting || c.conn == nil {
		state := c.state
		c.mutex.Unlock()
		return errors.Wrapf(ErrInvalidState, "authenticate while %s", state)
	}
	conn := c.conn
	c.state = AuthPending
	c.mutex.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	authErr := handshake(conn, wsToken)
	if !stop() {
		authErr = &core.AuthenticationError{Reason: "cancelled", Err: ctx.Err()}
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.state != AuthPending {
		return &core.AuthenticationError{Reason: "channel " + c.state.String() + " during authentication"}
	}
	if authErr != nil {
		c.fail()
		c.log.Warn("Websocket authentication failed", "err", authErr)
		return authErr
	}
	c.state = Authenticated
	c.log.Debug("Websocket authenticated")
	return nil
}

func handshake(conn *websocket.Conn, wsToken string) *core.AuthenticationError {
	if err := conn.WriteMessage(websocket.TextMessage, []byte(wsToken)); err != nil {
		return &core.AuthenticationError{Reason: "send token", Err: err}
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return &core.AuthenticationError{Reason: "await acknowledgement", Err: err}
	}
	var ack types.AuthAck
	if err := json.Unmarshal(data, &ack); err != nil || ack.Type != types.AuthAckType {
		return &core.AuthenticationError{Reason: "unexpected frame before acknowledgement"}
	}
	if !ack.Authenticated {
		reason := ack.Error
		if reason == "" {
			reason = "token rejected"
		}
		return &core.AuthenticationError{Reason: reason}
	}
	return nil
}

// fail drops the connection. Callers hold the mutex.
func (c *Channel) fail() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = Failed
}

// Read returns the notification stream. The stream is created once; later
// calls return the same stream, which keeps reporting its terminal error.
func (c *Channel) Read() (*Stream, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.stream != nil {
		return c.stream, nil
	}
	switch c.state {
	case Authenticated:
	case Closed:
		return &Stream{channel: c, err: &core.ChannelClosedError{Code: websocket.CloseNormalClosure, Text: "channel closed", Reason: core.CloseLocal}}, nil
	case Failed:
		return &Stream{channel: c, err: &core.ChannelClosedError{Code: websocket.CloseAbnormalClosure, Text: "channel failed", Reason: core.CloseAbnormal}}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidState, "read while %s", c.state)
	}
	c.stream = &Stream{channel: c, conn: c.conn}
	return c.stream, nil
}

// Close sends a normal closure frame and drops the connection. Further calls
// are no-ops.
func (c *Channel) Close() error {
	c.mutex.Lock()
	if c.state == Closed {
		c.mutex.Unlock()
		return nil
	}
	c.state = Closed
	conn := c.conn
	c.conn = nil
	c.mutex.Unlock()

	if conn == nil {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGracePeriod)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) && !errors.Is(err, net.ErrClosed) {
		c.log.Debug("Unable to send close frame", "err", err)
	}
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "close websocket")
	}
	c.log.Debug("Websocket closed")
	return nil
}

// terminate classifies the error that ended a read and moves the channel to
// its final state.
func (c *Channel) terminate(err error, cancelled error) *core.ChannelClosedError {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var closed *core.ChannelClosedError
	var closeErr *websocket.CloseError
	switch {
	case c.state == Closed:
		closed = &core.ChannelClosedError{Code: websocket.CloseNormalClosure, Text: "closed by client", Reason: core.CloseLocal, Err: err}
	case cancelled != nil:
		closed = &core.ChannelClosedError{Code: websocket.CloseNormalClosure, Text: "read cancelled", Reason: core.CloseLocal, Err: cancelled}
		c.state = Closed
	case errors.As(err, &closeErr):
		reason := core.CloseAbnormal
		if closeErr.Code == websocket.CloseNormalClosure || closeErr.Code == websocket.CloseGoingAway {
			reason = core.CloseGraceful
		}
		closed = &core.ChannelClosedError{Code: closeErr.Code, Text: closeErr.Text, Reason: reason, Err: err}
	default:
		closed = &core.ChannelClosedError{Code: websocket.CloseAbnormalClosure, Text: err.Error(), Reason: core.CloseAbnormal, Err: err}
	}
	if c.state != Closed {
		if closed.Reason == core.CloseGraceful {
			c.state = Closed
		} else {
			c.state = Failed
		}
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.log.Debug("Notification stream ended", "reason", closed.Reason, "code", closed.Code)
	return closed
}
