package client

import (
	"context"
	stderrors "errors"
	"github.com/PulpCattel/jmrpc/core"
	"github.com/PulpCattel/jmrpc/transport"
	"github.com/PulpCattel/jmrpc/ws"
	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	DefaultBaseURL = "https://127.0.0.1:28183"
	DefaultWsURL   = "wss://127.0.0.1:28283"
)

var (
	ErrSessionClosed  = errors.New("session is closed")
	ErrSessionNotOpen = errors.New("session is not open")
)

// Config is safe as a zero value: certificates are verified and the
// websocket is connected on Open unless a field opts out.
type Config struct {
	BaseURL  string
	WsURL    string
	CertPath string
	// InsecureSkipVerify accepts any server certificate.
	InsecureSkipVerify bool
	// DisableWebsocket leaves the websocket disconnected on Open, see
	// ConnectWebsocket.
	DisableWebsocket bool
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		WsURL:          DefaultWsURL,
		CertPath:       DefaultCertPath(),
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

// DefaultCertPath is the ssl directory of the JoinMarket data dir, or "" when
// the home directory is unknown.
func DefaultCertPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".joinmarket", "ssl")
}

// WithDefaults fills empty URLs and the certificate path.
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.WsURL == "" {
		c.WsURL = DefaultWsURL
	}
	if c.CertPath == "" {
		c.CertPath = DefaultCertPath()
	}
	return c
}

// Session bundles the HTTP transport, the notification websocket and the
// tokens they share. Use Open and Close, or With.
type Session struct {
	cfg       Config
	auth      core.Auth
	transport *transport.Transport
	channel   *ws.Channel
	mutex     sync.Mutex
	// wsMutex serialises channel authentication attempts.
	wsMutex  sync.Mutex
	opened   bool
	closed   bool
	unlocked bool
	log      log.Logger

	closeChannel func(*ws.Channel) error
}

func New(cfg Config) *Session {
	auth := core.NewAuth()
	return &Session{
		cfg:       cfg.WithDefaults(),
		auth:      auth,
		transport:    transport.NewTransport(auth),
		log:          log.New("component", "session"),
		closeChannel: (*ws.Channel).Close,
	}
}

func (s *Session) Open(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if s.opened {
		return errors.New("session is already open")
	}
	err := s.transport.Open(transport.Config{
		BaseURL:        s.cfg.BaseURL,
		CertPath:       s.cfg.CertPath,
		VerifySSL:      !s.cfg.InsecureSkipVerify,
		ConnectTimeout: s.cfg.ConnectTimeout,
		RequestTimeout: s.cfg.RequestTimeout,
	})
	if err != nil {
		return err
	}
	s.channel = ws.NewChannel(ws.Config{
		TLSConfig:      s.transport.TLSConfig(),
		ConnectTimeout: s.cfg.ConnectTimeout,
	})
	s.opened = true
	if !s.cfg.DisableWebsocket {
		if err := s.channel.Connect(ctx, s.cfg.WsURL); err != nil {
			return stderrors.Join(err, s.closeLocked())
		}
	}
	s.log.Debug("Session opened", "url", s.cfg.BaseURL, "websocket", !s.cfg.DisableWebsocket)
	return nil
}

func (s *Session) ready() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if !s.opened {
		return ErrSessionNotOpen
	}
	return nil
}

// Close closes the websocket, then the transport. Errors of both are joined.
// Later calls return nil.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.closeLocked()
}

func (s *Session) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	if s.channel != nil {
		if err := s.closeChannel(s.channel); err != nil {
			errs = append(errs, errors.Wrap(err, "close websocket"))
		}
	}
	if err := s.transport.Close(); err != nil {
		errs = append(errs, errors.Wrap(err, "close transport"))
	}
	s.auth.Clear()
	s.log.Debug("Session closed")
	return stderrors.Join(errs...)
}

// With opens a session, runs fn and always closes the session, also when fn
// panics.
func With(ctx context.Context, cfg Config, fn func(*Session) error) (err error) {
	s := New(cfg)
	if err := s.Open(ctx); err != nil {
		return err
	}
	defer func() {
		if closeErr := s.Close(); closeErr != nil {
			err = stderrors.Join(err, closeErr)
		}
	}()
	return fn(s)
}

func (s *Session) IsAuthenticated() bool {
	return s.auth.IsAuthenticated()
}

func (s *Session) Tokens() (sessionToken, wsToken string) {
	return s.auth.Tokens()
}

func (s *Session) TokenExpiry() (time.Time, bool) {
	return s.auth.ExpiresAt()
}

func (s *Session) ChannelState() ws.State {
	s.mutex.Lock()
	channel := s.channel
	s.mutex.Unlock()
	if channel == nil {
		return ws.Disconnected
	}
	return channel.State()
}

// Restore installs tokens issued earlier, typically read from the session
// cache, and authenticates the websocket like a successful unlock would.
func (s *Session) Restore(ctx context.Context, sessionToken, wsToken string) error {
	if err := s.ready(); err != nil {
		return err
	}
	if sessionToken == "" {
		return &core.NotAuthenticatedError{Op: "restore"}
	}
	s.auth.Set(sessionToken, wsToken)
	s.markUnlocked()
	return s.authenticateChannel(ctx)
}

// ConnectWebsocket connects the notification channel for sessions opened
// with DisableWebsocket, and authenticates it if tokens are held.
func (s *Session) ConnectWebsocket(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.channel.Connect(ctx, s.cfg.WsURL); err != nil {
		return err
	}
	return s.authenticateChannel(ctx)
}

// WsRead returns the notification stream.
func (s *Session) WsRead() (*ws.Stream, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	s.mutex.Lock()
	unlocked := s.unlocked
	s.mutex.Unlock()
	if !unlocked {
		return nil, &core.NotAuthenticatedError{Op: "wsread"}
	}
	return s.channel.Read()
}

func (s *Session) markUnlocked() {
	s.mutex.Lock()
	s.unlocked = true
	s.mutex.Unlock()
}

func (s *Session) authenticateChannel(ctx context.Context) error {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	if s.channel.State() != ws.Connecting {
		return nil
	}
	_, wsToken := s.auth.Tokens()
	if wsToken == "" {
		return nil
	}
	return s.channel.Authenticate(ctx, wsToken)
}
