package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"github.com/PulpCattel/jmrpc/core"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

const (
	userAgent       = "jmrpc"
	contentTypeJSON = "application/json"
	headerRequestID = "X-Request-Id"
	jsonRPCVersion  = "2.0"

	RouteCreateWallet = "/api/v1/wallet/create"
	RouteUnlockWallet = "/api/v1/wallet/{walletname}/unlock"
)

var (
	ErrClosed       = errors.New("transport is closed")
	ErrNotOpen      = errors.New("transport is not open")
	ErrAlreadyOpen  = errors.New("transport is already open")
	ErrMissingToken = errors.New("response carries no token")
)

type Config struct {
	BaseURL        string
	CertPath       string
	VerifySSL      bool
	ConnectTimeout time.Duration
	// RequestTimeout bounds a whole request. Zero means no limit beyond the
	// caller's context.
	RequestTimeout time.Duration
}

type AuthPolicy int

const (
	// AuthNone never sends the token.
	AuthNone AuthPolicy = iota
	// AuthOptional sends the token when one is held.
	AuthOptional
	AuthRequired
)

type Request struct {
	Method string
	// Route is the path template, used for logs and metrics.
	Route string
	Path  string
	// Params are merged into the JSON-RPC envelope of non-GET requests and
	// must encode to a JSON object.
	Params interface{}
	Auth   AuthPolicy
}

func (r Request) route() string {
	if r.Route != "" {
		return r.Route
	}
	return r.Path
}

type Credentials struct {
	Wallet     string
	Secret     []byte
	WalletType string
}

// Transport sends authenticated JSON requests to the wallet daemon. It owns
// one pooled HTTP client from Open until Close.
type Transport struct {
	auth      core.Auth
	mutex     sync.Mutex
	client    *http.Client
	tlsConfig *tls.Config
	baseURL   string
	closed    bool
	id        atomic.Uint64
	log       log.Logger
}

func NewTransport(auth core.Auth) *Transport {
	return &Transport{
		auth: auth,
		log:  log.New("component", "transport"),
	}
}

func (t *Transport) Open(cfg Config) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.closed {
		return ErrClosed
	}
	if t.client != nil {
		return ErrAlreadyOpen
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return &core.ConfigurationError{Field: "BaseURL", Err: err}
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" || baseURL.Host == "" {
		return &core.ConfigurationError{Field: "BaseURL", Err: errors.Errorf("unsupported url %q", cfg.BaseURL)}
	}
	tlsConfig, err := NewTLSConfig(cfg.CertPath, cfg.VerifySSL)
	if err != nil {
		return err
	}
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	t.client = &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			TLSClientConfig:     tlsConfig,
			TLSHandshakeTimeout: cfg.ConnectTimeout,
			MaxIdleConns:        16,
			IdleConnTimeout:     90 * time.Second,
			ForceAttemptHTTP2:   true,
		},
		Timeout: cfg.RequestTimeout,
	}
	t.tlsConfig = tlsConfig
	t.baseURL = strings.TrimRight(baseURL.String(), "/")
	t.log.Debug("Transport opened", "url", t.baseURL, "verify", cfg.VerifySSL)
	return nil
}

// TLSConfig returns a copy of the TLS settings resolved by Open.
func (t *Transport) TLSConfig() *tls.Config {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.tlsConfig == nil {
		return nil
	}
	return t.tlsConfig.Clone()
}

func (t *Transport) IsOpen() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.client != nil && !t.closed
}

func (t *Transport) conn() (*http.Client, string, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.closed {
		return nil, "", ErrClosed
	}
	if t.client == nil {
		return nil, "", ErrNotOpen
	}
	return t.client, t.baseURL, nil
}

// Close releases pooled connections. Calling it more than once is a no-op.
func (t *Transport) Close() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.client != nil {
		t.client.CloseIdleConnections()
		t.client = nil
	}
	t.log.Debug("Transport closed")
	return nil
}

// NextID returns the next JSON-RPC request id.
func (t *Transport) NextID() uint64 {
	return t.id.Add(1)
}

// Call is a shorthand for Do. The token is sent whenever one is held;
// requiresAuth makes it mandatory.
func (t *Transport) Call(ctx context.Context, method, path string, params interface{}, requiresAuth bool) (*types.Response, error) {
	policy := AuthOptional
	if requiresAuth {
		policy = AuthRequired
	}
	return t.Do(ctx, Request{Method: method, Path: path, Params: params, Auth: policy})
}

func (t *Transport) Do(ctx context.Context, r Request) (*types.Response, error) {
	var body []byte
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		payload, err := t.payload(r.Params)
		if err != nil {
			return nil, err
		}
		body = payload
	} else if r.Params != nil {
		return nil, errors.Errorf("%s %s: params are not supported", r.Method, r.route())
	}
	return t.do(ctx, r, body)
}

// UnlockOrCreate opens (or creates) a wallet and stores the returned tokens.
// The password only travels through a locked buffer that is wiped once the
// request completes.
func (t *Transport) UnlockOrCreate(ctx context.Context, creds Credentials, create bool) (*types.Response, error) {
	if strings.TrimSpace(creds.Wallet) == "" {
		return nil, errors.New("wallet name is required")
	}
	fields := map[string]interface{}{}
	r := Request{Method: http.MethodPost, Auth: AuthNone}
	if create {
		fields["walletname"] = creds.Wallet
		fields["wallettype"] = creds.WalletType
		r.Route = RouteCreateWallet
		r.Path = RouteCreateWallet
	} else {
		r.Route = RouteUnlockWallet
		r.Path = ExpandRoute(RouteUnlockWallet, map[string]string{"walletname": creds.Wallet})
	}
	payload, err := t.payload(fields)
	if err != nil {
		return nil, err
	}
	body, err := encodeSecret(payload, "password", creds.Secret)
	if err != nil {
		return nil, err
	}
	defer body.Destroy()

	resp, err := t.do(ctx, r, body.Bytes())
	if err != nil {
		return nil, err
	}
	token, err := resp.GetString("token")
	if err != nil || token == "" {
		return resp, errors.Wrapf(ErrMissingToken, "%s %s", r.Method, r.Route)
	}
	wsToken, err := resp.GetString("ws_token")
	if err != nil || wsToken == "" {
		wsToken = token
	}
	t.auth.Set(token, wsToken)
	t.log.Info("Wallet session started", "wallet", creds.Wallet, "created", create)
	return resp, nil
}

func (t *Transport) payload(params interface{}) ([]byte, error) {
	fields := map[string]interface{}{}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, errors.Wrap(err, "encode params")
		}
		err = json.Unmarshal(raw, &fields)
		memguard.WipeBytes(raw)
		if err != nil || fields == nil {
			return nil, errors.New("params must encode to a JSON object")
		}
	}
	fields["jsonrpc"] = jsonRPCVersion
	fields["id"] = t.NextID()
	return json.Marshal(fields)
}

func (t *Transport) do(ctx context.Context, r Request, body []byte) (*types.Response, error) {
	client, baseURL, err := t.conn()
	if err != nil {
		return nil, err
	}
	sessionToken, _ := t.auth.Tokens()
	if r.Auth == AuthRequired && sessionToken == "" {
		return nil, &core.NotAuthenticatedError{Op: r.route()}
	}
	target := baseURL + r.Path
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, reader)
	if err != nil {
		return nil, &core.TransportError{Op: r.Method, URL: target, Err: err}
	}
	requestID := uuid.New().String()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set(headerRequestID, requestID)
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	sentToken := ""
	if r.Auth != AuthNone && sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
		sentToken = sessionToken
	}

	logger := t.log.New("id", requestID)
	logger.Debug("Sending request", "method", r.Method, "route", r.route())
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		recordRequest(r.Method, r.route(), 0, time.Since(start))
		logger.Warn("Request failed", "method", r.Method, "route", r.route(), "err", err)
		return nil, &core.TransportError{Op: r.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	recordRequest(r.Method, r.route(), resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &core.TransportError{Op: r.Method, URL: target, Err: errors.Wrap(err, "read response body")}
	}
	logger.Debug("Received response", "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized && sentToken != "" && t.auth.Invalidate(sentToken) {
			logger.Info("Session token rejected, credentials cleared")
		}
		return nil, &core.RemoteError{StatusCode: resp.StatusCode, Body: data}
	}
	result, err := types.DecodeResponse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", r.Method, r.route())
	}
	return result, nil
}

// encodeSecret adds key with secret as a JSON string to the encoded object
// payload. The result is assembled inside a locked buffer, so the secret
// is never copied to an unprotected string or slice.
func encodeSecret(payload []byte, key string, secret []byte) (*memguard.LockedBuffer, error) {
	if len(payload) < 2 || payload[0] != '{' {
		return nil, errors.New("payload must be a JSON object")
	}
	if !utf8.Valid(secret) {
		return nil, errors.New("password is not valid UTF-8")
	}
	name, err := json.Marshal(key)
	if err != nil {
		return nil, errors.Wrap(err, "encode key")
	}
	rest := payload[1:]
	separator := ","
	if bytes.Equal(bytes.TrimSpace(rest), []byte("}")) {
		separator = ""
	}
	size := 1 + len(name) + 1 + quotedLen(secret) + len(separator) + len(rest)
	buf := memguard.NewBuffer(size)
	out := buf.Bytes()
	n := copy(out, "{")
	n += copy(out[n:], name)
	n += copy(out[n:], ":")
	n += writeQuoted(out[n:], secret)
	n += copy(out[n:], separator)
	copy(out[n:], rest)
	return buf, nil
}

const hexDigits = "0123456789abcdef"

func quotedLen(s []byte) int {
	size := 2
	for _, b := range s {
		switch {
		case b == '"' || b == '\\':
			size += 2
		case b < 0x20:
			size += 6
		default:
			size++
		}
	}
	return size
}

func writeQuoted(out []byte, s []byte) int {
	n := 0
	out[n] = '"'
	n++
	for _, b := range s {
		switch {
		case b == '"' || b == '\\':
			out[n], out[n+1] = '\\', b
			n += 2
		case b < 0x20:
			n += copy(out[n:], `\u00`)
			out[n], out[n+1] = hexDigits[b>>4], hexDigits[b&0xf]
			n += 2
		default:
			out[n] = b
			n++
		}
	}
	out[n] = '"'
	return n + 1
}

// ExpandRoute substitutes {name} placeholders with path-escaped values.
func ExpandRoute(route string, vars map[string]string) string {
	for k, v := range vars {
		route = strings.ReplaceAll(route, "{"+k+"}", url.PathEscape(v))
	}
	return route
}
