package core

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/pkg/errors"
	"net"
	"strings"
)

var ErrNotAuthenticated = errors.New("not authenticated")

type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NotAuthenticatedError is returned without any network activity when an
// operation needs a session token and none is held.
type NotAuthenticatedError struct {
	Op string
}

func (e *NotAuthenticatedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, ErrNotAuthenticated)
}

func (e *NotAuthenticatedError) Is(target error) bool {
	return target == ErrNotAuthenticated
}

// TransportError reports that the daemon could not be reached or the
// exchange broke before a complete response arrived.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

type RemoteErrorKind int

const (
	KindUnknown RemoteErrorKind = iota
	KindInvalidCredentials
	KindNoWalletFound
	KindBackendNotReady
	KindInvalidRequestFormat
	KindServiceAlreadyStarted
	KindWalletAlreadyUnlocked
	KindServiceNotStarted
	KindWalletExists
)

var remoteErrorKinds = map[string]RemoteErrorKind{
	types.MsgInvalidCredentials:    KindInvalidCredentials,
	types.MsgNoWalletFound:         KindNoWalletFound,
	types.MsgBackendNotReady:       KindBackendNotReady,
	types.MsgInvalidRequestFormat:  KindInvalidRequestFormat,
	types.MsgServiceAlreadyStarted: KindServiceAlreadyStarted,
	types.MsgWalletAlreadyUnlocked: KindWalletAlreadyUnlocked,
	types.MsgServiceNotStarted:     KindServiceNotStarted,
	types.MsgWalletExists:          KindWalletExists,
}

// RemoteError is a non-2xx reply of the daemon. Body is kept verbatim.
type RemoteError struct {
	StatusCode int
	Body       []byte
}

func (e *RemoteError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("remote error: status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("remote error: status %d", e.StatusCode)
}

// Message returns the "message" field of a JSON error body, or the trimmed
// body itself when it is not JSON.
func (e *RemoteError) Message() string {
	var body types.ErrorResponse
	if err := json.Unmarshal(e.Body, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return strings.TrimSpace(string(e.Body))
}

func (e *RemoteError) Kind() RemoteErrorKind {
	return remoteErrorKinds[e.Message()]
}

type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("websocket authentication failed: %s", e.Reason)
	}
	return fmt.Sprintf("websocket authentication failed: %s: %v", e.Reason, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

type CloseReason int

const (
	CloseGraceful CloseReason = iota
	CloseAbnormal
	CloseLocal
)

func (r CloseReason) String() string {
	switch r {
	case CloseGraceful:
		return "graceful"
	case CloseAbnormal:
		return "abnormal"
	case CloseLocal:
		return "local"
	}
	return "unknown"
}

// ChannelClosedError terminates a notification stream.
type ChannelClosedError struct {
	Code   int
	Text   string
	Reason CloseReason
	Err    error
}

func (e *ChannelClosedError) Error() string {
	return fmt.Sprintf("websocket closed (%s, code %d): %s", e.Reason, e.Code, e.Text)
}

func (e *ChannelClosedError) Unwrap() error { return e.Err }
