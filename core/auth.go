package core

import (
	"context"
	"fmt"
	"github.com/PulpCattel/jmrpc/db"
	log "github.com/inconshreveable/log15"
	"sync"
	"time"
)

// Auth holds the tokens issued by the wallet daemon on unlock or create.
// Both tokens are present or both are absent.
type Auth interface {
	Set(sessionToken, wsToken string)
	Clear()
	// Invalidate clears the tokens only if sessionToken is still the current one.
	Invalidate(sessionToken string) bool
	IsAuthenticated() bool
	Tokens() (sessionToken, wsToken string)
	ExpiresAt() (time.Time, bool)
}

func NewAuth() Auth {
	return &authImpl{}
}

type authImpl struct {
	mutex        sync.RWMutex
	sessionToken string
	wsToken      string
	expiresAt    time.Time
	hasExpiry    bool
}

func (a *authImpl) Set(sessionToken, wsToken string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if sessionToken == "" {
		a.reset()
		return
	}
	if wsToken == "" {
		wsToken = sessionToken
	}
	a.sessionToken = sessionToken
	a.wsToken = wsToken
	a.expiresAt, a.hasExpiry = TokenExpiry(sessionToken)
}

func (a *authImpl) Clear() {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.reset()
}

func (a *authImpl) Invalidate(sessionToken string) bool {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	if sessionToken == "" || a.sessionToken != sessionToken {
		return false
	}
	a.reset()
	return true
}

func (a *authImpl) reset() {
	a.sessionToken = ""
	a.wsToken = ""
	a.expiresAt = time.Time{}
	a.hasExpiry = false
}

func (a *authImpl) IsAuthenticated() bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.sessionToken != ""
}

func (a *authImpl) Tokens() (string, string) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.sessionToken, a.wsToken
}

func (a *authImpl) ExpiresAt() (time.Time, bool) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.expiresAt, a.hasExpiry
}

// StartSessionsCleaner periodically removes expired sessions from the token
// cache until ctx is done.
func StartSessionsCleaner(ctx context.Context, accessor db.Accessor, interval time.Duration) {
	go loopClearExpiredSessions(ctx, accessor, interval)
}

func loopClearExpiredSessions(ctx context.Context, accessor db.Accessor, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := accessor.ClearExpiredSessions(time.Now()); err != nil {
			log.Error(fmt.Sprintf("Unable to clear expired sessions: %v", err))
		} else {
			log.Debug("Expired sessions cleared")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
