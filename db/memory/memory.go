package memory

import (
	"github.com/PulpCattel/jmrpc/db"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/pkg/errors"
	"sync"
	"time"
)

// Accessor keeps sessions in process memory, so entries are lost when the
// process exits. It suits long-running callers such as `jmrpc watch` or an
// embedding program; separate CLI invocations need postgres or redis.
type Accessor struct {
	mutex    sync.RWMutex
	sessions map[string]db.SessionData
}

func NewAccessor() *Accessor {
	return &Accessor{
		sessions: make(map[string]db.SessionData),
	}
}

func (a *Accessor) SaveSession(data db.SessionData) error {
	if data.Wallet == "" {
		return errors.New("empty wallet name")
	}
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.sessions[data.Wallet] = data
	return nil
}

func (a *Accessor) GetSession(wallet string) (db.SessionData, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	data, ok := a.sessions[wallet]
	if !ok || data.Expired(time.Now()) {
		return db.SessionData{}, types.NoDataFound
	}
	return data, nil
}

func (a *Accessor) DeleteSession(wallet string) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	delete(a.sessions, wallet)
	return nil
}

func (a *Accessor) ClearExpiredSessions(timestamp time.Time) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	for wallet, data := range a.sessions {
		if data.Expired(timestamp) {
			delete(a.sessions, wallet)
		}
	}
	return nil
}

func (a *Accessor) Len() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return len(a.sessions)
}

func (a *Accessor) Close() error {
	return nil
}
