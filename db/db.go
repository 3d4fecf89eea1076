package db

import (
	"time"
)

// Accessor persists daemon tokens per wallet between CLI invocations.
// GetSession returns types.NoDataFound for unknown or expired wallets.
type Accessor interface {
	SaveSession(data SessionData) error
	GetSession(wallet string) (SessionData, error)
	DeleteSession(wallet string) error
	ClearExpiredSessions(timestamp time.Time) error
	Close() error
}
