package db

import "time"

type SessionData struct {
	Wallet       string
	SessionToken string
	WsToken      string
	Timestamp    time.Time
	// ExpiresAt is zero when the token carries no expiry.
	ExpiresAt time.Time
}

func (d SessionData) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && !now.Before(d.ExpiresAt)
}
