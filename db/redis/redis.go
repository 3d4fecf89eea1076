package redis

import (
	"context"
	"github.com/PulpCattel/jmrpc/db"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"time"
)

const (
	keyPrefix = "jmrpc:session:"

	fieldSessionToken = "session_token"
	fieldWsToken      = "ws_token"
	fieldTimestamp    = "timestamp"
	fieldExpiresAt    = "expires_at"

	opTimeout = 5 * time.Second
)

type accessor struct {
	client *redis.Client
}

// NewAccessor stores every wallet session in its own hash. Expiry is left to
// redis through EXPIREAT.
func NewAccessor(redisURL string) (db.Accessor, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(options)
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return &accessor{client: client}, nil
}

func sessionKey(wallet string) string {
	return keyPrefix + wallet
}

func (a *accessor) SaveSession(data db.SessionData) error {
	if data.Wallet == "" {
		return errors.New("empty wallet name")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	key := sessionKey(data.Wallet)
	expiresAt := ""
	if !data.ExpiresAt.IsZero() {
		expiresAt = data.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			fieldSessionToken, data.SessionToken,
			fieldWsToken, data.WsToken,
			fieldTimestamp, data.Timestamp.UTC().Format(time.RFC3339Nano),
			fieldExpiresAt, expiresAt,
		)
		if !data.ExpiresAt.IsZero() {
			pipe.ExpireAt(ctx, key, data.ExpiresAt)
		}
		return nil
	})
	return errors.Wrap(err, "save session")
}

func (a *accessor) GetSession(wallet string) (db.SessionData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	fields, err := a.client.HGetAll(ctx, sessionKey(wallet)).Result()
	if err != nil {
		return db.SessionData{}, errors.Wrap(err, "get session")
	}
	if len(fields) == 0 {
		return db.SessionData{}, types.NoDataFound
	}
	res := db.SessionData{
		Wallet:       wallet,
		SessionToken: fields[fieldSessionToken],
		WsToken:      fields[fieldWsToken],
	}
	if res.Timestamp, err = time.Parse(time.RFC3339Nano, fields[fieldTimestamp]); err != nil {
		return db.SessionData{}, errors.Wrap(err, "corrupted session timestamp")
	}
	if v := fields[fieldExpiresAt]; v != "" {
		if res.ExpiresAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return db.SessionData{}, errors.Wrap(err, "corrupted session expiry")
		}
	}
	if res.Expired(time.Now()) {
		return db.SessionData{}, types.NoDataFound
	}
	return res, nil
}

func (a *accessor) DeleteSession(wallet string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return errors.Wrap(a.client.Del(ctx, sessionKey(wallet)).Err(), "delete session")
}

// ClearExpiredSessions is a no-op: redis evicts expired hashes itself.
func (a *accessor) ClearExpiredSessions(time.Time) error {
	return nil
}

func (a *accessor) Close() error {
	return a.client.Close()
}
