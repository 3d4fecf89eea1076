package memory

import (
	"github.com/PulpCattel/jmrpc/db"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func Test_SaveAndGetSession(t *testing.T) {
	a := NewAccessor()
	now := time.Now()
	data := db.SessionData{Wallet: "w.jmdat", SessionToken: "s", WsToken: "ws", Timestamp: now, ExpiresAt: now.Add(time.Hour)}

	// When
	err := a.SaveSession(data)

	// Then
	require.Nil(t, err)
	got, err := a.GetSession("w.jmdat")
	require.Nil(t, err)
	require.Equal(t, data, got)

	// When
	require.Nil(t, a.DeleteSession("w.jmdat"))

	// Then
	_, err = a.GetSession("w.jmdat")
	require.Equal(t, types.NoDataFound, err)
}

func Test_GetSession_Expired(t *testing.T) {
	a := NewAccessor()
	now := time.Now()
	require.Nil(t, a.SaveSession(db.SessionData{Wallet: "old", SessionToken: "s", Timestamp: now, ExpiresAt: now.Add(-time.Second)}))
	require.Nil(t, a.SaveSession(db.SessionData{Wallet: "forever", SessionToken: "s", Timestamp: now}))

	// When
	_, expiredErr := a.GetSession("old")
	_, foreverErr := a.GetSession("forever")

	// Then
	require.Equal(t, types.NoDataFound, expiredErr)
	require.Nil(t, foreverErr)

	// When
	require.Nil(t, a.ClearExpiredSessions(now))

	// Then
	require.Equal(t, 1, a.Len())
}

func Test_SaveSession_EmptyWallet(t *testing.T) {
	require.NotNil(t, NewAccessor().SaveSession(db.SessionData{}))
}
