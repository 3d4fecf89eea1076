package redis

import (
	"github.com/PulpCattel/jmrpc/db"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/stretchr/testify/require"
	"os"
	"testing"
	"time"
)

func Test_SessionKey(t *testing.T) {
	require.Equal(t, "jmrpc:session:w.jmdat", sessionKey("w.jmdat"))
}

func Test_NewAccessor_BadURL(t *testing.T) {
	_, err := NewAccessor("not a url")
	require.NotNil(t, err)
}

func Test_Accessor(t *testing.T) {
	redisURL := os.Getenv("JMRPC_TEST_REDIS")
	if redisURL == "" {
		t.Skip("JMRPC_TEST_REDIS is not set")
	}
	a, err := NewAccessor(redisURL)
	require.Nil(t, err)
	defer a.Close()
	now := time.Now().UTC()
	data := db.SessionData{Wallet: "redis-test.jmdat", SessionToken: "s", WsToken: "w", Timestamp: now, ExpiresAt: now.Add(time.Hour)}

	// When
	require.Nil(t, a.SaveSession(data))
	got, err := a.GetSession(data.Wallet)

	// Then
	require.Nil(t, err)
	require.Equal(t, "s", got.SessionToken)
	require.Equal(t, "w", got.WsToken)
	require.True(t, now.Equal(got.Timestamp))
	require.True(t, data.ExpiresAt.Equal(got.ExpiresAt))

	// When
	require.Nil(t, a.DeleteSession(data.Wallet))

	// Then
	_, err = a.GetSession(data.Wallet)
	require.Equal(t, types.NoDataFound, err)
}
