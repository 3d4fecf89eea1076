package core

import (
	"context"
	"github.com/PulpCattel/jmrpc/db"
	"github.com/PulpCattel/jmrpc/db/memory"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"sync"
	"testing"
	"time"
)

func signedToken(t *testing.T, exp time.Time) string {
	claims := jwt.RegisteredClaims{Subject: "wallet.jmdat", ExpiresAt: jwt.NewNumericDate(exp)}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.Nil(t, err)
	return token
}

func Test_Auth_SetAndClear(t *testing.T) {
	auth := NewAuth()
	require.False(t, auth.IsAuthenticated())

	// When
	auth.Set("session", "")

	// Then
	require.True(t, auth.IsAuthenticated())
	session, ws := auth.Tokens()
	require.Equal(t, "session", session)
	require.Equal(t, "session", ws)

	// When
	auth.Set("session2", "ws2")
	auth.Clear()

	// Then
	require.False(t, auth.IsAuthenticated())
	session, ws = auth.Tokens()
	require.Empty(t, session)
	require.Empty(t, ws)
}

func Test_Auth_Invalidate(t *testing.T) {
	auth := NewAuth()
	auth.Set("new", "ws")

	// When
	stale := auth.Invalidate("old")

	// Then
	require.False(t, stale)
	require.True(t, auth.IsAuthenticated())

	// When
	current := auth.Invalidate("new")

	// Then
	require.True(t, current)
	require.False(t, auth.IsAuthenticated())
}

func Test_Auth_ExpiresAt(t *testing.T) {
	auth := NewAuth()
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)

	// When
	auth.Set(signedToken(t, exp), "")

	// Then
	got, ok := auth.ExpiresAt()
	require.True(t, ok)
	require.True(t, exp.Equal(got))

	// When
	auth.Set("opaque", "")

	// Then
	_, ok = auth.ExpiresAt()
	require.False(t, ok)
}

func Test_Auth_ConcurrentAccess(t *testing.T) {
	auth := NewAuth()
	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			auth.Set("s", "w")
		}()
		go func() {
			defer wg.Done()
			session, ws := auth.Tokens()
			require.Equal(t, session == "", ws == "")
		}()
	}
	wg.Wait()
	require.True(t, auth.IsAuthenticated())
}

func Test_SessionsCleaner(t *testing.T) {
	accessor := memory.NewAccessor()
	now := time.Now()
	require.Nil(t, accessor.SaveSession(db.SessionData{Wallet: "expired", SessionToken: "a", WsToken: "a", Timestamp: now, ExpiresAt: now.Add(-time.Minute)}))
	require.Nil(t, accessor.SaveSession(db.SessionData{Wallet: "live", SessionToken: "b", WsToken: "b", Timestamp: now, ExpiresAt: now.Add(time.Hour)}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// When
	StartSessionsCleaner(ctx, accessor, 10*time.Millisecond)

	// Then
	require.Eventually(t, func() bool {
		return accessor.Len() == 1
	}, time.Second, 10*time.Millisecond)
	_, err := accessor.GetSession("live")
	require.Nil(t, err)
}

func Test_RemoteError(t *testing.T) {
	err := error(&RemoteError{StatusCode: 401, Body: []byte(`{"message":"Invalid credentials."}`)})

	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	require.Equal(t, "Invalid credentials.", remote.Message())
	require.Equal(t, KindInvalidCredentials, remote.Kind())

	plain := &RemoteError{StatusCode: 502, Body: []byte(" bad gateway \n")}
	require.Equal(t, "bad gateway", plain.Message())
	require.Equal(t, KindUnknown, plain.Kind())
}

func Test_NotAuthenticatedError(t *testing.T) {
	err := errors.Wrap(&NotAuthenticatedError{Op: "listutxos"}, "call")
	require.True(t, errors.Is(err, ErrNotAuthenticated))
	require.Contains(t, err.Error(), "listutxos")
}

func Test_TransportError_Timeout(t *testing.T) {
	require.True(t, (&TransportError{Op: "GET", Err: context.DeadlineExceeded}).Timeout())
	require.False(t, (&TransportError{Op: "GET", Err: errors.New("refused")}).Timeout())
}
