package main

import (
	"context"
	"github.com/PulpCattel/jmrpc/client"
	"github.com/PulpCattel/jmrpc/config"
	"github.com/PulpCattel/jmrpc/db"
	"github.com/PulpCattel/jmrpc/db/memory"
	"github.com/PulpCattel/jmrpc/server"
	"github.com/PulpCattel/jmrpc/types"
	"github.com/stretchr/testify/require"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func Test_initCache(t *testing.T) {
	appConfig, err := config.LoadConfig("")
	require.Nil(t, err)

	// When
	cache, err := initCache(appConfig)

	// Then
	require.Nil(t, err)
	require.Nil(t, cache)

	// When
	appConfig.Cache.Type = config.CacheMemory
	first, err := initCache(appConfig)
	require.Nil(t, err)
	second, err := initCache(appConfig)
	require.Nil(t, err)
	require.Nil(t, first.SaveSession(db.SessionData{Wallet: "w.jmdat", SessionToken: "s"}))

	// Then
	_, err = second.GetSession("w.jmdat")
	require.Equal(t, types.NoDataFound, err)
}

func newTestSession(t *testing.T) *client.Session {
	mock := server.NewServer(0, time.Minute)
	mock.Daemon().AddWallet("w.jmdat", "pw")
	httpServer := httptest.NewServer(mock.Handler())
	t.Cleanup(func() {
		mock.Stop()
		httpServer.Close()
	})
	s := client.New(client.Config{BaseURL: httpServer.URL, WsURL: "ws://unused", InsecureSkipVerify: true, DisableWebsocket: true})
	require.Nil(t, s.Open(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_restoreSession_MemoryCacheIsPerProcess(t *testing.T) {
	s := newTestSession(t)

	// When
	err := restoreSession(context.Background(), memory.NewAccessor(), s, "w.jmdat")

	// Then
	require.NotNil(t, err)
	require.True(t, strings.Contains(err.Error(), "memory cache"))
	require.False(t, s.IsAuthenticated())

	// When
	err = restoreSession(context.Background(), nil, s, "w.jmdat")

	// Then
	require.NotNil(t, err)
	require.True(t, strings.Contains(err.Error(), "--password"))
}

func Test_saveAndRestoreSession(t *testing.T) {
	s := newTestSession(t)
	cache := memory.NewAccessor()
	_, err := s.UnlockWallet(context.Background(), "w.jmdat", []byte("pw"))
	require.Nil(t, err)

	// When
	saveSession(cache, s, "w.jmdat")

	// Then
	data, err := cache.GetSession("w.jmdat")
	require.Nil(t, err)
	sessionToken, _ := s.Tokens()
	require.Equal(t, sessionToken, data.SessionToken)
	require.False(t, data.ExpiresAt.IsZero())

	// When
	restored := newTestSession(t)
	err = restoreSession(context.Background(), cache, restored, "w.jmdat")

	// Then
	require.Nil(t, err)
	require.True(t, restored.IsAuthenticated())

	// When
	forgetSession(cache, "w.jmdat")

	// Then
	require.Equal(t, 0, cache.Len())
}
