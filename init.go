package main

import (
	"context"
	"fmt"
	"github.com/PulpCattel/jmrpc/client"
	"github.com/PulpCattel/jmrpc/config"
	"github.com/PulpCattel/jmrpc/core"
	"github.com/PulpCattel/jmrpc/db"
	"github.com/PulpCattel/jmrpc/db/memory"
	"github.com/PulpCattel/jmrpc/db/postgres"
	"github.com/PulpCattel/jmrpc/db/redis"
	"github.com/PulpCattel/jmrpc/transport"
	"github.com/PulpCattel/jmrpc/types"
	log "github.com/inconshreveable/log15"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"os"
	"runtime"
	"time"
)

func initLogger(verbosity int) {
	var handler log.Handler
	logLvl := log.Lvl(verbosity)
	if runtime.GOOS == "windows" {
		handler = log.LvlFilterHandler(logLvl, log.StreamHandler(os.Stdout, log.LogfmtFormat()))
	} else {
		handler = log.LvlFilterHandler(logLvl, log.StreamHandler(os.Stderr, log.TerminalFormat()))
	}
	log.Root().SetHandler(handler)
}

func startMetricsServer(addr string) {
	if addr == "" {
		return
	}
	transport.RegisterMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info(fmt.Sprintf("Serving metrics on %s", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error(fmt.Sprintf("Metrics server stopped: %v", err))
		}
	}()
}

// initCache returns nil when no cache is configured. A memory cache only
// lives as long as the command, see memory.Accessor.
func initCache(appConfig *config.Config) (db.Accessor, error) {
	switch appConfig.Cache.Type {
	case config.CacheMemory:
		return memory.NewAccessor(), nil
	case config.CachePostgres:
		return postgres.NewAccessor(appConfig.Cache.ConnStr)
	case config.CacheRedis:
		return redis.NewAccessor(appConfig.Cache.RedisURL)
	default:
		return nil, nil
	}
}

func startSessionsCleaner(ctx context.Context, cache db.Accessor, appConfig *config.Config) {
	if cache == nil || appConfig.Cache.CleanupIntervalSec <= 0 {
		return
	}
	core.StartSessionsCleaner(ctx, cache, time.Second*time.Duration(appConfig.Cache.CleanupIntervalSec))
}

// saveSession caches the tokens the session currently holds for walletName.
func saveSession(cache db.Accessor, s *client.Session, walletName string) {
	if cache == nil {
		return
	}
	sessionToken, wsToken := s.Tokens()
	data := db.SessionData{
		Wallet:       walletName,
		SessionToken: sessionToken,
		WsToken:      wsToken,
		Timestamp:    time.Now().UTC(),
	}
	if expiresAt, ok := core.TokenExpiry(sessionToken); ok {
		data.ExpiresAt = expiresAt
	}
	if err := cache.SaveSession(data); err != nil {
		log.Warn("Unable to cache session", "wallet", walletName, "err", err)
	}
}

// restoreSession installs cached tokens for walletName.
func restoreSession(ctx context.Context, cache db.Accessor, s *client.Session, walletName string) error {
	if cache == nil {
		return errors.New("no session cache configured, pass --password")
	}
	data, err := cache.GetSession(walletName)
	if errors.Is(err, types.NoDataFound) {
		if _, ok := cache.(*memory.Accessor); ok {
			return errors.Errorf("the memory cache does not outlive a single command, pass --password or use a postgres or redis cache")
		}
		return errors.Errorf("no cached session for %v, unlock the wallet or pass --password", walletName)
	}
	if err != nil {
		return errors.Wrap(err, "read session cache")
	}
	if err := s.Restore(ctx, data.SessionToken, data.WsToken); err != nil {
		forgetSession(cache, walletName)
		return errors.Wrap(err, "cached session rejected")
	}
	log.Debug("Session restored from cache", "wallet", walletName)
	return nil
}

func forgetSession(cache db.Accessor, walletName string) {
	if cache == nil {
		return
	}
	if err := cache.DeleteSession(walletName); err != nil {
		log.Warn("Unable to delete cached session", "wallet", walletName, "err", err)
	}
}
