package config

import (
	"github.com/PulpCattel/jmrpc/client"
	"github.com/PulpCattel/jmrpc/core"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.Nil(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func Test_LoadConfig_Defaults(t *testing.T) {
	// When
	conf, err := LoadConfig("")

	// Then
	require.Nil(t, err)
	require.Equal(t, client.DefaultBaseURL, conf.BaseURL)
	require.Equal(t, client.DefaultWsURL, conf.WsURL)
	require.True(t, conf.VerifySSL)
	require.Equal(t, CacheNone, conf.Cache.Type)
	require.Nil(t, conf.Validate())
	require.Equal(t, client.DefaultConfig(), conf.Client())
}

func Test_LoadConfig_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
  "BaseURL": "http://127.0.0.1:8080",
  "VerifySSL": false,
  "RequestTimeoutSec": 5,
  "Cache": {"Type": "redis", "RedisURL": "redis://localhost:6379/0"}
}`)

	// When
	conf, err := LoadConfig(path)

	// Then
	require.Nil(t, err)
	require.Equal(t, "http://127.0.0.1:8080", conf.BaseURL)
	require.Equal(t, client.DefaultWsURL, conf.WsURL)
	require.False(t, conf.VerifySSL)
	require.Equal(t, CacheRedis, conf.Cache.Type)
	require.Equal(t, 300, conf.Cache.CleanupIntervalSec)
	require.Nil(t, conf.Validate())
	require.Equal(t, 5*time.Second, conf.Client().RequestTimeout)
	require.Equal(t, 10*time.Second, conf.Client().ConnectTimeout)
	require.True(t, conf.Client().InsecureSkipVerify)
	require.False(t, conf.Client().DisableWebsocket)
}

func Test_LoadConfig_TOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
BaseURL = "https://node.local:28183"
WsURL = "wss://node.local:28283"
AutoConnectWebsocket = false
Verbosity = 5

[Cache]
Type = "postgres"
ConnStr = "postgres://jm@localhost/jm?sslmode=disable"

[Mock]
Port = 9999
`)

	// When
	conf, err := LoadConfig(path)

	// Then
	require.Nil(t, err)
	require.Equal(t, "https://node.local:28183", conf.BaseURL)
	require.False(t, conf.AutoConnectWebsocket)
	require.True(t, conf.Client().DisableWebsocket)
	require.False(t, conf.Client().InsecureSkipVerify)
	require.Equal(t, 5, conf.Verbosity)
	require.Equal(t, CachePostgres, conf.Cache.Type)
	require.Equal(t, 9999, conf.Mock.Port)
	require.Equal(t, 1800, conf.Mock.TokenLifeTimeSec)
	require.Nil(t, conf.Validate())
}

func Test_LoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NotNil(t, err)

	_, err = LoadConfig(writeFile(t, "bad.json", "{"))
	require.NotNil(t, err)

	_, err = LoadConfig(writeFile(t, "bad.toml", "BaseURL = "))
	require.NotNil(t, err)
}

func Test_Validate(t *testing.T) {
	cases := map[string]func(*Config){
		"BaseURL":           func(c *Config) { c.BaseURL = "not a url" },
		"WsURL":             func(c *Config) { c.WsURL = "" },
		"RequestTimeoutSec": func(c *Config) { c.RequestTimeoutSec = -1 },
		"Cache.Type":        func(c *Config) { c.Cache.Type = "sqlite" },
		"Cache.ConnStr":     func(c *Config) { c.Cache.Type = CachePostgres },
		"Cache.RedisURL":    func(c *Config) { c.Cache.Type = CacheRedis },
	}
	for field, mutate := range cases {
		conf := newDefaultConfig()
		mutate(conf)

		// When
		err := conf.Validate()

		// Then
		var confErr *core.ConfigurationError
		require.True(t, errors.As(err, &confErr), field)
		require.Equal(t, field, confErr.Field)
	}
}
