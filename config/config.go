package config

import (
	"encoding/json"
	"github.com/BurntSushi/toml"
	"github.com/PulpCattel/jmrpc/client"
	"github.com/PulpCattel/jmrpc/core"
	"github.com/pkg/errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	CacheNone     = "none"
	CacheMemory   = "memory"
	CachePostgres = "postgres"
	CacheRedis    = "redis"
)

type Config struct {
	BaseURL              string
	WsURL                string
	CertPath             string
	VerifySSL            bool
	AutoConnectWebsocket bool
	ConnectTimeoutSec    int
	RequestTimeoutSec    int
	Verbosity            int
	// MetricsAddr enables the prometheus endpoint when set, e.g. ":9100".
	MetricsAddr string
	Cache       CacheConfig
	Mock        MockConfig
}

type CacheConfig struct {
	Type     string
	ConnStr  string
	RedisURL string
	// CleanupIntervalSec is how often expired sessions are purged.
	CleanupIntervalSec int
}

type MockConfig struct {
	Port             int
	TokenLifeTimeSec int
}

// LoadConfig reads a JSON or TOML file, picked by extension, over the
// defaults. An empty path yields the defaults.
func LoadConfig(configPath string) (*Config, error) {
	conf := newDefaultConfig()
	if configPath == "" {
		return conf, nil
	}
	if _, err := os.Stat(configPath); err != nil {
		return nil, errors.Errorf("Config file can't be found, path: %v", configPath)
	}
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".toml":
		if _, err := toml.DecodeFile(configPath, conf); err != nil {
			return nil, errors.Wrapf(err, "Cannot parse TOML config, path: %v", configPath)
		}
	default:
		byteValue, err := os.ReadFile(configPath)
		if err != nil {
			return nil, errors.Errorf("Config file can't be opened, path: %v", configPath)
		}
		if err := json.Unmarshal(byteValue, conf); err != nil {
			return nil, errors.Errorf("Cannot parse JSON config, path: %v", configPath)
		}
	}
	return conf, nil
}

func newDefaultConfig() *Config {
	defaults := client.DefaultConfig()
	return &Config{
		BaseURL:              defaults.BaseURL,
		WsURL:                defaults.WsURL,
		CertPath:             defaults.CertPath,
		VerifySSL:            !defaults.InsecureSkipVerify,
		AutoConnectWebsocket: !defaults.DisableWebsocket,
		ConnectTimeoutSec:    int(defaults.ConnectTimeout / time.Second),
		RequestTimeoutSec:    int(defaults.RequestTimeout / time.Second),
		Verbosity:            3,
		Cache: CacheConfig{
			Type:               CacheNone,
			CleanupIntervalSec: 300,
		},
		Mock: MockConfig{
			Port:             28183,
			TokenLifeTimeSec: 1800,
		},
	}
}

func (c *Config) Validate() error {
	for field, raw := range map[string]string{"BaseURL": c.BaseURL, "WsURL": c.WsURL} {
		u, err := url.Parse(raw)
		if err != nil {
			return &core.ConfigurationError{Field: field, Err: err}
		}
		if u.Host == "" {
			return &core.ConfigurationError{Field: field, Err: errors.Errorf("missing host in %q", raw)}
		}
	}
	if c.ConnectTimeoutSec < 0 {
		return &core.ConfigurationError{Field: "ConnectTimeoutSec", Err: errors.New("must not be negative")}
	}
	if c.RequestTimeoutSec < 0 {
		return &core.ConfigurationError{Field: "RequestTimeoutSec", Err: errors.New("must not be negative")}
	}
	switch c.Cache.Type {
	case "", CacheNone, CacheMemory:
	case CachePostgres:
		if c.Cache.ConnStr == "" {
			return &core.ConfigurationError{Field: "Cache.ConnStr", Err: errors.New("required for postgres cache")}
		}
	case CacheRedis:
		if c.Cache.RedisURL == "" {
			return &core.ConfigurationError{Field: "Cache.RedisURL", Err: errors.New("required for redis cache")}
		}
	default:
		return &core.ConfigurationError{Field: "Cache.Type", Err: errors.Errorf("unknown cache %q", c.Cache.Type)}
	}
	return nil
}

// Client converts the file settings into session settings.
func (c *Config) Client() client.Config {
	return client.Config{
		BaseURL:            c.BaseURL,
		WsURL:              c.WsURL,
		CertPath:           c.CertPath,
		InsecureSkipVerify: !c.VerifySSL,
		DisableWebsocket:   !c.AutoConnectWebsocket,
		ConnectTimeout:     time.Second * time.Duration(c.ConnectTimeoutSec),
		RequestTimeout:     time.Second * time.Duration(c.RequestTimeoutSec),
	}
}
