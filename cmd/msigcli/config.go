package main

import (
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/iov-one/msigproxy/cache"
	"github.com/iov-one/msigproxy/client"
	"github.com/iov-one/msigproxy/errors"
	"github.com/iov-one/msigproxy/rpcclient"
	"github.com/iov-one/msigproxy/x/extension"
	"github.com/iov-one/msigproxy/x/index"
	"github.com/iov-one/msigproxy/x/linked"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/log"
)

// envPrefix is the prefix of environment variables overriding the
// configuration, for example MSIGPROXY_LOG_LEVEL.
const envPrefix = "MSIGPROXY"

// Config is the configuration file of msigcli. Lists are used instead of
// maps, because keys of a map are lowercased when read and chain names are
// case sensitive.
type Config struct {
	Chains         []ChainConfig  `mapstructure:"chains"`
	Wallets        []WalletConfig `mapstructure:"wallets"`
	Indexer        string         `mapstructure:"indexer"`
	CacheDir       string         `mapstructure:"cache_dir"`
	LogLevel       string         `mapstructure:"log_level"`
	LinkBase       string         `mapstructure:"link_base"`
	ProxyPallet    uint8          `mapstructure:"proxy_pallet"`
	MultisigPallet uint8          `mapstructure:"multisig_pallet"`
}

// ChainConfig declares a relay chain preset.
type ChainConfig struct {
	Name       string           `mapstructure:"name"`
	Relay      string           `mapstructure:"relay"`
	Parachains []EndpointConfig `mapstructure:"parachains"`
}

type EndpointConfig struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// WalletConfig declares a wallet program, see extension.Exec.
type WalletConfig struct {
	Name    string   `mapstructure:"name"`
	Command []string `mapstructure:"command"`
}

// loadConfig reads the configuration file at path, if any, and applies
// environment overrides.
func loadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetDefault("indexer", "")
	v.SetDefault("cache_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("link_base", "https://multisig.iov.one/")
	v.SetDefault("proxy_pallet", rpcclient.DefaultConfig.ProxyPallet)
	v.SetDefault("multisig_pallet", rpcclient.DefaultConfig.MultisigPallet)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(errors.ErrInput, "cannot read configuration %q: %s", path, err)
		}
	}
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "malformed configuration: %s", err)
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate returns all problems of the configuration.
func (c *Config) Validate() error {
	var errs error
	for i, ch := range c.Chains {
		if ch.Name == "" {
			errs = errors.AppendField(errs, fieldName("Chains", i, "Name"), errors.ErrEmpty)
		}
		if ch.Relay == "" {
			errs = errors.AppendField(errs, fieldName("Chains", i, "Relay"), errors.ErrEmpty)
		}
	}
	for i, w := range c.Wallets {
		if w.Name == "" {
			errs = errors.AppendField(errs, fieldName("Wallets", i, "Name"), errors.ErrEmpty)
		}
		if len(w.Command) == 0 {
			errs = errors.AppendField(errs, fieldName("Wallets", i, "Command"), errors.ErrEmpty)
		}
	}
	if _, err := log.AllowLevel(c.LogLevel); err != nil {
		errs = errors.AppendField(errs, "LogLevel", errors.Wrap(errors.ErrInput, err.Error()))
	}
	return errs
}

func fieldName(list string, i int, name string) string {
	return strings.Join([]string{list, strconv.Itoa(i), name}, ".")
}

// Presets returns the configured chains, or the public networks when none
// are configured.
func (c *Config) Presets() client.Presets {
	if len(c.Chains) == 0 {
		return client.DefaultPresets
	}
	presets := make(client.Presets, len(c.Chains))
	for _, ch := range c.Chains {
		p := client.Preset{Relay: ch.Relay, Parachains: make(map[string]string, len(ch.Parachains))}
		for _, para := range ch.Parachains {
			p.Parachains[para.Name] = para.URL
		}
		presets[ch.Name] = p
	}
	return presets
}

// WalletCommands returns the wallet programs by name.
func (c *Config) WalletCommands() map[string][]string {
	out := make(map[string][]string, len(c.Wallets))
	for _, w := range c.Wallets {
		out[w.Name] = w.Command
	}
	return out
}

// Logger returns a logger writing to w, filtered by the configured level.
func (c *Config) Logger(w io.Writer) log.Logger {
	logger := log.NewTMLogger(log.NewSyncWriter(w))
	if opt, err := log.AllowLevel(c.LogLevel); err == nil {
		logger = log.NewFilter(logger, opt)
	}
	return logger.With("module", "msigcli")
}

// The collaborators below are variables so that tests can replace them.
var (
	newConnector = func(c *Config, logger log.Logger) client.Connector {
		conf := rpcclient.DefaultConfig
		conf.ProxyPallet = c.ProxyPallet
		conf.MultisigPallet = c.MultisigPallet
		return &rpcclient.Connector{Presets: c.Presets(), Config: conf, Logger: logger}
	}

	newWallets = func(c *Config) extension.Provider {
		return extension.NewExec(c.WalletCommands())
	}
)

// newIndex returns the multisig index of the configuration, or nil if no
// indexer is configured. Lookups are cached in the cache directory, or in
// memory if there is none. The returned function releases the cache.
func newIndex(c *Config, logger log.Logger) (linked.Index, func(), error) {
	if c.Indexer == "" {
		return nil, func() {}, nil
	}
	var store cache.Store = cache.NewMemStore()
	if c.CacheDir != "" {
		db, err := cache.OpenLevelDB(filepath.Join(c.CacheDir, "index.db"))
		if err != nil {
			return nil, nil, errors.Wrap(err, "cache")
		}
		store = db
	}
	release := func() {
		if err := store.Close(); err != nil {
			logger.Error("cannot close cache", "err", err)
		}
	}
	return index.NewClient(c.Indexer, index.WithCache(store), index.WithLogger(logger)), release, nil
}
