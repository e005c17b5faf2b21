// Package config loads process configuration from defaults, an optional
// config file, GHP_ environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

const envPrefix = "GHP"

const (
	BackendDynamoDB = "dynamodb"
	BackendRedis    = "redis"
)

type Config struct {
	Level      string `mapstructure:"level"`
	ConfigFile string `mapstructure:"config"`

	Store struct {
		Backend string `mapstructure:"backend"`
		Table   string `mapstructure:"table"`
		Index   string `mapstructure:"index"`
		// RedisURL takes precedence over RedisURLParam.
		RedisURL      string `mapstructure:"redis_url"`
		RedisURLParam string `mapstructure:"redis_url_param"`
	} `mapstructure:"store"`

	Params struct {
		Prefix string `mapstructure:"prefix"`
	} `mapstructure:"params"`

	Local struct {
		DB string `mapstructure:"db"`
	} `mapstructure:"local"`

	Session struct {
		Debounce time.Duration `mapstructure:"debounce"`
	} `mapstructure:"session"`
}

var defaults = map[string]any{
	"level":                 "info",
	"store.backend":         BackendDynamoDB,
	"store.table":           "gh-presence",
	"store.index":           "path-updatedAt-index",
	"store.redis_url":       "",
	"store.redis_url_param": "",
	"params.prefix":         "/gh-presence",
	"local.db":              "gh-presence.db",
	"session.debounce":      time.Second,
}

// Load parses args into fs and resolves the configuration. Flags already
// defined on fs are kept, so commands can register their own before calling.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if fs == nil {
		return nil, errors.New("config: flag set must not be nil")
	}
	defineFlag(fs, "config", "", "Config file location")
	defineFlag(fs, "level", "info", "Log level (debug, info, warn, error)")
	defineFlag(fs, "db", "gh-presence.db", "Local store database file")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parse flags: %w", err)
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	for key, flag := range map[string]string{"config": "config", "level": "level", "local.db": "db"} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("config: bind flag %q: %w", flag, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, Config{})

	// File
	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var err error
	switch c.Store.Backend {
	case BackendDynamoDB, BackendRedis:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if c.Session.Debounce <= 0 {
		err = multierr.Append(err, errors.New("session debounce must be positive"))
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ValidateStore checks the settings needed to open the remote presence store.
func (c *Config) ValidateStore() error {
	var err error
	switch c.Store.Backend {
	case BackendDynamoDB:
		if c.Store.Table == "" {
			err = multierr.Append(err, errors.New("store.table is required for dynamodb"))
		}
	case BackendRedis:
		if c.Store.RedisURL == "" && c.Store.RedisURLParam == "" {
			err = multierr.Append(err, errors.New("store.redis_url or store.redis_url_param is required for redis"))
		}
	}
	if c.Params.Prefix == "" {
		err = multierr.Append(err, errors.New("params.prefix is required"))
	}
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defineFlag(fs *pflag.FlagSet, name, value, usage string) {
	if fs.Lookup(name) == nil {
		fs.String(name, value, usage)
	}
}

func bindEnvs(v *viper.Viper, iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)

	for i := 0; i < ift.NumField(); i++ {
		fv := ifv.Field(i)
		ft := ift.Field(i)

		tv, ok := ft.Tag.Lookup("mapstructure")
		if !ok {
			continue
		}

		switch fv.Kind() {
		case reflect.Struct:
			bindEnvs(v, fv.Interface(), append(parts, tv)...)
		default:
			_ = v.BindEnv(strings.Join(append(parts, tv), "."))
		}
	}
}
