// Package config loads and validates the access control options from
// a yaml file plus ACCESSCTL_* environment overrides
package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/KOMKZ/go-accessctl-framework/logger"
	"github.com/KOMKZ/go-accessctl-framework/storage"
)

const (
	PermissionAllow = "allow"
	PermissionDeny  = "deny"

	TokenStorageInmemory  = "inmemory"
	TokenStorageDatastore = "datastore"
	TokenStorageRedis     = "redis"
)

// Config is the full option surface
type Config struct {
	// DefaultPermission decides requests no stored rule covers
	DefaultPermission string `mapstructure:"default_permission"`
	// TokenStorage selects the rate-limit token backend
	TokenStorage  string        `mapstructure:"token_storage"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	Database  storage.Config       `mapstructure:"database"`
	Redis     storage.RedisConfig  `mapstructure:"redis"`
	AutoPatch AutoPatchConfig      `mapstructure:"auto_patch"`
	Reply     ReplyConfig          `mapstructure:"reply"`
	Logger    logger.ManagerConfig `mapstructure:"logger"`
}

// AutoPatchConfig controls startup binding of unbound handlers
type AutoPatchConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Ignore  []string `mapstructure:"ignore"`
}

// ReplyConfig toggles and templates the denial messages. An empty
// template falls back to the built-in default.
type ReplyConfig struct {
	OnPermissionDenied ReplyOption `mapstructure:"on_permission_denied"`
	OnRateLimited      ReplyOption `mapstructure:"on_rate_limited"`
}

type ReplyOption struct {
	Enabled  bool   `mapstructure:"enabled"`
	Template string `mapstructure:"template"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		DefaultPermission: PermissionAllow,
		TokenStorage:      TokenStorageInmemory,
		SweepInterval:     time.Minute,
		Database:          storage.DefaultConfig(),
		AutoPatch:         AutoPatchConfig{Enabled: false},
		Reply: ReplyConfig{
			OnPermissionDenied: ReplyOption{Enabled: true},
			OnRateLimited:      ReplyOption{Enabled: true},
		},
		Logger: logger.DefaultManagerConfig(),
	}
}

// Validate implements the module validator contract
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.DefaultPermission,
			validation.Required,
			validation.In(PermissionAllow, PermissionDeny)),
		validation.Field(&c.TokenStorage,
			validation.Required,
			validation.In(TokenStorageInmemory, TokenStorageDatastore, TokenStorageRedis)),
		validation.Field(&c.SweepInterval, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return err
	}
	if c.TokenStorage == TokenStorageDatastore {
		return c.Database.Validate()
	}
	return nil
}

// DefaultAllow reports the configured default polarity
func (c *Config) DefaultAllow() bool {
	return c.DefaultPermission != PermissionDeny
}
