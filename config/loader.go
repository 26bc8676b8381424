package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "ACCESSCTL"

// Load reads the configuration file at path, applies ACCESSCTL_*
// environment overrides and validates the result. A missing file is
// not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers defaults so AutomaticEnv can override keys
// absent from the file
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("default_permission", cfg.DefaultPermission)
	v.SetDefault("token_storage", cfg.TokenStorage)
	v.SetDefault("sweep_interval", cfg.SweepInterval)
	v.SetDefault("database.driver", cfg.Database.Driver)
	v.SetDefault("database.dsn", cfg.Database.DSN)
	v.SetDefault("auto_patch.enabled", cfg.AutoPatch.Enabled)
	v.SetDefault("reply.on_permission_denied.enabled", cfg.Reply.OnPermissionDenied.Enabled)
	v.SetDefault("reply.on_rate_limited.enabled", cfg.Reply.OnRateLimited.Enabled)
}
