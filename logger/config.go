package logger

import (
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Config per-module log configuration (internal use)
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console

	// Internal fields (set by the Manager, no user action required)
	moduleName string // module name (e.g. permission, ratelimit)
	logDir     string // log root directory (default logs/)

	EnableFile    bool
	EnableConsole bool

	// File rotation configuration (lumberjack)
	MaxSize    int  // maximum size of a single file (MB)
	MaxBackups int  // number of old files to keep
	MaxAge     int  // number of days to retain
	Compress   bool // whether to compress rotated files

	EnableCaller bool
}

// ManagerConfig global manager configuration (shared by all modules)
type ManagerConfig struct {
	BaseLogDir    string `mapstructure:"base_log_dir"`
	Level         string `mapstructure:"level"`
	AppName       string `mapstructure:"app_name"` // injected into every entry
	Encoding      string `mapstructure:"encoding"`
	EnableConsole bool   `mapstructure:"enable_console"`
	EnableFile    bool   `mapstructure:"enable_file"`
	MaxSize       int    `mapstructure:"max_size"`
	MaxBackups    int    `mapstructure:"max_backups"`
	MaxAge        int    `mapstructure:"max_age"`
	Compress      bool   `mapstructure:"compress"`
	EnableCaller  bool   `mapstructure:"enable_caller"`
	LoggerName    string `mapstructure:"logger_name"`
	ModuleNumber  int    `mapstructure:"module_number"`
}

// DefaultManagerConfig returns the default manager configuration
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		BaseLogDir:    "logs",
		LoggerName:    "accessctl",
		Level:         "info",
		Encoding:      "json",
		EnableConsole: true,
		EnableFile:    false,
		MaxSize:       100,
		MaxBackups:    3,
		MaxAge:        28,
		Compress:      true,
		EnableCaller:  true,
		ModuleNumber:  8,
	}
}

// ApplyDefaults fills zero-value fields with defaults
func (c *ManagerConfig) ApplyDefaults() {
	def := DefaultManagerConfig()
	if c.BaseLogDir == "" {
		c.BaseLogDir = def.BaseLogDir
	}
	if c.Level == "" {
		c.Level = def.Level
	}
	if c.Encoding == "" {
		c.Encoding = def.Encoding
	}
	if c.LoggerName == "" {
		c.LoggerName = def.LoggerName
	}
	if c.MaxSize == 0 {
		c.MaxSize = def.MaxSize
	}
	if c.MaxBackups == 0 {
		c.MaxBackups = def.MaxBackups
	}
	if c.MaxAge == 0 {
		c.MaxAge = def.MaxAge
	}
	if c.ModuleNumber == 0 {
		c.ModuleNumber = def.ModuleNumber
	}
}

// parseLevel converts a level string into a zapcore.Level
func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}

// logFilePath builds the log file path for a module
func (c *Config) logFilePath() string {
	return filepath.Join(c.logDir, c.moduleName+".log")
}
