package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Manager logger manager (manages one logger instance per module)
type Manager struct {
	baseConfig ManagerConfig
	loggers    map[string]*CtxZapLogger
	writers    map[string]*lumberjack.Logger
	mu         sync.RWMutex
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// NewManager creates an independent Manager instance
// Zero-value fields in cfg are filled with defaults.
func NewManager(cfg ManagerConfig) *Manager {
	cfg.ApplyDefaults()
	return &Manager{
		baseConfig: cfg,
		loggers:    make(map[string]*CtxZapLogger, cfg.ModuleNumber),
		writers:    make(map[string]*lumberjack.Logger, cfg.ModuleNumber),
	}
}

// InitManager initializes the global logger manager (first call wins)
func InitManager(cfg ManagerConfig) {
	managerOnce.Do(func() {
		globalManager = NewManager(cfg)
	})
}

// GetLogger returns the CtxZapLogger for the given module from the global
// manager, creating the global manager with defaults on first use.
func GetLogger(moduleName string) *CtxZapLogger {
	InitManager(DefaultManagerConfig())
	return globalManager.GetLogger(moduleName)
}

// GetLogger returns the module logger, creating it on demand (thread safe).
// The returned logger already carries the module field.
func (m *Manager) GetLogger(moduleName string) *CtxZapLogger {
	m.mu.RLock()
	if l, exists := m.loggers[moduleName]; exists {
		m.mu.RUnlock()
		return l
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// double check, another goroutine may have created it
	if l, exists := m.loggers[moduleName]; exists {
		return l
	}

	cfg := m.buildModuleConfig(moduleName)
	zapLogger := m.createLogger(cfg).
		With(zap.String("module", moduleName)).
		WithOptions(zap.AddCallerSkip(1))

	ctxLogger := &CtxZapLogger{
		base:   zapLogger,
		module: moduleName,
		config: &m.baseConfig,
	}
	m.loggers[moduleName] = ctxLogger
	return ctxLogger
}

// buildModuleConfig builds the per-module config from the base config
func (m *Manager) buildModuleConfig(moduleName string) Config {
	return Config{
		Level:         m.baseConfig.Level,
		Encoding:      m.baseConfig.Encoding,
		moduleName:    moduleName,
		logDir:        m.baseConfig.BaseLogDir,
		EnableFile:    m.baseConfig.EnableFile,
		EnableConsole: m.baseConfig.EnableConsole,
		MaxSize:       m.baseConfig.MaxSize,
		MaxBackups:    m.baseConfig.MaxBackups,
		MaxAge:        m.baseConfig.MaxAge,
		Compress:      m.baseConfig.Compress,
		EnableCaller:  m.baseConfig.EnableCaller,
	}
}

// createLogger assembles the underlying zap.Logger for a module
func (m *Manager) createLogger(cfg Config) *zap.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	var cores []zapcore.Core

	if cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(stdoutSink())), level))
	}

	if cfg.EnableFile {
		writer := &lumberjack.Logger{
			Filename:   cfg.logFilePath(),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		m.writers[cfg.moduleName] = writer
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(writer), level))
	}

	if len(cores) == 0 {
		return zap.NewNop()
	}

	opts := []zap.Option{}
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}

	return zap.New(zapcore.NewTee(cores...), opts...)
}

// Close flushes and closes all file writers
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, l := range m.loggers {
		if err := l.base.Sync(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, w := range m.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
