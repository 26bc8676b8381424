package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/KOMKZ/go-accessctl-framework/logger"
)

// ErrInvalidConfig the storage configuration is incomplete
var ErrInvalidConfig = errors.New("invalid storage config")

// Config database configuration
type Config struct {
	Driver          string        `mapstructure:"driver"` // mysql, postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	EnableLog       bool          `mapstructure:"enable_log"`
	SlowThreshold   time.Duration `mapstructure:"slow_threshold"`
}

// DefaultConfig returns the default configuration (local sqlite file)
func DefaultConfig() Config {
	return Config{
		Driver:          "sqlite",
		DSN:             "access_control.db",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		EnableLog:       true,
		SlowThreshold:   200 * time.Millisecond,
	}
}

// Validate fills defaults and rejects incomplete configuration
func (c *Config) Validate() error {
	if c.Driver == "" {
		c.Driver = "sqlite"
	}
	switch c.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, c.Driver)
	}
	if c.DSN == "" {
		return ErrInvalidConfig
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 20
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = 200 * time.Millisecond
	}
	return nil
}

// Manager owns the database connection used by the permission and
// rate-limit repositories
type Manager struct {
	db     *gorm.DB
	config Config
	logger *logger.CtxZapLogger
}

// NewManager opens the database, configures the pool, and migrates the
// access-control tables
func NewManager(cfg Config, log *logger.CtxZapLogger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger("storage")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	var gl gormlogger.Interface
	if cfg.EnableLog {
		gl = logger.NewGormLogger(logger.GormLoggerConfig{
			SlowThreshold: cfg.SlowThreshold,
			LogLevel:      gormlogger.Warn,
		})
	} else {
		gl = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("failed to migrate access control tables: %w", err)
	}

	log.Debug("storage ready",
		zap.String("driver", cfg.Driver))

	return &Manager{db: db, config: cfg, logger: log}, nil
}

// DB returns the underlying gorm instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// HealthCheck pings the database
func (m *Manager) HealthCheck(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
