package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	mgr, err := NewManager(Config{
		Driver: "sqlite",
		// single connection keeps the in-memory database alive
		DSN:          "file::memory:",
		MaxOpenConns: 1,
		EnableLog:    false,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestNewManager_MigratesSchema(t *testing.T) {
	mgr := newTestManager(t)

	migrator := mgr.DB().Migrator()
	assert.True(t, migrator.HasTable(&PermissionModel{}))
	assert.True(t, migrator.HasTable(&RateLimitRuleModel{}))
	assert.True(t, migrator.HasTable(&RateLimitTokenModel{}))
}

func TestManager_HealthCheck(t *testing.T) {
	mgr := newTestManager(t)
	assert.NoError(t, mgr.HealthCheck(context.Background()))
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{DSN: "test.db"}
	require.NoError(t, cfg.Validate())
	// defaults filled in
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, 20, cfg.MaxOpenConns)

	bad := Config{Driver: "oracle", DSN: "x"}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)

	empty := Config{Driver: "sqlite"}
	assert.ErrorIs(t, empty.Validate(), ErrInvalidConfig)
}

func TestPermissionRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	db := mgr.DB()

	row := PermissionModel{Service: "demo.sub", Subject: "qq:123", Allow: true}
	require.NoError(t, db.Create(&row).Error)

	var got PermissionModel
	require.NoError(t, db.Where("service = ? AND subject = ?", "demo.sub", "qq:123").First(&got).Error)
	assert.True(t, got.Allow)

	// composite primary key rejects duplicates
	err := db.Create(&PermissionModel{Service: "demo.sub", Subject: "qq:123", Allow: false}).Error
	assert.Error(t, err)
}
