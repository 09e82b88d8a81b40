package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatchly/backend/internal/models"
	"github.com/dispatchly/backend/internal/repository/repotest"
)

func TestConfigService_InitSeedsWithoutOverwriting(t *testing.T) {
	store := repotest.New()
	store.PutConfig(models.SystemConfig{Key: KeyDriverMinBalance, Value: "100", DataType: models.ConfigNumber})

	cfg := NewConfigService(store, testLog)
	require.NoError(t, cfg.Init(context.Background()))

	ctx := context.Background()
	assert.Equal(t, 100.0, cfg.GetNumber(ctx, KeyDriverMinBalance, 0))
	assert.Equal(t, 20.0, cfg.GetNumber(ctx, KeyDriverCommissionPct, 0))
	assert.Equal(t, 1.5, cfg.GetNumber(ctx, KeyMediumMultiplier, 0))
	assert.False(t, cfg.GetBoolean(ctx, KeySecurityDepositEnabled, true))
	assert.Len(t, cfg.GetAll(), len(defaultConfigs))
}

func TestConfigService_TypedReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cfg.BulkUpdate(ctx, "admin", []ConfigUpdate{
		{Key: "FEATURE_X", Value: "1", DataType: models.ConfigBoolean},
		{Key: "ZONES", Value: `["ikeja","lekki"]`, DataType: models.ConfigJSON},
		{Key: "SUPPORT_EMAIL", Value: "help@example.com"},
	})
	require.NoError(t, err)

	assert.True(t, f.cfg.GetBoolean(ctx, "FEATURE_X", false))
	assert.Equal(t, []any{"ikeja", "lekki"}, f.cfg.Get(ctx, "ZONES", nil))
	assert.Equal(t, "help@example.com", f.cfg.GetString(ctx, "SUPPORT_EMAIL", ""))
	assert.Equal(t, 7.0, f.cfg.GetNumber(ctx, "MISSING", 7))
	assert.Equal(t, "dflt", f.cfg.GetString(ctx, "MISSING", "dflt"))
	// A string key read as a number falls back to the default.
	assert.Equal(t, 3.0, f.cfg.GetNumber(ctx, "SUPPORT_EMAIL", 3))
}

func TestConfigService_ReadThroughOnMiss(t *testing.T) {
	f := newFixture(t)
	f.store.PutConfig(models.SystemConfig{Key: "LATE_KEY", Value: "42", DataType: models.ConfigNumber})

	assert.Equal(t, 42.0, f.cfg.GetNumber(context.Background(), "LATE_KEY", 0))
}

func TestConfigService_UpdateKeepsTypeAndValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.cfg.Update(ctx, "admin", ConfigUpdate{Key: KeyDriverCommissionPct, Value: "25"})
	require.NoError(t, err)
	assert.Equal(t, models.ConfigNumber, c.DataType)
	assert.Equal(t, 25.0, f.cfg.GetNumber(ctx, KeyDriverCommissionPct, 0))

	_, err = f.cfg.Update(ctx, "admin", ConfigUpdate{Key: KeyDriverCommissionPct, Value: "lots"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.cfg.Update(ctx, "admin", ConfigUpdate{Key: "X", Value: "maybe", DataType: models.ConfigBoolean})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.cfg.Update(ctx, "admin", ConfigUpdate{Key: "X", Value: "1", DataType: "float"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 25.0, f.cfg.GetNumber(ctx, KeyDriverCommissionPct, 0))

	logs := f.store.AuditLogs()
	require.NotEmpty(t, logs)
	assert.Equal(t, "system_config", logs[len(logs)-1].EntityType)
}

func TestConfigService_BulkUpdateIsAtomic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.cfg.BulkUpdate(ctx, "admin", []ConfigUpdate{
		{Key: KeyOrderBasePrice, Value: "2000"},
		{Key: KeyOrderPricePerKm, Value: "abc"},
	})

	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 1000.0, f.cfg.GetNumber(ctx, KeyOrderBasePrice, 0))
	require.NoError(t, f.cfg.RefreshCache(ctx))
	assert.Equal(t, 1000.0, f.cfg.GetNumber(ctx, KeyOrderBasePrice, 0))
}

func TestConfigService_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.cfg.Delete(ctx, "admin", KeyMaxOrdersPerDriver))
	assert.Equal(t, -1.0, f.cfg.GetNumber(ctx, KeyMaxOrdersPerDriver, -1))

	err := f.cfg.Delete(ctx, "admin", KeyMaxOrdersPerDriver)
	assert.ErrorIs(t, err, ErrConfigNotFound)
}
