package settings_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charging-session-client/internal/settings"
)

func TestStore_BoolRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &settings.Store{Client: db, Prefix: "settings:"}
	ctx := context.Background()

	mock.ExpectSet("settings:payment_bypass", "true", 0).SetVal("OK")
	err := store.SetBool(ctx, settings.KeyPaymentBypass, true)
	require.NoError(t, err)

	mock.ExpectGet("settings:payment_bypass").SetVal("true")
	enabled, err := store.PaymentBypass(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetBool_MissingKeyDefaultsFalse(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &settings.Store{Client: db, Prefix: "settings:"}

	mock.ExpectGet("settings:payment_bypass").RedisNil()
	enabled, err := store.GetBool(context.Background(), settings.KeyPaymentBypass)
	require.NoError(t, err)
	assert.False(t, enabled)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetBool_InvalidValue(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &settings.Store{Client: db, Prefix: "settings:"}

	mock.ExpectGet("settings:payment_bypass").SetVal("banana")
	_, err := store.GetBool(context.Background(), settings.KeyPaymentBypass)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_StringRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &settings.Store{Client: db, Prefix: "settings:"}
	ctx := context.Background()

	mock.ExpectSet("settings:last_charge_point", "CP-001", 0).SetVal("OK")
	require.NoError(t, store.SetString(ctx, settings.KeyLastChargePoint, "CP-001"))

	mock.ExpectGet("settings:last_charge_point").SetVal("CP-001")
	val, err := store.GetString(ctx, settings.KeyLastChargePoint)
	require.NoError(t, err)
	assert.Equal(t, "CP-001", val)

	mock.ExpectGet("settings:last_charge_point").RedisNil()
	val, err = store.GetString(ctx, settings.KeyLastChargePoint)
	require.NoError(t, err)
	assert.Empty(t, val)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Delete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &settings.Store{Client: db, Prefix: "settings:"}

	mock.ExpectDel("settings:last_charge_point").SetVal(1)
	require.NoError(t, store.Delete(context.Background(), settings.KeyLastChargePoint))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetString_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := &settings.Store{Client: db, Prefix: "settings:"}

	expectedErr := errors.New("redis get error")
	mock.ExpectGet("settings:last_charge_point").SetErr(expectedErr)
	val, err := store.GetString(context.Background(), settings.KeyLastChargePoint)
	assert.ErrorIs(t, err, expectedErr)
	assert.Empty(t, val)

	assert.NoError(t, mock.ExpectationsWereMet())
}
