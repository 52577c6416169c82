package status

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveChargePointState(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected ChargePointState
	}{
		{"零值解析为unknown", 0, ChargePointStateUnknown},
		{"available", 1, ChargePointStateAvailable},
		{"occupied", 2, ChargePointStateOccupied},
		{"reserved", 3, ChargePointStateReserved},
		{"unavailable", 4, ChargePointStateUnavailable},
		{"faulted", 5, ChargePointStateFaulted},
		{"超出表范围", 99, ChargePointStateUnknown},
		{"负数状态码", -1, ChargePointStateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveChargePointState(tt.code))
		})
	}
}

func TestResolveConnectorState(t *testing.T) {
	tests := []struct {
		name     string
		code     int
		expected ConnectorState
	}{
		{"零值解析为unknown", 0, ConnectorStateUnknown},
		{"available", 1, ConnectorStateAvailable},
		{"preparing", 2, ConnectorStatePreparing},
		{"charging", 3, ConnectorStateCharging},
		{"suspended_evse", 4, ConnectorStateSuspendedEVSE},
		{"suspended_ev", 5, ConnectorStateSuspendedEV},
		{"finishing", 6, ConnectorStateFinishing},
		{"reserved", 7, ConnectorStateReserved},
		{"unavailable", 8, ConnectorStateUnavailable},
		{"faulted", 9, ConnectorStateFaulted},
		{"超出表范围", 1000, ConnectorStateUnknown},
		{"负数状态码", -42, ConnectorStateUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveConnectorState(tt.code))
		})
	}
}

// TestResolveTotality 全域遍历，保证任何整数都能解析出非空结果
func TestResolveTotality(t *testing.T) {
	for code := -10; code <= 50; code++ {
		cp := ResolveChargePointState(code)
		assert.NotEmpty(t, cp, "charge point code %d", code)

		conn := ResolveConnectorState(code)
		assert.NotEmpty(t, conn, "connector code %d", code)
	}
}

func TestConnectorStateShort(t *testing.T) {
	assert.Equal(t, "CHG", ConnectorStateCharging.Short())
	assert.Equal(t, "PRE", ConnectorStatePreparing.Short())
	assert.Equal(t, ShortUnknown, ConnectorStateUnknown.Short())

	// 未收录状态码的简写也必须回落到 UKN
	assert.Equal(t, ShortUnknown, ResolveConnectorState(12345).Short())
}

func TestIntents(t *testing.T) {
	assert.Equal(t, IntentPositive, ChargePointIntent(ChargePointStateAvailable))
	assert.Equal(t, IntentDanger, ChargePointIntent(ChargePointStateFaulted))
	assert.Equal(t, IntentNeutral, ChargePointIntent(ChargePointStateUnknown))

	assert.Equal(t, IntentActive, ConnectorIntent(ConnectorStateCharging))
	assert.Equal(t, IntentDanger, ConnectorIntent(ConnectorStateFaulted))
	assert.Equal(t, IntentNeutral, ConnectorIntent(ConnectorStateUnknown))
}

func TestConnectorStatePredicates(t *testing.T) {
	assert.True(t, ConnectorStatePreparing.IsPreparing())
	assert.False(t, ConnectorStateCharging.IsPreparing())

	assert.True(t, ConnectorStateAvailable.IsChargeable())
	assert.True(t, ConnectorStatePreparing.IsChargeable())
	assert.False(t, ConnectorStateFaulted.IsChargeable())
	assert.False(t, ConnectorStateUnknown.IsChargeable())
}
