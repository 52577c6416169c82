package chargepoint

import (
	"time"

	"github.com/charging-platform/charging-session-client/internal/domain/status"
)

// ConnectorType 连接器类型
type ConnectorType string

const (
	ConnectorTypeType1   ConnectorType = "Type1"   // SAE J1772
	ConnectorTypeType2   ConnectorType = "Type2"   // IEC 62196-2
	ConnectorTypeCHAdeMO ConnectorType = "CHAdeMO" // CHAdeMO
	ConnectorTypeCCS1    ConnectorType = "CCS1"    // CCS Type 1
	ConnectorTypeCCS2    ConnectorType = "CCS2"    // CCS Type 2
	ConnectorTypeTesla   ConnectorType = "Tesla"   // Tesla Supercharger
	ConnectorTypeGB      ConnectorType = "GB"      // GB/T (China)
	ConnectorTypeOther   ConnectorType = "Other"
)

// ResolveConnectorType 将后端的连接器类型标识映射到本地分类。
// 未识别的标识归入 Other。
func ResolveConnectorType(raw string) ConnectorType {
	switch raw {
	case "type1", "Type1", "j1772":
		return ConnectorTypeType1
	case "type2", "Type2", "mennekes":
		return ConnectorTypeType2
	case "chademo", "CHAdeMO":
		return ConnectorTypeCHAdeMO
	case "ccs1", "CCS1":
		return ConnectorTypeCCS1
	case "ccs2", "CCS2":
		return ConnectorTypeCCS2
	case "tesla", "Tesla":
		return ConnectorTypeTesla
	case "gb", "gbt", "GB":
		return ConnectorTypeGB
	default:
		return ConnectorTypeOther
	}
}

// State 一对经过状态表解析后的语义状态
type State struct {
	ChargePoint status.ChargePointState `json:"charge_point_state"`
	Connector   status.ConnectorState   `json:"connector_state"`
}

// Connector 连接器信息，属于且仅属于一个充电桩。
// 连接器的生命周期与产生它的那次查询绑定，客户端不做持久化。
type Connector struct {
	Key      string        `json:"key"`
	Type     ConnectorType `json:"type"`
	MaxPower float64       `json:"max_power"` // 最大充电功率 (kW)
	State    *State        `json:"state,omitempty"`
}

// EffectiveState 返回连接器的语义状态。
// 后端未上报状态时按 unknown 处理，而不是视为连接器不存在。
func (c *Connector) EffectiveState() status.ConnectorState {
	if c.State == nil {
		return status.ConnectorStateUnknown
	}
	return c.State.Connector
}

// Tariff 资费信息
type Tariff struct {
	ID          string  `json:"id"`
	Currency    string  `json:"currency"`
	PricePerKWh float64 `json:"price_per_kwh"`
	PricePerMin float64 `json:"price_per_min"`
	BaseFee     float64 `json:"base_fee"`
	Description string  `json:"description,omitempty"`
}

// ChargePoint 充电桩只读投影，每次进入相关界面重新拉取
type ChargePoint struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Vendor     string      `json:"vendor"`
	Model      string      `json:"model"`
	Connectors []Connector `json:"connectors"`
	Tariff     *Tariff     `json:"tariff,omitempty"`
	FetchedAt  time.Time   `json:"fetched_at"`
}

// Connector 按 key 查找连接器
func (cp *ChargePoint) Connector(key string) (*Connector, bool) {
	for i := range cp.Connectors {
		if cp.Connectors[i].Key == key {
			return &cp.Connectors[i], true
		}
	}
	return nil, false
}

// ChargeableConnectors 返回当前可发起充电的连接器列表
func (cp *ChargePoint) ChargeableConnectors() []Connector {
	var result []Connector
	for _, conn := range cp.Connectors {
		if conn.EffectiveState().IsChargeable() {
			result = append(result, conn)
		}
	}
	return result
}
