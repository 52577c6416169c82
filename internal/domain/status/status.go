package status

// ChargePointState 充电桩语义状态
type ChargePointState string

const (
	ChargePointStateUnknown     ChargePointState = "unknown"
	ChargePointStateAvailable   ChargePointState = "available"
	ChargePointStateOccupied    ChargePointState = "occupied"
	ChargePointStateReserved    ChargePointState = "reserved"
	ChargePointStateUnavailable ChargePointState = "unavailable"
	ChargePointStateFaulted     ChargePointState = "faulted"
)

// ConnectorState 连接器语义状态
type ConnectorState string

const (
	ConnectorStateUnknown       ConnectorState = "unknown"
	ConnectorStateAvailable     ConnectorState = "available"
	ConnectorStatePreparing     ConnectorState = "preparing"
	ConnectorStateCharging      ConnectorState = "charging"
	ConnectorStateSuspendedEVSE ConnectorState = "suspended_evse"
	ConnectorStateSuspendedEV   ConnectorState = "suspended_ev"
	ConnectorStateFinishing     ConnectorState = "finishing"
	ConnectorStateReserved      ConnectorState = "reserved"
	ConnectorStateUnavailable   ConnectorState = "unavailable"
	ConnectorStateFaulted       ConnectorState = "faulted"
)

// Intent 状态的展示语义，供上层决定颜色和文案
type Intent string

const (
	IntentNeutral  Intent = "neutral"
	IntentPositive Intent = "positive"
	IntentActive   Intent = "active"
	IntentWarning  Intent = "warning"
	IntentDanger   Intent = "danger"
)

// UnknownCode 后端约定的未知状态码
const UnknownCode = 0

// ShortUnknown 未知状态的简写展示值
const ShortUnknown = "UKN"

// ResolveChargePointState 将原始充电桩状态码解析为语义状态。
// 未收录的状态码一律解析为 unknown，原始整数不会越过本层。
func ResolveChargePointState(code int) ChargePointState {
	switch code {
	case 1:
		return ChargePointStateAvailable
	case 2:
		return ChargePointStateOccupied
	case 3:
		return ChargePointStateReserved
	case 4:
		return ChargePointStateUnavailable
	case 5:
		return ChargePointStateFaulted
	default:
		// 包含约定的 0 以及所有未收录的状态码
		return ChargePointStateUnknown
	}
}

// ResolveConnectorState 将原始连接器状态码解析为语义状态。
// 与 ResolveChargePointState 相同，保证全函数覆盖。
func ResolveConnectorState(code int) ConnectorState {
	switch code {
	case 1:
		return ConnectorStateAvailable
	case 2:
		return ConnectorStatePreparing
	case 3:
		return ConnectorStateCharging
	case 4:
		return ConnectorStateSuspendedEVSE
	case 5:
		return ConnectorStateSuspendedEV
	case 6:
		return ConnectorStateFinishing
	case 7:
		return ConnectorStateReserved
	case 8:
		return ConnectorStateUnavailable
	case 9:
		return ConnectorStateFaulted
	default:
		return ConnectorStateUnknown
	}
}

// ChargePointIntent 获取充电桩状态的展示语义
func ChargePointIntent(state ChargePointState) Intent {
	switch state {
	case ChargePointStateAvailable:
		return IntentPositive
	case ChargePointStateOccupied, ChargePointStateReserved:
		return IntentActive
	case ChargePointStateUnavailable:
		return IntentWarning
	case ChargePointStateFaulted:
		return IntentDanger
	default:
		return IntentNeutral
	}
}

// ConnectorIntent 获取连接器状态的展示语义
func ConnectorIntent(state ConnectorState) Intent {
	switch state {
	case ConnectorStateAvailable:
		return IntentPositive
	case ConnectorStatePreparing, ConnectorStateCharging, ConnectorStateFinishing:
		return IntentActive
	case ConnectorStateSuspendedEVSE, ConnectorStateSuspendedEV, ConnectorStateReserved:
		return IntentWarning
	case ConnectorStateUnavailable, ConnectorStateFaulted:
		return IntentDanger
	default:
		return IntentNeutral
	}
}

// Short 返回连接器状态的简写展示值
func (s ConnectorState) Short() string {
	switch s {
	case ConnectorStateAvailable:
		return "AVL"
	case ConnectorStatePreparing:
		return "PRE"
	case ConnectorStateCharging:
		return "CHG"
	case ConnectorStateSuspendedEVSE:
		return "SUE"
	case ConnectorStateSuspendedEV:
		return "SUV"
	case ConnectorStateFinishing:
		return "FIN"
	case ConnectorStateReserved:
		return "RSV"
	case ConnectorStateUnavailable:
		return "UNA"
	case ConnectorStateFaulted:
		return "FLT"
	default:
		return ShortUnknown
	}
}

// IsPreparing 判断连接器是否处于可发起充电的插枪状态
func (s ConnectorState) IsPreparing() bool {
	return s == ConnectorStatePreparing
}

// IsChargeable 判断连接器当前是否可以承载一次新的充电会话
func (s ConnectorState) IsChargeable() bool {
	return s == ConnectorStateAvailable || s == ConnectorStatePreparing
}
