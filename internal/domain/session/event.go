package session

import "time"

// UpdateEvent 推送通道下发的一条会话更新。
// 字段均为可选：事件只携带远端观察到变化的部分。
type UpdateEvent struct {
	DeviceID      string `json:"device_id"`
	CorrelationID string `json:"emp_session_id"`
	SessionID     string `json:"session_id,omitempty"`

	State *State `json:"state,omitempty"`

	StartTime *time.Time `json:"start_time,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	MeterStart *int64 `json:"meter_start,omitempty"`
	MeterEnd   *int64 `json:"meter_end,omitempty"`

	EstimatedCost *float64 `json:"estimated_cost,omitempty"`
}

// IsEmpty 判断事件载荷是否为空。空事件直接丢弃，不进入协调。
func (e *UpdateEvent) IsEmpty() bool {
	return e.SessionID == "" &&
		e.State == nil &&
		e.StartTime == nil &&
		e.UpdatedAt == nil &&
		e.MeterStart == nil &&
		e.MeterEnd == nil &&
		e.EstimatedCost == nil
}
