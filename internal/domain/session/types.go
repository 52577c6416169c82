package session

import (
	"time"
)

// State 会话状态，取值由远端系统定义
type State string

const (
	StateRunning State = "running"
	StateClosed  State = "closed"
)

// Session 充电会话。会话由远端在 start 命令成功后创建，
// 客户端从不自造会话ID；本地持有的只是远端状态的一份视图。
type Session struct {
	ID            string `json:"id"`
	CorrelationID string `json:"emp_session_id"` // 远端签发的不透明关联ID
	ChargePointID string `json:"charge_point_id"`
	ConnectorKey  string `json:"connector_key"`
	State         State  `json:"state"`

	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// 电表读数 (Wh)
	MeterStart *int64 `json:"meter_start,omitempty"`
	MeterEnd   *int64 `json:"meter_end,omitempty"`

	// 远端估算的费用
	EstimatedCost *float64 `json:"estimated_cost,omitempty"`

	// 派生汇总，每次更新全量重算，不做增量累加
	Summary Summary `json:"summary"`
}

// Summary 会话派生汇总
type Summary struct {
	EnergyKWh       float64 `json:"energy_kwh"`
	DurationSeconds int64   `json:"duration_seconds"`
	Cost            float64 `json:"cost"`
}

// IsRunning 判断会话是否处于进行中
func (s *Session) IsRunning() bool {
	return s.State == StateRunning
}

// IsClosed 判断会话是否已结束
func (s *Session) IsClosed() bool {
	return s.State == StateClosed
}

// Clone 返回会话的深拷贝，供协调引擎之外的组件只读使用
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.StartTime = cloneTime(s.StartTime)
	clone.EndTime = cloneTime(s.EndTime)
	clone.UpdatedAt = cloneTime(s.UpdatedAt)
	clone.MeterStart = cloneInt64(s.MeterStart)
	clone.MeterEnd = cloneInt64(s.MeterEnd)
	clone.EstimatedCost = cloneFloat64(s.EstimatedCost)
	return &clone
}

// DeriveEnergyKWh 根据起止电表读数计算耗电量 (kWh)。
// 任一读数缺失时保留先前的派生值，避免用不完整数据覆盖。
func DeriveEnergyKWh(meterStart, meterEnd *int64, prior float64) float64 {
	if meterStart == nil || meterEnd == nil {
		return prior
	}
	return float64(*meterEnd-*meterStart) / 1000.0
}

// DeriveDurationSeconds 根据开始时间和最近更新时间计算时长 (秒)。
// 任一时间缺失时保留先前的派生值。
func DeriveDurationSeconds(start, updated *time.Time, prior int64) int64 {
	if start == nil || updated == nil {
		return prior
	}
	return int64(updated.Sub(*start) / time.Second)
}

// Recompute 依据当前字段全量重算派生汇总。
// 重算而非累加，保证对同一输入的幂等。
func (s *Session) Recompute() {
	s.Summary.EnergyKWh = DeriveEnergyKWh(s.MeterStart, s.MeterEnd, s.Summary.EnergyKWh)
	s.Summary.DurationSeconds = DeriveDurationSeconds(s.StartTime, s.UpdatedAt, s.Summary.DurationSeconds)
	if s.EstimatedCost != nil {
		s.Summary.Cost = *s.EstimatedCost
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt64(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneFloat64(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
