package reconcile

import (
	"sync"

	"github.com/charging-platform/charging-session-client/internal/domain/session"
	"github.com/charging-platform/charging-session-client/internal/logger"
	"github.com/charging-platform/charging-session-client/internal/metrics"
)

// ChangeKind 快照变化类型
type ChangeKind string

const (
	// ChangeUpdated 快照字段被更新
	ChangeUpdated ChangeKind = "updated"
	// ChangeStopped 会话进入终态。快照保留，最后一帧遥测继续可见。
	ChangeStopped ChangeKind = "stopped"
)

// Change 引擎对外发布的状态变化通知
type Change struct {
	Kind    ChangeKind
	Session *session.Session
}

// Engine 会话协调引擎。
// 唯一持有可变会话快照：全量拉取作为基线，推送事件增量打补丁。
// 引擎本身不做任何导航或界面副作用，只发布变化通知。
type Engine struct {
	mu      sync.RWMutex
	current *session.Session
	// eventApplied 首个推送事件已落地。此后到达的全量拉取结果
	// 不再允许覆盖快照，推送按到达顺序为准。
	eventApplied bool

	changes chan Change
	logger  *logger.Logger
}

// NewEngine 创建协调引擎
func NewEngine(log *logger.Logger, buffer int) *Engine {
	if buffer <= 0 {
		buffer = 16
	}
	return &Engine{
		changes: make(chan Change, buffer),
		logger:  log.Component("reconcile"),
	}
}

// Changes 获取变化通知通道
func (e *Engine) Changes() <-chan Change {
	return e.changes
}

// Snapshot 返回当前快照的冻结副本，调用方不得回写
func (e *Engine) Snapshot() *session.Session {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current.Clone()
}

// Seed 用全量拉取结果初始化快照。
// 只在首个推送事件之前生效：拉取和订阅在挂载时可能竞争，
// 迟到的拉取结果不允许覆盖推送已更新的字段。
func (e *Engine) Seed(s *session.Session) {
	if s == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.eventApplied {
		e.logger.Debug("discarding fetch result, push events already applied")
		return
	}

	seeded := s.Clone()
	seeded.Recompute()
	e.current = seeded
	metrics.ReconcileApplies.WithLabelValues("fetch").Inc()

	e.publish(Change{Kind: ChangeUpdated, Session: seeded.Clone()})
}

// Apply 应用一条推送事件。
// 空载荷直接丢弃；字段按显式补丁规则覆盖；派生值全量重算。
// 对同一事件的重复应用是幂等的。
func (e *Engine) Apply(event session.UpdateEvent) {
	if event.IsEmpty() {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current == nil {
		// 推送抢在全量拉取之前到达：以事件为基线起一个快照
		e.current = &session.Session{
			ID:            event.SessionID,
			CorrelationID: event.CorrelationID,
		}
	}

	e.patchIdentity(event)
	e.patchMeters(event)
	e.patchTimes(event)
	e.patchCost(event)

	stopped := false
	if event.State != nil {
		e.current.State = *event.State
		stopped = e.current.IsClosed()
	}

	e.current.Recompute()
	e.eventApplied = true
	metrics.ReconcileApplies.WithLabelValues("event").Inc()

	if stopped && e.current.EndTime == nil && e.current.UpdatedAt != nil {
		v := *e.current.UpdatedAt
		e.current.EndTime = &v
	}

	e.publish(Change{Kind: ChangeUpdated, Session: e.current.Clone()})
	if stopped {
		e.publish(Change{Kind: ChangeStopped, Session: e.current.Clone()})
	}
}

// Reset 清空快照。离开会话界面后调用，之后不再有协调发生。
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = nil
	e.eventApplied = false
}

// patchIdentity 事件允许补全但不允许清空标识字段
func (e *Engine) patchIdentity(event session.UpdateEvent) {
	if event.SessionID != "" {
		e.current.ID = event.SessionID
	}
	if event.CorrelationID != "" {
		e.current.CorrelationID = event.CorrelationID
	}
	if event.DeviceID != "" {
		e.current.ChargePointID = event.DeviceID
	}
}

// patchMeters 事件允许覆盖的电表字段
func (e *Engine) patchMeters(event session.UpdateEvent) {
	if event.MeterStart != nil {
		v := *event.MeterStart
		e.current.MeterStart = &v
	}
	if event.MeterEnd != nil {
		v := *event.MeterEnd
		e.current.MeterEnd = &v
	}
}

// patchTimes 事件允许覆盖的时间字段
func (e *Engine) patchTimes(event session.UpdateEvent) {
	if event.StartTime != nil {
		v := *event.StartTime
		e.current.StartTime = &v
	}
	if event.UpdatedAt != nil {
		v := *event.UpdatedAt
		e.current.UpdatedAt = &v
	}
}

// patchCost 实时费用估算存在时整体覆盖
func (e *Engine) patchCost(event session.UpdateEvent) {
	if event.EstimatedCost != nil {
		v := *event.EstimatedCost
		e.current.EstimatedCost = &v
	}
}

// publish 投递变化通知，通道满时丢弃并告警
func (e *Engine) publish(change Change) {
	select {
	case e.changes <- change:
	default:
		e.logger.Warn("change channel full, dropping notification")
	}
}
