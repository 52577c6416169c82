package lifecycle

import (
	"context"
	"sync"

	"github.com/charging-platform/charging-session-client/internal/api"
	"github.com/charging-platform/charging-session-client/internal/charging"
	"github.com/charging-platform/charging-session-client/internal/domain/chargepoint"
	"github.com/charging-platform/charging-session-client/internal/domain/session"
	"github.com/charging-platform/charging-session-client/internal/logger"
	"github.com/charging-platform/charging-session-client/internal/reconcile"
)

// Phase 控制器状态机阶段
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseCheckingActive  Phase = "checking_active"
	PhaseResume          Phase = "resume"
	PhaseConnectVehicle  Phase = "connect_vehicle"
	PhaseAwaitingPayment Phase = "awaiting_payment_auth"
	PhaseStarting        Phase = "starting"
	PhaseSubscribing     Phase = "subscribing_for_confirmation"
	PhaseActive          Phase = "active"
	PhaseStopping        Phase = "stopping"
	PhaseStopped         Phase = "stopped"
	PhaseError           Phase = "error"
)

// SessionAPI 控制器依赖的领域客户端子集
type SessionAPI interface {
	CheckActiveSession(ctx context.Context) (*session.Session, *api.Error)
	StartSession(ctx context.Context, req charging.StartRequest) (*session.Session, *api.Error)
	StopSession(ctx context.Context, req charging.StopRequest) (*session.Session, *api.Error)
}

// KeySetter 订阅键更新入口
type KeySetter interface {
	SetKey(key api.SubscriptionKey)
}

// PaymentAuthorizer 支付协作方。控制器在下发 start 命令前请求授权。
type PaymentAuthorizer interface {
	RequestAuthorization(ctx context.Context) error
}

// PaymentCallbacks 支付结果回调对，由外部在发起充电前注入
type PaymentCallbacks struct {
	// OnAuthorized 授权成功后调用
	OnAuthorized func()
	// OnError 授权失败后调用
	OnError func(err error)
}

// Presenter 界面协作方。控制器通过它触发提示和导航，自身不持有界面状态。
type Presenter interface {
	// ShowBusy 切换加载指示
	ShowBusy(busy bool)
	// ShowAlert 弹出错误提示
	ShowAlert(alert Alert)
	// NavigateToConnectVehicle 引导用户先连接车辆
	NavigateToConnectVehicle()
	// NavigateToSummary 跳转到会话结束汇总
	NavigateToSummary(s *session.Session)
	// OfferSignOut 授权失效时提供强制登出入口
	OfferSignOut()
}

// Controller 会话生命周期控制器。
// 驱动状态机并承接所有导航副作用；协调引擎保持纯粹，
// 控制器通过消费引擎的变化通知做出反应。
type Controller struct {
	sessions   SessionAPI
	engine     *reconcile.Engine
	subscriber KeySetter
	presenter  Presenter
	payment    PaymentAuthorizer
	callbacks  PaymentCallbacks

	mu            sync.Mutex
	phase         Phase
	correlationID string
	chargePointID string
	connectorKey  string
	startInFlight bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logger.Logger
}

// NewController 创建生命周期控制器
func NewController(sessions SessionAPI, engine *reconcile.Engine, subscriber KeySetter, presenter Presenter, payment PaymentAuthorizer, log *logger.Logger) *Controller {
	return &Controller{
		sessions:   sessions,
		engine:     engine,
		subscriber: subscriber,
		presenter:  presenter,
		payment:    payment,
		phase:      PhaseIdle,
		logger:     log.Component("lifecycle"),
	}
}

// SetPaymentCallbacks 注入支付结果回调
func (c *Controller) SetPaymentCallbacks(callbacks PaymentCallbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = callbacks
}

// Phase 读取当前阶段
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// CorrelationID 当前会话的关联ID
func (c *Controller) CorrelationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.correlationID
}

// Run 启动变化监听循环
func (c *Controller) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case change, ok := <-c.engine.Changes():
				if !ok {
					return
				}
				c.handleChange(change)
			}
		}
	}()
}

// Close 离开会话界面：停止监听，撤销订阅，清空快照
func (c *Controller) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.subscriber.SetKey(api.SubscriptionKey{})
	c.engine.Reset()

	c.mu.Lock()
	c.phase = PhaseIdle
	c.correlationID = ""
	c.mu.Unlock()
}

// Begin 发起一次充电流程：前置活跃会话检查、支付授权、start 命令、
// 订阅确认。同一时间至多一个进行中的 Begin，重入直接忽略。
func (c *Controller) Begin(ctx context.Context, cp *chargepoint.ChargePoint, connectorKey string) {
	c.mu.Lock()
	if c.startInFlight {
		c.mu.Unlock()
		c.logger.Warn("start already in flight, ignoring")
		return
	}
	c.startInFlight = true
	c.phase = PhaseCheckingActive
	c.chargePointID = cp.ID
	c.connectorKey = connectorKey
	c.mu.Unlock()

	c.presenter.ShowBusy(true)
	defer func() {
		c.mu.Lock()
		c.startInFlight = false
		keepBusy := c.phase == PhaseSubscribing
		c.mu.Unlock()
		// 等待确认期间保持加载指示，其余情况一律清除
		if !keepBusy {
			c.presenter.ShowBusy(false)
		}
	}()

	active, apiErr := c.sessions.CheckActiveSession(ctx)
	if apiErr != nil {
		c.fail(apiErr)
		return
	}
	if active != nil {
		c.resume(active)
		return
	}

	connector, ok := cp.Connector(connectorKey)
	if !ok {
		c.fail(&api.Error{Code: api.ErrorCodeDefault, Message: "connector not found"})
		return
	}

	// 车辆尚未插枪时跳过支付，引导先连接车辆。
	// 该门控条件沿用现有产品行为，待产品确认。
	if !connector.EffectiveState().IsPreparing() {
		c.setPhase(PhaseConnectVehicle)
		c.presenter.NavigateToConnectVehicle()
		return
	}

	c.setPhase(PhaseAwaitingPayment)
	if err := c.payment.RequestAuthorization(ctx); err != nil {
		if c.callbacks.OnError != nil {
			c.callbacks.OnError(err)
		}
		c.fail(&api.Error{Code: api.ErrorCodeDefault, Message: "payment authorization failed: " + err.Error()})
		return
	}
	if c.callbacks.OnAuthorized != nil {
		c.callbacks.OnAuthorized()
	}

	c.setPhase(PhaseStarting)
	started, apiErr := c.sessions.StartSession(ctx, charging.StartRequest{
		ChargePointID: cp.ID,
		ConnectorKey:  connectorKey,
	})
	if apiErr != nil {
		c.fail(apiErr)
		return
	}

	c.mu.Lock()
	c.correlationID = started.CorrelationID
	c.phase = PhaseSubscribing
	c.mu.Unlock()

	// start 成功不等于会话已生效：seed 基线并订阅，
	// 直到引擎观察到匹配关联ID的 running 状态才算确认
	c.engine.Seed(started)
	c.subscriber.SetKey(api.SubscriptionKey{
		DeviceID:      cp.ID,
		CorrelationID: started.CorrelationID,
	})
	c.logger.Infof("session start accepted, awaiting confirmation for %s", started.CorrelationID)
}

// Stop 用户主动停止充电
func (c *Controller) Stop(ctx context.Context) {
	c.mu.Lock()
	if c.phase != PhaseActive {
		c.mu.Unlock()
		c.logger.Warnf("stop requested outside active phase (%s), ignoring", c.phase)
		return
	}
	c.phase = PhaseStopping
	correlationID := c.correlationID
	chargePointID := c.chargePointID
	connectorKey := c.connectorKey
	c.mu.Unlock()

	c.presenter.ShowBusy(true)
	defer c.presenter.ShowBusy(false)

	stopped, apiErr := c.sessions.StopSession(ctx, charging.StopRequest{
		ChargePointID: chargePointID,
		ConnectorKey:  connectorKey,
		CorrelationID: correlationID,
	})
	if apiErr != nil {
		c.fail(apiErr)
		return
	}

	if stopped != nil && stopped.IsClosed() {
		c.toStopped(stopped)
		return
	}
	// 停止命令已受理但远端尚未关闭：等待推送的 closed 事件收敛
	c.logger.Info("stop accepted, awaiting closed state from push channel")
}

// handleChange 消费协调引擎的变化通知
func (c *Controller) handleChange(change reconcile.Change) {
	switch change.Kind {
	case reconcile.ChangeStopped:
		// 远端关闭与用户主动停止收敛到同一终态界面
		c.toStopped(change.Session)

	case reconcile.ChangeUpdated:
		c.mu.Lock()
		confirming := c.phase == PhaseSubscribing
		correlationID := c.correlationID
		c.mu.Unlock()

		if confirming && change.Session != nil &&
			change.Session.IsRunning() &&
			change.Session.CorrelationID == correlationID {
			c.setPhase(PhaseActive)
			c.presenter.ShowBusy(false)
			c.logger.Infof("session %s confirmed running", correlationID)
		}
	}
}

// resume 发现已有进行中的会话，直接接管
func (c *Controller) resume(active *session.Session) {
	c.mu.Lock()
	c.phase = PhaseResume
	c.correlationID = active.CorrelationID
	c.chargePointID = active.ChargePointID
	c.connectorKey = active.ConnectorKey
	c.mu.Unlock()

	c.engine.Seed(active)
	c.subscriber.SetKey(api.SubscriptionKey{
		DeviceID:      active.ChargePointID,
		CorrelationID: active.CorrelationID,
	})

	c.setPhase(PhaseActive)
	c.logger.Infof("resumed running session %s", active.ID)
}

// toStopped 收敛到终态：展示结束汇总，快照保留
func (c *Controller) toStopped(s *session.Session) {
	c.mu.Lock()
	if c.phase == PhaseStopped {
		c.mu.Unlock()
		return
	}
	c.phase = PhaseStopped
	c.mu.Unlock()

	c.presenter.ShowBusy(false)
	c.presenter.NavigateToSummary(s)
}

// fail 错误路径：提示用户后回到空闲。
// 授权类失败额外提供强制登出入口。
func (c *Controller) fail(err *api.Error) {
	c.setPhase(PhaseError)
	c.presenter.ShowAlert(ResolveAlert(err))

	if err != nil && err.Code == api.ErrorCodeClient {
		c.presenter.OfferSignOut()
	}

	c.setPhase(PhaseIdle)
	c.logger.Errorf("lifecycle failure: %v", err)
}

// setPhase 更新阶段
func (c *Controller) setPhase(phase Phase) {
	c.mu.Lock()
	c.phase = phase
	c.mu.Unlock()
}
