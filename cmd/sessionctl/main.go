package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charging-platform/charging-session-client/internal/api"
	"github.com/charging-platform/charging-session-client/internal/charging"
	"github.com/charging-platform/charging-session-client/internal/config"
	"github.com/charging-platform/charging-session-client/internal/domain/session"
	"github.com/charging-platform/charging-session-client/internal/lifecycle"
	"github.com/charging-platform/charging-session-client/internal/logger"
	"github.com/charging-platform/charging-session-client/internal/reconcile"
	"github.com/charging-platform/charging-session-client/internal/settings"
)

const usage = `Usage: sessionctl [-config file] <command> [args]

Commands:
  status <charge_point_id>              show charge point and connector states
  start  <charge_point_id> <connector>  start a charging session and watch it
  stop                                  stop the active charging session
  watch                                 attach to the active session and stream updates
`

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// 1. 加载配置
	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// 3. 初始化设置存储
	store, err := settings.NewStore(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to initialize settings store: %v", err)
	}
	defer store.Close()

	// 4. 初始化 API 客户端
	token := os.Getenv("SESSION_TOKEN")
	if token == "" {
		log.Fatalf("SESSION_TOKEN environment variable is required")
	}
	apiClient := api.NewClient(api.ClientConfig{
		BaseURL:       cfg.API.BaseURL,
		TariffBaseURL: cfg.GetTariffBaseURL(),
		Timeout:       cfg.API.RequestTimeout,
		Retry: api.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxJitter:   cfg.Retry.MaxJitter,
		},
		CacheTTL:              cfg.API.CacheTTL,
		OfflineNoticeInterval: cfg.API.OfflineNotice,
	}, api.StaticTokenSource(token), log)

	checker, err := api.NewDialChecker(cfg.API.BaseURL, 2*time.Second)
	if err != nil {
		log.Fatalf("Failed to initialize connectivity checker: %v", err)
	}
	apiClient.SetConnectivity(checker, consoleNotifier{})

	charger := charging.NewClient(apiClient, log)

	// 5. 启动监控服务器
	if cfg.Metrics.Addr != "" {
		go startMetricsServer(cfg.GetMetricsAddr(), log)
	}

	app := &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		charger: charger,
	}

	switch args[0] {
	case "status":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(2)
		}
		err = app.status(args[1])
	case "start":
		if len(args) != 3 {
			flag.Usage()
			os.Exit(2)
		}
		err = app.start(args[1], args[2])
	case "stop":
		err = app.stop()
	case "watch":
		err = app.watch()
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Errorf("Command failed: %v", err)
		os.Exit(1)
	}
}

type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *settings.Store
	charger *charging.Client
}

// status 查询并打印充电桩及其连接器状态
func (a *app) status(chargePointID string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cp, apiErr := a.charger.GetChargePoint(ctx, chargePointID)
	if apiErr != nil {
		return apiErr
	}

	fmt.Printf("Charge point %s  %s %s (%s)\n", cp.ID, cp.Vendor, cp.Model, cp.Name)
	for _, conn := range cp.Connectors {
		state := "unknown"
		if conn.State != nil {
			state = fmt.Sprintf("%s/%s", conn.State.ChargePoint, conn.State.Connector)
		}
		fmt.Printf("  connector %-4s type=%-8s max=%.1fkW  state=%s\n",
			conn.Key, conn.Type, conn.MaxPower, state)
	}
	if cp.Tariff != nil {
		fmt.Printf("  tariff: %.2f %s/kWh\n", cp.Tariff.PricePerKWh, cp.Tariff.Currency)
	}
	return a.store.SetString(ctx, settings.KeyLastChargePoint, chargePointID)
}

// start 发起充电并持续跟踪到会话结束
func (a *app) start(chargePointID, connectorKey string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cp, apiErr := a.charger.GetChargePoint(ctx, chargePointID)
	if apiErr != nil {
		return apiErr
	}

	subscriber, controller, done := a.buildLifecycle(ctx)
	defer subscriber.Stop()
	defer controller.Close()

	controller.Begin(ctx, cp, connectorKey)
	if phase := controller.Phase(); phase == lifecycle.PhaseIdle || phase == lifecycle.PhaseConnectVehicle {
		// 失败或引导路径已经由 presenter 输出
		return nil
	}

	select {
	case <-ctx.Done():
		a.log.Info("Interrupted, leaving session running")
		return nil
	case <-done:
		return nil
	}
}

// stop 停止当前活跃会话
func (a *app) stop() error {
	ctx, cancel := signalContext()
	defer cancel()

	active, apiErr := a.charger.CheckActiveSession(ctx)
	if apiErr != nil {
		return apiErr
	}
	if active == nil {
		fmt.Println("No active session")
		return nil
	}

	stopped, apiErr := a.charger.StopSession(ctx, charging.StopRequest{
		ChargePointID: active.ChargePointID,
		ConnectorKey:  active.ConnectorKey,
		CorrelationID: active.CorrelationID,
	})
	if apiErr != nil {
		return apiErr
	}
	if stopped != nil {
		printSummary(stopped)
	}
	return nil
}

// watch 接管当前活跃会话并持续输出更新
func (a *app) watch() error {
	ctx, cancel := signalContext()
	defer cancel()

	active, apiErr := a.charger.CheckActiveSession(ctx)
	if apiErr != nil {
		return apiErr
	}
	if active == nil {
		fmt.Println("No active session")
		return nil
	}

	engine := reconcile.NewEngine(a.log, 64)
	subscriber := api.NewSubscriber(api.SubscriberConfig{
		URL:              a.cfg.Subscription.URL,
		HandshakeTimeout: a.cfg.Subscription.HandshakeTimeout,
		PingInterval:     a.cfg.Subscription.PingInterval,
		ReadTimeout:      a.cfg.Subscription.ReadTimeout,
		EventBuffer:      a.cfg.Subscription.EventBuffer,
	}, a.log)
	subscriber.Start(ctx)
	defer subscriber.Stop()

	go func() {
		for event := range subscriber.Events() {
			engine.Apply(event)
		}
	}()

	engine.Seed(active)
	subscriber.SetKey(api.SubscriptionKey{
		DeviceID:      active.ChargePointID,
		CorrelationID: active.CorrelationID,
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-engine.Changes():
			if !ok {
				return nil
			}
			printChange(change)
			if change.Kind == reconcile.ChangeStopped {
				return nil
			}
		}
	}
}

// buildLifecycle 装配 start 命令需要的完整生命周期组件
func (a *app) buildLifecycle(ctx context.Context) (*api.Subscriber, *lifecycle.Controller, <-chan struct{}) {
	engine := reconcile.NewEngine(a.log, 64)
	subscriber := api.NewSubscriber(api.SubscriberConfig{
		URL:              a.cfg.Subscription.URL,
		HandshakeTimeout: a.cfg.Subscription.HandshakeTimeout,
		PingInterval:     a.cfg.Subscription.PingInterval,
		ReadTimeout:      a.cfg.Subscription.ReadTimeout,
		EventBuffer:      a.cfg.Subscription.EventBuffer,
	}, a.log)
	subscriber.Start(ctx)

	go func() {
		for event := range subscriber.Events() {
			engine.Apply(event)
		}
	}()

	done := make(chan struct{})
	presenter := &consolePresenter{done: done}
	payment := &settingsGatedPayment{store: a.store, log: a.log}

	controller := lifecycle.NewController(a.charger, engine, subscriber, presenter, payment, a.log)
	controller.Run(ctx)
	return subscriber, controller, done
}

// consolePresenter 把界面回调映射到终端输出
type consolePresenter struct {
	done chan struct{}
}

func (p *consolePresenter) ShowBusy(busy bool) {
	if busy {
		fmt.Println("Working...")
	}
}

func (p *consolePresenter) ShowAlert(alert lifecycle.Alert) {
	fmt.Printf("%s\n  %s\n  [%s]\n", alert.Title, alert.Description, alert.CTA)
}

func (p *consolePresenter) NavigateToConnectVehicle() {
	fmt.Println("Connector is not ready. Plug in the vehicle first, then retry.")
	close(p.done)
}

func (p *consolePresenter) NavigateToSummary(s *session.Session) {
	printSummary(s)
	close(p.done)
}

func (p *consolePresenter) OfferSignOut() {
	fmt.Println("Your credentials are no longer valid. Obtain a fresh SESSION_TOKEN and retry.")
}

// settingsGatedPayment 支付授权协作方。
// 设置了 payment_bypass 时直接放行，其余情况 CLI 无法完成支付流程。
type settingsGatedPayment struct {
	store *settings.Store
	log   *logger.Logger
}

func (p *settingsGatedPayment) RequestAuthorization(ctx context.Context) error {
	bypass, err := p.store.PaymentBypass(ctx)
	if err != nil {
		return err
	}
	if bypass {
		p.log.Info("Payment authorization bypassed by settings")
		return nil
	}
	return errors.New("interactive payment is not supported from the CLI; set the payment_bypass setting for this account")
}

// consoleNotifier 离线提示输出到终端
type consoleNotifier struct{}

func (consoleNotifier) NotifyOffline(message string) {
	fmt.Println(message)
}

func printChange(change reconcile.Change) {
	s := change.Session
	if s == nil {
		return
	}
	fmt.Printf("[%s] session=%s state=%s energy=%.3fkWh duration=%ds cost=%.2f\n",
		change.Kind, s.ID, s.State, s.Summary.EnergyKWh, s.Summary.DurationSeconds, s.Summary.Cost)
}

func printSummary(s *session.Session) {
	fmt.Println("Session finished")
	fmt.Printf("  session:  %s\n", s.ID)
	fmt.Printf("  energy:   %.3f kWh\n", s.Summary.EnergyKWh)
	fmt.Printf("  duration: %ds\n", s.Summary.DurationSeconds)
	fmt.Printf("  cost:     %.2f\n", s.Summary.Cost)
}

// signalContext SIGINT/SIGTERM 触发取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// startMetricsServer 启动监控服务器
func startMetricsServer(addr string, log *logger.Logger) {
	http.Handle("/metrics", promhttp.Handler())
	log.Infof("Metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Metrics server failed: %v", err)
	}
}
