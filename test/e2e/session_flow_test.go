package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charging-session-client/internal/api"
	"github.com/charging-platform/charging-session-client/internal/charging"
	"github.com/charging-platform/charging-session-client/internal/domain/session"
	"github.com/charging-platform/charging-session-client/internal/lifecycle"
	"github.com/charging-platform/charging-session-client/internal/logger"
	"github.com/charging-platform/charging-session-client/internal/reconcile"
)

// scriptedBackend 组合 HTTP 接口和推送端点的测试后端。
// 收到 start 命令后接受订阅，并按脚本回放会话更新直至关闭。
type scriptedBackend struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu            sync.Mutex
	correlationID string
	started       bool
}

func newScriptedBackend(t *testing.T) *scriptedBackend {
	t.Helper()
	b := &scriptedBackend{correlationID: "emp-e2e-1"}

	r := chi.NewRouter()
	r.Get("/chargepoints/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{
			"id":     chi.URLParam(req, "id"),
			"name":   "E2E Plaza",
			"vendor": "SimuVolt",
			"model":  "SV-250",
			"connectors": []map[string]any{
				{"key": "1", "type": "CCS2", "max_power": 150.0, "chargepoint_state_id": 1, "connector_state_id": 2},
			},
		})
	})
	r.Get("/tariffs/{id}", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{"id": chi.URLParam(req, "id"), "currency": "EUR", "price_per_kwh": 0.40})
	})
	r.Get("/sessions/active", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, []any{})
	})
	r.Post("/sessions", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			ChargePointID string `json:"charge_point_id"`
			ConnectorKey  string `json:"connector_key"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

		b.mu.Lock()
		b.started = true
		b.mu.Unlock()

		now := time.Now().UTC().Format(time.RFC3339)
		writeJSON(w, map[string]any{
			"id":              "sess-e2e-1",
			"emp_session_id":  b.correlationID,
			"charge_point_id": body.ChargePointID,
			"connector_key":   body.ConnectorKey,
			"state":           "running",
			"start_time":      now,
			"updated_at":      now,
			"meter_start":     1000,
		})
	})
	r.Get("/push", b.serveWS)

	b.server = httptest.NewServer(r)
	return b
}

// serveWS 订阅建立后回放两条 running 更新和一条 closed 事件
func (b *scriptedBackend) serveWS(w http.ResponseWriter, req *http.Request) {
	if req.URL.Query().Get("device_id") == "" || req.URL.Query().Get("emp_session_id") != b.correlationID {
		http.Error(w, "unexpected subscription key", http.StatusBadRequest)
		return
	}

	conn, err := b.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	frames := []string{
		`{"device_id":"cp-1","emp_session_id":"emp-e2e-1","session_id":"sess-e2e-1","state":"running","meter_end":3000,"updated_at":"` + now + `"}`,
		`{"device_id":"cp-1","emp_session_id":"emp-e2e-1","session_id":"sess-e2e-1","meter_end":6000,"estimated_cost":2.0,"updated_at":"` + now + `"}`,
		`{"device_id":"cp-1","emp_session_id":"emp-e2e-1","session_id":"sess-e2e-1","state":"closed","meter_end":9000,"estimated_cost":3.2,"updated_at":"` + now + `"}`,
	}
	for _, frame := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type recordingPresenter struct {
	mu        sync.Mutex
	summaries []*session.Session
	alerts    []lifecycle.Alert
}

func (p *recordingPresenter) ShowBusy(bool)              {}
func (p *recordingPresenter) NavigateToConnectVehicle()  {}
func (p *recordingPresenter) OfferSignOut()              {}
func (p *recordingPresenter) ShowAlert(a lifecycle.Alert) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
}
func (p *recordingPresenter) NavigateToSummary(s *session.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summaries = append(p.summaries, s)
}
func (p *recordingPresenter) summaryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.summaries)
}

type autoApprovePayment struct{}

func (autoApprovePayment) RequestAuthorization(context.Context) error { return nil }

// TestCompleteChargingSessionFlow 完整充电流程：
// 发起充电 → 订阅确认 → 推送更新 → 远端关闭 → 结束汇总
func TestCompleteChargingSessionFlow(t *testing.T) {
	backend := newScriptedBackend(t)
	defer backend.server.Close()

	log, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	apiClient := api.NewClient(api.ClientConfig{
		BaseURL: backend.server.URL,
		Timeout: 5 * time.Second,
	}, api.StaticTokenSource("e2e-token"), log)
	charger := charging.NewClient(apiClient, log)

	engine := reconcile.NewEngine(log, 64)
	subscriber := api.NewSubscriber(api.SubscriberConfig{
		URL:            "ws" + strings.TrimPrefix(backend.server.URL, "http") + "/push",
		ReconnectDelay: 50 * time.Millisecond,
	}, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	subscriber.Start(ctx)
	defer subscriber.Stop()
	go func() {
		for event := range subscriber.Events() {
			engine.Apply(event)
		}
	}()

	presenter := &recordingPresenter{}
	controller := lifecycle.NewController(charger, engine, subscriber, presenter, autoApprovePayment{}, log)
	controller.Run(ctx)
	defer controller.Close()

	cp, apiErr := charger.GetChargePoint(ctx, "cp-1")
	require.Nil(t, apiErr)
	require.NotNil(t, cp.Tariff)

	controller.Begin(ctx, cp, "1")
	require.Empty(t, presenter.alerts)

	// 会话确认并最终收敛到终态
	require.Eventually(t, func() bool {
		return controller.Phase() == lifecycle.PhaseStopped && presenter.summaryCount() == 1
	}, 8*time.Second, 25*time.Millisecond)

	final := presenter.summaries[0]
	require.NotNil(t, final)
	assert.Equal(t, session.StateClosed, final.State)
	assert.InDelta(t, 8.0, final.Summary.EnergyKWh, 0.001)
	assert.Equal(t, 3.2, final.Summary.Cost)
	assert.NotNil(t, final.EndTime)

	// 终态后快照保留，最后一帧遥测仍可读取
	snapshot := engine.Snapshot()
	require.NotNil(t, snapshot)
	assert.Equal(t, "sess-e2e-1", snapshot.ID)
}
