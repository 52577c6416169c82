// simulator 是开发调试用的模拟后端：提供充电桩/资费/会话 HTTP 接口
// 和一个按脚本回放会话更新的 WebSocket 推送端点。
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/charging-platform/charging-session-client/internal/domain/session"
	"github.com/charging-platform/charging-session-client/internal/logger"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	interval := flag.Duration("interval", 2*time.Second, "push update interval")
	updates := flag.Int("updates", 10, "number of running updates before the session closes")
	flag.Parse()

	log, err := logger.New(&logger.Config{Level: "debug", Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	sim := newSimulator(*interval, *updates, log)

	r := chi.NewRouter()
	r.Get("/chargepoints", sim.searchChargePoints)
	r.Get("/chargepoints/{chargePointId}", sim.getChargePoint)
	r.Get("/tariffs/{chargePointId}", sim.getTariff)

	r.Post("/sessions", sim.startSession)
	r.Post("/sessions/stop", sim.stopSession)
	r.Get("/sessions", sim.listSessions)
	r.Get("/sessions/active", sim.activeSessions)
	r.Get("/sessions/current", sim.currentSession)
	r.Get("/sessions/{sessionId}", sim.getSession)

	r.Get("/push", sim.serveWS)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	server := &http.Server{Addr: *addr, Handler: r}
	go func() {
		log.Infof("Simulator listening on %s", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Simulator server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down simulator...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}

// simulator 单实例内存状态。同一时间至多一个脚本会话在回放。
type simulator struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	active   string // 正在回放的会话ID，空表示无
	replayCh chan struct{}

	subscribers map[*subscriber]struct{}

	interval time.Duration
	updates  int
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

type subscriber struct {
	deviceID      string
	correlationID string
	out           chan session.UpdateEvent
}

func newSimulator(interval time.Duration, updates int, log *logger.Logger) *simulator {
	return &simulator{
		sessions:    make(map[string]*session.Session),
		subscribers: make(map[*subscriber]struct{}),
		interval:    interval,
		updates:     updates,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.Component("simulator"),
	}
}

// 固定的演示充电桩拓扑

type connectorDTO struct {
	Key                string  `json:"key"`
	Type               string  `json:"type"`
	MaxPower           float64 `json:"max_power"`
	ChargePointStateID *int    `json:"chargepoint_state_id"`
	ConnectorStateID   *int    `json:"connector_state_id"`
}

type chargePointDTO struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Vendor     string         `json:"vendor"`
	Model      string         `json:"model"`
	Connectors []connectorDTO `json:"connectors"`
}

func demoChargePoint(id string) chargePointDTO {
	available, preparing := 1, 2
	return chargePointDTO{
		ID:     id,
		Name:   "Demo Plaza " + id,
		Vendor: "SimuVolt",
		Model:  "SV-250",
		Connectors: []connectorDTO{
			{Key: "1", Type: "CCS2", MaxPower: 150, ChargePointStateID: &available, ConnectorStateID: &preparing},
			{Key: "2", Type: "Type2", MaxPower: 22, ChargePointStateID: &available, ConnectorStateID: &available},
		},
	}
}

func (s *simulator) getChargePoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "chargePointId")
	writeJSON(w, demoChargePoint(id))
}

func (s *simulator) searchChargePoints(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("id_prefix")
	if prefix == "" {
		writeJSON(w, []chargePointDTO{})
		return
	}
	writeJSON(w, []chargePointDTO{demoChargePoint(prefix + "001"), demoChargePoint(prefix + "002")})
}

func (s *simulator) getTariff(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"id":            chi.URLParam(r, "chargePointId"),
		"currency":      "EUR",
		"price_per_kwh": 0.42,
		"price_per_min": 0.02,
		"base_fee":      0.50,
	})
}

type startReq struct {
	ChargePointID string `json:"charge_point_id"`
	ConnectorKey  string `json:"connector_key"`
	Tag           string `json:"tag"`
}

func (s *simulator) startSession(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if req.ChargePointID == "" || req.ConnectorKey == "" {
		writeError(w, http.StatusConflict, "missing_fields")
		return
	}

	s.mu.Lock()
	if s.active != "" {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "connector_occupied")
		return
	}

	now := time.Now().UTC()
	meterStart := int64(120000)
	sess := &session.Session{
		ID:            uuid.New().String(),
		CorrelationID: "emp-" + uuid.New().String(),
		ChargePointID: req.ChargePointID,
		ConnectorKey:  req.ConnectorKey,
		State:         session.StateRunning,
		StartTime:     &now,
		UpdatedAt:     &now,
		MeterStart:    &meterStart,
	}
	s.sessions[sess.ID] = sess
	s.active = sess.ID
	stop := make(chan struct{})
	s.replayCh = stop
	s.mu.Unlock()

	s.logger.Infof("session %s started on %s/%s", sess.ID, req.ChargePointID, req.ConnectorKey)
	go s.replay(sess.ID, stop)

	writeJSON(w, sess)
}

type stopReq struct {
	CorrelationID string `json:"emp_session_id"`
}

func (s *simulator) stopSession(w http.ResponseWriter, r *http.Request) {
	var req stopReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	var target *session.Session
	for _, sess := range s.sessions {
		if sess.CorrelationID == req.CorrelationID && sess.IsRunning() {
			target = sess
			break
		}
	}
	if target == nil {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "session_not_found")
		return
	}
	s.closeLocked(target)
	snapshot := *target
	s.mu.Unlock()

	writeJSON(w, snapshot)
}

func (s *simulator) listSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	writeJSON(w, out)
}

func (s *simulator) activeSessions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*session.Session, 0, 1)
	for _, sess := range s.sessions {
		if sess.IsRunning() {
			out = append(out, sess)
		}
	}
	writeJSON(w, out)
}

func (s *simulator) currentSession(w http.ResponseWriter, r *http.Request) {
	chargePointID := r.URL.Query().Get("charge_point_id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ChargePointID == chargePointID && sess.IsRunning() {
			writeJSON(w, sess)
			return
		}
	}
	writeJSON(w, nil)
}

func (s *simulator) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionId")
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		writeJSON(w, sess)
		return
	}
	http.NotFound(w, r)
}

// replay 按脚本推进会话：固定间隔下发 running 更新，随后关闭
func (s *simulator) replay(sessionID string, stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 1; i <= s.updates; i++ {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		sess, ok := s.sessions[sessionID]
		if !ok || !sess.IsRunning() {
			s.mu.Unlock()
			return
		}
		now := time.Now().UTC()
		meterEnd := *sess.MeterStart + int64(i)*250
		cost := float64(i) * 0.11
		sess.UpdatedAt = &now
		sess.MeterEnd = &meterEnd
		sess.EstimatedCost = &cost
		event := session.UpdateEvent{
			DeviceID:      sess.ChargePointID,
			CorrelationID: sess.CorrelationID,
			SessionID:     sess.ID,
			UpdatedAt:     &now,
			MeterEnd:      &meterEnd,
			EstimatedCost: &cost,
		}
		s.broadcastLocked(event)
		s.mu.Unlock()
	}

	s.mu.Lock()
	if sess, ok := s.sessions[sessionID]; ok && sess.IsRunning() {
		s.closeLocked(sess)
	}
	s.mu.Unlock()
}

// closeLocked 关闭会话并广播终态事件。调用方持有 s.mu。
func (s *simulator) closeLocked(sess *session.Session) {
	now := time.Now().UTC()
	closed := session.StateClosed
	sess.State = closed
	sess.EndTime = &now
	sess.UpdatedAt = &now
	if s.active == sess.ID {
		s.active = ""
		if s.replayCh != nil {
			close(s.replayCh)
			s.replayCh = nil
		}
	}

	s.broadcastLocked(session.UpdateEvent{
		DeviceID:      sess.ChargePointID,
		CorrelationID: sess.CorrelationID,
		SessionID:     sess.ID,
		State:         &closed,
		UpdatedAt:     &now,
		MeterEnd:      sess.MeterEnd,
		EstimatedCost: sess.EstimatedCost,
	})
	s.logger.Infof("session %s closed", sess.ID)
}

// broadcastLocked 把事件分发给匹配的订阅者。调用方持有 s.mu。
func (s *simulator) broadcastLocked(event session.UpdateEvent) {
	for sub := range s.subscribers {
		if sub.deviceID != event.DeviceID || sub.correlationID != event.CorrelationID {
			continue
		}
		select {
		case sub.out <- event:
		default:
			s.logger.Warnf("subscriber channel full, dropping event for %s", event.CorrelationID)
		}
	}
}

// serveWS 推送端点。按 device_id + emp_session_id 过滤下发。
func (s *simulator) serveWS(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	correlationID := r.URL.Query().Get("emp_session_id")
	if deviceID == "" || correlationID == "" {
		http.Error(w, "device_id and emp_session_id are required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("websocket upgrade failed: %v", err)
		return
	}

	sub := &subscriber{
		deviceID:      deviceID,
		correlationID: correlationID,
		out:           make(chan session.UpdateEvent, 16),
	}
	s.mu.Lock()
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()
	s.logger.Infof("push subscriber attached: %s/%s", deviceID, correlationID)

	defer func() {
		s.mu.Lock()
		delete(s.subscribers, sub)
		s.mu.Unlock()
		conn.Close()
	}()

	// 读循环只用于探测断开
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case event := <-sub.out:
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Warnf("push write failed: %v", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeError 以调用方期待的结构化失败响应返回
func writeError(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"reason": reason})
}
