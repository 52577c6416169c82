package charging

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/charging-platform/charging-session-client/internal/api"
	"github.com/charging-platform/charging-session-client/internal/domain/chargepoint"
	"github.com/charging-platform/charging-session-client/internal/domain/session"
	"github.com/charging-platform/charging-session-client/internal/domain/status"
	"github.com/charging-platform/charging-session-client/internal/logger"
)

// Client 充电领域客户端。
// 在统一 API 客户端之上提供类型化操作，所有原始状态码
// 在本层经过状态表解析，不会泄漏给调用方。
type Client struct {
	api      *api.Client
	validate *validator.Validate
	logger   *logger.Logger
}

// NewClient 创建充电领域客户端
func NewClient(apiClient *api.Client, log *logger.Logger) *Client {
	return &Client{
		api:      apiClient,
		validate: validator.New(),
		logger:   log.Component("charging-client"),
	}
}

// 充电桩接口的原始响应结构

type chargePointDTO struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Vendor     string         `json:"vendor"`
	Model      string         `json:"model"`
	Connectors []connectorDTO `json:"connectors"`
}

type connectorDTO struct {
	Key                string  `json:"key"`
	Type               string  `json:"type"`
	MaxPower           float64 `json:"max_power"`
	ChargePointStateID *int    `json:"chargepoint_state_id"`
	ConnectorStateID   *int    `json:"connector_state_id"`
}

// decorate 解析原始状态码并组装领域模型
func (dto chargePointDTO) decorate() chargepoint.ChargePoint {
	cp := chargepoint.ChargePoint{
		ID:        dto.ID,
		Name:      dto.Name,
		Vendor:    dto.Vendor,
		Model:     dto.Model,
		FetchedAt: time.Now().UTC(),
	}

	for _, raw := range dto.Connectors {
		conn := chargepoint.Connector{
			Key:      raw.Key,
			Type:     chargepoint.ResolveConnectorType(raw.Type),
			MaxPower: raw.MaxPower,
		}
		// 任一状态码缺失按约定的未知码处理，连接器本身仍然存在
		if raw.ChargePointStateID != nil || raw.ConnectorStateID != nil {
			cpCode, connCode := status.UnknownCode, status.UnknownCode
			if raw.ChargePointStateID != nil {
				cpCode = *raw.ChargePointStateID
			}
			if raw.ConnectorStateID != nil {
				connCode = *raw.ConnectorStateID
			}
			conn.State = &chargepoint.State{
				ChargePoint: status.ResolveChargePointState(cpCode),
				Connector:   status.ResolveConnectorState(connCode),
			}
		}
		cp.Connectors = append(cp.Connectors, conn)
	}
	return cp
}

// GetChargePoint 获取充电桩详情，含设备拓扑和资费两次独立调用。
// 资费调用失败时静默降级（Tariff 置空），拓扑部分照常返回。
func (c *Client) GetChargePoint(ctx context.Context, id string) (*chargepoint.ChargePoint, *api.Error) {
	result := c.api.Do(ctx, api.Request{
		Operation: "get_charge_point",
		Method:    http.MethodGet,
		Path:      "/chargepoints/" + url.PathEscape(id),
		Cacheable: true,
	})
	if !result.Success {
		return nil, result.Err
	}

	var dto chargePointDTO
	if err := result.DecodeInto(&dto); err != nil {
		return nil, &api.Error{Code: api.ErrorCodeDefault, Message: err.Error()}
	}
	cp := dto.decorate()

	tariff, tariffErr := c.GetTariff(ctx, id)
	if tariffErr != nil {
		c.logger.Warnf("tariff lookup for %s failed, degrading without tariff: %s", id, tariffErr.Message)
	} else {
		cp.Tariff = tariff
	}
	return &cp, nil
}

// GetChargePointPartial 按标识前缀搜索充电桩
func (c *Client) GetChargePointPartial(ctx context.Context, idPrefix string) ([]chargepoint.ChargePoint, *api.Error) {
	query := url.Values{}
	query.Set("id_prefix", idPrefix)

	result := c.api.Do(ctx, api.Request{
		Operation: "search_charge_points",
		Method:    http.MethodGet,
		Path:      "/chargepoints",
		Encoding:  api.EncodingQuery,
		Query:     query,
		Cacheable: true,
	})
	if !result.Success {
		return nil, result.Err
	}

	var dtos []chargePointDTO
	if err := result.DecodeInto(&dtos); err != nil {
		return nil, &api.Error{Code: api.ErrorCodeDefault, Message: err.Error()}
	}

	points := make([]chargepoint.ChargePoint, 0, len(dtos))
	for _, dto := range dtos {
		points = append(points, dto.decorate())
	}
	return points, nil
}

// GetTariff 获取充电桩的资费信息，走独立的资费 transport
func (c *Client) GetTariff(ctx context.Context, chargePointID string) (*chargepoint.Tariff, *api.Error) {
	result := c.api.Do(ctx, api.Request{
		Operation: "get_tariff",
		Method:    http.MethodGet,
		Path:      "/tariffs/" + url.PathEscape(chargePointID),
		Cacheable: true,
	})
	if !result.Success {
		return nil, result.Err
	}

	var tariff chargepoint.Tariff
	if err := result.DecodeInto(&tariff); err != nil {
		return nil, &api.Error{Code: api.ErrorCodeDefault, Message: err.Error()}
	}
	return &tariff, nil
}

// StartRequest 发起充电请求
type StartRequest struct {
	ChargePointID string `json:"charge_point_id" validate:"required"`
	ConnectorKey  string `json:"connector_key" validate:"required"`
	// Tag 客户端命令标识，远端用于去重；为空时自动生成
	Tag string `json:"tag"`
}

// StopRequest 停止充电请求
type StopRequest struct {
	ChargePointID string `json:"charge_point_id" validate:"required"`
	ConnectorKey  string `json:"connector_key" validate:"required"`
	CorrelationID string `json:"emp_session_id" validate:"required"`
	Tag           string `json:"tag"`
}

// StartSession 发起充电会话。
// 客户端不做并发去重，同一连接器至多一个进行中的 start 由调用方保证。
func (c *Client) StartSession(ctx context.Context, req StartRequest) (*session.Session, *api.Error) {
	if req.Tag == "" {
		req.Tag = uuid.New().String()
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, &api.Error{Code: api.ErrorCodeDefault, Message: fmt.Sprintf("invalid start request: %v", err)}
	}

	result := c.api.Do(ctx, api.Request{
		Operation: "start_session",
		Method:    http.MethodPost,
		Path:      "/sessions",
		Encoding:  api.EncodingJSON,
		Body:      req,
	})
	if !result.Success {
		return nil, result.Err
	}
	return decodeSession(result)
}

// StopSession 停止充电会话
func (c *Client) StopSession(ctx context.Context, req StopRequest) (*session.Session, *api.Error) {
	if req.Tag == "" {
		req.Tag = uuid.New().String()
	}
	if err := c.validate.Struct(req); err != nil {
		return nil, &api.Error{Code: api.ErrorCodeDefault, Message: fmt.Sprintf("invalid stop request: %v", err)}
	}

	result := c.api.Do(ctx, api.Request{
		Operation: "stop_session",
		Method:    http.MethodPost,
		Path:      "/sessions/stop",
		Encoding:  api.EncodingJSON,
		Body:      req,
	})
	if !result.Success {
		return nil, result.Err
	}
	return decodeSession(result)
}

// GetCurrentSession 获取指定充电桩上当前的会话。
// 无匹配记录表示没有活跃会话，返回 (nil, nil) 而不是错误。
func (c *Client) GetCurrentSession(ctx context.Context, chargePointID string) (*session.Session, *api.Error) {
	query := url.Values{}
	query.Set("charge_point_id", chargePointID)

	result := c.api.Do(ctx, api.Request{
		Operation: "get_current_session",
		Method:    http.MethodGet,
		Path:      "/sessions/current",
		Encoding:  api.EncodingQuery,
		Query:     query,
	})
	if !result.Success {
		return nil, result.Err
	}
	if emptyPayload(result) {
		return nil, nil
	}
	return decodeSession(result)
}

// GetSessionByID 按会话ID获取会话
func (c *Client) GetSessionByID(ctx context.Context, chargePointID, sessionID string) (*session.Session, *api.Error) {
	query := url.Values{}
	query.Set("charge_point_id", chargePointID)

	result := c.api.Do(ctx, api.Request{
		Operation: "get_session_by_id",
		Method:    http.MethodGet,
		Path:      "/sessions/" + url.PathEscape(sessionID),
		Encoding:  api.EncodingQuery,
		Query:     query,
	})
	if !result.Success {
		return nil, result.Err
	}
	if emptyPayload(result) {
		return nil, nil
	}
	return decodeSession(result)
}

// CheckActiveSession 前置检查：是否存在进行中的会话。
// 只认 running 状态；远端返回多条时按时间倒序取最新一条为准。
func (c *Client) CheckActiveSession(ctx context.Context) (*session.Session, *api.Error) {
	result := c.api.Do(ctx, api.Request{
		Operation: "check_active_session",
		Method:    http.MethodGet,
		Path:      "/sessions/active",
	})
	if !result.Success {
		return nil, result.Err
	}
	if emptyPayload(result) {
		return nil, nil
	}

	var sessions []session.Session
	if err := result.DecodeInto(&sessions); err != nil {
		return nil, &api.Error{Code: api.ErrorCodeDefault, Message: err.Error()}
	}

	running := sessions[:0]
	for _, s := range sessions {
		if s.IsRunning() {
			running = append(running, s)
		}
	}
	if len(running) == 0 {
		return nil, nil
	}

	sort.SliceStable(running, func(i, j int) bool {
		return sessionTimestamp(&running[i]).After(sessionTimestamp(&running[j]))
	})

	active := running[0]
	active.Recompute()
	return &active, nil
}

// Pagination 分页参数
type Pagination struct {
	Page     int
	PageSize int
}

// SessionFilter 会话列表过滤条件
type SessionFilter struct {
	State         session.State
	ChargePointID string
}

// ListSessions 分页查询历史会话
func (c *Client) ListSessions(ctx context.Context, page Pagination, filter SessionFilter) ([]session.Session, *api.Error) {
	query := url.Values{}
	if page.Page > 0 {
		query.Set("page", strconv.Itoa(page.Page))
	}
	if page.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(page.PageSize))
	}
	if filter.State != "" {
		query.Set("state", string(filter.State))
	}
	if filter.ChargePointID != "" {
		query.Set("charge_point_id", filter.ChargePointID)
	}

	result := c.api.Do(ctx, api.Request{
		Operation: "list_sessions",
		Method:    http.MethodGet,
		Path:      "/sessions",
		Encoding:  api.EncodingQuery,
		Query:     query,
	})
	if !result.Success {
		return nil, result.Err
	}

	var sessions []session.Session
	if err := result.DecodeInto(&sessions); err != nil {
		return nil, &api.Error{Code: api.ErrorCodeDefault, Message: err.Error()}
	}
	for i := range sessions {
		sessions[i].Recompute()
	}
	return sessions, nil
}

// decodeSession 解码会话响应并重算派生汇总
func decodeSession(result api.Result) (*session.Session, *api.Error) {
	var s session.Session
	if err := result.DecodeInto(&s); err != nil {
		return nil, &api.Error{Code: api.ErrorCodeDefault, Message: err.Error()}
	}
	s.Recompute()
	return &s, nil
}

// emptyPayload 判断成功响应是否不含记录
func emptyPayload(result api.Result) bool {
	trimmed := bytes.TrimSpace(result.Data)
	return len(trimmed) == 0 ||
		bytes.Equal(trimmed, []byte("null")) ||
		bytes.Equal(trimmed, []byte("{}")) ||
		bytes.Equal(trimmed, []byte("[]"))
}

// sessionTimestamp 取会话的排序时间，优先最近更新时间
func sessionTimestamp(s *session.Session) time.Time {
	if s.UpdatedAt != nil {
		return *s.UpdatedAt
	}
	if s.StartTime != nil {
		return *s.StartTime
	}
	return time.Time{}
}
