package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCode 错误分类
type ErrorCode string

const (
	// ErrorCodeNetwork 传输层失败，可重试
	ErrorCodeNetwork ErrorCode = "NETWORK_ERROR"
	// ErrorCodeClient 授权或前置条件失败，不可重试，调用方应引导重新认证
	ErrorCodeClient ErrorCode = "CLIENT_ERROR"
	// ErrorCodeDefault 远端返回的结构化失败响应，原样透出
	ErrorCodeDefault ErrorCode = "DEFAULT_ERROR"
)

// Error 统一错误形态
type Error struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Body    json.RawMessage `json:"body,omitempty"`
}

// Error 实现 error 接口
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result 所有请求的统一结果形态。
// 客户端边界之内的任何失败都折叠进 Err，不向外抛异常。
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Headers http.Header     `json:"-"`
	Err     *Error          `json:"error,omitempty"`
}

// OK 构造成功结果
func OK(data json.RawMessage, headers http.Header) Result {
	return Result{Success: true, Data: data, Headers: headers}
}

// Fail 构造失败结果
func Fail(code ErrorCode, message string, body json.RawMessage) Result {
	return Result{
		Success: false,
		Err:     &Error{Code: code, Message: message, Body: body},
	}
}

// DecodeInto 将成功结果的数据解码到目标结构
func (r Result) DecodeInto(target interface{}) error {
	if !r.Success {
		return r.Err
	}
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, target); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}

// IsClientError 判断是否为授权类失败
func (r Result) IsClientError() bool {
	return r.Err != nil && r.Err.Code == ErrorCodeClient
}

// IsNetworkError 判断是否为传输层失败
func (r Result) IsNetworkError() bool {
	return r.Err != nil && r.Err.Code == ErrorCodeNetwork
}
