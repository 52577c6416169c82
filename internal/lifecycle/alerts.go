package lifecycle

import (
	"encoding/json"

	"github.com/charging-platform/charging-session-client/internal/api"
)

// Alert 展示给用户的错误提示
type Alert struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	CTA         string `json:"cta"`
}

// alertDictionary 远端错误原因到提示文案的映射
var alertDictionary = map[string]Alert{
	"connector_occupied": {
		Title:       "Connector busy",
		Description: "This connector is already in use. Please pick another connector or charge point.",
		CTA:         "Choose another",
	},
	"charge_point_offline": {
		Title:       "Charge point offline",
		Description: "The charge point is not reachable right now. Try again in a few minutes.",
		CTA:         "Retry",
	},
	"payment_required": {
		Title:       "Payment needed",
		Description: "We could not authorize the payment for this session. Check your payment method.",
		CTA:         "Review payment",
	},
	"session_not_found": {
		Title:       "Session not found",
		Description: "The charging session could not be found. It may have already ended.",
		CTA:         "OK",
	},
	"tag_rejected": {
		Title:       "Request rejected",
		Description: "The charge point rejected the request. Please try again.",
		CTA:         "Retry",
	},
}

// genericAlert 无法识别的错误使用的兜底文案
var genericAlert = Alert{
	Title:       "Something went wrong",
	Description: "An unknown error occurred. Please try again.",
	CTA:         "OK",
}

// networkAlert 传输层失败的提示
var networkAlert = Alert{
	Title:       "Connection problem",
	Description: "We could not reach the charging service. Check your connection and try again.",
	CTA:         "Retry",
}

// authAlert 授权失败的提示
var authAlert = Alert{
	Title:       "Signed out",
	Description: "Your session is no longer valid. Please sign in again.",
	CTA:         "Sign in",
}

// ResolveAlert 把统一错误解析为用户提示。
// 结构化失败按错误体中的 reason 查表，查不到时回落到兜底文案。
func ResolveAlert(err *api.Error) Alert {
	if err == nil {
		return genericAlert
	}

	switch err.Code {
	case api.ErrorCodeNetwork:
		return networkAlert
	case api.ErrorCodeClient:
		return authAlert
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if len(err.Body) > 0 {
		if jsonErr := json.Unmarshal(err.Body, &body); jsonErr == nil {
			if alert, ok := alertDictionary[body.Reason]; ok {
				return alert
			}
		}
	}
	return genericAlert
}
