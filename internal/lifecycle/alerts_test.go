package lifecycle

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/charging-platform/charging-session-client/internal/api"
)

func TestResolveAlert(t *testing.T) {
	tests := []struct {
		name string
		err  *api.Error
		want Alert
	}{
		{
			name: "nil error falls back to generic",
			err:  nil,
			want: genericAlert,
		},
		{
			name: "network error",
			err:  &api.Error{Code: api.ErrorCodeNetwork, Message: "request failed after retries"},
			want: networkAlert,
		},
		{
			name: "client error maps to sign-in prompt",
			err:  &api.Error{Code: api.ErrorCodeClient, Message: "token expired"},
			want: authAlert,
		},
		{
			name: "known remote reason",
			err: &api.Error{
				Code: api.ErrorCodeDefault,
				Body: json.RawMessage(`{"reason":"connector_occupied"}`),
			},
			want: alertDictionary["connector_occupied"],
		},
		{
			name: "unknown remote reason falls back to generic",
			err: &api.Error{
				Code: api.ErrorCodeDefault,
				Body: json.RawMessage(`{"reason":"totally_new_reason"}`),
			},
			want: genericAlert,
		},
		{
			name: "malformed body falls back to generic",
			err: &api.Error{
				Code: api.ErrorCodeDefault,
				Body: json.RawMessage(`not json`),
			},
			want: genericAlert,
		},
		{
			name: "missing body falls back to generic",
			err:  &api.Error{Code: api.ErrorCodeDefault, Message: "remote failure"},
			want: genericAlert,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveAlert(tt.err))
		})
	}
}

func TestAlertDictionaryCoversKnownReasons(t *testing.T) {
	for _, reason := range []string{
		"connector_occupied",
		"charge_point_offline",
		"payment_required",
		"session_not_found",
		"tag_rejected",
	} {
		alert, ok := alertDictionary[reason]
		assert.True(t, ok, "missing alert for reason %s", reason)
		assert.NotEmpty(t, alert.Title)
		assert.NotEmpty(t, alert.Description)
		assert.NotEmpty(t, alert.CTA)
	}
}
