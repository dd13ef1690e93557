package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantType string
		wantID   string
		wantErr  error
	}{
		{"incoming", `{"type":"incoming","emergency":{"callSid":"A","status":"new"}}`, TypeIncoming, "A", nil},
		{"status", `{"type":"status","callSid":"A","status":"active"}`, TypeStatus, "A", nil},
		{"remove", `{"type":"remove","callSid":"A"}`, TypeRemove, "A", nil},
		{"bad json", `{"type":`, "", "", ErrMalformed},
		{"not an object", `"incoming"`, "", "", ErrMalformed},
		{"incoming without emergency", `{"type":"incoming"}`, "", "", ErrMalformed},
		{"incoming without id", `{"type":"incoming","emergency":{"status":"new"}}`, "", "", ErrMalformed},
		{"status without status", `{"type":"status","callSid":"A"}`, "", "", ErrMalformed},
		{"remove without callSid", `{"type":"remove"}`, "", "", ErrMalformed},
		{"unknown type", `{"type":"heartbeat"}`, "", "", ErrUnrecognized},
		{"missing type", `{"callSid":"A"}`, "", "", ErrUnrecognized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeMessage([]byte(tt.payload))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, msg.Type)
			assert.Equal(t, tt.wantID, msg.TargetID())
			assert.JSONEq(t, tt.payload, string(msg.Raw))
		})
	}
}

func TestDecodeMessage_StatusFields(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"status","callSid":"CA9","status":"resolved"}`))
	require.NoError(t, err)
	assert.Equal(t, "CA9", msg.CallSid)
	assert.Equal(t, "resolved", msg.Status)
}
