package emergency

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_BackendShape(t *testing.T) {
	data := []byte(`{
		"callSid": "CA1234567890",
		"status": "active",
		"priority": "High",
		"createdAt": "2025-03-01T10:00:00Z",
		"updatedAt": 1740823500000,
		"callerNumber": "+15550100",
		"extracted": {"nature": "Fire", "priority": "critical"},
		"station": "north"
	}`)

	r, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, "CA1234567890", r.ID)
	assert.Equal(t, "active", r.Status)
	assert.Equal(t, PriorityHigh, r.Priority)
	assert.True(t, r.CreatedAt.Equal(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.UnixMilli(1740823500000).UTC(), r.UpdatedAt)
	assert.Equal(t, "Fire", r.EffectiveNature())
	assert.Equal(t, "+15550100", r.DisplayCaller())
	assert.JSONEq(t, `"north"`, string(r.Extra["station"]))
	assert.NotContains(t, r.Extra, "callSid")
}

func TestDecode_IDFallback(t *testing.T) {
	r, err := Decode([]byte(`{"id":"A","updatedAt":10}`))
	require.NoError(t, err)
	assert.Equal(t, "A", r.ID)
	assert.Equal(t, time.UnixMilli(10).UTC(), r.SortKey())
}

func TestDecode_MissingID(t *testing.T) {
	_, err := Decode([]byte(`{"status":"new"}`))
	assert.ErrorIs(t, err, ErrMissingID)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"callSid":`))
	assert.Error(t, err)
}

func TestDecode_UnparseableTimestampIsAbsent(t *testing.T) {
	r, err := Decode([]byte(`{"id":"A","updatedAt":"yesterday","createdAt":null}`))
	require.NoError(t, err)
	assert.True(t, r.UpdatedAt.IsZero())
	assert.True(t, r.SortKey().IsZero())
}

func TestDecode_OutOfRangeTimestampIsAbsent(t *testing.T) {
	for _, raw := range []string{"1e300", "-1e300", "9223372036854775808", "-9.3e18"} {
		r, err := Decode([]byte(`{"id":"A","createdAt":1000,"updatedAt":` + raw + `}`))
		require.NoError(t, err, raw)
		assert.True(t, r.UpdatedAt.IsZero(), "updatedAt %s should be absent, got %v", raw, r.UpdatedAt)
		assert.Equal(t, time.UnixMilli(1000).UTC(), r.SortKey(), raw)
	}

	r, err := Decode([]byte(`{"id":"A","updatedAt":1500.9}`))
	require.NoError(t, err)
	assert.Equal(t, time.UnixMilli(1500).UTC(), r.UpdatedAt)
}

func TestDecodeList(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"array", `[{"callSid":"A"},{"callSid":"B"}]`, []string{"A", "B"}},
		{"empty array", `[]`, []string{}},
		{"object body", `{"error":"nope"}`, []string{}},
		{"empty body", ``, []string{}},
		{"entries without id skipped", `[{"callSid":"A"},{"status":"new"},42]`, []string{"A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeList([]byte(tt.body))
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, r := range got {
				ids[i] = r.ID
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestMarshalJSON_PreservesExtraAndEmitsBothKeys(t *testing.T) {
	r, err := Decode([]byte(`{"callSid":"A","status":"new","phone":"+1555","extracted":{"k":1}}`))
	require.NoError(t, err)

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, "A", out["id"])
	assert.Equal(t, "A", out["callSid"])
	assert.Equal(t, "new", out["status"])
	assert.Equal(t, "+1555", out["phone"])
	assert.Equal(t, map[string]any{"k": float64(1)}, out["extracted"])
	assert.NotContains(t, out, "priority")
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityCritical, ParsePriority(" CRITICAL "))
	assert.Equal(t, PriorityMedium, ParsePriority("Medium"))
	assert.Equal(t, Priority(""), ParsePriority("urgent"))
}

func TestEffectivePriority(t *testing.T) {
	assert.Equal(t, PriorityLow, Record{ID: "A"}.EffectivePriority())
	assert.Equal(t, PriorityCritical, Record{ID: "A", Extracted: json.RawMessage(`{"priority":"Critical"}`)}.EffectivePriority())
	assert.Equal(t, PriorityHigh, Record{ID: "A", Priority: PriorityHigh, Extracted: json.RawMessage(`{"priority":"low"}`)}.EffectivePriority())
}

func TestEffectiveNature_Fallbacks(t *testing.T) {
	assert.Equal(t, "Flood", Record{Extracted: json.RawMessage(`{"natureOfEmergency":"Flood"}`)}.EffectiveNature())
	assert.Equal(t, "Top", Record{Nature: "Top", Extracted: json.RawMessage(`{"nature":"Nested"}`)}.EffectiveNature())
	assert.Equal(t, "", Record{}.EffectiveNature())
}

func TestTail(t *testing.T) {
	assert.Equal(t, "567890", Record{ID: "CA1234567890"}.Tail())
	assert.Equal(t, "abc", Record{ID: "abc"}.Tail())
	assert.Equal(t, "—", Record{}.Tail())
}

func TestDisplayCaller(t *testing.T) {
	assert.Equal(t, "Unknown", Record{}.DisplayCaller())
	assert.Equal(t, "Jo", Record{Caller: "Jo", Extra: map[string]json.RawMessage{"phone": json.RawMessage(`"+1"`)}}.DisplayCaller())
}
