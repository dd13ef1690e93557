package emergency

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"time"
)

// ErrMissingID is returned when a decoded record carries neither callSid nor id.
var ErrMissingID = errors.New("emergency record has no id")

var modeledKeys = []string{"id", "callSid", "status", "priority", "createdAt", "updatedAt", "caller", "nature", "extracted"}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(r.Extra)+len(modeledKeys))
	for k, v := range r.Extra {
		m[k] = v
	}
	put := func(key string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		m[key] = b
		return nil
	}
	if r.ID != "" {
		if err := put("id", r.ID); err != nil {
			return nil, err
		}
		m["callSid"] = m["id"]
	}
	if r.Status != "" {
		if err := put("status", r.Status); err != nil {
			return nil, err
		}
	}
	if r.Priority != "" {
		if err := put("priority", r.Priority); err != nil {
			return nil, err
		}
	}
	if !r.CreatedAt.IsZero() {
		if err := put("createdAt", r.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return nil, err
		}
	}
	if !r.UpdatedAt.IsZero() {
		if err := put("updatedAt", r.UpdatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return nil, err
		}
	}
	if r.Caller != "" {
		if err := put("caller", r.Caller); err != nil {
			return nil, err
		}
	}
	if r.Nature != "" {
		if err := put("nature", r.Nature); err != nil {
			return nil, err
		}
	}
	if len(r.Extracted) > 0 {
		m["extracted"] = r.Extracted
	}
	return json.Marshal(m)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Record{}

	if s := rawString(raw["callSid"]); s != "" {
		r.ID = s
	} else {
		r.ID = rawString(raw["id"])
	}
	r.Status = rawString(raw["status"])
	r.Priority = ParsePriority(rawString(raw["priority"]))
	r.CreatedAt = parseTime(raw["createdAt"])
	r.UpdatedAt = parseTime(raw["updatedAt"])
	r.Caller = rawString(raw["caller"])
	r.Nature = rawString(raw["nature"])
	if v := raw["extracted"]; len(v) > 0 && !isNull(v) {
		r.Extracted = append(json.RawMessage(nil), v...)
	}

	for _, k := range modeledKeys {
		delete(raw, k)
	}
	if len(raw) > 0 {
		r.Extra = raw
	}
	return nil
}

// Decode parses a single record and rejects records without an id.
func Decode(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	if r.ID == "" {
		return Record{}, ErrMissingID
	}
	return r, nil
}

// DecodeList parses a snapshot body. A body that is not a JSON array yields
// an empty list; entries without an id are skipped.
func DecodeList(data []byte) ([]Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []Record{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(items))
	for _, item := range items {
		r, err := Decode(item)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func rawString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return ""
	}
	return s
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// parseTime accepts RFC 3339 strings and JSON numbers holding milliseconds
// since the Unix epoch. Anything else, including numbers outside the int64
// millisecond range, is treated as absent.
func parseTime(v json.RawMessage) time.Time {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || isNull(v) {
		return time.Time{}
	}
	if v[0] != '"' {
		ms, err := strconv.ParseFloat(string(v), 64)
		// float64(math.MaxInt64) rounds up to 2^63, so >= rejects it.
		if err != nil || math.IsNaN(ms) || ms < math.MinInt64 || ms >= math.MaxInt64 {
			return time.Time{}
		}
		return time.UnixMilli(int64(ms)).UTC()
	}
	s := rawString(v)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
