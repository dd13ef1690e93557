package emergency

import (
	"encoding/json"
	"strings"
	"time"
)

// Priority is the triage level attached to an emergency.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// ParsePriority normalizes s case-insensitively. Unknown values yield the
// empty Priority so that they never overwrite a known one during a merge.
func ParsePriority(s string) Priority {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return p
	default:
		return ""
	}
}

// Record is one in-progress emergency as reported by the backend.
//
// Zero-valued fields are treated as absent: Merge never lets them overwrite
// a value already held. Top-level JSON fields the console does not model are
// kept verbatim in Extra and round-trip through MarshalJSON.
type Record struct {
	ID        string
	Status    string
	Priority  Priority
	CreatedAt time.Time
	UpdatedAt time.Time
	Caller    string
	Nature    string
	Extracted json.RawMessage
	Extra     map[string]json.RawMessage
}

// SortKey is the timestamp used for ordering: UpdatedAt, then CreatedAt,
// then the zero time.
func (r Record) SortKey() time.Time {
	if !r.UpdatedAt.IsZero() {
		return r.UpdatedAt
	}
	return r.CreatedAt
}

// EffectivePriority returns the record's priority, falling back to
// extracted.priority and finally to PriorityLow.
func (r Record) EffectivePriority() Priority {
	if r.Priority != "" {
		return r.Priority
	}
	if p := ParsePriority(r.extractedString("priority")); p != "" {
		return p
	}
	return PriorityLow
}

// EffectiveNature returns the nature of the emergency, looking into the
// extracted sub-object when the top-level field is empty.
func (r Record) EffectiveNature() string {
	if r.Nature != "" {
		return r.Nature
	}
	if n := r.extractedString("nature"); n != "" {
		return n
	}
	return r.extractedString("natureOfEmergency")
}

// DisplayCaller returns the best available caller identification.
func (r Record) DisplayCaller() string {
	if r.Caller != "" {
		return r.Caller
	}
	for _, key := range []string{"callerNumber", "phone"} {
		var s string
		if raw, ok := r.Extra[key]; ok && json.Unmarshal(raw, &s) == nil && s != "" {
			return s
		}
	}
	return "Unknown"
}

// Tail returns the last six characters of the id, used as a short handle.
func (r Record) Tail() string {
	runes := []rune(r.ID)
	if len(runes) == 0 {
		return "—"
	}
	if len(runes) > 6 {
		runes = runes[len(runes)-6:]
	}
	return string(runes)
}

// Clone returns a deep copy so callers can hold it without sharing
// mutable state with the store.
func (r Record) Clone() Record {
	out := r
	if r.Extracted != nil {
		out.Extracted = append(json.RawMessage(nil), r.Extracted...)
	}
	if r.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

func (r Record) extractedString(key string) string {
	if len(r.Extracted) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r.Extracted, &fields); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(fields[key], &s); err != nil {
		return ""
	}
	return s
}
