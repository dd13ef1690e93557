package emergency

import (
	"bytes"
	"cmp"
	"encoding/json"
	"slices"
)

// Merge returns r with every present field of in laid over it. Fields that
// are absent in in (zero values, missing Extra keys) keep r's values, so
// merging the same input twice is a no-op. The id is never changed.
func (r Record) Merge(in Record) Record {
	out := r.Clone()
	if in.Status != "" {
		out.Status = in.Status
	}
	if in.Priority != "" {
		out.Priority = in.Priority
	}
	if !in.CreatedAt.IsZero() {
		out.CreatedAt = in.CreatedAt
	}
	if !in.UpdatedAt.IsZero() {
		out.UpdatedAt = in.UpdatedAt
	}
	if in.Caller != "" {
		out.Caller = in.Caller
	}
	if in.Nature != "" {
		out.Nature = in.Nature
	}
	if len(in.Extracted) > 0 {
		out.Extracted = append(out.Extracted[:0:0], in.Extracted...)
	}
	if len(in.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]json.RawMessage, len(in.Extra))
		}
		for k, v := range in.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// Compare orders records by SortKey descending, then by id ascending.
func Compare(a, b Record) int {
	if c := b.SortKey().Compare(a.SortKey()); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// Sort orders records in place using Compare.
func Sort(records []Record) {
	slices.SortFunc(records, Compare)
}

// Equal reports whether a and b carry the same data.
func Equal(a, b Record) bool {
	if a.ID != b.ID || a.Status != b.Status || a.Priority != b.Priority ||
		a.Caller != b.Caller || a.Nature != b.Nature ||
		!a.CreatedAt.Equal(b.CreatedAt) || !a.UpdatedAt.Equal(b.UpdatedAt) ||
		!bytes.Equal(a.Extracted, b.Extracted) || len(a.Extra) != len(b.Extra) {
		return false
	}
	for k, v := range a.Extra {
		w, ok := b.Extra[k]
		if !ok || !bytes.Equal(v, w) {
			return false
		}
	}
	return true
}
