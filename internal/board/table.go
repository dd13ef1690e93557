package board

import (
	"github.com/kalambet/emconsole/internal/emergency"
)

type row struct {
	rec emergency.Record
	// touched is the table version of the last update that hit this row.
	touched uint64
}

// table is the id-keyed record set behind a Board. It is not safe for
// concurrent use; Board serializes access.
type table struct {
	rows    map[string]*row
	version uint64
}

func newTable() *table {
	return &table{rows: make(map[string]*row)}
}

// bump advances the version once per mutating operation.
func (t *table) bump() uint64 {
	t.version++
	return t.version
}

// upsert inserts rec or merges it into the existing row.
// Reports whether the stored data changed.
func (t *table) upsert(rec emergency.Record, v uint64) bool {
	existing, ok := t.rows[rec.ID]
	if !ok {
		t.rows[rec.ID] = &row{rec: rec.Clone(), touched: v}
		return true
	}
	existing.touched = v
	merged := existing.rec.Merge(rec)
	if emergency.Equal(merged, existing.rec) {
		return false
	}
	existing.rec = merged
	return true
}

// patch merges fields into an existing row and never inserts.
// Returns (found, changed).
func (t *table) patch(id string, fields emergency.Record, v uint64) (bool, bool) {
	existing, ok := t.rows[id]
	if !ok {
		return false, false
	}
	existing.touched = v
	fields.ID = id
	merged := existing.rec.Merge(fields)
	if emergency.Equal(merged, existing.rec) {
		return true, false
	}
	existing.rec = merged
	return true, true
}

func (t *table) remove(id string) (emergency.Record, bool) {
	existing, ok := t.rows[id]
	if !ok {
		return emergency.Record{}, false
	}
	delete(t.rows, id)
	return existing.rec, true
}

// retain removes rows whose id is not in keep and that were last touched
// at or before since.
func (t *table) retain(keep map[string]struct{}, since uint64) []emergency.Record {
	var removed []emergency.Record
	for id, r := range t.rows {
		if _, ok := keep[id]; ok {
			continue
		}
		if r.touched > since {
			continue
		}
		removed = append(removed, r.rec)
		delete(t.rows, id)
	}
	emergency.Sort(removed)
	return removed
}

func (t *table) get(id string) (emergency.Record, bool) {
	r, ok := t.rows[id]
	if !ok {
		return emergency.Record{}, false
	}
	return r.rec.Clone(), true
}

// ordered returns cloned records in display order.
func (t *table) ordered() []emergency.Record {
	out := make([]emergency.Record, 0, len(t.rows))
	for _, r := range t.rows {
		out = append(out, r.rec.Clone())
	}
	emergency.Sort(out)
	return out
}

// first returns the id of the first record in display order.
func (t *table) first() string {
	var best *emergency.Record
	for _, r := range t.rows {
		if best == nil || emergency.Compare(r.rec, *best) < 0 {
			best = &r.rec
		}
	}
	if best == nil {
		return ""
	}
	return best.ID
}
