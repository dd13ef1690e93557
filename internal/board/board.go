// Package board holds the reconciled view of active emergencies and the
// operator's current selection.
//
// A Board is the single owner of its record table. Every mutation runs under
// one mutex, so readers never observe a half-applied update, and selection is
// adjusted in the same critical section as the mutation that affects it.
package board

import (
	"errors"
	"sync"

	"github.com/kalambet/emconsole/internal/emergency"
)

// ErrUnknownRecord is returned when selecting an id that is not on the board.
var ErrUnknownRecord = errors.New("record not on board")

// ChangeKind names the operation that produced a Change.
type ChangeKind string

const (
	ChangeUpsert   ChangeKind = "upsert"
	ChangeSnapshot ChangeKind = "snapshot"
	ChangePatch    ChangeKind = "patch"
	ChangeRemove   ChangeKind = "remove"
	ChangeSelect   ChangeKind = "select"
)

// Change describes one observable transition of the board or selection.
type Change struct {
	Kind ChangeKind `json:"kind"`
	// IDs lists records inserted, modified or removed by the change.
	IDs     []string           `json:"ids,omitempty"`
	Removed []emergency.Record `json:"removed,omitempty"`
	// Selected is the selection after the change; empty means none.
	Selected string `json:"selected"`
	// SelectionChanged is set when the change moved the selection.
	SelectionChanged bool   `json:"selection_changed,omitempty"`
	Version          uint64 `json:"version"`
}

// Board is the reconciliation store plus the selection controller.
type Board struct {
	mu       sync.Mutex
	table    *table
	selected string

	// pending holds changes not yet delivered; delivering is set while one
	// publisher drains it. Both are guarded by mu.
	pending    []Change
	delivering bool

	subsMu  sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New returns an empty, unselected board.
func New() *Board {
	return &Board{
		table: newTable(),
		subs:  make(map[int]func(Change)),
	}
}

// Subscribe registers fn to be called after every change. Changes are
// delivered in the order they were applied, one at a time, on the goroutine
// that is draining the queue; fn runs without the board lock held and may
// read the board, but must not mutate it. The returned function removes the
// subscription.
func (b *Board) Subscribe(fn func(Change)) func() {
	b.subsMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.subsMu.Lock()
			delete(b.subs, id)
			b.subsMu.Unlock()
		})
	}
}

// Upsert inserts rec or merges its present fields over the stored record.
// Records without an id are ignored.
func (b *Board) Upsert(rec emergency.Record) {
	if rec.ID == "" {
		return
	}
	b.mu.Lock()
	v := b.table.bump()
	wasEmpty := len(b.table.rows) == 0
	if !b.table.upsert(rec, v) {
		b.mu.Unlock()
		return
	}
	changed := wasEmpty && b.autoSelectLocked()
	b.publishLocked(Change{Kind: ChangeUpsert, IDs: []string{rec.ID}, Selected: b.selected, SelectionChanged: changed, Version: v})
}

// UpsertAll applies a batch of upserts as one atomic step, as delivered by a
// snapshot fetch. Subscribers are notified once, and only if something
// changed.
func (b *Board) UpsertAll(records []emergency.Record) {
	b.mu.Lock()
	v := b.table.bump()
	wasEmpty := len(b.table.rows) == 0
	var ids []string
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		if b.table.upsert(rec, v) {
			ids = append(ids, rec.ID)
		}
	}
	changed := wasEmpty && b.autoSelectLocked()
	if len(ids) == 0 {
		b.mu.Unlock()
		return
	}
	b.publishLocked(Change{Kind: ChangeSnapshot, IDs: ids, Selected: b.selected, SelectionChanged: changed, Version: v})
}

// Patch merges fields into the record with the given id. It never inserts:
// a patch for an unknown id is dropped and reported as false.
func (b *Board) Patch(id string, fields emergency.Record) bool {
	b.mu.Lock()
	v := b.table.bump()
	found, changed := b.table.patch(id, fields, v)
	if !changed {
		b.mu.Unlock()
		return found
	}
	b.publishLocked(Change{Kind: ChangePatch, IDs: []string{id}, Selected: b.selected, Version: v})
	return true
}

// Remove deletes the record with the given id and clears the selection if it
// pointed at it. Removing an unknown id is a no-op reported as false.
func (b *Board) Remove(id string) bool {
	b.mu.Lock()
	v := b.table.bump()
	rec, ok := b.table.remove(id)
	if !ok {
		b.mu.Unlock()
		return false
	}
	changed := b.dropSelectionLocked(id)
	b.publishLocked(Change{Kind: ChangeRemove, IDs: []string{id}, Removed: []emergency.Record{rec}, Selected: b.selected, SelectionChanged: changed, Version: v})
	return true
}

// Retain removes every record whose id is not in keep, except records
// updated after version since. It backs authoritative snapshots: pass the
// version observed when the snapshot request was issued.
func (b *Board) Retain(keep map[string]struct{}, since uint64) []emergency.Record {
	b.mu.Lock()
	v := b.table.bump()
	removed := b.table.retain(keep, since)
	if len(removed) == 0 {
		b.mu.Unlock()
		return nil
	}
	ids := make([]string, len(removed))
	changed := false
	for i, rec := range removed {
		ids[i] = rec.ID
		if b.dropSelectionLocked(rec.ID) {
			changed = true
		}
	}
	b.publishLocked(Change{Kind: ChangeRemove, IDs: ids, Removed: removed, Selected: b.selected, SelectionChanged: changed, Version: v})
	return removed
}

// List returns a copy of all records in display order: most recently
// updated first, ties broken by id.
func (b *Board) List() []emergency.Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.table.ordered()
}

// Get returns a copy of the record with the given id.
func (b *Board) Get(id string) (emergency.Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.table.get(id)
}

// Len returns the number of records on the board.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.table.rows)
}

// Version returns the number of mutating operations applied so far.
func (b *Board) Version() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.table.version
}

// publishLocked queues c and releases mu. It must be called with mu held.
// If no other publisher is draining the queue, the caller drains it, handing
// each change to subscribers with mu released.
func (b *Board) publishLocked(c Change) {
	b.pending = append(b.pending, c)
	if b.delivering {
		b.mu.Unlock()
		return
	}
	b.delivering = true
	for len(b.pending) > 0 {
		batch := b.pending
		b.pending = nil
		b.mu.Unlock()

		fns := b.subscribers()
		for _, c := range batch {
			for _, fn := range fns {
				fn(c)
			}
		}

		b.mu.Lock()
	}
	b.delivering = false
	b.mu.Unlock()
}

// subscribers returns the registered callbacks in subscription order.
func (b *Board) subscribers() []func(Change) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	fns := make([]func(Change), 0, len(b.subs))
	for i := 0; i < b.nextSub; i++ {
		if fn, ok := b.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
