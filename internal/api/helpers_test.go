package api

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/emconsole/internal/board"
	"github.com/kalambet/emconsole/internal/emergency"
	"github.com/kalambet/emconsole/internal/storage"
)

// testBoard adapts a board.Board to the Board interface.
type testBoard struct {
	*board.Board
	refreshes atomic.Int32
}

func (b *testBoard) Records() []emergency.Record { return b.List() }
func (b *testBoard) Refresh()                    { b.refreshes.Add(1) }

func newTestBoard(records ...emergency.Record) *testBoard {
	b := &testBoard{Board: board.New()}
	if len(records) > 0 {
		b.UpsertAll(records)
	}
	return b
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func at(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
