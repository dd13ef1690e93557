package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestMigrationsIdempotent runs Open twice on the same database and verifies
// the schema_version count stays correct (migration not re-applied).
func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}

	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestMigrationsOrdered(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(versions) == 0 {
		t.Fatal("expected at least one applied migration")
	}

	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("migrations not in ascending order: %v", versions)
			break
		}
	}
}

func TestIndexesExist(t *testing.T) {
	s := openTestStore(t)

	indexes := []string{"idx_past_emergencies_removed", "idx_stream_events_received", "idx_stream_events_call_sid"}
	for _, idx := range indexes {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", idx).Scan(&count)
		if err != nil {
			t.Fatalf("querying sqlite_master for %q: %v", idx, err)
		}
		if count != 1 {
			t.Errorf("index %q not found in sqlite_master", idx)
		}
	}
}

func TestArchiveAndGetPastEmergency(t *testing.T) {
	s := openTestStore(t)

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	removed := created.Add(90 * time.Minute)
	want := PastEmergency{
		ID:        "CA100",
		Status:    "resolved",
		Priority:  "high",
		Caller:    "+15550100",
		Nature:    "fire",
		Payload:   `{"callSid":"CA100"}`,
		CreatedAt: created,
		RemovedAt: removed,
	}
	if err := s.ArchiveEmergency(want); err != nil {
		t.Fatalf("ArchiveEmergency: %v", err)
	}

	got, err := s.GetPastEmergency("CA100")
	if err != nil {
		t.Fatalf("GetPastEmergency: %v", err)
	}
	if got.Status != want.Status || got.Priority != want.Priority || got.Caller != want.Caller || got.Nature != want.Nature || got.Payload != want.Payload {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, want)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if !got.UpdatedAt.IsZero() {
		t.Errorf("UpdatedAt = %v, want zero", got.UpdatedAt)
	}
	if !got.RemovedAt.Equal(removed) {
		t.Errorf("RemovedAt = %v, want %v", got.RemovedAt, removed)
	}
}

func TestArchiveEmergencyReplacesExisting(t *testing.T) {
	s := openTestStore(t)

	first := PastEmergency{ID: "CA1", Status: "new", RemovedAt: time.Now().Add(-time.Hour)}
	second := PastEmergency{ID: "CA1", Status: "resolved", RemovedAt: time.Now()}
	for _, p := range []PastEmergency{first, second} {
		if err := s.ArchiveEmergency(p); err != nil {
			t.Fatalf("ArchiveEmergency: %v", err)
		}
	}

	list, err := s.ListPastEmergencies(10, 0)
	if err != nil {
		t.Fatalf("ListPastEmergencies: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d entries, want 1", len(list))
	}
	if list[0].Status != "resolved" {
		t.Errorf("Status = %q, want %q", list[0].Status, "resolved")
	}
}

func TestArchiveEmergencyRejectsEmptyID(t *testing.T) {
	s := openTestStore(t)
	if err := s.ArchiveEmergency(PastEmergency{}); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestArchiveEmergencyDefaultsRemovedAt(t *testing.T) {
	s := openTestStore(t)

	before := time.Now().Add(-time.Second)
	if err := s.ArchiveEmergency(PastEmergency{ID: "CA2"}); err != nil {
		t.Fatalf("ArchiveEmergency: %v", err)
	}
	got, err := s.GetPastEmergency("CA2")
	if err != nil {
		t.Fatalf("GetPastEmergency: %v", err)
	}
	if got.RemovedAt.Before(before) {
		t.Errorf("RemovedAt = %v, want at or after %v", got.RemovedAt, before)
	}
	if got.Payload != "{}" {
		t.Errorf("Payload = %q, want {}", got.Payload)
	}
}

func TestGetPastEmergencyNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetPastEmergency("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPastEmergenciesOrderAndPaging(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		p := PastEmergency{ID: fmt.Sprintf("CA%d", i), RemovedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.ArchiveEmergency(p); err != nil {
			t.Fatalf("ArchiveEmergency(%d): %v", i, err)
		}
	}

	page, err := s.ListPastEmergencies(2, 0)
	if err != nil {
		t.Fatalf("ListPastEmergencies: %v", err)
	}
	if len(page) != 2 || page[0].ID != "CA4" || page[1].ID != "CA3" {
		t.Fatalf("first page = %v, want [CA4 CA3]", ids(page))
	}

	page, err = s.ListPastEmergencies(2, 4)
	if err != nil {
		t.Fatalf("ListPastEmergencies: %v", err)
	}
	if len(page) != 1 || page[0].ID != "CA0" {
		t.Fatalf("last page = %v, want [CA0]", ids(page))
	}
}

func TestListPastEmergenciesEmpty(t *testing.T) {
	s := openTestStore(t)

	list, err := s.ListPastEmergencies(0, 0)
	if err != nil {
		t.Fatalf("ListPastEmergencies: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty archive, got %d entries", len(list))
	}
}

func TestRecordAndRecentStreamEvents(t *testing.T) {
	s := openTestStore(t)

	base := time.Now().Add(-time.Minute)
	for i, typ := range []string{"incoming", "status", "remove"} {
		id, err := s.RecordStreamEvent(StreamEvent{
			Type:       typ,
			CallSid:    "CA1",
			Payload:    fmt.Sprintf(`{"type":%q}`, typ),
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("RecordStreamEvent: %v", err)
		}
		if id == "" {
			t.Fatal("expected generated id")
		}
	}

	events, err := s.RecentStreamEvents(2)
	if err != nil {
		t.Fatalf("RecentStreamEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Type != "remove" || events[1].Type != "status" {
		t.Errorf("order = [%s %s], want [remove status]", events[0].Type, events[1].Type)
	}
}

func TestRecordStreamEventKeepsGivenID(t *testing.T) {
	s := openTestStore(t)

	id, err := s.RecordStreamEvent(StreamEvent{ID: "evt-1", Type: "remove", Payload: "{}"})
	if err != nil {
		t.Fatalf("RecordStreamEvent: %v", err)
	}
	if id != "evt-1" {
		t.Errorf("id = %q, want evt-1", id)
	}
}

func TestPruneStreamEvents(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	old := StreamEvent{Type: "status", Payload: "{}", ReceivedAt: now.Add(-48 * time.Hour)}
	fresh := StreamEvent{Type: "status", Payload: "{}", ReceivedAt: now}
	for _, e := range []StreamEvent{old, fresh} {
		if _, err := s.RecordStreamEvent(e); err != nil {
			t.Fatalf("RecordStreamEvent: %v", err)
		}
	}

	n, err := s.PruneStreamEvents(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PruneStreamEvents: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	events, err := s.RecentStreamEvents(10)
	if err != nil {
		t.Fatalf("RecentStreamEvents: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("got %d remaining events, want 1", len(events))
	}
}

func ids(list []PastEmergency) []string {
	out := make([]string, len(list))
	for i, p := range list {
		out[i] = p.ID
	}
	return out
}
