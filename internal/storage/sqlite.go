package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database holding the emergency archive and the stream journal.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "emconsole.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}

// --- Past emergencies ---

// ArchiveEmergency stores p, replacing any earlier archive entry with the same id.
func (s *Store) ArchiveEmergency(p PastEmergency) error {
	if p.ID == "" {
		return fmt.Errorf("archiving emergency: empty id")
	}
	removedAt := p.RemovedAt
	if removedAt.IsZero() {
		removedAt = time.Now()
	}
	payload := p.Payload
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.Exec(`
		INSERT INTO past_emergencies (id, status, priority, caller, nature, payload, created_at, updated_at, removed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			priority = excluded.priority,
			caller = excluded.caller,
			nature = excluded.nature,
			payload = excluded.payload,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			removed_at = excluded.removed_at`,
		p.ID, p.Status, p.Priority, p.Caller, p.Nature, payload,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt), formatTime(removedAt),
	)
	return err
}

// GetPastEmergency returns the archive entry for id, or ErrNotFound.
func (s *Store) GetPastEmergency(id string) (PastEmergency, error) {
	row := s.db.QueryRow(`
		SELECT id, status, priority, caller, nature, payload, created_at, updated_at, removed_at
		FROM past_emergencies WHERE id = ?`, id)
	p, err := scanPastEmergency(row)
	if err == sql.ErrNoRows {
		return PastEmergency{}, ErrNotFound
	}
	return p, err
}

// ListPastEmergencies returns archive entries, most recently removed first.
func (s *Store) ListPastEmergencies(limit, offset int) ([]PastEmergency, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.Query(`
		SELECT id, status, priority, caller, nature, payload, created_at, updated_at, removed_at
		FROM past_emergencies ORDER BY removed_at DESC, id ASC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []PastEmergency
	for rows.Next() {
		p, err := scanPastEmergency(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPastEmergency(r rowScanner) (PastEmergency, error) {
	var p PastEmergency
	var createdAt, updatedAt, removedAt string
	if err := r.Scan(&p.ID, &p.Status, &p.Priority, &p.Caller, &p.Nature, &p.Payload, &createdAt, &updatedAt, &removedAt); err != nil {
		return PastEmergency{}, err
	}
	var err error
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return PastEmergency{}, fmt.Errorf("parsing created_at for %s: %w", p.ID, err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return PastEmergency{}, fmt.Errorf("parsing updated_at for %s: %w", p.ID, err)
	}
	if p.RemovedAt, err = parseTime(removedAt); err != nil {
		return PastEmergency{}, fmt.Errorf("parsing removed_at for %s: %w", p.ID, err)
	}
	return p, nil
}

// --- Stream journal ---

// RecordStreamEvent appends e to the journal and returns its id. A new id
// is generated when e.ID is empty.
func (s *Store) RecordStreamEvent(e StreamEvent) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO stream_events (id, type, call_sid, payload, received_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Type, e.CallSid, e.Payload, formatTime(e.ReceivedAt),
	)
	if err != nil {
		return "", err
	}
	return e.ID, nil
}

// RecentStreamEvents returns up to limit journal entries, newest first.
func (s *Store) RecentStreamEvents(limit int) ([]StreamEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, type, call_sid, payload, received_at
		FROM stream_events ORDER BY received_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []StreamEvent
	for rows.Next() {
		var e StreamEvent
		var receivedAt string
		if err := rows.Scan(&e.ID, &e.Type, &e.CallSid, &e.Payload, &receivedAt); err != nil {
			return nil, err
		}
		if e.ReceivedAt, err = parseTime(receivedAt); err != nil {
			return nil, fmt.Errorf("parsing received_at for %s: %w", e.ID, err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// PruneStreamEvents deletes journal entries received before cutoff and
// reports how many were removed.
func (s *Store) PruneStreamEvents(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM stream_events WHERE received_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
