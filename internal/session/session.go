// Package session wires the snapshot fetcher and the event stream listener
// into a single board.
//
// Both sources push updates into one FIFO queue. A single consumer applies
// them to the board in arrival order, so neither source has priority over
// the other and the board never sees concurrent writers.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/emconsole/internal/board"
	"github.com/kalambet/emconsole/internal/emergency"
	"github.com/kalambet/emconsole/internal/metrics"
	"github.com/kalambet/emconsole/internal/snapshot"
	"github.com/kalambet/emconsole/internal/storage"
	"github.com/kalambet/emconsole/internal/stream"
)

const queueSize = 64

// ErrClosed is returned by Run on a session that was already closed.
var ErrClosed = errors.New("session closed")

// Source is the backend as seen by a session.
type Source interface {
	snapshot.Lister
	stream.Opener
}

// Archive persists records that leave the board and journals stream
// messages. *storage.Store satisfies it.
type Archive interface {
	ArchiveEmergency(p storage.PastEmergency) error
	RecordStreamEvent(e storage.StreamEvent) (string, error)
	PruneStreamEvents(cutoff time.Time) (int64, error)
}

// Options configures a Session. Zero values select the defaults of the
// fetcher and listener.
type Options struct {
	StreamPath     string
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	// PruneMissing treats every snapshot as authoritative and removes
	// records it does not list.
	PruneMissing bool
	// Archive is optional.
	Archive Archive
	// JournalRetention bounds the age of journal entries kept at startup.
	JournalRetention time.Duration
	Metrics          *metrics.Metrics
}

type update struct {
	snapshot *snapshot.Snapshot
	message  *stream.Message
}

// Session owns one board and the producers that keep it current.
type Session struct {
	board     *board.Board
	fetcher   *snapshot.Fetcher
	listener  *stream.Listener
	archive   Archive
	metrics   *metrics.Metrics
	prune     bool
	retention time.Duration
	queue     chan update
	logger    *slog.Logger

	closed atomic.Bool
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	unsub  func()
}

// New creates a session reading from src. Call Run to start syncing.
func New(src Source, opts Options) *Session {
	b := board.New()
	var mark func() uint64
	if opts.PruneMissing {
		mark = b.Version
	}
	s := &Session{
		board:     b,
		fetcher:   snapshot.NewFetcher(src, opts.PollInterval, mark, opts.Metrics),
		listener:  stream.NewListener(src, opts.StreamPath, opts.ReconnectDelay, opts.Metrics),
		archive:   opts.Archive,
		metrics:   opts.Metrics,
		prune:     opts.PruneMissing,
		retention: opts.JournalRetention,
		queue:     make(chan update, queueSize),
		logger:    slog.Default(),
	}
	if s.archive != nil {
		s.unsub = b.Subscribe(s.archiveRemoved)
	}
	return s
}

// Run syncs the board until ctx is cancelled or Close is called. It may be
// called at most once.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed.Load() || s.done != nil {
		s.mu.Unlock()
		return ErrClosed
	}
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()
	defer close(s.done)
	defer s.closed.Store(true)

	s.pruneJournal()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.fetcher.Run(ctx, func(snap snapshot.Snapshot) {
			s.enqueue(ctx, update{snapshot: &snap})
		})
	})
	g.Go(func() error {
		return s.listener.Run(ctx, func(msg stream.Message) {
			s.enqueue(ctx, update{message: &msg})
		})
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case u := <-s.queue:
				if ctx.Err() != nil {
					return nil
				}
				s.handle(u)
			}
		}
	})
	return g.Wait()
}

// Close stops the session and waits for Run to return. Updates still in
// flight are discarded. Close must not be called from a subscriber.
func (s *Session) Close() {
	s.closed.Store(true)
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	if s.unsub != nil {
		s.unsub()
	}
}

// Records returns the active emergencies in display order.
func (s *Session) Records() []emergency.Record {
	return s.board.List()
}

// Get returns the active emergency with the given id.
func (s *Session) Get(id string) (emergency.Record, bool) {
	return s.board.Get(id)
}

// Selected returns the focused emergency id, or "".
func (s *Session) Selected() string {
	return s.board.Selected()
}

// Select focuses the emergency with the given id.
func (s *Session) Select(id string) error {
	return s.board.Select(id)
}

// ClearSelection drops the current focus.
func (s *Session) ClearSelection() {
	s.board.ClearSelection()
}

// Subscribe registers fn for every board change. See board.Board.Subscribe.
func (s *Session) Subscribe(fn func(board.Change)) func() {
	return s.board.Subscribe(fn)
}

// Refresh requests an immediate snapshot fetch.
func (s *Session) Refresh() {
	s.fetcher.Refresh()
}

func (s *Session) enqueue(ctx context.Context, u update) {
	select {
	case s.queue <- u:
	case <-ctx.Done():
	}
}

// handle applies one update. Updates arriving after the session closed are
// dropped.
func (s *Session) handle(u update) {
	if s.closed.Load() {
		return
	}
	switch {
	case u.snapshot != nil:
		s.applySnapshot(*u.snapshot)
	case u.message != nil:
		s.applyMessage(*u.message)
	}
}

func (s *Session) applySnapshot(snap snapshot.Snapshot) {
	s.board.UpsertAll(snap.Records)
	s.metrics.Mutation("snapshot", s.board.Len())
	if !s.prune {
		return
	}
	keep := make(map[string]struct{}, len(snap.Records))
	for _, rec := range snap.Records {
		keep[rec.ID] = struct{}{}
	}
	if removed := s.board.Retain(keep, snap.Issued); len(removed) > 0 {
		s.logger.Debug("pruned records missing from snapshot", "count", len(removed))
		s.metrics.Mutation("prune", s.board.Len())
	}
}

func (s *Session) applyMessage(msg stream.Message) {
	switch msg.Type {
	case stream.TypeIncoming:
		s.board.Upsert(msg.Emergency)
		s.metrics.Mutation("upsert", s.board.Len())
	case stream.TypeStatus:
		if !s.board.Patch(msg.CallSid, emergency.Record{Status: msg.Status}) {
			s.logger.Debug("status for unknown emergency", "call_sid", msg.CallSid)
			break
		}
		s.metrics.Mutation("patch", s.board.Len())
	case stream.TypeRemove:
		if s.board.Remove(msg.CallSid) {
			s.metrics.Mutation("remove", s.board.Len())
		}
	}
	s.journal(msg)
}

func (s *Session) journal(msg stream.Message) {
	if s.archive == nil {
		return
	}
	_, err := s.archive.RecordStreamEvent(storage.StreamEvent{
		Type:       msg.Type,
		CallSid:    msg.TargetID(),
		Payload:    string(msg.Raw),
		ReceivedAt: time.Now(),
	})
	if err != nil {
		s.logger.Warn("journaling stream message failed", "type", msg.Type, "error", err)
	}
}

// archiveRemoved runs as a board subscriber.
func (s *Session) archiveRemoved(c board.Change) {
	if c.Kind != board.ChangeRemove {
		return
	}
	now := time.Now()
	for _, rec := range c.Removed {
		if err := s.archive.ArchiveEmergency(PastFromRecord(rec, now)); err != nil {
			s.logger.Warn("archiving emergency failed", "id", rec.ID, "error", err)
		}
	}
}

func (s *Session) pruneJournal() {
	if s.archive == nil || s.retention <= 0 {
		return
	}
	n, err := s.archive.PruneStreamEvents(time.Now().Add(-s.retention))
	if err != nil {
		s.logger.Warn("pruning stream journal failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Debug("pruned stream journal", "rows", n)
	}
}

// PastFromRecord converts a record that left the board into its archive form.
func PastFromRecord(rec emergency.Record, removedAt time.Time) storage.PastEmergency {
	payload, err := json.Marshal(rec)
	if err != nil {
		payload = []byte("{}")
	}
	caller := rec.DisplayCaller()
	if caller == "Unknown" {
		caller = ""
	}
	return storage.PastEmergency{
		ID:        rec.ID,
		Status:    rec.Status,
		Priority:  string(rec.EffectivePriority()),
		Caller:    caller,
		Nature:    rec.EffectiveNature(),
		Payload:   string(payload),
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		RemovedAt: removedAt,
	}
}
