// Package snapshot polls the backend for the full list of active emergencies.
package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/emconsole/internal/emergency"
	"github.com/kalambet/emconsole/internal/metrics"
)

const defaultInterval = 3 * time.Second

// Lister fetches the current list of active emergencies.
type Lister interface {
	ListEmergencies(ctx context.Context) ([]emergency.Record, error)
}

// Snapshot is the result of one successful fetch.
type Snapshot struct {
	Records []emergency.Record
	// Issued is the marker value observed just before the request was sent.
	Issued uint64
}

// Fetcher pulls snapshots once at start, then on every tick and on demand.
// Failures are logged and retried on the next tick only.
type Fetcher struct {
	lister   Lister
	interval time.Duration
	mark     func() uint64
	refresh  chan struct{}
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher. If interval is <= 0 it defaults to 3s.
// mark, when non-nil, is sampled before each request and reported as
// Snapshot.Issued.
func NewFetcher(lister Lister, interval time.Duration, mark func() uint64, m *metrics.Metrics) *Fetcher {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Fetcher{
		lister:   lister,
		interval: interval,
		mark:     mark,
		refresh:  make(chan struct{}, 1),
		metrics:  m,
		logger:   slog.Default(),
	}
}

// Refresh asks a running fetcher for an immediate fetch. Requests made while
// one is already pending are coalesced.
func (f *Fetcher) Refresh() {
	select {
	case f.refresh <- struct{}{}:
	default:
	}
}

// Run fetches until ctx is cancelled, handing each snapshot to deliver.
// Results that complete after cancellation are dropped.
func (f *Fetcher) Run(ctx context.Context, deliver func(Snapshot)) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		snap, err := f.FetchOnce(ctx)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			f.logger.Warn("snapshot fetch failed", "error", err)
		default:
			deliver(snap)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-f.refresh:
		}
	}
}

// FetchOnce performs a single fetch.
func (f *Fetcher) FetchOnce(ctx context.Context) (Snapshot, error) {
	var issued uint64
	if f.mark != nil {
		issued = f.mark()
	}
	records, err := f.lister.ListEmergencies(ctx)
	f.metrics.SnapshotFetched(err)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching snapshot: %w", err)
	}
	return Snapshot{Records: records, Issued: issued}, nil
}
