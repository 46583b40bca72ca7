// Package archive exports the public event logs of settled markets to object
// storage.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/veilworks/blindbet/internal/domain"
)

// BlobWriter uploads a single object to the archive bucket.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// DefaultInterval is how often the archiver sweeps when no interval is
// configured.
const DefaultInterval = time.Hour

// listPageSize bounds each market page fetched during a sweep.
const listPageSize = 200

// Archiver periodically exports the event log of every resolved market as a
// JSONL object. Uploads are keyed by market id, so re-archiving an already
// exported market overwrites the same object and the sweep stays idempotent.
type Archiver struct {
	markets  domain.MarketStore
	events   domain.EventStore
	writer   BlobWriter
	interval time.Duration
	logger   *slog.Logger

	now func() time.Time
}

// NewArchiver creates an Archiver sweeping at the given interval. A
// non-positive interval falls back to DefaultInterval.
func NewArchiver(
	markets domain.MarketStore,
	events domain.EventStore,
	writer BlobWriter,
	interval time.Duration,
	logger *slog.Logger,
) *Archiver {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Archiver{
		markets:  markets,
		events:   events,
		writer:   writer,
		interval: interval,
		logger:   logger.With(slog.String("component", "archiver")),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Intended for tests.
func (a *Archiver) SetClock(now func() time.Time) {
	a.now = now
}

// Run sweeps on a ticker until the context is cancelled. A failed sweep is
// logged and retried on the next tick.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := a.ArchiveSettled(ctx)
			if err != nil {
				a.logger.ErrorContext(ctx, "archive sweep failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "archive sweep complete",
					slog.Int64("markets", n),
				)
			}
		}
	}
}

// ArchiveSettled exports the event log of every resolved market and returns
// the number of markets archived.
func (a *Archiver) ArchiveSettled(ctx context.Context) (int64, error) {
	var archived int64

	for offset := 0; ; offset += listPageSize {
		page, err := a.markets.List(ctx, domain.ListOpts{Limit: listPageSize, Offset: offset})
		if err != nil {
			return archived, fmt.Errorf("archive: list markets: %w", err)
		}
		if len(page) == 0 {
			return archived, nil
		}

		for _, m := range page {
			if !m.Resolved {
				continue
			}
			if err := a.archiveMarket(ctx, m); err != nil {
				return archived, err
			}
			archived++
		}
	}
}

// archiveMarket serialises one market's metadata and event log as JSONL and
// uploads it.
func (a *Archiver) archiveMarket(ctx context.Context, m domain.Market) error {
	events, err := a.events.ListByMarket(ctx, m.ID, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("archive: list events for market %d: %w", m.ID, err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	header := map[string]any{
		"market_id":   m.ID,
		"question":    m.Question,
		"creator":     m.Creator.Hex(),
		"outcome":     m.Outcome.String(),
		"archived_at": a.now().UTC().Format(time.RFC3339),
	}
	if err := enc.Encode(header); err != nil {
		return fmt.Errorf("archive: encode header for market %d: %w", m.ID, err)
	}
	for i, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("archive: encode event %d for market %d: %w", i, m.ID, err)
		}
	}

	path := archivePath(m.ID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return fmt.Errorf("archive: upload market %d: %w", m.ID, err)
	}
	return nil
}

// archivePath builds the object key for one market's export.
//
//	archive/markets/42.jsonl
func archivePath(marketID uint64) string {
	return fmt.Sprintf("archive/markets/%d.jsonl", marketID)
}
