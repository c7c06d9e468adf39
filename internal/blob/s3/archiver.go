package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmarquez/updownbot/internal/domain"
)

// Archiver exports each day's terminal trade attempts to blob storage as
// JSONL, one object per calendar day. The database stays the source of
// truth; the export is an operator-facing audit trail that survives
// database retention policies.
type Archiver struct {
	writer domain.BlobWriter
	store  domain.AttemptStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver over the given writer and store.
func NewArchiver(writer domain.BlobWriter, store domain.AttemptStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		store:  store,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ExportDay uploads every attempt resolved on the calendar day containing
// t. Days with no attempts upload nothing.
func (a *Archiver) ExportDay(ctx context.Context, t time.Time) error {
	year, month, day := t.Date()
	dayStart := time.Date(year, month, day, 0, 0, 0, 0, t.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	attempts, err := a.store.ListSince(ctx, dayStart)
	if err != nil {
		return fmt.Errorf("s3blob: list attempts for export: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	for _, attempt := range attempts {
		if !attempt.ResolvedAt.Before(dayEnd) {
			continue
		}
		if err := enc.Encode(attempt); err != nil {
			return fmt.Errorf("s3blob: encode attempt %s: %w", attempt.ID, err)
		}
		count++
	}
	if count == 0 {
		return nil
	}

	key := fmt.Sprintf("attempts/%04d/%02d/%02d.jsonl", year, month, day)
	if err := a.writer.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return err
	}

	a.logger.Info("exported daily attempts",
		slog.String("key", key),
		slog.Int("attempts", count),
	)
	return nil
}
