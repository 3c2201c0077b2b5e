package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

const (
	defaultRetention = 30 * 24 * time.Hour
	defaultBatchSize = 5000
	jsonlContentType = "application/x-ndjson"
)

// ArchiverConfig controls which audit rows are moved and how many per object.
type ArchiverConfig struct {
	// Retention is how long rows stay in the database.
	Retention time.Duration
	// BatchSize caps the rows written to a single object.
	BatchSize int
}

// AuditArchiver implements domain.Archiver. It uploads audit rows older than
// the retention window as JSONL objects and deletes each batch from the
// database only after its upload succeeded.
type AuditArchiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
	cfg    ArchiverConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewArchiver creates an AuditArchiver.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore, cfg ArchiverConfig, logger *slog.Logger) *AuditArchiver {
	if cfg.Retention <= 0 {
		cfg.Retention = defaultRetention
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	return &AuditArchiver{
		writer: writer,
		audit:  audit,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "audit_archiver")),
	}
}

// ArchiveAudit moves every row older than the retention window and returns
// how many rows were archived. A failed upload leaves the batch in place for
// the next run.
func (a *AuditArchiver) ArchiveAudit(ctx context.Context) (int64, error) {
	cutoff := a.now().Add(-a.cfg.Retention)

	var total int64
	for {
		entries, err := a.audit.ListBefore(ctx, cutoff, a.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		batch, boundary, err := splitBatch(entries, cutoff, a.cfg.BatchSize)
		if err != nil {
			return total, err
		}

		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive audit marshal: %w", err)
		}
		path := archivePath(batch)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType); err != nil {
			return total, fmt.Errorf("s3blob: archive audit upload: %w", err)
		}

		deleted, err := a.audit.DeleteBefore(ctx, boundary)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive audit delete: %w", err)
		}
		if deleted != int64(len(batch)) {
			a.logger.WarnContext(ctx, "archived and deleted row counts differ",
				slog.String("path", path),
				slog.Int("archived", len(batch)),
				slog.Int64("deleted", deleted),
			)
		}
		total += int64(len(batch))

		if len(entries) < a.cfg.BatchSize {
			break
		}
	}

	if total > 0 {
		if err := a.audit.Log(ctx, "archive.audit", map[string]any{
			"count":  total,
			"before": cutoff.Format(time.RFC3339),
		}); err != nil {
			return total, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return total, nil
}

// splitBatch decides how much of a query page can be archived and deleted
// together. A short page is everything before cutoff. A full page may end in
// the middle of a run of rows sharing one timestamp, so those trailing rows
// are left for the next page and the delete boundary moves back to their
// timestamp.
func splitBatch(entries []domain.AuditEntry, cutoff time.Time, batchSize int) ([]domain.AuditEntry, time.Time, error) {
	if len(entries) < batchSize {
		return entries, cutoff, nil
	}
	boundary := entries[len(entries)-1].CreatedAt
	n := len(entries)
	for n > 0 && !entries[n-1].CreatedAt.Before(boundary) {
		n--
	}
	if n == 0 {
		return nil, time.Time{}, fmt.Errorf("s3blob: %d audit rows share timestamp %s; raise the batch size",
			len(entries), boundary.Format(time.RFC3339Nano))
	}
	return entries[:n], boundary, nil
}

// archivePath names an object by the day of its first row and its id range:
//
//	archive/audit/2025-01-31/1001-6000.jsonl
func archivePath(batch []domain.AuditEntry) string {
	first, last := batch[0], batch[len(batch)-1]
	return fmt.Sprintf("archive/audit/%s/%d-%d.jsonl",
		first.CreatedAt.UTC().Format("2006-01-02"), first.ID, last.ID)
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*AuditArchiver)(nil)
