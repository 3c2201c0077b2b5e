package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairarb/internal/domain"
)

type memAudit struct {
	rows   []domain.AuditEntry
	logged []string
}

func (m *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	m.logged = append(m.logged, event)
	return nil
}

func (m *memAudit) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.AuditEntry, error) {
	sort.Slice(m.rows, func(i, j int) bool {
		if m.rows[i].CreatedAt.Equal(m.rows[j].CreatedAt) {
			return m.rows[i].ID < m.rows[j].ID
		}
		return m.rows[i].CreatedAt.Before(m.rows[j].CreatedAt)
	})
	var out []domain.AuditEntry
	for _, r := range m.rows {
		if r.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memAudit) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var kept []domain.AuditEntry
	var n int64
	for _, r := range m.rows {
		if r.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return n, nil
}

type memWriter struct {
	objects map[string][]byte
	err     error
}

func (w *memWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	if contentType != jsonlContentType {
		return errors.New("unexpected content type " + contentType)
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if w.objects == nil {
		w.objects = map[string][]byte{}
	}
	w.objects[path] = b
	return nil
}

var now = time.Date(2025, 6, 30, 12, 0, 0, 0, time.UTC)

func newTestArchiver(w domain.BlobWriter, s domain.AuditStore, batch int) *AuditArchiver {
	a := NewArchiver(w, s, ArchiverConfig{Retention: 24 * time.Hour, BatchSize: batch},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return now }
	return a
}

func row(id int64, at time.Time) domain.AuditEntry {
	return domain.AuditEntry{ID: id, Event: "decision", Detail: map[string]any{"id": id}, CreatedAt: at}
}

func countLines(t *testing.T, b []byte) int {
	t.Helper()
	n := 0
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var e domain.AuditEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		n++
	}
	return n
}

func TestArchiveAudit(t *testing.T) {
	old := now.Add(-48 * time.Hour)
	store := &memAudit{rows: []domain.AuditEntry{
		row(1, old),
		row(2, old.Add(time.Second)),
		row(3, old.Add(2*time.Second)),
		row(4, now.Add(-time.Hour)),
	}}
	w := &memWriter{}

	n, err := newTestArchiver(w, store, 100).ArchiveAudit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.Len(t, w.objects, 1)
	obj, ok := w.objects["archive/audit/2025-06-28/1-3.jsonl"]
	require.True(t, ok)
	assert.Equal(t, 3, countLines(t, obj))

	require.Len(t, store.rows, 1)
	assert.Equal(t, int64(4), store.rows[0].ID)
	assert.Equal(t, []string{"archive.audit"}, store.logged)
}

func TestArchiveAuditBatchesOnTimestampBoundary(t *testing.T) {
	old := now.Add(-72 * time.Hour)
	store := &memAudit{rows: []domain.AuditEntry{
		row(1, old),
		row(2, old.Add(time.Second)),
		row(3, old.Add(2*time.Second)),
		row(4, old.Add(2*time.Second)),
		row(5, old.Add(3*time.Second)),
	}}
	w := &memWriter{}

	n, err := newTestArchiver(w, store, 3).ArchiveAudit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Empty(t, store.rows)

	// Page [1 2 3] ends inside the run {3,4}, so row 3 moves to the next
	// page. Page [3 4 5] is full again and row 5 moves on.
	want := map[string]int{
		"archive/audit/2025-06-27/1-2.jsonl": 2,
		"archive/audit/2025-06-27/3-4.jsonl": 2,
		"archive/audit/2025-06-27/5-5.jsonl": 1,
	}
	require.Len(t, w.objects, len(want))
	for path, lines := range want {
		require.Contains(t, w.objects, path)
		assert.Equal(t, lines, countLines(t, w.objects[path]), path)
	}
}

func TestArchiveAuditUploadFailureKeepsRows(t *testing.T) {
	store := &memAudit{rows: []domain.AuditEntry{row(1, now.Add(-48*time.Hour))}}
	w := &memWriter{err: errors.New("bucket unreachable")}

	n, err := newTestArchiver(w, store, 100).ArchiveAudit(context.Background())
	require.ErrorContains(t, err, "bucket unreachable")
	assert.Zero(t, n)
	assert.Len(t, store.rows, 1)
	assert.Empty(t, store.logged)
}

func TestArchiveAuditNothingToDo(t *testing.T) {
	store := &memAudit{rows: []domain.AuditEntry{row(1, now.Add(-time.Minute))}}
	n, err := newTestArchiver(&memWriter{}, store, 100).ArchiveAudit(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.logged)
}

func TestSplitBatchSingleTimestamp(t *testing.T) {
	at := now.Add(-48 * time.Hour)
	_, _, err := splitBatch([]domain.AuditEntry{row(1, at), row(2, at)}, now, 2)
	assert.ErrorContains(t, err, "raise the batch size")
}

func TestNormalise(t *testing.T) {
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://e2.example.com", normaliseEndpoint("e2.example.com", true))
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))

	assert.Equal(t, "", normalisePrefix("/"))
	assert.Equal(t, "pairarb/prod/", normalisePrefix("/pairarb/prod/"))

	c := &Client{prefix: normalisePrefix("pairarb")}
	assert.Equal(t, "pairarb/archive/audit/x.jsonl", c.objectKey("/archive/audit/x.jsonl"))
}
