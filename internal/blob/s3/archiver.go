package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/hmtengine/internal/domain"
)

// ArchiveImpl implements domain.Archiver by querying the trade log store for
// rows older than a cutoff, serializing them to JSONL, uploading the result
// to S3, and deleting the archived rows from the primary store.
type ArchiveImpl struct {
	writer domain.BlobWriter
	logs   domain.TradeLogStore
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, logs domain.TradeLogStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, logs: logs, audit: audit}
}

// ArchiveTradeLog queries all trade log rows before the cutoff, serializes
// them to JSONL, uploads the file to S3 at archive/trade_log/YYYY-MM.jsonl,
// deletes the archived rows from the primary store, and records the run in
// the audit log. It returns the count of archived records.
func (a *ArchiveImpl) ArchiveTradeLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.logs.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade log query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade log marshal: %w", err)
	}

	path := archivePath("trade_log", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trade log upload: %w", err)
	}

	deleted, err := a.logs.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade log delete: %w", err)
	}

	count := int64(len(entries))

	if err := a.audit.Log(ctx, "archive.trade_log", map[string]any{
		"path":    path,
		"count":   count,
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive trade log audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trade_log/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
