package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// Archiver moves aged rows from the database to cold storage.
type Archiver interface {
	ArchiveAudit(ctx context.Context) (int64, error)
}
