package domain

import (
	"context"
	"io"
	"path"
	"time"
)

// Archive layout: every snapshot object lives under markets/<id>/.
const (
	ArchiveRoot         = "markets/"
	ArchiveRecordObject = "record.bin"
	ArchiveEventsObject = "events.jsonl"
)

// Content types of the archive objects.
const (
	ContentTypeRecord = "application/octet-stream"
	ContentTypeEvents = "application/x-ndjson"
)

// ArchivePrefix returns the object prefix holding one market's snapshot.
func ArchivePrefix(marketID string) string {
	return ArchiveRoot + marketID + "/"
}

// ArchivePath returns the path of one snapshot object of a market.
func ArchivePath(marketID, object string) string {
	return ArchivePrefix(marketID) + object
}

// ArchiveContentType returns the content type an archive object is stored
// with, empty for any other object name.
func ArchiveContentType(p string) string {
	switch path.Base(p) {
	case ArchiveRecordObject:
		return ContentTypeRecord
	case ArchiveEventsObject:
		return ContentTypeEvents
	}
	return ""
}

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Stat(ctx context.Context, path string) (BlobInfo, error)
}
