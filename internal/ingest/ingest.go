// Package ingest turns manifest files dropped into an inbox directory into
// queued stage requests.
package ingest

import (
	"context"
	"time"
)

// IngestionResult is the per-manifest ingest outcome.
type IngestionResult struct {
	SourcePath string
	RequestID  string
	Files      int
	HashHex    string
	QueuedAt   time.Time
	Err        string
}

// DirStats summarizes a directory ingest.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// Ingestor is the behavior the daemon depends on.
type Ingestor interface {
	// IngestPath queues the manifest at path.
	IngestPath(ctx context.Context, path string) (IngestionResult, error)
	// IngestDirectory queues every manifest under root.
	IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error)
}
