package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/core/async"
	"github.com/joseph-ayodele/casda-stager/internal/manifest"
	"github.com/joseph-ayodele/casda-stager/internal/repository"
)

// FSIngestor reads manifests from the local filesystem.
type FSIngestor struct {
	Requests repository.StageRequestRepository
	Queue    async.Queue
	Service  string // datalink service recorded on new requests
	Logger   *slog.Logger
}

func NewFSIngestor(requests repository.StageRequestRepository, queue async.Queue, service string, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{Requests: requests, Queue: queue, Service: service, Logger: logger}
}

// IngestPath decodes the manifest at path, stores a stage request for it and
// queues the request. On success the manifest is renamed with QueuedSuffix so
// it is not picked up again.
func (i *FSIngestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	out := IngestionResult{SourcePath: path}

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs
	if !IsManifest(abs) {
		return out, fmt.Errorf("%w: %s is not a %s manifest", common.ErrInvalidInput, abs, ManifestExt)
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return out, fmt.Errorf("read manifest: %w", err)
	}
	sum := sha256.Sum256(raw)
	out.HashHex = hex.EncodeToString(sum[:])

	rows, err := manifest.Load(bytes.NewReader(raw))
	if err != nil {
		return out, err
	}
	if len(rows) == 0 {
		return out, common.ErrNoTokens
	}

	req, err := i.Requests.Create(ctx, i.Service, manifest.AccessURLs(rows))
	if err != nil {
		return out, err
	}
	out.RequestID = req.ID.String()
	out.Files = len(rows)

	if err := i.Queue.Enqueue(ctx, async.Job{RequestID: req.ID, TraceID: out.HashHex[:12]}); err != nil {
		_ = i.Requests.FinishFailure(ctx, req.ID, "", "enqueue: "+err.Error())
		return out, err
	}
	out.QueuedAt = time.Now().UTC()

	if err := os.Rename(abs, abs+QueuedSuffix); err != nil {
		i.Logger.Warn("ingest.manifest.rename_failed", "path", abs, "error", err)
	}
	i.Logger.Info("ingest.manifest.queued",
		"path", abs,
		"request_id", out.RequestID,
		"files", out.Files,
		"sha256", out.HashHex,
	)
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested,
// and calls IngestPath for each manifest. Returns per-file results + aggregate stats.
func (i *FSIngestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !IsManifest(path) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			r.Err = err.Error()
			results = append(results, r)
			stats.Failed++
			return nil
		}
		results = append(results, r)
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}
