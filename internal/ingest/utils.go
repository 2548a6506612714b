package ingest

import (
	"path/filepath"
	"strings"
)

// ManifestExt is the extension of manifests picked up from the inbox.
const ManifestExt = ".json"

// QueuedSuffix is appended to a manifest once its request has been queued.
const QueuedSuffix = ".queued"

// IsManifest reports whether path names an inbox manifest.
func IsManifest(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ManifestExt) && !IsHidden(path)
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
