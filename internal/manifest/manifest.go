// Package manifest reads the list of files a user wants staged.
package manifest

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/votable"
)

// Row is one file to stage, typically a row copied from a region query result.
type Row struct {
	AccessURL      string `json:"access_url"`
	Filename       string `json:"filename,omitempty"`
	PublisherDID   string `json:"obs_publisher_did,omitempty"`
	ObsReleaseDate string `json:"obs_release_date,omitempty"`
}

// Load decodes and validates a JSON manifest.
func Load(r io.Reader) ([]Row, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Decode(raw)
}

// Decode validates raw against the manifest schema before unmarshalling it.
func Decode(raw []byte) ([]Row, error) {
	if err := ValidateJSONAgainstSchema(BuildManifestJSONSchema(), raw); err != nil {
		return nil, common.NewAppError("INVALID_MANIFEST", "manifest rejected", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return rows, nil
}

// FromTable builds manifest rows from a query result table.
func FromTable(t *votable.Table) []Row {
	rows := make([]Row, 0, t.Len())
	for _, rec := range t.Records() {
		rows = append(rows, Row{
			AccessURL:      rec["access_url"],
			Filename:       rec["filename"],
			PublisherDID:   rec["obs_publisher_did"],
			ObsReleaseDate: rec["obs_release_date"],
		})
	}
	return rows
}

// AccessURLs returns the access urls in manifest order.
func AccessURLs(rows []Row) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.AccessURL)
	}
	return out
}
