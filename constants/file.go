package constants

import "strings"

// DefaultService is the datalink service whose token is batched into the staging job.
const DefaultService = "cutout_service"

// Datalink document vocabulary.
const (
	ResourceTypeResults = "results"
	ResourceTypeMeta    = "meta"

	ParamAccessURL            = "accessURL"
	FieldServiceDef           = "service_def"
	FieldAuthenticatedIDToken = "authenticated_id_token"
)

// Observation table columns used by the query helpers.
const (
	ColumnAccessURL      = "access_url"
	ColumnObsReleaseDate = "obs_release_date"
)

// ReleaseDateLayout matches the obs_release_date strings published by the archive.
const ReleaseDateLayout = "2006-01-02T15:04:05.000000"

// ChecksumExt is the suffix of the checksum companions in a staging job manifest.
const ChecksumExt = ".checksum"

// IsChecksumURL reports whether a staged url points at a checksum file.
func IsChecksumURL(u string) bool {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(strings.ToLower(u), ChecksumExt)
}
