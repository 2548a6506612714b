package entity

import (
	"time"

	"github.com/google/uuid"
)

// StageRequest is one staging request tracked by the daemon.
type StageRequest struct {
	ID           uuid.UUID  `json:"id"`
	Status       string     `json:"status"`
	Service      string     `json:"service"`
	AccessURLs   []string   `json:"access_urls"`
	Endpoint     *string    `json:"endpoint,omitempty"`
	JobLocation  *string    `json:"job_location,omitempty"`
	Phase        *string    `json:"phase,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	URLCount     int        `json:"url_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

// StagedURL is one entry of a finished job's result manifest.
type StagedURL struct {
	Position   int    `json:"position"`
	URL        string `json:"url"`
	IsChecksum bool   `json:"is_checksum"`
}
