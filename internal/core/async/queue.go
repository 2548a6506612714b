package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Job asks a worker to process one stored stage request.
type Job struct {
	RequestID   uuid.UUID
	SubmittedAt time.Time
	TraceID     string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}
