package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/casda"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/repository"
	"github.com/joseph-ayodele/casda-stager/internal/uws"
)

// StagingClient is the part of casda.Client the stager depends on.
type StagingClient interface {
	StageWithHooks(ctx context.Context, accessURLs []string, hooks casda.StageHooks) (*casda.StageResult, error)
}

// Stager drives stored stage requests through the archive and records the outcome.
type Stager struct {
	logger   *slog.Logger
	client   StagingClient
	requests repository.StageRequestRepository
}

func NewStager(logger *slog.Logger, client StagingClient, requests repository.StageRequestRepository) *Stager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{logger: logger, client: client, requests: requests}
}

// ProcessRequest stages the files of request id. The returned error is also
// persisted on the request row.
func (s *Stager) ProcessRequest(ctx context.Context, id uuid.UUID) (*casda.StageResult, error) {
	ctx = common.WithStageRequestID(ctx, id.String())
	start := time.Now()

	req, err := s.requests.Get(ctx, id)
	if err != nil {
		err = fmt.Errorf("load stage request: %w", err)
		if !errors.Is(err, common.ErrNotFound) {
			s.fail(id, "", err)
		}
		return nil, err
	}
	if err := s.requests.SetStatus(ctx, id, constants.RequestStatusResolving); err != nil {
		err = fmt.Errorf("mark stage request resolving: %w", err)
		s.fail(id, "", err)
		return nil, err
	}

	hooks := casda.StageHooks{
		Resolved: func(ctx context.Context, endpoint string, _ int) error {
			return s.requests.SetEndpoint(ctx, id, endpoint)
		},
		JobCreated: func(ctx context.Context, job uws.Job) error {
			return s.requests.SetJobLocation(ctx, id, job.Location)
		},
	}
	res, err := s.client.StageWithHooks(ctx, req.AccessURLs, hooks)
	if err != nil {
		var phase constants.Phase
		if res != nil {
			phase = res.Phase
		}
		s.fail(id, phase, err)
		return res, err
	}

	if err := s.requests.FinishSuccess(ctx, id, res.Phase, res.URLs); err != nil {
		err = fmt.Errorf("record stage result: %w", err)
		s.fail(id, res.Phase, err)
		return res, err
	}
	s.logger.Info("stager.request.done",
		"request_id", id,
		"phase", res.Phase,
		"urls", len(res.URLs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

// fail records the error on a fresh context so cancellation of the staging
// context does not also lose the failure.
func (s *Stager) fail(id uuid.UUID, phase constants.Phase, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	msg := cause.Error()
	if errors.Is(cause, context.Canceled) {
		msg = "cancelled: " + msg
	}
	if err := s.requests.FinishFailure(ctx, id, phase, msg); err != nil {
		s.logger.Error("stager.request.record_failure_failed", "request_id", id, "error", err)
	}
	s.logger.Error("stager.request.failed", "request_id", id, "phase", phase, "error", cause)
}

// recoverPageSize bounds each status listing made by Recover.
const recoverPageSize = 10000

// Recover settles rows left non-terminal by a previous run. QUEUED rows are
// handed to enqueue again. RESOLVING and STAGING rows are failed, since the
// remote job they may have created is no longer being polled.
func (s *Stager) Recover(ctx context.Context, enqueue func(ctx context.Context, id uuid.UUID) error) (requeued, failed int, err error) {
	queued := constants.RequestStatusQueued
	pending, err := s.requests.List(ctx, &queued, recoverPageSize)
	if err != nil {
		return 0, 0, fmt.Errorf("list queued requests: %w", err)
	}
	for _, req := range pending {
		if err := enqueue(ctx, req.ID); err != nil {
			s.fail(req.ID, "", fmt.Errorf("re-enqueue after restart: %w", err))
			failed++
			continue
		}
		requeued++
	}

	for _, st := range []constants.RequestStatus{constants.RequestStatusResolving, constants.RequestStatusStaging} {
		st := st
		rows, err := s.requests.List(ctx, &st, recoverPageSize)
		if err != nil {
			return requeued, failed, fmt.Errorf("list %s requests: %w", st, err)
		}
		for _, req := range rows {
			var phase constants.Phase
			if req.Phase != nil {
				phase = constants.Phase(*req.Phase)
			}
			s.fail(req.ID, phase, fmt.Errorf("interrupted while %s: daemon restarted", strings.ToLower(string(st))))
			failed++
		}
	}
	s.logger.Info("stager.recover.done", "requeued", requeued, "failed", failed)
	return requeued, failed, nil
}
