package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/entity"
)

type StageRequestRepository interface {
	Create(ctx context.Context, service string, accessURLs []string) (*entity.StageRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.StageRequest, error)
	List(ctx context.Context, status *constants.RequestStatus, limit int) ([]*entity.StageRequest, error)
	SetStatus(ctx context.Context, id uuid.UUID, status constants.RequestStatus) error
	SetEndpoint(ctx context.Context, id uuid.UUID, endpoint string) error
	SetJobLocation(ctx context.Context, id uuid.UUID, location string) error
	FinishSuccess(ctx context.Context, id uuid.UUID, phase constants.Phase, urls []string) error
	FinishFailure(ctx context.Context, id uuid.UUID, phase constants.Phase, message string) error
	ListURLs(ctx context.Context, id uuid.UUID) ([]entity.StagedURL, error)
}

type stageRequestRepo struct {
	db  *DB
	log *slog.Logger
	now func() time.Time
}

func NewStageRequestRepository(db *DB, log *slog.Logger) StageRequestRepository {
	if log == nil {
		log = slog.Default()
	}
	return &stageRequestRepo{db: db, log: log, now: time.Now}
}

const selectRequest = `SELECT r.id, r.created_at, r.updated_at, r.finished_at, r.status, r.service, r.access_urls,
  r.endpoint, r.job_location, r.phase, r.error_message,
  (SELECT COUNT(*) FROM stage_result s WHERE s.request_id = r.id)
FROM stage_request r`

func (r *stageRequestRepo) Create(ctx context.Context, service string, accessURLs []string) (*entity.StageRequest, error) {
	urls, err := json.Marshal(accessURLs)
	if err != nil {
		return nil, fmt.Errorf("encode access urls: %w", err)
	}
	now := r.now().UTC()
	req := &entity.StageRequest{
		ID:         uuid.New(),
		Status:     string(constants.RequestStatusQueued),
		Service:    service,
		AccessURLs: append([]string(nil), accessURLs...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = r.db.SQL.ExecContext(ctx, r.db.Rebind(
		`INSERT INTO stage_request (id, created_at, updated_at, status, service, access_urls)
         VALUES (?, ?, ?, ?, ?, ?)`),
		req.ID.String(), now.UnixMilli(), now.UnixMilli(), req.Status, service, string(urls),
	)
	if err != nil {
		r.log.Error("stage_request create failed", "files", len(accessURLs), "err", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.log.Info("stage_request created", "request_id", req.ID, "files", len(accessURLs), "service", service)
	return req, nil
}

func (r *stageRequestRepo) Get(ctx context.Context, id uuid.UUID) (*entity.StageRequest, error) {
	row := r.db.SQL.QueryRowContext(ctx, r.db.Rebind(selectRequest+` WHERE r.id = ?`), id.String())
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stage request %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("stage_request get failed", "request_id", id, "err", err)
		return nil, err
	}
	return req, nil
}

func (r *stageRequestRepo) List(ctx context.Context, status *constants.RequestStatus, limit int) ([]*entity.StageRequest, error) {
	if limit <= 0 {
		limit = 25
	}
	query := selectRequest
	args := []any{}
	if status != nil {
		query += " WHERE r.status = ?"
		args = append(args, string(*status))
	}
	query += " ORDER BY r.created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.StageRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *stageRequestRepo) SetStatus(ctx context.Context, id uuid.UUID, status constants.RequestStatus) error {
	return r.update(ctx, id, `status = ?`, string(status))
}

func (r *stageRequestRepo) SetEndpoint(ctx context.Context, id uuid.UUID, endpoint string) error {
	return r.update(ctx, id, `endpoint = ?`, endpoint)
}

func (r *stageRequestRepo) SetJobLocation(ctx context.Context, id uuid.UUID, location string) error {
	if err := r.update(ctx, id, `job_location = ?, status = ?`, location, string(constants.RequestStatusStaging)); err != nil {
		return err
	}
	r.log.Info("stage_request job created", "request_id", id, "location", location)
	return nil
}

func (r *stageRequestRepo) FinishSuccess(ctx context.Context, id uuid.UUID, phase constants.Phase, urls []string) error {
	status := constants.RequestStatusCompleted
	if !phase.IsSuccessful() {
		status = constants.RequestStatusRemoteErr
	}
	now := r.now().UTC().UnixMilli()

	tx, err := r.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for i, u := range urls {
		if _, err := tx.ExecContext(ctx, r.db.Rebind(
			`INSERT INTO stage_result (request_id, position, url, is_checksum) VALUES (?, ?, ?, ?)`),
			id.String(), i, u, constants.IsChecksumURL(u),
		); err != nil {
			r.log.Error("stage_request finish(OK) failed", "request_id", id, "err", err)
			return err
		}
	}
	res, err := tx.ExecContext(ctx, r.db.Rebind(
		`UPDATE stage_request SET status = ?, phase = ?, finished_at = ?, updated_at = ? WHERE id = ?`),
		string(status), string(phase), now, now, id.String(),
	)
	if err := checkUpdated(res, err, id); err != nil {
		r.log.Error("stage_request finish(OK) failed", "request_id", id, "err", err)
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.log.Info("stage_request finished", "request_id", id, "status", status, "phase", phase, "urls", len(urls))
	return nil
}

func (r *stageRequestRepo) FinishFailure(ctx context.Context, id uuid.UUID, phase constants.Phase, message string) error {
	now := r.now().UTC().UnixMilli()
	var p any
	if phase != "" {
		p = string(phase)
	}
	res, err := r.db.SQL.ExecContext(ctx, r.db.Rebind(
		`UPDATE stage_request SET status = ?, phase = ?, error_message = ?, finished_at = ?, updated_at = ? WHERE id = ?`),
		string(constants.RequestStatusFailed), p, message, now, now, id.String(),
	)
	if err := checkUpdated(res, err, id); err != nil {
		r.log.Error("stage_request finish(FAILED) failed", "request_id", id, "err", err)
		return err
	}
	r.log.Warn("stage_request finished (FAILED)", "request_id", id, "error", message)
	return nil
}

func (r *stageRequestRepo) ListURLs(ctx context.Context, id uuid.UUID) ([]entity.StagedURL, error) {
	rows, err := r.db.SQL.QueryContext(ctx, r.db.Rebind(
		`SELECT position, url, is_checksum FROM stage_result WHERE request_id = ? ORDER BY position`), id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.StagedURL
	for rows.Next() {
		var u entity.StagedURL
		if err := rows.Scan(&u.Position, &u.URL, &u.IsChecksum); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *stageRequestRepo) update(ctx context.Context, id uuid.UUID, set string, args ...any) error {
	args = append(args, r.now().UTC().UnixMilli(), id.String())
	res, err := r.db.SQL.ExecContext(ctx, r.db.Rebind(`UPDATE stage_request SET `+set+`, updated_at = ? WHERE id = ?`), args...)
	if err := checkUpdated(res, err, id); err != nil {
		r.log.Error("stage_request update failed", "request_id", id, "set", set, "err", err)
		return err
	}
	return nil
}

func checkUpdated(res sql.Result, err error, id uuid.UUID) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("stage request %s: %w", id, common.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*entity.StageRequest, error) {
	var (
		id, status, service, urls          string
		created, updated                   int64
		finished                           sql.NullInt64
		endpoint, location, phase, errText sql.NullString
		count                              int
	)
	if err := row.Scan(&id, &created, &updated, &finished, &status, &service, &urls,
		&endpoint, &location, &phase, &errText, &count); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse stage request id: %w", err)
	}
	req := &entity.StageRequest{
		ID:           parsed,
		Status:       status,
		Service:      service,
		CreatedAt:    time.UnixMilli(created).UTC(),
		UpdatedAt:    time.UnixMilli(updated).UTC(),
		Endpoint:     nullString(endpoint),
		JobLocation:  nullString(location),
		Phase:        nullString(phase),
		ErrorMessage: nullString(errText),
		URLCount:     count,
	}
	if err := json.Unmarshal([]byte(urls), &req.AccessURLs); err != nil {
		return nil, fmt.Errorf("decode access urls: %w", err)
	}
	if finished.Valid {
		t := time.UnixMilli(finished.Int64).UTC()
		req.FinishedAt = &t
	}
	return req, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
