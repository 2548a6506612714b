package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/casda-stager/constants"
	"github.com/joseph-ayodele/casda-stager/internal/common"
	"github.com/joseph-ayodele/casda-stager/internal/core/async"
	"github.com/joseph-ayodele/casda-stager/internal/export"
	"github.com/joseph-ayodele/casda-stager/internal/manifest"
	"github.com/joseph-ayodele/casda-stager/internal/repository"
)

const defaultMaxManifestBytes = 8 << 20

type Server struct {
	Requests      repository.StageRequestRepository
	Queue         async.Queue
	Export        *export.Service
	Service       string // datalink service recorded on new requests
	Authenticated bool   // archive credentials are configured
	MaxManifest   int64  // request body limit in bytes, default 8 MiB
	Logger        *slog.Logger
}

func (s Server) Router() http.Handler {
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1/stage", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/urls", s.handleURLs)
		r.Get("/{id}/export.xlsx", s.handleExport)
	})
	return r
}

func (s Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.Logger.Info("httpapi.request",
			"req_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := common.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
	if !s.Authenticated {
		writeErr(w, common.ErrAuthenticationRequired)
		return
	}
	limit := s.MaxManifest
	if limit <= 0 {
		limit = defaultMaxManifestBytes
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
				"error": fmt.Sprintf("manifest exceeds %d bytes", tooLarge.Limit),
			})
			return
		}
		writeErr(w, fmt.Errorf("%w: read body: %v", common.ErrInvalidInput, err))
		return
	}
	rows, err := manifest.Decode(raw)
	if err != nil {
		writeErr(w, err)
		return
	}
	if len(rows) == 0 {
		writeErr(w, common.ErrNoTokens)
		return
	}

	req, err := s.Requests.Create(ctx, s.Service, manifest.AccessURLs(rows))
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := s.Queue.Enqueue(ctx, async.Job{RequestID: req.ID, TraceID: common.RequestIDFromContext(ctx)}); err != nil {
		_ = s.Requests.FinishFailure(ctx, req.ID, "", "enqueue: "+err.Error())
		writeErr(w, err)
		return
	}
	w.Header().Set("Location", "/v1/stage/"+req.ID.String())
	writeJSON(w, http.StatusAccepted, req)
}

func (s Server) handleList(w http.ResponseWriter, r *http.Request) {
	var status *constants.RequestStatus
	if v := r.URL.Query().Get("status"); v != "" {
		st := constants.RequestStatus(v)
		status = &st
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	reqs, err := s.Requests.List(r.Context(), status, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": reqs})
}

func (s Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	req, err := s.Requests.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s Server) handleURLs(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if _, err := s.Requests.Get(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	urls, err := s.Requests.ListURLs(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"urls": urls})
}

func (s Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	b, err := s.Export.ExportRequestXLSX(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="stage-%s.xlsx"`, id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, fmt.Errorf("%w: invalid id", common.ErrInvalidInput))
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, err error) {
	writeJSON(w, common.HTTPStatus(err), map[string]any{"error": err.Error()})
}
