package api

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/heimdex/heimdex-notes/internal/align"
	"github.com/heimdex/heimdex-notes/internal/jobs"
	"github.com/heimdex/heimdex-notes/internal/render"
	"github.com/heimdex/heimdex-notes/internal/services"
	"github.com/heimdex/heimdex-notes/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxRequestBody   = 64 << 10
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Jobs, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Get("/jobs", listJobsHandler(cfg))
		r.Post("/jobs", submitJobHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))
		r.Get("/jobs/{id}/manifest", manifestHandler(cfg))
		r.Get("/jobs/{id}/notes", notesHandler(cfg))
		r.Get("/jobs/{id}/frames/{name}", frameHandler(cfg))
		r.Post("/runner/pause", runnerHandler(cfg, true))
		r.Post("/runner/resume", runnerHandler(cfg, false))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		recent, _ := cfg.Jobs.List(ctx, 10)
		pending, _ := cfg.Jobs.Repository().ListPendingJobs(ctx)

		state := "idle"
		var activeJob *JobResponse
		jobsRunning := 0
		lastError := ""

		if cfg.Runner != nil && cfg.Runner.IsPaused() {
			state = "paused"
		}

		for _, j := range recent {
			if j.Status == jobs.StatusRunning {
				state = "processing"
				resp := JobToResponse(j)
				activeJob = &resp
				jobsRunning++
			}
			if j.Status == jobs.StatusFailed && lastError == "" {
				lastError = j.Error
			}
		}

		if lastError != "" && state == "idle" {
			state = "error"
		}

		resp := StatusResponse{
			State:       state,
			LastError:   lastError,
			JobsPending: len(pending),
			JobsRunning: jobsRunning,
			ActiveJob:   activeJob,
		}

		if cfg.Doctor != nil {
			caps, err := cfg.Doctor.Get(ctx)
			if err == nil && caps != nil {
				for _, tool := range caps.Tools {
					resp.Tools = append(resp.Tools, ToolResponse{Name: tool.Name, Available: tool.Available, Error: tool.Error})
				}
			}
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = min(n, maxListLimit)
		}

		list, err := cfg.Jobs.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(list))}
		for i, j := range list {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func submitJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitJobRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		job, err := cfg.Jobs.Submit(r.Context(), req.VideoURL, req.JobID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if cfg.Runner != nil {
			cfg.Runner.Notify()
		}

		WriteJSON(w, http.StatusAccepted, SubmitJobResponse{JobID: job.ID, Status: job.Status})
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := lookupJob(w, r, cfg)
		if !ok {
			return
		}

		resp := JobToResponse(job)
		artifacts, err := cfg.Jobs.Repository().ListArtifacts(r.Context(), job.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		for _, a := range artifacts {
			resp.Artifacts = append(resp.Artifacts, ArtifactToResponse(a))
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// manifestHandler serves the summarized manifest when one exists, falling
// back to the plain manifest. ?summarized=false forces the plain one.
func manifestHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, ok := lookupJob(w, r, cfg)
		if !ok {
			return
		}

		type variant struct{ local, blob string }
		variants := []variant{
			{cfg.Workspace.SummarizedFile(job.ID), storage.SummarizedManifestBlob(job.ID)},
			{cfg.Workspace.ManifestFile(job.ID), storage.ManifestBlob(job.ID)},
		}
		if r.URL.Query().Get("summarized") == "false" {
			variants = variants[1:]
		}

		for _, v := range variants {
			data, err := readArtifact(r.Context(), cfg, v.local, cfg.Containers.Manifests, v.blob)
			if errors.Is(err, services.ErrNotFound) {
				continue
			}
			if err != nil {
				WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
				return
			}
			writeBytes(w, "application/json", data)
			return
		}
		WriteError(w, http.StatusNotFound, "manifest not available", "NOT_FOUND")
	}
}

func notesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		format := r.URL.Query().Get("format")
		if format == "" {
			format = render.FormatHTML
		}
		if !render.ValidFormat(format) {
			WriteError(w, http.StatusBadRequest, "format must be html or md", "BAD_REQUEST")
			return
		}

		job, ok := lookupJob(w, r, cfg)
		if !ok {
			return
		}

		data, err := readArtifact(r.Context(), cfg, cfg.Workspace.OutputFile(job.ID, format), cfg.Containers.Outputs, storage.OutputBlob(job.ID, format))
		if errors.Is(err, services.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "notes not available", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		writeBytes(w, render.ContentType(format), data)
	}
}

func frameHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		ms, ok := align.ParseFrameName(name)
		if !ok || filepath.Base(name) != name {
			WriteError(w, http.StatusBadRequest, "frame name must be {startMs}.jpg", "BAD_REQUEST")
			return
		}

		job, ok := lookupJob(w, r, cfg)
		if !ok {
			return
		}

		local := filepath.Join(cfg.Workspace.FramesDir(job.ID), align.FrameName(ms))
		data, err := readArtifact(r.Context(), cfg, local, cfg.Containers.Frames, storage.FrameBlob(job.ID, ms))
		if errors.Is(err, services.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "frame not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		w.Header().Set("Cache-Control", "private, max-age=3600")
		writeBytes(w, "image/jpeg", data)
	}
}

func runnerHandler(cfg ServerConfig, pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "job runner is not running", "UNAVAILABLE")
			return
		}
		if pause {
			cfg.Runner.Pause()
		} else {
			cfg.Runner.Resume()
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func lookupJob(w http.ResponseWriter, r *http.Request, cfg ServerConfig) (*jobs.Job, bool) {
	id := chi.URLParam(r, "id")
	if err := jobs.ValidateID(id); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		return nil, false
	}
	job, err := cfg.Jobs.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	return job, true
}

// readArtifact prefers the local workspace copy and falls back to the
// blob store.
func readArtifact(ctx context.Context, cfg ServerConfig, local, container, blob string) ([]byte, error) {
	data, err := os.ReadFile(local)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if cfg.Store == nil {
		return nil, services.Wrap(services.ErrNotFound, "api", "read", filepath.Base(local), nil)
	}
	return cfg.Store.Get(ctx, container, blob)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		WriteError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
	case errors.Is(err, services.ErrValidation):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

func writeBytes(w http.ResponseWriter, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
