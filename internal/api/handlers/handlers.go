package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/smart-financial-parser/internal/api/middleware"
	"github.com/dvloznov/smart-financial-parser/internal/jobs"
	"github.com/dvloznov/smart-financial-parser/internal/tableio"
)

// CleanHandler accepts uploaded tables and enqueues cleaning jobs.
type CleanHandler struct {
	publisher      jobs.Publisher
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewCleanHandler creates a new clean handler.
func NewCleanHandler(publisher jobs.Publisher, maxUploadBytes int64, log zerolog.Logger) *CleanHandler {
	return &CleanHandler{
		publisher:      publisher,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

// CreateCleanJob handles POST /api/clean with a multipart "file" field.
func (h *CleanHandler) CreateCleanJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.ContentLength > h.maxUploadBytes {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if _, err := tableio.FormatFromName(filename); err != nil {
		middleware.WriteError(w, http.StatusUnsupportedMediaType, "Only CSV and XLSX files are supported")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read upload")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read file")
		return
	}

	job := &jobs.CleanFileJob{
		Filename: filename,
		Input:    data,
	}
	if err := h.publisher.PublishCleanFile(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue clean job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue clean job")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("filename", filename).
		Int("bytes", len(data)).
		Msg("Clean job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store   jobs.JobStore
	results jobs.ResultStore
	log     zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, results jobs.ResultStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store:   store,
		results: results,
		log:     log,
	}
}

// GetJob handles GET /api/jobs/{jobID}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeStoreError(w, err, jobID)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// GetJobResult handles GET /api/jobs/{jobID}/result and returns the cleaned CSV.
func (h *JobsHandler) GetJobResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "jobID")

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.writeStoreError(w, err, jobID)
		return
	}
	if job.Status != jobs.JobStatusCompleted {
		middleware.WriteJSON(w, http.StatusConflict, map[string]string{
			"error":  "Job has not completed",
			"status": string(job.Status),
		})
		return
	}

	res, err := h.results.GetResult(ctx, jobID)
	if err != nil {
		h.writeStoreError(w, err, jobID)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="cleaned_data.csv"`)
	w.Header().Set("X-Run-ID", res.RunID)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Output); err != nil {
		h.log.Warn().Err(err).Str("job_id", jobID).Msg("Failed to write result")
	}
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

func (h *JobsHandler) writeStoreError(w http.ResponseWriter, err error, jobID string) {
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to load job")
	middleware.WriteError(w, http.StatusInternalServerError, "Failed to load job")
}
