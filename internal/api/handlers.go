package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sceneforge/internal/db"
	"sceneforge/internal/models"
	"sceneforge/internal/queue"
	"sceneforge/internal/services"
)

type Handler struct {
	db                 *db.DB
	queue              *queue.Queue
	catalog            *services.ModelCatalog
	maxDurationSeconds float64
}

func NewHandler(database *db.DB, q *queue.Queue, catalog *services.ModelCatalog, maxDurationSeconds float64) *Handler {
	return &Handler{
		db:                 database,
		queue:              q,
		catalog:            catalog,
		maxDurationSeconds: maxDurationSeconds,
	}
}

// SubmitJob handles POST /v1/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "Prompt is required")
		return
	}
	if req.ProjectID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "Project ID is required")
		return
	}
	if req.DurationSeconds <= 0 {
		respondError(w, http.StatusBadRequest, "Duration must be positive")
		return
	}
	if req.DurationSeconds > h.maxDurationSeconds {
		respondError(w, http.StatusBadRequest, "Duration exceeds the maximum of "+strconv.FormatFloat(h.maxDurationSeconds, 'f', -1, 64)+" seconds")
		return
	}

	// An explicitly requested model must exist before the job is queued;
	// resolution failures surface here, not mid-pipeline.
	if req.ModelID != nil && *req.ModelID != "" {
		if _, err := h.catalog.Resolve(r.Context(), *req.ModelID); err != nil {
			respondError(w, http.StatusUnprocessableEntity, "Unknown model: "+*req.ModelID)
			return
		}
	}

	if _, err := h.db.GetProject(r.Context(), req.ProjectID); err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	job := &models.GenerationJob{
		ID:              uuid.New(),
		ProjectID:       req.ProjectID,
		UserID:          req.UserID,
		Prompt:          req.Prompt,
		DurationSeconds: req.DurationSeconds,
		Style:           req.Style,
		Mood:            req.Mood,
		AudioURL:        req.AudioURL,
		ModelID:         req.ModelID,
		Status:          models.JobStatusQueued,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueGenerateVideo(r.Context(), job.ID, job.ProjectID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusCreated, models.SubmitJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// GetJobStatus handles GET /v1/jobs/{id}
func (h *Handler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.db.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}

	respondJSON(w, http.StatusOK, models.JobStatusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		Progress:     job.Progress,
		VideoURL:     job.ResultVideoURL,
		ThumbnailURL: job.ThumbnailURL,
		Error:        job.ErrorMessage,
	})
}

// ListJobs handles GET /v1/jobs
// Query params:
//   - status: filter by job status (queued, active, completed, failed)
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		switch models.JobStatus(statusFilter) {
		case models.JobStatusQueued, models.JobStatusActive,
			models.JobStatusCompleted, models.JobStatusFailed:
		default:
			respondError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		offset = n
	}

	jobs, err := h.db.ListJobs(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	total, err := h.db.CountJobs(r.Context(), statusFilter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to count jobs")
		return
	}

	respondJSON(w, http.StatusOK, models.ListJobsResponse{
		Jobs:   jobs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetProjectScenes handles GET /v1/projects/{id}/scenes
func (h *Handler) GetProjectScenes(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return
	}

	if _, err := h.db.GetProject(r.Context(), id); err != nil {
		respondError(w, http.StatusNotFound, "Project not found")
		return
	}

	scenes, err := h.db.GetProjectScenes(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list scenes")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project_id": id,
		"scenes":     scenes,
	})
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"models": h.catalog.List(),
	})
}

// Health handles GET /health. The queue depth rides along so operators
// can spot a backed-up worker pool from the health probe alone.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{"status": "ok"}
	if h.queue != nil {
		if depth, err := h.queue.GetQueueLength(r.Context()); err == nil {
			payload["queue_depth"] = depth
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
