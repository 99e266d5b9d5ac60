package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enums

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether the status is absorbing — a completed or
// failed job is never revived.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusProcessing ProjectStatus = "processing"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusFailed     ProjectStatus = "failed"
)

type ModelTier string

const (
	TierEconomy  ModelTier = "economy"
	TierStandard ModelTier = "standard"
	TierPremium  ModelTier = "premium"
)

// ModelFamily identifies a class of generative-media models sharing one
// request/response schema.
type ModelFamily string

const (
	FamilyGrok       ModelFamily = "grok"
	FamilyLuma       ModelFamily = "luma"
	FamilyPixelverse ModelFamily = "pixelverse"
	FamilyVeo        ModelFamily = "veo"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Models

// GenerationJob is one prompt-to-video request. Created on enqueue,
// mutated only by the worker that holds its lease, terminal once
// completed or failed.
type GenerationJob struct {
	ID              uuid.UUID `json:"id"`
	ProjectID       uuid.UUID `json:"project_id"`
	UserID          uuid.UUID `json:"user_id"`
	Prompt          string    `json:"prompt"`
	DurationSeconds float64   `json:"duration_seconds"`
	Style           *string   `json:"style,omitempty"`
	Mood            *string   `json:"mood,omitempty"`
	AudioURL        *string   `json:"audio_url,omitempty"`
	ModelID         *string   `json:"model_id,omitempty"` // explicit model request; nil = default
	Status          JobStatus `json:"status"`
	Progress        int       `json:"progress"` // 0-100, monotonically non-decreasing
	ResultVideoURL  *string   `json:"result_video_url,omitempty"`
	ThumbnailURL    *string   `json:"thumbnail_url,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Project carries the per-project generation config read by the worker.
type Project struct {
	ID           uuid.UUID     `json:"id"`
	UserID       uuid.UUID     `json:"user_id"`
	Title        string        `json:"title"`
	Style        *string       `json:"style,omitempty"`
	Mood         *string       `json:"mood,omitempty"`
	AspectRatio  *string       `json:"aspect_ratio,omitempty"` // "9:16", "16:9", "1:1"
	AudioURL     *string       `json:"audio_url,omitempty"`
	Config       JSONB         `json:"config,omitempty"`
	Status       ProjectStatus `json:"status"`
	ThumbnailURL *string       `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// SceneDescriptor is one planned sub-segment of the final video.
// Scenes for a job are contiguous and non-overlapping; durations sum to
// the job's total duration within rounding tolerance.
type SceneDescriptor struct {
	SceneNumber int     `json:"scene_number"` // 1-based
	Prompt      string  `json:"prompt"`
	Duration    float64 `json:"duration"`
	StartTime   float64 `json:"start_time"`
	EndTime     float64 `json:"end_time"`
}

// SceneArtifact is the persisted per-scene row. Frame URLs are optional:
// a frame-extraction failure never discards the clip reference.
type SceneArtifact struct {
	ProjectID     uuid.UUID `json:"project_id"`
	SceneNumber   int       `json:"scene_number"`
	Prompt        string    `json:"prompt"`
	Duration      float64   `json:"duration"`
	StartTime     float64   `json:"start_time"`
	VideoURL      string    `json:"video_url"`
	FirstFrameURL *string   `json:"first_frame_url,omitempty"`
	LastFrameURL  *string   `json:"last_frame_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ParamSchema declares which optional request fields a model family
// accepts. Request builders include only declared fields.
type ParamSchema struct {
	ReferenceImage bool `json:"reference_image"`
	EndFrame       bool `json:"end_frame"`
	Continuation   bool `json:"continuation"`
	NegativePrompt bool `json:"negative_prompt"`
	Seed           bool `json:"seed"`
}

// ModelProfile is read-only reference data about one generative model,
// refreshed on an expiring cache.
type ModelProfile struct {
	ID               string      `json:"id"`
	DisplayName      string      `json:"display_name"`
	Family           ModelFamily `json:"family"`
	MaxClipSeconds   float64     `json:"max_clip_seconds"`
	CostPerSecond    float64     `json:"cost_per_second"`
	Tier             ModelTier   `json:"tier"`
	AllowedDurations []int       `json:"allowed_durations"` // discrete seconds, ascending
	MaxPromptChars   int         `json:"max_prompt_chars"`
	RatioAsString    bool        `json:"ratio_as_string"` // true: "W:H"; false: landscape/portrait
	Params           ParamSchema `json:"params"`
}

// DTOs for API responses

type SubmitJobRequest struct {
	ProjectID       uuid.UUID `json:"project_id"`
	UserID          uuid.UUID `json:"user_id"`
	Prompt          string    `json:"prompt"`
	DurationSeconds float64   `json:"duration_seconds"`
	Style           *string   `json:"style,omitempty"`
	Mood            *string   `json:"mood,omitempty"`
	AudioURL        *string   `json:"audio_url,omitempty"`
	ModelID         *string   `json:"model_id,omitempty"`
}

type SubmitJobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

type JobStatusResponse struct {
	JobID        uuid.UUID `json:"job_id"`
	Status       JobStatus `json:"status"`
	Progress     int       `json:"progress"`
	VideoURL     *string   `json:"video_url,omitempty"`
	ThumbnailURL *string   `json:"thumbnail_url,omitempty"`
	Error        *string   `json:"error,omitempty"`
}

// JobSummary is a lightweight DTO for the list endpoint.
type JobSummary struct {
	ID              uuid.UUID `json:"id"`
	ProjectID       uuid.UUID `json:"project_id"`
	Prompt          string    `json:"prompt"`
	DurationSeconds float64   `json:"duration_seconds"`
	Status          JobStatus `json:"status"`
	Progress        int       `json:"progress"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ListJobsResponse struct {
	Jobs   []JobSummary `json:"jobs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}
