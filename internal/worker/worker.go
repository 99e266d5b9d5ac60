package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sceneforge/internal/models"
	"sceneforge/internal/queue"
	"sceneforge/internal/services"
)

// Progress checkpoints published while a job moves through the pipeline.
// Scene generation spreads evenly across its band; CompleteJob pins 100.
const (
	progressStarted      = 5
	progressPlanned      = 15
	progressScenesDone   = 75
	progressConcatenated = 85
	progressAudioMixed   = 90
	progressUploaded     = 95
)

const (
	dequeueTimeout    = 5 * time.Second
	staleJobThreshold = 45 * time.Minute
	reaperInterval    = 10 * time.Minute
)

// StateSink is the persistence surface the worker drives: job state
// transitions, progress, and per-scene artifact rows.
type StateSink interface {
	GetJob(ctx context.Context, id uuid.UUID) (*models.GenerationJob, error)
	MarkJobActive(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateJobProgress(ctx context.Context, id uuid.UUID, progress int) error
	CompleteJob(ctx context.Context, id uuid.UUID, videoURL string, thumbnailURL *string) error
	FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error
	StaleActiveJobs(ctx context.Context, olderThan time.Duration) ([]models.JobSummary, error)
	GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error)
	SetProjectStatus(ctx context.Context, id uuid.UUID, status models.ProjectStatus, thumbnailURL *string) error
	UpsertScene(ctx context.Context, scene *models.SceneArtifact) error
}

// JobSource hands out queued jobs and per-job leases.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	AcquireJobLease(ctx context.Context, jobID uuid.UUID, workerID string) (bool, error)
	ReleaseJobLease(ctx context.Context, jobID uuid.UUID, workerID string) error
}

// Generator produces one clip per scene.
type Generator interface {
	Generate(ctx context.Context, scene models.SceneDescriptor, modelID string, params services.GenerationParams) (*services.GenerationResult, error)
}

// Assembler is the media-processing surface (ffmpeg).
type Assembler interface {
	ExtractFrames(ctx context.Context, videoPath string) (firstPath, lastPath string, err error)
	ExtractThumbnail(ctx context.Context, videoPath, outputPath string) error
	ConcatenateClips(ctx context.Context, clipPaths []string, outputPath string) error
	MixAudio(ctx context.Context, videoPath, audioPath, outputPath string) error
	CreateTempFile(filename string) string
	Cleanup(paths ...string)
}

// MediaStore moves clip bytes between the provider, local scratch, and
// the object store.
type MediaStore interface {
	ObjectPath(userID, projectID uuid.UUID, purpose, filename string) string
	UploadFile(ctx context.Context, storagePath, localPath, contentType string) (string, error)
	FetchURLToFile(ctx context.Context, url, localPath string) error
	CheckReachable(ctx context.Context, url string) bool
}

// SceneEnhancer optionally rewrites planned scene prompts. Nil disables.
type SceneEnhancer interface {
	EnhanceScenes(ctx context.Context, scenes []models.SceneDescriptor) []models.SceneDescriptor
}

type Worker struct {
	db           StateSink
	queue        JobSource
	storage      MediaStore
	generator    Generator
	ffmpeg       Assembler
	enhancer     SceneEnhancer // nil when prompt enhancement is disabled
	defaultModel string
	workerID     string
	uploadSem    chan struct{} // limits concurrent object-store uploads
}

func New(
	sink StateSink,
	source JobSource,
	store MediaStore,
	gen Generator,
	ffmpeg Assembler,
	enhancer SceneEnhancer,
	defaultModel string,
) *Worker {
	hostname, _ := os.Hostname()
	return &Worker{
		db:           sink,
		queue:        source,
		storage:      store,
		generator:    gen,
		ffmpeg:       ffmpeg,
		enhancer:     enhancer,
		defaultModel: defaultModel,
		workerID:     fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8]),
		uploadSem:    make(chan struct{}, 4),
	}
}

// Start runs the bounded worker pool until the context is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("[Worker] Started %s with concurrency %d", w.workerID, concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processLoop(ctx)
	}
	go w.reapStaleJobs(ctx)

	<-ctx.Done()
	log.Println("[Worker] Shutting down...")
}

func (w *Worker) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, dequeueTimeout)
			if err != nil {
				log.Printf("[Worker] Dequeue error: %v", err)
				continue
			}
			if job == nil {
				continue
			}
			w.handleJob(ctx, job)
		}
	}
}

// reapStaleJobs surfaces active jobs whose worker died mid-pipeline.
// Their leases have expired, so they are failed rather than left stuck.
func (w *Worker) reapStaleJobs(ctx context.Context) {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale, err := w.db.StaleActiveJobs(ctx, staleJobThreshold)
			if err != nil {
				log.Printf("[Worker] Stale job scan failed: %v", err)
				continue
			}
			for _, job := range stale {
				ok, err := w.queue.AcquireJobLease(ctx, job.ID, w.workerID)
				if err != nil || !ok {
					continue // still owned by a live worker
				}
				log.Printf("[Worker] Failing stale job %s (active since %s)", job.ID, job.UpdatedAt)
				w.db.FailJob(ctx, job.ID, "job abandoned: worker stopped responding")
				w.db.SetProjectStatus(ctx, job.ProjectID, models.ProjectStatusFailed, nil)
				w.queue.ReleaseJobLease(ctx, job.ID, w.workerID)
			}
		}
	}
}

// handleJob wraps processJob with the lease and terminal-state writes.
func (w *Worker) handleJob(ctx context.Context, qj *queue.Job) {
	acquired, err := w.queue.AcquireJobLease(ctx, qj.ID, w.workerID)
	if err != nil {
		log.Printf("[Worker] Lease acquire failed for job %s: %v", qj.ID, err)
		return
	}
	if !acquired {
		log.Printf("[Worker] Job %s already leased, skipping", qj.ID)
		return
	}
	defer w.queue.ReleaseJobLease(ctx, qj.ID, w.workerID)

	log.Printf("[Worker] Processing job %s (project %s)", qj.ID, qj.ProjectID)

	if err := w.processJob(ctx, qj.ID); err != nil {
		log.Printf("[Worker] Job %s failed: %v", qj.ID, err)
		w.db.FailJob(ctx, qj.ID, err.Error())
		w.db.SetProjectStatus(ctx, qj.ProjectID, models.ProjectStatusFailed, nil)
		return
	}

	log.Printf("[Worker] Job %s completed", qj.ID)
}

func (w *Worker) processJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := w.db.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job.Status.IsTerminal() {
		log.Printf("[Worker] Job %s already %s, skipping", jobID, job.Status)
		return nil
	}

	// The queued→active transition is guarded in SQL: losing the race
	// means another worker owns this job.
	became, err := w.db.MarkJobActive(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to activate job: %w", err)
	}
	if !became {
		log.Printf("[Worker] Job %s was claimed elsewhere, skipping", jobID)
		return nil
	}

	if err := w.db.SetProjectStatus(ctx, job.ProjectID, models.ProjectStatusProcessing, nil); err != nil {
		return fmt.Errorf("failed to set project status: %w", err)
	}
	w.progress(ctx, jobID, progressStarted)

	project, err := w.db.GetProject(ctx, job.ProjectID)
	if err != nil {
		return fmt.Errorf("failed to load project: %w", err)
	}

	scenes := services.PlanScenes(job.Prompt, job.DurationSeconds, services.PlanHints{
		Style: derefOr(job.Style, derefOr(project.Style, "")),
		Mood:  derefOr(job.Mood, derefOr(project.Mood, "")),
	})
	if w.enhancer != nil {
		scenes = w.enhancer.EnhanceScenes(ctx, scenes)
	}
	w.progress(ctx, jobID, progressPlanned)
	log.Printf("[Worker] Job %s planned into %d scenes", jobID, len(scenes))

	clipPaths, err := w.generateScenes(ctx, job, project, scenes)
	defer w.ffmpeg.Cleanup(clipPaths...)
	if err != nil {
		return err
	}

	finalPath := w.ffmpeg.CreateTempFile(fmt.Sprintf("%s_final.mp4", jobID))
	defer w.ffmpeg.Cleanup(finalPath)
	if err := w.ffmpeg.ConcatenateClips(ctx, clipPaths, finalPath); err != nil {
		return fmt.Errorf("failed to concatenate clips: %w", err)
	}
	w.progress(ctx, jobID, progressConcatenated)

	if audioURL := audioFor(job, project); audioURL != "" {
		mixed, err := w.mixAudioTrack(ctx, jobID, finalPath, audioURL)
		if err != nil {
			return err
		}
		defer w.ffmpeg.Cleanup(mixed)
		finalPath = mixed
		w.progress(ctx, jobID, progressAudioMixed)
	}

	videoURL, thumbnailURL, err := w.publishFinal(ctx, job, project, finalPath)
	if err != nil {
		return err
	}
	w.progress(ctx, jobID, progressUploaded)

	if err := w.db.CompleteJob(ctx, jobID, videoURL, thumbnailURL); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return w.db.SetProjectStatus(ctx, job.ProjectID, models.ProjectStatusCompleted, thumbnailURL)
}

// generateScenes produces each scene's clip in order, threading the
// previous scene's last frame and continuation handle into the next
// request for visual continuity. Clips download to local scratch; the
// returned paths feed concatenation.
func (w *Worker) generateScenes(ctx context.Context, job *models.GenerationJob, project *models.Project, scenes []models.SceneDescriptor) ([]string, error) {
	modelID := w.defaultModel
	if job.ModelID != nil && *job.ModelID != "" {
		modelID = *job.ModelID
	}

	clipPaths := make([]string, 0, len(scenes))
	var prevLastFrame string
	var prevContinuation string

	for i, scene := range scenes {
		params := services.GenerationParams{
			AspectRatio:        derefOr(project.AspectRatio, ""),
			ContinuationHandle: prevContinuation,
			NegativePrompt:     configString(project.Config, "negative_prompt"),
			Style:              derefOr(job.Style, derefOr(project.Style, "")),
			Mood:               derefOr(job.Mood, derefOr(project.Mood, "")),
			ColorPalette:       configString(project.Config, "color_palette"),
			Pacing:             configString(project.Config, "pacing"),
		}
		// A stale or deleted frame URL would fail provider-side
		// validation; probe before sending it onward.
		if prevLastFrame != "" && w.storage.CheckReachable(ctx, prevLastFrame) {
			params.ReferenceImageURL = prevLastFrame
		}

		result, err := w.generator.Generate(ctx, scene, modelID, params)
		if err != nil {
			return clipPaths, fmt.Errorf("scene %d generation failed: %w", scene.SceneNumber, err)
		}
		prevContinuation = result.ContinuationHandle

		clipPath := w.ffmpeg.CreateTempFile(fmt.Sprintf("%s_scene_%03d.mp4", job.ID, scene.SceneNumber))
		if len(result.Data) > 0 {
			if err := os.WriteFile(clipPath, result.Data, 0644); err != nil {
				return clipPaths, fmt.Errorf("scene %d write failed: %w", scene.SceneNumber, err)
			}
		} else {
			if err := w.storage.FetchURLToFile(ctx, result.Output.First(), clipPath); err != nil {
				return clipPaths, fmt.Errorf("scene %d download failed: %w", scene.SceneNumber, err)
			}
		}
		clipPaths = append(clipPaths, clipPath)

		clipURL, err := w.uploadClip(ctx, project, scene.SceneNumber, clipPath)
		if err != nil {
			return clipPaths, err
		}

		artifact := &models.SceneArtifact{
			ProjectID:   job.ProjectID,
			SceneNumber: scene.SceneNumber,
			Prompt:      scene.Prompt,
			Duration:    scene.Duration,
			StartTime:   scene.StartTime,
			VideoURL:    clipURL,
		}

		// Frame extraction is best effort: a probe or extraction failure
		// costs the continuity reference, never the clip itself.
		firstURL, lastURL := w.extractAndUploadFrames(ctx, project, scene.SceneNumber, clipPath)
		artifact.FirstFrameURL = firstURL
		artifact.LastFrameURL = lastURL
		if lastURL != nil {
			prevLastFrame = *lastURL
		} else {
			prevLastFrame = ""
		}

		if err := w.db.UpsertScene(ctx, artifact); err != nil {
			return clipPaths, fmt.Errorf("scene %d persist failed: %w", scene.SceneNumber, err)
		}

		w.progress(ctx, job.ID, sceneProgress(i+1, len(scenes)))
		log.Printf("[Worker] Job %s scene %d/%d done", job.ID, scene.SceneNumber, len(scenes))
	}

	return clipPaths, nil
}

func (w *Worker) uploadClip(ctx context.Context, project *models.Project, sceneNumber int, clipPath string) (string, error) {
	objectPath := w.storage.ObjectPath(project.UserID, project.ID, "scenes", fmt.Sprintf("scene_%03d.mp4", sceneNumber))

	var url string
	err := w.uploadWithLimit(ctx, fmt.Sprintf("scene %d clip", sceneNumber), func() error {
		var err error
		url, err = w.storage.UploadFile(ctx, objectPath, clipPath, "video/mp4")
		return err
	})
	if err != nil {
		return "", fmt.Errorf("scene %d upload failed: %w", sceneNumber, err)
	}
	return url, nil
}

// extractAndUploadFrames grabs the clip's first and last frames and
// uploads them in parallel. All failures are logged and swallowed.
func (w *Worker) extractAndUploadFrames(ctx context.Context, project *models.Project, sceneNumber int, clipPath string) (firstURL, lastURL *string) {
	firstPath, lastPath, err := w.ffmpeg.ExtractFrames(ctx, clipPath)
	if err != nil {
		log.Printf("[Worker] Frame extraction for scene %d failed (continuing): %v", sceneNumber, err)
		return nil, nil
	}
	defer w.ffmpeg.Cleanup(firstPath, lastPath)

	g, gctx := errgroup.WithContext(ctx)
	upload := func(local, name string) (string, error) {
		objectPath := w.storage.ObjectPath(project.UserID, project.ID, "frames", fmt.Sprintf("scene_%03d_%s.jpg", sceneNumber, name))
		var url string
		err := w.uploadWithLimit(gctx, fmt.Sprintf("scene %d %s frame", sceneNumber, name), func() error {
			var err error
			url, err = w.storage.UploadFile(gctx, objectPath, local, "image/jpeg")
			return err
		})
		return url, err
	}

	var first, last string
	g.Go(func() error {
		var err error
		first, err = upload(firstPath, "first")
		return err
	})
	g.Go(func() error {
		var err error
		last, err = upload(lastPath, "last")
		return err
	})
	if err := g.Wait(); err != nil {
		log.Printf("[Worker] Frame upload for scene %d failed (continuing): %v", sceneNumber, err)
		return nil, nil
	}

	return &first, &last
}

func (w *Worker) mixAudioTrack(ctx context.Context, jobID uuid.UUID, videoPath, audioURL string) (string, error) {
	audioPath := w.ffmpeg.CreateTempFile(fmt.Sprintf("%s_audio", jobID))
	defer w.ffmpeg.Cleanup(audioPath)
	if err := w.storage.FetchURLToFile(ctx, audioURL, audioPath); err != nil {
		return "", fmt.Errorf("audio download failed: %w", err)
	}

	mixedPath := w.ffmpeg.CreateTempFile(fmt.Sprintf("%s_mixed.mp4", jobID))
	if err := w.ffmpeg.MixAudio(ctx, videoPath, audioPath, mixedPath); err != nil {
		return "", fmt.Errorf("audio mix failed: %w", err)
	}
	return mixedPath, nil
}

// publishFinal uploads the assembled video and a best-effort thumbnail.
func (w *Worker) publishFinal(ctx context.Context, job *models.GenerationJob, project *models.Project, finalPath string) (string, *string, error) {
	objectPath := w.storage.ObjectPath(project.UserID, project.ID, "videos", fmt.Sprintf("%s.mp4", job.ID))

	var videoURL string
	err := w.uploadWithLimit(ctx, "final video", func() error {
		var err error
		videoURL, err = w.storage.UploadFile(ctx, objectPath, finalPath, "video/mp4")
		return err
	})
	if err != nil {
		return "", nil, fmt.Errorf("final video upload failed: %w", err)
	}

	var thumbnailURL *string
	thumbPath := w.ffmpeg.CreateTempFile(fmt.Sprintf("%s_thumb.jpg", job.ID))
	defer w.ffmpeg.Cleanup(thumbPath)
	if err := w.ffmpeg.ExtractThumbnail(ctx, finalPath, thumbPath); err != nil {
		log.Printf("[Worker] Thumbnail extraction failed (continuing): %v", err)
	} else {
		thumbObjectPath := w.storage.ObjectPath(project.UserID, project.ID, "thumbnails", fmt.Sprintf("%s.jpg", job.ID))
		if url, err := w.storage.UploadFile(ctx, thumbObjectPath, thumbPath, "image/jpeg"); err != nil {
			log.Printf("[Worker] Thumbnail upload failed (continuing): %v", err)
		} else {
			thumbnailURL = &url
		}
	}

	return videoURL, thumbnailURL, nil
}

// uploadWithLimit serializes object-store uploads through a small
// semaphore so scene, frame, and final uploads never saturate the store.
func (w *Worker) uploadWithLimit(ctx context.Context, label string, fn func() error) error {
	select {
	case w.uploadSem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("upload of %s cancelled while waiting for slot: %w", label, ctx.Err())
	}
	defer func() { <-w.uploadSem }()

	return fn()
}

func (w *Worker) progress(ctx context.Context, jobID uuid.UUID, value int) {
	if err := w.db.UpdateJobProgress(ctx, jobID, value); err != nil {
		log.Printf("[Worker] Progress update for job %s failed: %v", jobID, err)
	}
}

// sceneProgress maps scene completion onto the planned→scenes-done band.
func sceneProgress(done, total int) int {
	if total <= 0 {
		return progressScenesDone
	}
	return progressPlanned + (progressScenesDone-progressPlanned)*done/total
}

func derefOr(s *string, fallback string) string {
	if s != nil && *s != "" {
		return *s
	}
	return fallback
}

func audioFor(job *models.GenerationJob, project *models.Project) string {
	if job.AudioURL != nil && *job.AudioURL != "" {
		return *job.AudioURL
	}
	return derefOr(project.AudioURL, "")
}

func configString(cfg models.JSONB, key string) string {
	if cfg == nil {
		return ""
	}
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}
