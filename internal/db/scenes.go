package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"sceneforge/internal/models"
)

// UpsertScene writes a per-scene artifact row. Idempotent on
// (project_id, scene_number): re-running a job overwrites the scene's
// previous row rather than duplicating it.
func (db *DB) UpsertScene(ctx context.Context, scene *models.SceneArtifact) error {
	query := `
		INSERT INTO project_scenes (
			project_id, scene_number, prompt, duration, start_time,
			video_url, first_frame_url, last_frame_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (project_id, scene_number) DO UPDATE SET
			prompt = EXCLUDED.prompt,
			duration = EXCLUDED.duration,
			start_time = EXCLUDED.start_time,
			video_url = EXCLUDED.video_url,
			first_frame_url = EXCLUDED.first_frame_url,
			last_frame_url = EXCLUDED.last_frame_url,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		scene.ProjectID, scene.SceneNumber, scene.Prompt, scene.Duration,
		scene.StartTime, scene.VideoURL, scene.FirstFrameURL, scene.LastFrameURL,
	).Scan(&scene.CreatedAt, &scene.UpdatedAt)
}

// GetProjectScenes returns a project's scenes ordered by scene number.
func (db *DB) GetProjectScenes(ctx context.Context, projectID uuid.UUID) ([]models.SceneArtifact, error) {
	query := `
		SELECT
			project_id, scene_number, prompt, duration, start_time,
			video_url, first_frame_url, last_frame_url, created_at, updated_at
		FROM project_scenes
		WHERE project_id = $1
		ORDER BY scene_number
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.SceneArtifact
	for rows.Next() {
		var s models.SceneArtifact
		if err := rows.Scan(
			&s.ProjectID, &s.SceneNumber, &s.Prompt, &s.Duration, &s.StartTime,
			&s.VideoURL, &s.FirstFrameURL, &s.LastFrameURL, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		scenes = append(scenes, s)
	}

	return scenes, nil
}
