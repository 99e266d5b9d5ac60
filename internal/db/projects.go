package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"sceneforge/internal/models"
)

func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `
		SELECT
			id, user_id, title, style, mood, aspect_ratio, audio_url,
			config, status, thumbnail_url, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	project := &models.Project{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&project.ID, &project.UserID, &project.Title, &project.Style,
		&project.Mood, &project.AspectRatio, &project.AudioURL,
		&project.Config, &project.Status, &project.ThumbnailURL,
		&project.CreatedAt, &project.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return project, nil
}

// SetProjectStatus writes the project-level outcome. thumbnailURL is
// optional; nil leaves any existing thumbnail in place.
func (db *DB) SetProjectStatus(ctx context.Context, id uuid.UUID, status models.ProjectStatus, thumbnailURL *string) error {
	query := `
		UPDATE projects
		SET status = $1, thumbnail_url = COALESCE($2, thumbnail_url), updated_at = NOW()
		WHERE id = $3
	`
	_, err := db.ExecContext(ctx, query, status, thumbnailURL, id)
	if err != nil {
		return fmt.Errorf("failed to set project status: %w", err)
	}
	return nil
}
