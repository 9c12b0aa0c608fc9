package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexberardi/jarvis-recipes-server/internal/model"
)

// CreateIngestion inserts a new PENDING ingestion record.
func (s *Store) CreateIngestion(ctx context.Context, ing *model.Ingestion) error {
	now := time.Now().UTC()
	if ing.CreatedAt.IsZero() {
		ing.CreatedAt = now
	}
	ing.UpdatedAt = now
	if ing.Status == "" {
		ing.Status = model.IngestionStatusPending
	}
	if ing.TierMax == 0 {
		ing.TierMax = 1
	}

	_, err := s.execWithRetry(ctx, `
		INSERT INTO ingestions (id, user_id, image_keys, status, tier_max, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ing.ID, ing.UserID, strings.Join(ing.ImageKeys, ","), string(ing.Status),
		ing.TierMax, ing.CreatedAt, ing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ingestion: %w", err)
	}
	return nil
}

// GetIngestion reads one ingestion by ID.
func (s *Store) GetIngestion(ctx context.Context, id string) (*model.Ingestion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, image_keys, status, tier_max, pipeline_json, recipe_id, created_at, updated_at
		FROM ingestions WHERE id = ?`, id)

	var (
		ing      model.Ingestion
		keys     string
		status   string
		pipeline sql.NullString
		recipeID sql.NullString
	)
	err := row.Scan(&ing.ID, &ing.UserID, &keys, &status, &ing.TierMax,
		&pipeline, &recipeID, &ing.CreatedAt, &ing.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan ingestion: %w", err)
	}

	ing.Status = model.IngestionStatus(status)
	if keys != "" {
		ing.ImageKeys = strings.Split(keys, ",")
	}
	if pipeline.Valid {
		ing.PipelineJSON = json.RawMessage(pipeline.String)
	}
	ing.RecipeID = nullStr(recipeID)
	return &ing, nil
}

// UpdateIngestionStatus moves the ingestion to a new status, optionally
// attaching pipeline diagnostics.
func (s *Store) UpdateIngestionStatus(ctx context.Context, id string, status model.IngestionStatus, pipeline json.RawMessage) error {
	_, err := s.execWithRetry(ctx, `
		UPDATE ingestions
		SET status = ?, pipeline_json = COALESCE(?, pipeline_json), updated_at = ?
		WHERE id = ?`,
		string(status), nullableJSON(pipeline), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update ingestion status: %w", err)
	}
	return nil
}

// LinkIngestionRecipe records the committed recipe produced from this
// ingestion.
func (s *Store) LinkIngestionRecipe(ctx context.Context, id, recipeID string) error {
	_, err := s.execWithRetry(ctx, `
		UPDATE ingestions SET recipe_id = ?, updated_at = ? WHERE id = ?`,
		recipeID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("link ingestion recipe: %w", err)
	}
	return nil
}
