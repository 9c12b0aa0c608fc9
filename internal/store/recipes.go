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

// InsertRecipe persists a committed recipe. Ingredients, steps, notes and
// tags are stored as JSON columns.
func (s *Store) InsertRecipe(ctx context.Context, r *model.Recipe) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	ingredients, err := json.Marshal(r.Ingredients)
	if err != nil {
		return fmt.Errorf("marshal ingredients: %w", err)
	}
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}

	var tags, notes any
	if len(r.Tags) > 0 {
		b, _ := json.Marshal(r.Tags)
		tags = string(b)
	}
	if len(r.Notes) > 0 {
		b, _ := json.Marshal(r.Notes)
		notes = string(b)
	}

	_, err = s.execWithRetry(ctx, `
		INSERT INTO recipes (id, user_id, title, description, source_url, image_url,
			tags, servings, total_time_minutes, ingredients, steps, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Title, r.Description, r.SourceURL, r.ImageURL,
		tags, r.Servings, r.TotalTimeMinutes, string(ingredients), string(steps),
		notes, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recipe: %w", err)
	}
	return nil
}

// GetRecipe reads one recipe by ID.
func (s *Store) GetRecipe(ctx context.Context, id string) (*model.Recipe, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, description, source_url, image_url,
			tags, servings, total_time_minutes, ingredients, steps, notes, created_at
		FROM recipes WHERE id = ?`, id)
	return scanRecipe(row)
}

func scanRecipe(row *sql.Row) (*model.Recipe, error) {
	var (
		r           model.Recipe
		desc        sql.NullString
		sourceURL   sql.NullString
		imageURL    sql.NullString
		tags        sql.NullString
		servings    sql.NullInt64
		totalTime   sql.NullInt64
		ingredients string
		steps       string
		notes       sql.NullString
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Title, &desc, &sourceURL, &imageURL,
		&tags, &servings, &totalTime, &ingredients, &steps, &notes, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan recipe: %w", err)
	}

	r.Description = nullStr(desc)
	r.SourceURL = nullStr(sourceURL)
	r.ImageURL = nullStr(imageURL)
	if servings.Valid {
		v := int(servings.Int64)
		r.Servings = &v
	}
	if totalTime.Valid {
		v := int(totalTime.Int64)
		r.TotalTimeMinutes = &v
	}
	if err := json.Unmarshal([]byte(ingredients), &r.Ingredients); err != nil {
		return nil, fmt.Errorf("unmarshal ingredients: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &r.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if tags.Valid {
		_ = json.Unmarshal([]byte(tags.String), &r.Tags)
	}
	if notes.Valid {
		_ = json.Unmarshal([]byte(notes.String), &r.Notes)
	}
	return &r, nil
}

// ListRecipeCandidates returns the user's newest recipes as meal plan
// candidates, capped at limit.
func (s *Store) ListRecipeCandidates(ctx context.Context, userID string, limit int) ([]model.MealPlanCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, tags, total_time_minutes
		FROM recipes WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recipe candidates: %w", err)
	}
	defer rows.Close()

	var out []model.MealPlanCandidate
	for rows.Next() {
		var (
			c         model.MealPlanCandidate
			desc      sql.NullString
			tags      sql.NullString
			totalTime sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Title, &desc, &tags, &totalTime); err != nil {
			return nil, fmt.Errorf("scan recipe candidate: %w", err)
		}
		c.Source = "library"
		if desc.Valid {
			c.Description = desc.String
		}
		if tags.Valid {
			_ = json.Unmarshal([]byte(tags.String), &c.Tags)
		}
		if totalTime.Valid {
			c.TotalTimeMinutes = int(totalTime.Int64)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SearchRecipeCandidates narrows candidates by tag or title terms.
func (s *Store) SearchRecipeCandidates(ctx context.Context, userID string, terms []string, limit int) ([]model.MealPlanCandidate, error) {
	if len(terms) == 0 {
		return s.ListRecipeCandidates(ctx, userID, limit)
	}

	clauses := make([]string, 0, len(terms))
	args := []any{userID}
	for _, term := range terms {
		clauses = append(clauses, "(title LIKE ? OR tags LIKE ?)")
		like := "%" + term + "%"
		args = append(args, like, like)
	}
	args = append(args, limit)

	query := `SELECT id, title, description, tags, total_time_minutes
		FROM recipes WHERE user_id = ? AND (` + strings.Join(clauses, " OR ") + `)
		ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search recipe candidates: %w", err)
	}
	defer rows.Close()

	var out []model.MealPlanCandidate
	for rows.Next() {
		var (
			c         model.MealPlanCandidate
			desc      sql.NullString
			tags      sql.NullString
			totalTime sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Title, &desc, &tags, &totalTime); err != nil {
			return nil, fmt.Errorf("scan recipe candidate: %w", err)
		}
		c.Source = "library"
		if desc.Valid {
			c.Description = desc.String
		}
		if tags.Valid {
			_ = json.Unmarshal([]byte(tags.String), &c.Tags)
		}
		if totalTime.Valid {
			c.TotalTimeMinutes = int(totalTime.Int64)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateStagedRecipe stores a provisional external recipe with an expiry.
func (s *Store) CreateStagedRecipe(ctx context.Context, staged *model.StagedRecipe) error {
	if staged.CreatedAt.IsZero() {
		staged.CreatedAt = time.Now().UTC()
	}
	_, err := s.execWithRetry(ctx, `
		INSERT INTO staged_recipes (id, user_id, title, payload, request_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		staged.ID, staged.UserID, staged.Title, string(staged.Payload),
		staged.RequestID, staged.CreatedAt, staged.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert staged recipe: %w", err)
	}
	return nil
}

// GetStagedRecipe reads one staged recipe by ID, ignoring expired rows.
func (s *Store) GetStagedRecipe(ctx context.Context, id string) (*model.StagedRecipe, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, payload, request_id, created_at, expires_at
		FROM staged_recipes WHERE id = ? AND expires_at > ?`, id, time.Now().UTC())

	var (
		staged    model.StagedRecipe
		payload   string
		requestID sql.NullString
	)
	err := row.Scan(&staged.ID, &staged.UserID, &staged.Title, &payload,
		&requestID, &staged.CreatedAt, &staged.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan staged recipe: %w", err)
	}
	staged.Payload = json.RawMessage(payload)
	staged.RequestID = nullStr(requestID)
	return &staged, nil
}

// PurgeExpiredStaged deletes staged recipes past their expiry.
func (s *Store) PurgeExpiredStaged(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"DELETE FROM staged_recipes WHERE expires_at <= ?", time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge staged recipes: %w", err)
	}
	return res.RowsAffected()
}
