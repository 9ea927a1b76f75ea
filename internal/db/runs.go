package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/keyword-collector/internal/types"
)

// Run is one row of the collection run log.
type Run struct {
	ID                    uuid.UUID       `json:"id"`
	Status                string          `json:"status"`
	Stage                 string          `json:"stage"`
	Category              string          `json:"category"`
	Purposes              []string        `json:"purposes"`
	AdditionalParams      []string        `json:"additional_params"`
	Query                 string          `json:"query"`
	FilteringMethod       string          `json:"filtering_method"`
	OriginalKeywordsCount int             `json:"original_keywords_count"`
	FilteredKeywordsCount int             `json:"filtered_keywords_count"`
	ArtifactPath          string          `json:"artifact_path"`
	Message               string          `json:"message"`
	DurationMS            int64           `json:"duration_ms"`
	Artifact              json.RawMessage `json:"artifact,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// RunFromResult maps a collection result (and its artifact, if any) onto a Run row.
func RunFromResult(result *types.CollectionResult, artifact *types.KeywordArtifact) (*Run, error) {
	if result == nil {
		return nil, fmt.Errorf("result is nil")
	}
	id, err := uuid.Parse(result.RunID)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", result.RunID, err)
	}
	run := &Run{
		ID:                    id,
		Status:                result.Status,
		Stage:                 result.Stage,
		Category:              result.Category,
		Purposes:              nonNil(result.Purposes),
		AdditionalParams:      nonNil(result.AdditionalParams),
		Query:                 result.Query,
		FilteringMethod:       result.FilteringMethod,
		OriginalKeywordsCount: result.OriginalKeywordsCount,
		FilteredKeywordsCount: result.FilteredKeywordsCount,
		ArtifactPath:          result.ArtifactPath,
		Message:               result.Message,
		DurationMS:            result.DurationMS,
	}
	if artifact != nil {
		data, err := json.Marshal(artifact)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal artifact: %w", err)
		}
		run.Artifact = data
	}
	return run, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

const runColumns = `id, status, stage, category, purposes, additional_params, query,
	filtering_method, original_keywords_count, filtered_keywords_count,
	artifact_path, message, duration_ms, artifact, created_at, updated_at`

// RecordRun upserts a run keyed by its id.
func (db *DB) RecordRun(ctx context.Context, run *Run) error {
	var artifact []byte
	if len(run.Artifact) > 0 {
		artifact = run.Artifact
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO collection_runs (id, status, stage, category, purposes, additional_params, query,
		     filtering_method, original_keywords_count, filtered_keywords_count,
		     artifact_path, message, duration_ms, artifact)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (id) DO UPDATE SET
		     status = $2, stage = $3, category = $4, purposes = $5, additional_params = $6,
		     query = $7, filtering_method = $8, original_keywords_count = $9,
		     filtered_keywords_count = $10, artifact_path = $11, message = $12,
		     duration_ms = $13, artifact = $14, updated_at = NOW()`,
		run.ID, run.Status, run.Stage, run.Category, nonNil(run.Purposes), nonNil(run.AdditionalParams),
		run.Query, run.FilteringMethod, run.OriginalKeywordsCount, run.FilteredKeywordsCount,
		run.ArtifactPath, run.Message, run.DurationMS, artifact,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

func scanRun(row pgx.Row) (*Run, error) {
	var run Run
	var artifact []byte
	err := row.Scan(&run.ID, &run.Status, &run.Stage, &run.Category, &run.Purposes,
		&run.AdditionalParams, &run.Query, &run.FilteringMethod, &run.OriginalKeywordsCount,
		&run.FilteredKeywordsCount, &run.ArtifactPath, &run.Message, &run.DurationMS,
		&artifact, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(artifact) > 0 {
		run.Artifact = artifact
	}
	return &run, nil
}

// GetRun retrieves a run by id. It returns nil, nil when the run does not exist.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*Run, error) {
	run, err := scanRun(db.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM collection_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. A non-empty status filters.
func (db *DB) ListRuns(ctx context.Context, status string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+runColumns+` FROM collection_runs
		 WHERE ($1 = '' OR status = $1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		status, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}
