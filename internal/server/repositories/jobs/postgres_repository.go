// Package jobs persists analysis jobs and reads the results the inference
// worker writes back.
package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/dbx"
	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanJob(row interface{ Scan(...any) error }, j *models.Job) error {
	return row.Scan(&j.ID, &j.ImageID, &j.Status, &j.AIModelVersion, &j.StartedAt, &j.FinishedAt,
		&j.ErrorMessage, &j.CreatedAt)
}

func (r *PostgresRepository) Create(ctx context.Context, imageID int64, modelVersion string) (*models.Job, error) {
	query :=
		`INSERT INTO jobs (image_id, status, ai_model_version)
		 VALUES ($1, 'pending', $2)
		 RETURNING job_id, image_id, status, ai_model_version, started_at, finished_at, error_message, created_at
		 `

	j := &models.Job{}
	if err := scanJob(r.db.QueryRowContext(ctx, query, imageID, modelVersion), j); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return j, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64, userID uuid.UUID) (*models.Job, error) {
	query :=
		`SELECT j.job_id, j.image_id, j.status, j.ai_model_version,
		        j.started_at, j.finished_at, j.error_message, j.created_at
		 FROM jobs j
		 INNER JOIN images i ON j.image_id = i.image_id
		 INNER JOIN folders f ON i.folder_id = f.folder_id
		 WHERE j.job_id = $1 AND f.user_id = $2
		 `

	j := &models.Job{}
	if err := scanJob(r.db.QueryRowContext(ctx, query, id, userID), j); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return j, nil
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, message string) error {
	query :=
		`UPDATE jobs SET status = 'failed', finished_at = NOW(), error_message = $2
		 WHERE job_id = $1
		 `

	if _, err := r.db.ExecContext(ctx, query, id, message); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// HistoryByImage lists every job of an owned image, newest first, each with
// its result when one exists.
func (r *PostgresRepository) HistoryByImage(ctx context.Context, imageID int64, userID uuid.UUID) ([]models.JobWithResult, error) {
	query :=
		`SELECT j.job_id, j.image_id, j.status, j.ai_model_version,
		        j.started_at, j.finished_at, j.error_message, j.created_at,
		        ar.result_id, ar.count_viable, ar.count_apoptosis, ar.count_other,
		        ar.avg_confidence_score, ar.raw_data, ar.summary_data, ar.analyzed_at
		 FROM jobs j
		 INNER JOIN images i ON j.image_id = i.image_id
		 INNER JOIN folders f ON i.folder_id = f.folder_id
		 LEFT JOIN analysis_results ar ON ar.job_id = j.job_id
		 WHERE j.image_id = $1 AND f.user_id = $2
		 ORDER BY j.created_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, imageID, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.JobWithResult
	for rows.Next() {
		var (
			jr         models.JobWithResult
			resultID   sql.NullInt64
			viable     sql.NullInt32
			apoptosis  sql.NullInt32
			other      sql.NullInt32
			confidence *float64
			rawData    []byte
			summary    *string
			analyzedAt *time.Time
		)
		err := rows.Scan(&jr.ID, &jr.ImageID, &jr.Status, &jr.AIModelVersion, &jr.StartedAt, &jr.FinishedAt,
			&jr.ErrorMessage, &jr.CreatedAt,
			&resultID, &viable, &apoptosis, &other, &confidence, &rawData, &summary, &analyzedAt)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}

		if resultID.Valid {
			jr.Result = &models.AnalysisResult{
				ID:                 resultID.Int64,
				JobID:              jr.ID,
				CountViable:        viable.Int32,
				CountApoptosis:     apoptosis.Int32,
				CountOther:         other.Int32,
				AvgConfidenceScore: confidence,
				RawData:            rawData,
				SummaryData:        summary,
			}
			if analyzedAt != nil {
				jr.Result.AnalyzedAt = *analyzedAt
			}
		}
		result = append(result, jr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

// GetResult returns the result of an owned job together with the job's image id.
func (r *PostgresRepository) GetResult(ctx context.Context, jobID int64, userID uuid.UUID) (*models.AnalysisResult, int64, error) {
	query :=
		`SELECT ar.result_id, ar.job_id, ar.count_viable, ar.count_apoptosis, ar.count_other,
		        ar.avg_confidence_score, ar.raw_data, ar.summary_data, ar.analyzed_at,
		        j.image_id
		 FROM analysis_results ar
		 INNER JOIN jobs j ON ar.job_id = j.job_id
		 INNER JOIN images i ON j.image_id = i.image_id
		 INNER JOIN folders f ON i.folder_id = f.folder_id
		 WHERE ar.job_id = $1 AND f.user_id = $2
		 `

	res := &models.AnalysisResult{}
	var imageID int64
	err := r.db.QueryRowContext(ctx, query, jobID, userID).Scan(&res.ID, &res.JobID, &res.CountViable,
		&res.CountApoptosis, &res.CountOther, &res.AvgConfidenceScore, &res.RawData, &res.SummaryData,
		&res.AnalyzedAt, &imageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, common.ErrorNotFound
		}
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	return res, imageID, nil
}
