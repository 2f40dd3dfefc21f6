package jobs

import (
	"context"

	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, imageID int64, modelVersion string) (*models.Job, error)
	GetByID(ctx context.Context, id int64, userID uuid.UUID) (*models.Job, error)
	MarkFailed(ctx context.Context, id int64, message string) error
	HistoryByImage(ctx context.Context, imageID int64, userID uuid.UUID) ([]models.JobWithResult, error)
	GetResult(ctx context.Context, jobID int64, userID uuid.UUID) (*models.AnalysisResult, int64, error)
}
