package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/logging"
	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/dmitrijs2005/cellscope/internal/server/queue"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cellscope/internal/validation"
	"github.com/google/uuid"
)

const (
	DefaultModelVersion = "v1.0.0"

	queueFailureMessage = "Failed to queue analysis job"
)

var (
	errJobNotFound    = common.NewNotFoundError("Job not found")
	errResultNotFound = common.NewNotFoundError("Analysis result not found")
)

// JobPublisher hands a job to the inference worker.
type JobPublisher interface {
	PublishAnalysisJob(ctx context.Context, msg queue.AnalysisJobMessage) error
}

type AnalyzeRequest struct {
	ModelVersion string `json:"model_version" validate:"omitempty,max=50"`
}

// CellCounts is the per-class cell count of a result.
type CellCounts struct {
	Viable    int32 `json:"viable"`
	Apoptosis int32 `json:"apoptosis"`
	Other     int32 `json:"other"`
}

func (c CellCounts) Total() int32 {
	return c.Viable + c.Apoptosis + c.Other
}

// Percentages are shares of the total, 0 when no cells were counted.
type Percentages struct {
	Viable    float64 `json:"viable"`
	Apoptosis float64 `json:"apoptosis"`
	Other     float64 `json:"other"`
}

func (c CellCounts) Percentages() Percentages {
	total := c.Total()
	if total == 0 {
		return Percentages{}
	}
	pct := func(n int32) float64 { return float64(n) / float64(total) * 100 }
	return Percentages{Viable: pct(c.Viable), Apoptosis: pct(c.Apoptosis), Other: pct(c.Other)}
}

func CountsOf(r *models.AnalysisResult) CellCounts {
	return CellCounts{Viable: r.CountViable, Apoptosis: r.CountApoptosis, Other: r.CountOther}
}

// ResultView is an analysis result with derived totals.
type ResultView struct {
	models.AnalysisResult
	ImageID     int64
	Counts      CellCounts
	Percentages Percentages
}

type AnalysisService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	publisher   JobPublisher
	logger      logging.Logger
	now         func() time.Time
}

func NewAnalysisService(db *sql.DB, m repomanager.RepositoryManager, publisher JobPublisher, logger logging.Logger) *AnalysisService {
	return &AnalysisService{
		db:          db,
		repomanager: m,
		publisher:   publisher,
		logger:      logger.With("module", "analysis"),
		now:         time.Now,
	}
}

// Analyze records a pending job for an owned image and publishes it. When the
// publish fails the job is marked failed and common.ErrorQueue is returned.
func (s *AnalysisService) Analyze(ctx context.Context, userID uuid.UUID, imageID int64, req AnalyzeRequest) (*models.Job, error) {
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}
	if req.ModelVersion == "" {
		req.ModelVersion = DefaultModelVersion
	}

	img, err := s.repomanager.Images(s.db).GetByID(ctx, imageID, userID)
	if err != nil {
		return nil, notFoundAs(err, errImageNotFound)
	}

	jobs := s.repomanager.Jobs(s.db)

	job, err := jobs.Create(ctx, img.ID, req.ModelVersion)
	if err != nil {
		return nil, fmt.Errorf("error creating job: %w", err)
	}

	msg := queue.AnalysisJobMessage{
		JobID:        job.ID,
		ImageID:      img.ID,
		S3Key:        img.FilePath,
		ModelVersion: req.ModelVersion,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}

	if err := s.publisher.PublishAnalysisJob(ctx, msg); err != nil {
		s.logger.Error(ctx, "failed to publish analysis job", "job_id", job.ID, "error", err)
		// the request may already be gone; the job must not stay pending
		if mErr := jobs.MarkFailed(context.WithoutCancel(ctx), job.ID, queueFailureMessage); mErr != nil {
			s.logger.Error(ctx, "failed to mark job failed", "job_id", job.ID, "error", mErr)
		}
		return nil, common.ErrorQueue
	}

	s.logger.Info(ctx, "analysis job queued", "job_id", job.ID, "image_id", img.ID)
	return job, nil
}

func (s *AnalysisService) JobStatus(ctx context.Context, userID uuid.UUID, jobID int64) (*models.Job, error) {
	job, err := s.repomanager.Jobs(s.db).GetByID(ctx, jobID, userID)
	if err != nil {
		return nil, notFoundAs(err, errJobNotFound)
	}
	return job, nil
}

func (s *AnalysisService) Result(ctx context.Context, userID uuid.UUID, jobID int64) (*ResultView, error) {
	res, imageID, err := s.repomanager.Jobs(s.db).GetResult(ctx, jobID, userID)
	if err != nil {
		return nil, notFoundAs(err, errResultNotFound)
	}

	counts := CountsOf(res)
	return &ResultView{
		AnalysisResult: *res,
		ImageID:        imageID,
		Counts:         counts,
		Percentages:    counts.Percentages(),
	}, nil
}

// History lists the jobs of an owned image. A missing or foreign image is
// reported as not found even when it has no jobs.
func (s *AnalysisService) History(ctx context.Context, userID uuid.UUID, imageID int64) ([]models.JobWithResult, error) {
	if _, err := s.repomanager.Images(s.db).GetByID(ctx, imageID, userID); err != nil {
		return nil, notFoundAs(err, errImageNotFound)
	}

	history, err := s.repomanager.Jobs(s.db).HistoryByImage(ctx, imageID, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading analysis history: %w", err)
	}
	return history, nil
}
