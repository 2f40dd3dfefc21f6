package models

import "time"

// JobStatus mirrors the job_status enum in the database.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

type Job struct {
	ID             int64
	ImageID        int64
	Status         JobStatus
	AIModelVersion *string
	StartedAt      *time.Time
	FinishedAt     *time.Time
	ErrorMessage   *string
	CreatedAt      time.Time
}

// AnalysisResult is a row of analysis_results, written by the external
// inference worker. RawData is the worker's JSON payload (may be nil).
type AnalysisResult struct {
	ID                 int64
	JobID              int64
	CountViable        int32
	CountApoptosis     int32
	CountOther         int32
	AvgConfidenceScore *float64
	RawData            []byte
	SummaryData        *string
	AnalyzedAt         time.Time
}

// JobWithResult pairs a job with its result, if the worker has written one.
type JobWithResult struct {
	Job
	Result *AnalysisResult
}
