package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/cellscope/internal/server/services"
)

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	imageID, err := pathInt64(r, "imageID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req services.AnalyzeRequest
	if err := decodeJSON(r, &req, true); err != nil {
		s.fail(w, r, err)
		return
	}

	job, err := s.services.Analysis.Analyze(r.Context(), id.UserID, imageID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var version string
	if job.AIModelVersion != nil {
		version = *job.AIModelVersion
	}

	writeData(w, http.StatusAccepted, analyzeResponse{
		JobID:          job.ID,
		ImageID:        job.ImageID,
		Status:         string(job.Status),
		AIModelVersion: version,
		StatusURL:      jobStatusURL(job.ID),
		CreatedAt:      formatTime(job.CreatedAt),
	})
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	jobID, err := pathInt64(r, "jobID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	job, err := s.services.Analysis.JobStatus(r.Context(), id.UserID, jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, newJobStatusResponse(job))
}

func (s *Server) jobResult(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	jobID, err := pathInt64(r, "jobID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	v, err := s.services.Analysis.Result(r.Context(), id.UserID, jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, newAnalysisResultResponse(v))
}

func (s *Server) analysisHistory(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	imageID, err := pathInt64(r, "imageID")
	if err != nil {
		s.fail(w, r, err)
		return
	}

	history, err := s.services.Analysis.History(r.Context(), id.UserID, imageID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, newAnalysisHistoryResponse(imageID, history))
}
