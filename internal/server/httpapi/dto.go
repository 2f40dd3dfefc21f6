package httpapi

import (
	"strconv"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/dmitrijs2005/cellscope/internal/server/services"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// --- auth ---

type registerResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt string    `json:"created_at"`
}

type loginResponse struct {
	AccessToken  string               `json:"access_token"`
	RefreshToken string               `json:"refresh_token"`
	ExpiresIn    int64                `json:"expires_in"`
	User         services.UserSummary `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// --- folders ---

type folderResponse struct {
	FolderID   int32   `json:"folder_id"`
	FolderName string  `json:"folder_name"`
	ImageCount int64   `json:"image_count"`
	CreatedAt  string  `json:"created_at"`
	DeletedAt  *string `json:"deleted_at,omitempty"`
}

type folderListResponse struct {
	Folders []folderResponse `json:"folders"`
	Total   int64            `json:"total"`
}

type deleteFolderResponse struct {
	Message            string `json:"message"`
	DeletedImagesCount int64  `json:"deleted_images_count"`
}

func newFolderResponse(f *models.Folder, imageCount int64) folderResponse {
	return folderResponse{
		FolderID:   f.ID,
		FolderName: f.Name,
		ImageCount: imageCount,
		CreatedAt:  formatTime(f.CreatedAt),
		DeletedAt:  formatTimePtr(f.DeletedAt),
	}
}

// --- images ---

type imageMetadata struct {
	Width  *uint32 `json:"width,omitempty"`
	Height *uint32 `json:"height,omitempty"`
}

// parseMetadata returns nil for empty or unparsable metadata.
func parseMetadata(raw []byte) *imageMetadata {
	if len(raw) == 0 {
		return nil
	}
	var m imageMetadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return &m
}

type imageResponse struct {
	ImageID          int64          `json:"image_id"`
	FolderID         int32          `json:"folder_id"`
	OriginalFilename string         `json:"original_filename"`
	FileSize         int32          `json:"file_size"`
	MimeType         string         `json:"mime_type"`
	Metadata         *imageMetadata `json:"metadata,omitempty"`
	HasAnalysis      bool           `json:"has_analysis"`
	UploadedAt       string         `json:"uploaded_at"`
}

func newImageResponse(img *models.Image) imageResponse {
	return imageResponse{
		ImageID:          img.ID,
		FolderID:         img.FolderID,
		OriginalFilename: img.OriginalFilename,
		FileSize:         img.FileSize,
		MimeType:         img.MimeType,
		Metadata:         parseMetadata(img.Metadata),
		HasAnalysis:      img.HasAnalysis,
		UploadedAt:       formatTime(img.UploadedAt),
	}
}

type imageListResponse struct {
	Images []imageResponse `json:"images"`
	Total  int64           `json:"total"`
}

type historyItem struct {
	JobID          int64   `json:"job_id"`
	Status         string  `json:"status"`
	AIModelVersion *string `json:"ai_model_version"`
	FinishedAt     *string `json:"finished_at,omitempty"`
}

type imageDetailResponse struct {
	ImageID          int64          `json:"image_id"`
	FolderID         int32          `json:"folder_id"`
	OriginalFilename string         `json:"original_filename"`
	FileURL          string         `json:"file_url"`
	FileSize         int32          `json:"file_size"`
	MimeType         string         `json:"mime_type"`
	Metadata         *imageMetadata `json:"metadata,omitempty"`
	AnalysisHistory  []historyItem  `json:"analysis_history"`
	UploadedAt       string         `json:"uploaded_at"`
}

func imageFileURL(id int64) string {
	return common.APIPrefix + "/images/" + strconv.FormatInt(id, 10) + "/file"
}

func newImageDetailResponse(d *services.ImageDetail) imageDetailResponse {
	history := make([]historyItem, 0, len(d.History))
	for _, j := range d.History {
		history = append(history, historyItem{
			JobID:          j.ID,
			Status:         string(j.Status),
			AIModelVersion: j.AIModelVersion,
			FinishedAt:     formatTimePtr(j.FinishedAt),
		})
	}

	return imageDetailResponse{
		ImageID:          d.ID,
		FolderID:         d.FolderID,
		OriginalFilename: d.OriginalFilename,
		FileURL:          imageFileURL(d.ID),
		FileSize:         d.FileSize,
		MimeType:         d.MimeType,
		Metadata:         parseMetadata(d.Metadata),
		AnalysisHistory:  history,
		UploadedAt:       formatTime(d.UploadedAt),
	}
}

type requestUploadResponse struct {
	UploadToken  string `json:"upload_token"`
	PresignedURL string `json:"presigned_url"`
	ExpiresAt    string `json:"expires_at"`
}

type downloadURLResponse struct {
	URL       string `json:"url"`
	ExpiresAt string `json:"expires_at"`
}

// --- analysis ---

func jobStatusURL(id int64) string {
	return common.APIPrefix + "/jobs/" + strconv.FormatInt(id, 10)
}

type analyzeResponse struct {
	JobID          int64  `json:"job_id"`
	ImageID        int64  `json:"image_id"`
	Status         string `json:"status"`
	AIModelVersion string `json:"ai_model_version"`
	StatusURL      string `json:"status_url"`
	CreatedAt      string `json:"created_at"`
}

type jobStatusResponse struct {
	JobID          int64   `json:"job_id"`
	ImageID        int64   `json:"image_id"`
	Status         string  `json:"status"`
	AIModelVersion *string `json:"ai_model_version"`
	StartedAt      *string `json:"started_at,omitempty"`
	FinishedAt     *string `json:"finished_at,omitempty"`
	ErrorMessage   *string `json:"error_message,omitempty"`
	ResultURL      *string `json:"result_url,omitempty"`
}

func newJobStatusResponse(j *models.Job) jobStatusResponse {
	resp := jobStatusResponse{
		JobID:          j.ID,
		ImageID:        j.ImageID,
		Status:         string(j.Status),
		AIModelVersion: j.AIModelVersion,
		StartedAt:      formatTimePtr(j.StartedAt),
		FinishedAt:     formatTimePtr(j.FinishedAt),
		ErrorMessage:   j.ErrorMessage,
	}
	if j.Status == models.JobStatusCompleted {
		u := jobStatusURL(j.ID) + "/result"
		resp.ResultURL = &u
	}
	return resp
}

type boundingBox struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          int32   `json:"x"`
	Y          int32   `json:"y"`
	Width      int32   `json:"width"`
	Height     int32   `json:"height"`
}

type rawDetectionData struct {
	BoundingBoxes []boundingBox `json:"bounding_boxes"`
}

// parseRawData returns nil when the worker payload is missing or is not a
// detection list.
func parseRawData(raw []byte) *rawDetectionData {
	if len(raw) == 0 {
		return nil
	}
	var d rawDetectionData
	if err := json.Unmarshal(raw, &d); err != nil || d.BoundingBoxes == nil {
		return nil
	}
	return &d
}

type analysisResultResponse struct {
	ResultID           int64                `json:"result_id"`
	JobID              int64                `json:"job_id"`
	ImageID            int64                `json:"image_id"`
	Counts             services.CellCounts  `json:"counts"`
	TotalCells         int32                `json:"total_cells"`
	AvgConfidenceScore float64              `json:"avg_confidence_score"`
	Percentages        services.Percentages `json:"percentages"`
	RawData            *rawDetectionData    `json:"raw_data,omitempty"`
	SummaryData        *string              `json:"summary_data,omitempty"`
	AnalyzedAt         string               `json:"analyzed_at"`
}

func newAnalysisResultResponse(v *services.ResultView) analysisResultResponse {
	var avg float64
	if v.AvgConfidenceScore != nil {
		avg = *v.AvgConfidenceScore
	}

	return analysisResultResponse{
		ResultID:           v.ID,
		JobID:              v.JobID,
		ImageID:            v.ImageID,
		Counts:             v.Counts,
		TotalCells:         v.Counts.Total(),
		AvgConfidenceScore: avg,
		Percentages:        v.Percentages,
		RawData:            parseRawData(v.RawData),
		SummaryData:        v.SummaryData,
		AnalyzedAt:         formatTime(v.AnalyzedAt),
	}
}

type historySummary struct {
	JobID              int64                `json:"job_id"`
	Status             string               `json:"status"`
	AIModelVersion     *string              `json:"ai_model_version"`
	Counts             *services.CellCounts `json:"counts,omitempty"`
	AvgConfidenceScore *float64             `json:"avg_confidence_score,omitempty"`
	FinishedAt         *string              `json:"finished_at,omitempty"`
}

type analysisHistoryResponse struct {
	ImageID  int64            `json:"image_id"`
	Analyses []historySummary `json:"analyses"`
	Total    int64            `json:"total"`
}

func newAnalysisHistoryResponse(imageID int64, history []models.JobWithResult) analysisHistoryResponse {
	items := make([]historySummary, 0, len(history))
	for _, j := range history {
		item := historySummary{
			JobID:          j.ID,
			Status:         string(j.Status),
			AIModelVersion: j.AIModelVersion,
			FinishedAt:     formatTimePtr(j.FinishedAt),
		}
		if j.Result != nil {
			c := services.CountsOf(j.Result)
			item.Counts = &c
			item.AvgConfidenceScore = j.Result.AvgConfidenceScore
		}
		items = append(items, item)
	}

	return analysisHistoryResponse{ImageID: imageID, Analyses: items, Total: int64(len(items))}
}
