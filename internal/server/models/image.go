package models

import "time"

// Image is a row of the images table. FilePath is the object storage key.
// Metadata holds raw JSON (may be nil). HasAnalysis is only filled by
// folder listings.
type Image struct {
	ID               int64
	FolderID         int32
	FilePath         string
	OriginalFilename string
	MimeType         string
	FileSize         int32
	Metadata         []byte
	UploadedAt       time.Time
	DeletedAt        *time.Time
	HasAnalysis      bool
}
