package models

import (
	"time"

	"github.com/google/uuid"
)

type Folder struct {
	ID        int32
	UserID    uuid.UUID
	Name      string
	CreatedAt time.Time
	DeletedAt *time.Time
}

// FolderWithCount is a folder listing row; ImageCount counts live images only.
type FolderWithCount struct {
	Folder
	ImageCount int64
}
