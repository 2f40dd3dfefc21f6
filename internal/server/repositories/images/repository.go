package images

import (
	"context"

	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, img *models.Image) (*models.Image, error)
	ListByFolder(ctx context.Context, folderID int32) ([]models.Image, error)
	GetByID(ctx context.Context, id int64, userID uuid.UUID) (*models.Image, error)
	Rename(ctx context.Context, id int64, userID uuid.UUID, filename string) (*models.Image, error)
	SoftDelete(ctx context.Context, id int64, userID uuid.UUID) error
}
