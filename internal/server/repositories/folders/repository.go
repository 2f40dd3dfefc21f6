package folders

import (
	"context"

	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, userID uuid.UUID, name string) (*models.Folder, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.FolderWithCount, error)
	GetByID(ctx context.Context, id int32, userID uuid.UUID) (*models.Folder, error)
	Rename(ctx context.Context, id int32, userID uuid.UUID, name string) (*models.Folder, error)
	SoftDelete(ctx context.Context, id int32, userID uuid.UUID) (int64, error)
}
