package users

import (
	"context"

	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUserByLogin(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Exists(ctx context.Context, username string) (bool, error)
}
