// Package folders persists user folders. Every query is scoped by owner and
// ignores soft-deleted rows.
package folders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/dbx"
	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/google/uuid"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanFolder(row interface{ Scan(...any) error }, f *models.Folder) error {
	return row.Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt, &f.DeletedAt)
}

func (r *PostgresRepository) Create(ctx context.Context, userID uuid.UUID, name string) (*models.Folder, error) {
	query :=
		`INSERT INTO folders (user_id, folder_name)
		 VALUES ($1, $2)
		 RETURNING folder_id, user_id, folder_name, created_at, deleted_at
		 `

	f := &models.Folder{}
	if err := scanFolder(r.db.QueryRowContext(ctx, query, userID, name), f); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// ListByUser returns the user's live folders, newest first, each with the
// number of live images it holds.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.FolderWithCount, error) {
	query :=
		`SELECT f.folder_id, f.user_id, f.folder_name, f.created_at, f.deleted_at,
		        COUNT(i.image_id) AS image_count
		 FROM folders f
		 LEFT JOIN images i ON f.folder_id = i.folder_id AND i.deleted_at IS NULL
		 WHERE f.user_id = $1 AND f.deleted_at IS NULL
		 GROUP BY f.folder_id
		 ORDER BY f.created_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.FolderWithCount
	for rows.Next() {
		var f models.FolderWithCount
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.CreatedAt, &f.DeletedAt, &f.ImageCount); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int32, userID uuid.UUID) (*models.Folder, error) {
	query :=
		`SELECT folder_id, user_id, folder_name, created_at, deleted_at
		 FROM folders
		 WHERE folder_id = $1 AND user_id = $2 AND deleted_at IS NULL
		 `

	f := &models.Folder{}
	if err := scanFolder(r.db.QueryRowContext(ctx, query, id, userID), f); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) Rename(ctx context.Context, id int32, userID uuid.UUID, name string) (*models.Folder, error) {
	query :=
		`UPDATE folders
		 SET folder_name = $3
		 WHERE folder_id = $1 AND user_id = $2 AND deleted_at IS NULL
		 RETURNING folder_id, user_id, folder_name, created_at, deleted_at
		 `

	f := &models.Folder{}
	if err := scanFolder(r.db.QueryRowContext(ctx, query, id, userID, name), f); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// SoftDelete marks the folder and its live images deleted and returns the
// number of images affected. It issues two statements; run it on a
// transaction handle (dbx.WithTx).
func (r *PostgresRepository) SoftDelete(ctx context.Context, id int32, userID uuid.UUID) (int64, error) {
	folderQuery :=
		`UPDATE folders
		 SET deleted_at = NOW()
		 WHERE folder_id = $1 AND user_id = $2 AND deleted_at IS NULL
		 RETURNING folder_id
		 `

	var deleted int32
	if err := r.db.QueryRowContext(ctx, folderQuery, id, userID).Scan(&deleted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	imagesQuery :=
		`UPDATE images
		 SET deleted_at = NOW()
		 WHERE folder_id = $1 AND deleted_at IS NULL
		 `

	res, err := r.db.ExecContext(ctx, imagesQuery, id)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
