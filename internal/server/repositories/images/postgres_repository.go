// Package images persists image records. Ownership is resolved through the
// parent folder's user_id.
package images

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

func scanImage(row interface{ Scan(...any) error }, img *models.Image) error {
	return row.Scan(&img.ID, &img.FolderID, &img.FilePath, &img.OriginalFilename, &img.MimeType,
		&img.FileSize, &img.Metadata, &img.UploadedAt, &img.DeletedAt)
}

func (r *PostgresRepository) Create(ctx context.Context, img *models.Image) (*models.Image, error) {
	query :=
		`INSERT INTO images (folder_id, file_path, original_filename, mime_type, file_size, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING image_id, folder_id, file_path, original_filename, mime_type, file_size, metadata, uploaded_at, deleted_at
		 `

	var metadata any
	if img.Metadata != nil {
		metadata = img.Metadata
	}

	out := &models.Image{}
	err := scanImage(r.db.QueryRowContext(ctx, query,
		img.FolderID, img.FilePath, img.OriginalFilename, img.MimeType, img.FileSize, metadata), out)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return out, nil
}

// ListByFolder returns live images of a folder, newest first, with
// HasAnalysis set when any job exists for the image. The caller checks
// folder ownership.
func (r *PostgresRepository) ListByFolder(ctx context.Context, folderID int32) ([]models.Image, error) {
	query :=
		`SELECT i.image_id, i.folder_id, i.file_path, i.original_filename, i.mime_type,
		        i.file_size, i.metadata, i.uploaded_at, i.deleted_at,
		        EXISTS (SELECT 1 FROM jobs j WHERE j.image_id = i.image_id) AS has_analysis
		 FROM images i
		 WHERE i.folder_id = $1 AND i.deleted_at IS NULL
		 ORDER BY i.uploaded_at DESC
		 `

	rows, err := r.db.QueryContext(ctx, query, folderID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.Image
	for rows.Next() {
		var img models.Image
		err := rows.Scan(&img.ID, &img.FolderID, &img.FilePath, &img.OriginalFilename, &img.MimeType,
			&img.FileSize, &img.Metadata, &img.UploadedAt, &img.DeletedAt, &img.HasAnalysis)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, img)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64, userID uuid.UUID) (*models.Image, error) {
	query :=
		`SELECT i.image_id, i.folder_id, i.file_path, i.original_filename, i.mime_type,
		        i.file_size, i.metadata, i.uploaded_at, i.deleted_at
		 FROM images i
		 INNER JOIN folders f ON i.folder_id = f.folder_id
		 WHERE i.image_id = $1 AND f.user_id = $2 AND i.deleted_at IS NULL
		 `

	img := &models.Image{}
	if err := scanImage(r.db.QueryRowContext(ctx, query, id, userID), img); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return img, nil
}

func (r *PostgresRepository) Rename(ctx context.Context, id int64, userID uuid.UUID, filename string) (*models.Image, error) {
	query :=
		`UPDATE images i
		 SET original_filename = $3
		 FROM folders f
		 WHERE i.image_id = $1
		   AND i.folder_id = f.folder_id
		   AND f.user_id = $2
		   AND i.deleted_at IS NULL
		 RETURNING i.image_id, i.folder_id, i.file_path, i.original_filename, i.mime_type,
		           i.file_size, i.metadata, i.uploaded_at, i.deleted_at
		 `

	img := &models.Image{}
	if err := scanImage(r.db.QueryRowContext(ctx, query, id, userID, filename), img); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return img, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id int64, userID uuid.UUID) error {
	query :=
		`UPDATE images i
		 SET deleted_at = NOW()
		 FROM folders f
		 WHERE i.image_id = $1
		   AND i.folder_id = f.folder_id
		   AND f.user_id = $2
		   AND i.deleted_at IS NULL
		 `

	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
