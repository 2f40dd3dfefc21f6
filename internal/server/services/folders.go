package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/dbx"
	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cellscope/internal/validation"
	"github.com/google/uuid"
)

var errFolderNotFound = common.NewNotFoundError("Folder not found")

type FolderRequest struct {
	FolderName string `json:"folder_name" validate:"notblank,max=255"`
}

type FolderService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

func NewFolderService(db *sql.DB, m repomanager.RepositoryManager) *FolderService {
	return &FolderService{db: db, repomanager: m}
}

func validateFolder(req *FolderRequest) error {
	req.FolderName = strings.TrimSpace(req.FolderName)
	if err := validation.ValidateStruct(req); err != nil {
		return common.NewValidationError("Folder name must be between 1 and 255 characters")
	}
	return nil
}

// List returns the user's live folders, newest first, with live image counts.
func (s *FolderService) List(ctx context.Context, userID uuid.UUID) ([]models.FolderWithCount, error) {
	list, err := s.repomanager.Folders(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing folders: %w", err)
	}
	return list, nil
}

func (s *FolderService) Create(ctx context.Context, userID uuid.UUID, req FolderRequest) (*models.Folder, error) {
	if err := validateFolder(&req); err != nil {
		return nil, err
	}

	f, err := s.repomanager.Folders(s.db).Create(ctx, userID, req.FolderName)
	if err != nil {
		return nil, fmt.Errorf("error creating folder: %w", err)
	}
	return f, nil
}

func (s *FolderService) Rename(ctx context.Context, userID uuid.UUID, id int32, req FolderRequest) (*models.Folder, error) {
	if err := validateFolder(&req); err != nil {
		return nil, err
	}

	f, err := s.repomanager.Folders(s.db).Rename(ctx, id, userID, req.FolderName)
	if err != nil {
		return nil, notFoundAs(err, errFolderNotFound)
	}
	return f, nil
}

// Delete soft-deletes the folder together with its live images and reports
// how many images went with it.
func (s *FolderService) Delete(ctx context.Context, userID uuid.UUID, id int32) (int64, error) {
	var n int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = s.repomanager.Folders(tx).SoftDelete(ctx, id, userID)
		return err
	})
	if err != nil {
		return 0, notFoundAs(err, errFolderNotFound)
	}
	return n, nil
}

// notFoundAs replaces a bare not-found with a resource-specific one and
// wraps anything else.
func notFoundAs(err error, nf *common.NotFoundError) error {
	if errors.Is(err, common.ErrorNotFound) {
		return nf
	}
	return fmt.Errorf("db error: %w", err)
}
