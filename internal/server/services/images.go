package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cellscope/internal/server/storage"
	"github.com/dmitrijs2005/cellscope/internal/validation"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	// MaxUploadSize is the largest accepted image, in bytes.
	MaxUploadSize = 50 * 1024 * 1024

	objectKeyPrefix = "images/"
)

var (
	errImageNotFound = common.NewNotFoundError("Image not found")

	allowedContentTypes = map[string]struct{}{
		"image/jpeg": {},
		"image/png":  {},
		"image/tiff": {},
	}

	// newObjectKey is swapped in tests.
	newObjectKey = func(filename string) string {
		return objectKeyPrefix + uuid.NewString() + "." + extension(filename)
	}
)

// ObjectStore is the object storage the image flow talks to.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, contentType string) (string, time.Time, error)
	PresignGet(ctx context.Context, key string) (string, time.Time, error)
	GetObject(ctx context.Context, key string) (*storage.Object, error)
	PutObject(ctx context.Context, key, contentType string, data []byte) error
	DeleteObject(ctx context.Context, key string) error
}

type UploadRequest struct {
	Filename    string `json:"filename" validate:"notblank,max=255"`
	ContentType string `json:"content_type" validate:"required"`
	FileSize    int64  `json:"file_size" validate:"gt=0"`
}

type ConfirmUploadRequest struct {
	UploadToken string `json:"upload_token" validate:"startswith=images/"`
	UploadRequest
}

// UploadFile is an image sent through the server in a multipart body.
type UploadFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type RenameImageRequest struct {
	NewFilename string `json:"new_filename" validate:"notblank,max=255"`
}

// UploadTicket lets a client PUT the file straight to storage and then
// confirm it with UploadToken.
type UploadTicket struct {
	UploadToken  string
	PresignedURL string
	ExpiresAt    time.Time
}

// ImageDetail is an image with its analysis history, newest first.
type ImageDetail struct {
	models.Image
	History []models.JobWithResult
}

// ImageService covers the upload flow and the image CRUD. Ownership is
// always resolved through the parent folder.
type ImageService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       ObjectStore
}

func NewImageService(db *sql.DB, m repomanager.RepositoryManager, store ObjectStore) *ImageService {
	return &ImageService{db: db, repomanager: m, store: store}
}

func extension(filename string) string {
	i := strings.LastIndexByte(filename, '.')
	if i < 0 {
		return "jpg"
	}
	return strings.ToLower(filename[i+1:])
}

func validateUpload(req any, contentType string, size int64) error {
	if err := validation.ValidateStruct(req); err != nil {
		return err
	}
	if _, ok := allowedContentTypes[contentType]; !ok {
		return common.NewValidationError("Invalid content type. Allowed: image/jpeg, image/png, image/tiff")
	}
	if size > MaxUploadSize {
		return common.NewValidationError("File too large. Maximum size: 50MB")
	}
	return nil
}

// validateContent checks the file's leading bytes against the allowed image
// formats.
func validateContent(data []byte) error {
	m := mimetype.Detect(data)
	for ct := range allowedContentTypes {
		if m.Is(ct) {
			return nil
		}
	}
	return common.NewValidationError("File content does not match an allowed image type")
}

func (s *ImageService) ownedFolder(ctx context.Context, userID uuid.UUID, folderID int32) error {
	_, err := s.repomanager.Folders(s.db).GetByID(ctx, folderID, userID)
	if err != nil {
		return notFoundAs(err, errFolderNotFound)
	}
	return nil
}

func (s *ImageService) owned(ctx context.Context, userID uuid.UUID, id int64) (*models.Image, error) {
	img, err := s.repomanager.Images(s.db).GetByID(ctx, id, userID)
	if err != nil {
		return nil, notFoundAs(err, errImageNotFound)
	}
	return img, nil
}

func (s *ImageService) ListByFolder(ctx context.Context, userID uuid.UUID, folderID int32) ([]models.Image, error) {
	if err := s.ownedFolder(ctx, userID, folderID); err != nil {
		return nil, err
	}

	list, err := s.repomanager.Images(s.db).ListByFolder(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("error listing images: %w", err)
	}
	return list, nil
}

// RequestUpload reserves a storage key and presigns a PUT for it. Nothing is
// written to the database until ConfirmUpload.
func (s *ImageService) RequestUpload(ctx context.Context, userID uuid.UUID, folderID int32, req UploadRequest) (*UploadTicket, error) {
	if err := s.ownedFolder(ctx, userID, folderID); err != nil {
		return nil, err
	}
	if err := validateUpload(&req, req.ContentType, req.FileSize); err != nil {
		return nil, err
	}

	key := newObjectKey(req.Filename)

	url, expiresAt, err := s.store.PresignPut(ctx, key, req.ContentType)
	if err != nil {
		return nil, fmt.Errorf("error presigning upload: %w", err)
	}

	return &UploadTicket{UploadToken: key, PresignedURL: url, ExpiresAt: expiresAt}, nil
}

// ConfirmUpload records an uploaded object as an image of the folder.
func (s *ImageService) ConfirmUpload(ctx context.Context, userID uuid.UUID, folderID int32, req ConfirmUploadRequest) (*models.Image, error) {
	if err := s.ownedFolder(ctx, userID, folderID); err != nil {
		return nil, err
	}
	if err := validateUpload(&req, req.ContentType, req.FileSize); err != nil {
		return nil, err
	}

	img, err := s.repomanager.Images(s.db).Create(ctx, &models.Image{
		FolderID:         folderID,
		FilePath:         req.UploadToken,
		OriginalFilename: req.Filename,
		MimeType:         req.ContentType,
		FileSize:         int32(req.FileSize),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating image: %w", err)
	}
	return img, nil
}

// Upload stores the bytes and records the image. If the insert fails the
// stored object is removed again.
func (s *ImageService) Upload(ctx context.Context, userID uuid.UUID, folderID int32, f UploadFile) (*models.Image, error) {
	if err := s.ownedFolder(ctx, userID, folderID); err != nil {
		return nil, err
	}

	if f.Filename == "" {
		f.Filename = "unknown.jpg"
	}
	if _, ok := allowedContentTypes[f.ContentType]; !ok {
		return nil, common.NewValidationError("Invalid content type. Allowed: image/jpeg, image/png, image/tiff")
	}
	if len(f.Data) > MaxUploadSize {
		return nil, common.NewValidationError("File too large. Maximum size: 50MB")
	}
	if err := validateContent(f.Data); err != nil {
		return nil, err
	}

	key := newObjectKey(f.Filename)

	if err := s.store.PutObject(ctx, key, f.ContentType, f.Data); err != nil {
		return nil, fmt.Errorf("error storing image: %w", err)
	}

	img, err := s.repomanager.Images(s.db).Create(ctx, &models.Image{
		FolderID:         folderID,
		FilePath:         key,
		OriginalFilename: f.Filename,
		MimeType:         f.ContentType,
		FileSize:         int32(len(f.Data)),
	})
	if err != nil {
		if delErr := s.store.DeleteObject(context.WithoutCancel(ctx), key); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return nil, fmt.Errorf("error creating image: %w", err)
	}
	return img, nil
}

func (s *ImageService) Get(ctx context.Context, userID uuid.UUID, id int64) (*ImageDetail, error) {
	img, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	history, err := s.repomanager.Jobs(s.db).HistoryByImage(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading analysis history: %w", err)
	}

	return &ImageDetail{Image: *img, History: history}, nil
}

func (s *ImageService) Rename(ctx context.Context, userID uuid.UUID, id int64, req RenameImageRequest) (*models.Image, error) {
	req.NewFilename = strings.TrimSpace(req.NewFilename)
	if err := validation.ValidateStruct(&req); err != nil {
		return nil, err
	}

	img, err := s.repomanager.Images(s.db).Rename(ctx, id, userID, req.NewFilename)
	if err != nil {
		return nil, notFoundAs(err, errImageNotFound)
	}
	return img, nil
}

func (s *ImageService) Delete(ctx context.Context, userID uuid.UUID, id int64) error {
	if err := s.repomanager.Images(s.db).SoftDelete(ctx, id, userID); err != nil {
		return notFoundAs(err, errImageNotFound)
	}
	return nil
}

// OpenFile returns the image row and its object; the caller closes the body.
func (s *ImageService) OpenFile(ctx context.Context, userID uuid.UUID, id int64) (*models.Image, *storage.Object, error) {
	img, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	obj, err := s.store.GetObject(ctx, img.FilePath)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.NewNotFoundError("Image file not found")
		}
		return nil, nil, fmt.Errorf("error fetching object: %w", err)
	}
	return img, obj, nil
}

func (s *ImageService) DownloadURL(ctx context.Context, userID uuid.UUID, id int64) (string, time.Time, error) {
	img, err := s.owned(ctx, userID, id)
	if err != nil {
		return "", time.Time{}, err
	}

	url, expiresAt, err := s.store.PresignGet(ctx, img.FilePath)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error presigning download: %w", err)
	}
	return url, expiresAt, nil
}
