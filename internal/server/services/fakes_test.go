package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/dbx"
	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/dmitrijs2005/cellscope/internal/server/queue"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/folders"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/images"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/users"
	"github.com/dmitrijs2005/cellscope/internal/server/storage"
	"github.com/google/uuid"
)

// --- users ---

type fakeUsersRepo struct {
	existsOut bool
	existsErr error

	createErr   error
	createCalls int

	getOut *models.User
	getErr error
}

func (f *fakeUsersRepo) Create(_ context.Context, username, hash string) (*models.User, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.User{ID: uuid.New(), UserName: username, PasswordHash: hash, CreatedAt: time.Now()}, nil
}

func (f *fakeUsersRepo) GetUserByLogin(context.Context, string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

func (f *fakeUsersRepo) GetByID(context.Context, uuid.UUID) (*models.User, error) {
	return f.getOut, f.getErr
}

func (f *fakeUsersRepo) Exists(context.Context, string) (bool, error) {
	return f.existsOut, f.existsErr
}

// --- folders ---

type fakeFoldersRepo struct {
	folder *models.Folder
	err    error

	list []models.FolderWithCount

	deleted    int64
	deleteErr  error
	lastName   string
	lastUserID uuid.UUID
}

func (f *fakeFoldersRepo) Create(_ context.Context, userID uuid.UUID, name string) (*models.Folder, error) {
	f.lastName, f.lastUserID = name, userID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Folder{ID: 1, UserID: userID, Name: name, CreatedAt: time.Now()}, nil
}

func (f *fakeFoldersRepo) ListByUser(context.Context, uuid.UUID) ([]models.FolderWithCount, error) {
	return f.list, f.err
}

func (f *fakeFoldersRepo) GetByID(context.Context, int32, uuid.UUID) (*models.Folder, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.folder == nil {
		return nil, common.ErrorNotFound
	}
	return f.folder, nil
}

func (f *fakeFoldersRepo) Rename(_ context.Context, id int32, userID uuid.UUID, name string) (*models.Folder, error) {
	f.lastName = name
	if f.err != nil {
		return nil, f.err
	}
	return &models.Folder{ID: id, UserID: userID, Name: name}, nil
}

func (f *fakeFoldersRepo) SoftDelete(context.Context, int32, uuid.UUID) (int64, error) {
	return f.deleted, f.deleteErr
}

// --- images ---

type fakeImagesRepo struct {
	image *models.Image
	err   error

	list    []models.Image
	created *models.Image
}

func (f *fakeImagesRepo) Create(_ context.Context, img *models.Image) (*models.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := *img
	out.ID = 10
	out.UploadedAt = time.Now()
	f.created = &out
	return &out, nil
}

func (f *fakeImagesRepo) ListByFolder(context.Context, int32) ([]models.Image, error) {
	return f.list, f.err
}

func (f *fakeImagesRepo) GetByID(context.Context, int64, uuid.UUID) (*models.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.image == nil {
		return nil, common.ErrorNotFound
	}
	return f.image, nil
}

func (f *fakeImagesRepo) Rename(_ context.Context, id int64, _ uuid.UUID, filename string) (*models.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Image{ID: id, OriginalFilename: filename}, nil
}

func (f *fakeImagesRepo) SoftDelete(context.Context, int64, uuid.UUID) error {
	return f.err
}

// --- jobs ---

type fakeJobsRepo struct {
	job    *models.Job
	jobErr error

	createErr error

	failedID  int64
	failedMsg string

	history    []models.JobWithResult
	historyErr error

	result    *models.AnalysisResult
	resultImg int64
	resultErr error
}

func (f *fakeJobsRepo) Create(_ context.Context, imageID int64, modelVersion string) (*models.Job, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	mv := modelVersion
	f.job = &models.Job{ID: 7, ImageID: imageID, Status: models.JobStatusPending, AIModelVersion: &mv, CreatedAt: time.Now()}
	return f.job, nil
}

func (f *fakeJobsRepo) GetByID(context.Context, int64, uuid.UUID) (*models.Job, error) {
	if f.jobErr != nil {
		return nil, f.jobErr
	}
	return f.job, nil
}

func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id int64, msg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.failedID, f.failedMsg = id, msg
	return nil
}

func (f *fakeJobsRepo) HistoryByImage(context.Context, int64, uuid.UUID) ([]models.JobWithResult, error) {
	return f.history, f.historyErr
}

func (f *fakeJobsRepo) GetResult(context.Context, int64, uuid.UUID) (*models.AnalysisResult, int64, error) {
	if f.resultErr != nil {
		return nil, 0, f.resultErr
	}
	return f.result, f.resultImg, nil
}

// --- manager ---

type fakeRepoManager struct {
	u *fakeUsersRepo
	f *fakeFoldersRepo
	i *fakeImagesRepo
	j *fakeJobsRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		u: &fakeUsersRepo{},
		f: &fakeFoldersRepo{},
		i: &fakeImagesRepo{},
		j: &fakeJobsRepo{},
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return m.u }
func (m *fakeRepoManager) Folders(dbx.DBTX) folders.Repository          { return m.f }
func (m *fakeRepoManager) Images(dbx.DBTX) images.Repository            { return m.i }
func (m *fakeRepoManager) Jobs(dbx.DBTX) jobs.Repository                { return m.j }

// --- collaborators ---

type fakeHasher struct {
	hashErr    error
	verifyOK   bool
	verifyErr  error
	hashCalls  int
	verifyArgs []string
}

func (h *fakeHasher) Hash(_ context.Context, password string) (string, error) {
	h.hashCalls++
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return "hashed:" + password, nil
}

func (h *fakeHasher) Verify(_ context.Context, password, encoded string) (bool, error) {
	h.verifyArgs = append(h.verifyArgs, password, encoded)
	return h.verifyOK, h.verifyErr
}

type fakeStore struct {
	putKey, putType string
	getKey          string
	url             string
	expires         time.Time
	err             error
	obj             *storage.Object

	stored     map[string][]byte
	storeErr   error
	deleted    []string
	deleteCtxs []context.Context
}

func (s *fakeStore) PresignPut(_ context.Context, key, contentType string) (string, time.Time, error) {
	s.putKey, s.putType = key, contentType
	return s.url, s.expires, s.err
}

func (s *fakeStore) PresignGet(_ context.Context, key string) (string, time.Time, error) {
	s.getKey = key
	return s.url, s.expires, s.err
}

func (s *fakeStore) GetObject(_ context.Context, key string) (*storage.Object, error) {
	s.getKey = key
	if s.err != nil {
		return nil, s.err
	}
	return s.obj, nil
}

type fakePublisher struct {
	err  error
	msgs []queue.AnalysisJobMessage
}

func (p *fakePublisher) PublishAnalysisJob(_ context.Context, msg queue.AnalysisJobMessage) error {
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (s *fakeStore) PutObject(_ context.Context, key, contentType string, data []byte) error {
	s.putKey, s.putType = key, contentType
	if s.storeErr != nil {
		return s.storeErr
	}
	if s.stored == nil {
		s.stored = make(map[string][]byte)
	}
	s.stored[key] = data
	return nil
}

func (s *fakeStore) DeleteObject(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	s.deleteCtxs = append(s.deleteCtxs, ctx)
	delete(s.stored, key)
	return nil
}
