package httpapi

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/cryptox"
	"github.com/dmitrijs2005/cellscope/internal/dbx"
	"github.com/dmitrijs2005/cellscope/internal/logging"
	"github.com/dmitrijs2005/cellscope/internal/server/auth"
	"github.com/dmitrijs2005/cellscope/internal/server/config"
	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/folders"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/images"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/users"
	"github.com/dmitrijs2005/cellscope/internal/server/services"
	"github.com/dmitrijs2005/cellscope/internal/server/storage"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var fastParams = cryptox.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func discardLogger() logging.Logger {
	return logging.New(logging.Config{Output: io.Discard})
}

// --- in-memory user store behind a repository manager ---

type memUsers struct {
	mu   sync.Mutex
	byID map[string]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: make(map[string]*models.User)}
}

func (m *memUsers) Create(_ context.Context, username, hash string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[username]; ok {
		return nil, common.ErrorUsernameExists
	}
	u := &models.User{ID: uuid.New(), UserName: username, PasswordHash: hash, CreatedAt: time.Now()}
	m.byID[username] = u
	return u, nil
}

func (m *memUsers) GetUserByLogin(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[username]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) Exists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byID[username]
	return ok, nil
}

type memRepoManager struct {
	users *memUsers
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *memRepoManager) Users(dbx.DBTX) users.Repository              { return m.users }
func (m *memRepoManager) Folders(dbx.DBTX) folders.Repository          { return nil }
func (m *memRepoManager) Images(dbx.DBTX) images.Repository            { return nil }
func (m *memRepoManager) Jobs(dbx.DBTX) jobs.Repository                { return nil }

// countingHasher records how often Verify runs.
type countingHasher struct {
	*auth.Hasher
	verifies atomic.Int32
}

func (h *countingHasher) Verify(ctx context.Context, password, encoded string) (bool, error) {
	h.verifies.Add(1)
	return h.Hasher.Verify(ctx, password, encoded)
}

// --- fake domain services ---

type fakeFolders struct {
	list    []models.FolderWithCount
	folder  *models.Folder
	deleted int64
	err     error
	gotUser uuid.UUID
}

func (f *fakeFolders) List(_ context.Context, userID uuid.UUID) ([]models.FolderWithCount, error) {
	f.gotUser = userID
	return f.list, f.err
}

func (f *fakeFolders) Create(_ context.Context, userID uuid.UUID, req services.FolderRequest) (*models.Folder, error) {
	f.gotUser = userID
	if f.err != nil {
		return nil, f.err
	}
	return &models.Folder{ID: 1, UserID: userID, Name: req.FolderName, CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}, nil
}

func (f *fakeFolders) Rename(_ context.Context, _ uuid.UUID, id int32, req services.FolderRequest) (*models.Folder, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Folder{ID: id, Name: req.FolderName}, nil
}

func (f *fakeFolders) Delete(context.Context, uuid.UUID, int32) (int64, error) {
	return f.deleted, f.err
}

type fakeImages struct {
	list    []models.Image
	image   *models.Image
	detail  *services.ImageDetail
	ticket  *services.UploadTicket
	obj     *storage.Object
	url     string
	expires time.Time
	err     error

	gotConfirm services.ConfirmUploadRequest
	gotUpload  *services.UploadFile
}

func (f *fakeImages) ListByFolder(context.Context, uuid.UUID, int32) ([]models.Image, error) {
	return f.list, f.err
}

func (f *fakeImages) RequestUpload(context.Context, uuid.UUID, int32, services.UploadRequest) (*services.UploadTicket, error) {
	return f.ticket, f.err
}

func (f *fakeImages) ConfirmUpload(_ context.Context, _ uuid.UUID, _ int32, req services.ConfirmUploadRequest) (*models.Image, error) {
	f.gotConfirm = req
	return f.image, f.err
}

func (f *fakeImages) Upload(_ context.Context, _ uuid.UUID, _ int32, file services.UploadFile) (*models.Image, error) {
	f.gotUpload = &file
	return f.image, f.err
}

func (f *fakeImages) Get(context.Context, uuid.UUID, int64) (*services.ImageDetail, error) {
	return f.detail, f.err
}

func (f *fakeImages) Rename(context.Context, uuid.UUID, int64, services.RenameImageRequest) (*models.Image, error) {
	return f.image, f.err
}

func (f *fakeImages) Delete(context.Context, uuid.UUID, int64) error {
	return f.err
}

func (f *fakeImages) OpenFile(context.Context, uuid.UUID, int64) (*models.Image, *storage.Object, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.image, f.obj, nil
}

func (f *fakeImages) DownloadURL(context.Context, uuid.UUID, int64) (string, time.Time, error) {
	return f.url, f.expires, f.err
}

type fakeAnalysis struct {
	job     *models.Job
	result  *services.ResultView
	history []models.JobWithResult
	err     error

	gotReq services.AnalyzeRequest
}

func (f *fakeAnalysis) Analyze(_ context.Context, _ uuid.UUID, _ int64, req services.AnalyzeRequest) (*models.Job, error) {
	f.gotReq = req
	return f.job, f.err
}

func (f *fakeAnalysis) JobStatus(context.Context, uuid.UUID, int64) (*models.Job, error) {
	return f.job, f.err
}

func (f *fakeAnalysis) Result(context.Context, uuid.UUID, int64) (*services.ResultView, error) {
	return f.result, f.err
}

func (f *fakeAnalysis) History(context.Context, uuid.UUID, int64) ([]models.JobWithResult, error) {
	return f.history, f.err
}

// --- harness ---

type testEnv struct {
	server   *Server
	handler  http.Handler
	codec    *auth.TokenCodec
	hasher   *countingHasher
	folders  *fakeFolders
	images   *fakeImages
	analysis *fakeAnalysis
}

// newTestEnv wires a Server with a real AuthService over an in-memory user
// store and fakes for everything else.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	codec, err := auth.NewTokenCodec([]byte("test-secret"))
	require.NoError(t, err)

	hasher := &countingHasher{Hasher: auth.NewHasher(2, fastParams)}
	t.Cleanup(hasher.Wait)

	cfg := &config.Config{
		AccessTokenValidityDuration:  24 * time.Hour,
		RefreshTokenValidityDuration: 7 * 24 * time.Hour,
	}
	authSvc := services.NewAuthService(nil, &memRepoManager{users: newMemUsers()}, hasher, codec, cfg)

	env := &testEnv{
		codec:    codec,
		hasher:   hasher,
		folders:  &fakeFolders{},
		images:   &fakeImages{},
		analysis: &fakeAnalysis{},
	}
	env.server = NewServer("127.0.0.1:0", "test", discardLogger(), Services{
		Auth:     authSvc,
		Folders:  env.folders,
		Images:   env.images,
		Analysis: env.analysis,
	}, codec)
	env.handler = env.server.Router()
	return env
}

// relaxLimits replaces the auth limiters so multi-step flows are not
// throttled. Call before the first request.
func (e *testEnv) relaxLimits() {
	e.server.loginLimiter = NewRateLimiter("login", time.Millisecond, 100)
	e.server.registerLimiter = NewRateLimiter("register", time.Millisecond, 100)
	e.handler = e.server.Router()
}

func (e *testEnv) accessToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	tok, err := e.codec.Issue(auth.NewClaims(userID, "alice", auth.TokenTypeAccess, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(method, path, body, token string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *ErrorBody      `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var e envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e), rec.Body.String())
	return e
}
