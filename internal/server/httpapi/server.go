// Package httpapi is the JSON-over-HTTP transport: routing, middleware,
// request decoding and the response envelope. Business rules live in
// internal/server/services.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cellscope/internal/logging"
	"github.com/dmitrijs2005/cellscope/internal/server/models"
	"github.com/dmitrijs2005/cellscope/internal/server/services"
	"github.com/dmitrijs2005/cellscope/internal/server/storage"
	"github.com/google/uuid"
)

type AuthService interface {
	Register(ctx context.Context, req services.RegisterRequest) (*services.RegisterResult, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
}

type FolderService interface {
	List(ctx context.Context, userID uuid.UUID) ([]models.FolderWithCount, error)
	Create(ctx context.Context, userID uuid.UUID, req services.FolderRequest) (*models.Folder, error)
	Rename(ctx context.Context, userID uuid.UUID, id int32, req services.FolderRequest) (*models.Folder, error)
	Delete(ctx context.Context, userID uuid.UUID, id int32) (int64, error)
}

type ImageService interface {
	ListByFolder(ctx context.Context, userID uuid.UUID, folderID int32) ([]models.Image, error)
	RequestUpload(ctx context.Context, userID uuid.UUID, folderID int32, req services.UploadRequest) (*services.UploadTicket, error)
	ConfirmUpload(ctx context.Context, userID uuid.UUID, folderID int32, req services.ConfirmUploadRequest) (*models.Image, error)
	Upload(ctx context.Context, userID uuid.UUID, folderID int32, f services.UploadFile) (*models.Image, error)
	Get(ctx context.Context, userID uuid.UUID, id int64) (*services.ImageDetail, error)
	Rename(ctx context.Context, userID uuid.UUID, id int64, req services.RenameImageRequest) (*models.Image, error)
	Delete(ctx context.Context, userID uuid.UUID, id int64) error
	OpenFile(ctx context.Context, userID uuid.UUID, id int64) (*models.Image, *storage.Object, error)
	DownloadURL(ctx context.Context, userID uuid.UUID, id int64) (string, time.Time, error)
}

type AnalysisService interface {
	Analyze(ctx context.Context, userID uuid.UUID, imageID int64, req services.AnalyzeRequest) (*models.Job, error)
	JobStatus(ctx context.Context, userID uuid.UUID, jobID int64) (*models.Job, error)
	Result(ctx context.Context, userID uuid.UUID, jobID int64) (*services.ResultView, error)
	History(ctx context.Context, userID uuid.UUID, imageID int64) ([]models.JobWithResult, error)
}

// Services bundles what the handlers call.
type Services struct {
	Auth     AuthService
	Folders  FolderService
	Images   ImageService
	Analysis AnalysisService
}

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

type Server struct {
	address  string
	version  string
	logger   logging.Logger
	services Services

	authenticator   *Authenticator
	loginLimiter    *RateLimiter
	registerLimiter *RateLimiter
}

func NewServer(address, version string, l logging.Logger, svc Services, tokens TokenVerifier) *Server {
	return &Server{
		address:         address,
		version:         version,
		logger:          l.With("module", "http_server"),
		services:        svc,
		authenticator:   NewAuthenticator(tokens, l),
		loginLimiter:    LoginRateLimiter(),
		registerLimiter: RegisterRateLimiter(),
	}
}

// Run serves until ctx is done, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.loginLimiter.StartCleanup(time.Minute, time.Hour)
	s.registerLimiter.StartCleanup(time.Minute, time.Hour)
	defer s.loginLimiter.Stop()
	defer s.registerLimiter.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "HTTP shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-done
	return nil
}

// fail writes err as an error envelope. Errors that do not map to a known
// kind are logged and reported as INTERNAL_ERROR.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, known := FromServiceError(err)
	if !known {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, apiErr)
}
