// Package server assembles the cellscope API process: logger, database pool
// and migrations, object storage, the analysis queue, the password hashing
// pool and the HTTP server. It also owns graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/cellscope/internal/cryptox"
	"github.com/dmitrijs2005/cellscope/internal/logging"
	"github.com/dmitrijs2005/cellscope/internal/server/auth"
	"github.com/dmitrijs2005/cellscope/internal/server/config"
	"github.com/dmitrijs2005/cellscope/internal/server/httpapi"
	"github.com/dmitrijs2005/cellscope/internal/server/queue"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cellscope/internal/server/services"
	"github.com/dmitrijs2005/cellscope/internal/server/storage"
)

type App struct {
	config  *config.Config
	version string
	logger  logging.Logger

	db         *sql.DB
	hasher     *auth.Hasher
	drainQueue func()
	httpServer *httpapi.Server
}

// NewApp connects to every backing service and builds the HTTP server.
// Anything opened before a failure is closed again.
func NewApp(ctx context.Context, c *config.Config, version string) (_ *App, err error) {
	logger := logging.New(logging.Config{
		Backend: c.LogBackend,
		Level:   c.LogLevel,
		Format:  c.LogFormat,
	})

	app := &App{config: c, version: version, logger: logger}
	defer func() {
		if err != nil {
			app.close(ctx)
		}
	}()

	app.db, err = repomanager.OpenDB(ctx, c.DatabaseDSN, c.DatabaseMaxConns, c.DatabaseMinConns)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(app.db)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err = rm.RunMigrations(ctx, app.db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := storage.New(ctx, storage.Config{
		Endpoint:       c.S3BaseEndpoint,
		PublicEndpoint: c.S3PublicEndpoint,
		Region:         c.S3Region,
		Bucket:         c.S3Bucket,
		AccessKey:      c.S3AccessKey,
		SecretKey:      c.S3SecretKey,
		PresignExpiry:  c.S3PresignExpiry,
	})
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	publisher, drain, err := queue.Connect(ctx, c.NATSURL, c.AnalysisQueue, logger)
	if err != nil {
		return nil, fmt.Errorf("queue init error: %w", err)
	}
	app.drainQueue = drain

	tokens, err := auth.NewTokenCodec([]byte(c.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("token codec error: %w", err)
	}

	app.hasher = auth.NewHasher(c.HashWorkers, cryptox.DefaultArgon2Params)

	svc := httpapi.Services{
		Auth:     services.NewAuthService(app.db, rm, app.hasher, tokens, c),
		Folders:  services.NewFolderService(app.db, rm),
		Images:   services.NewImageService(app.db, rm, store),
		Analysis: services.NewAnalysisService(app.db, rm, publisher, logger),
	}

	app.httpServer = httpapi.NewServer(c.EndpointAddrHTTP, version, logger, svc, tokens)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpServer.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server error", "error", err)
		cancelFunc()
	}
}

// Run serves until a termination signal arrives or the server fails, then
// releases resources: queue connection, in-flight hashes, database pool.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "version", app.version)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.close(context.Background())
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) close(ctx context.Context) {
	if app.drainQueue != nil {
		app.drainQueue()
	}
	if app.hasher != nil {
		app.hasher.Wait()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error(ctx, "db close error", "error", err)
		}
	}
}
