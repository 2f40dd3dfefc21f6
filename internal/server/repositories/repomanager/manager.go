package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/cellscope/internal/dbx"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/folders"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/images"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/cellscope/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code runs
// on the pool or inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Folders(db dbx.DBTX) folders.Repository
	Images(db dbx.DBTX) images.Repository
	Jobs(db dbx.DBTX) jobs.Repository
}
