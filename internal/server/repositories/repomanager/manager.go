package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/accounts/internal/dbx"
	"github.com/dmitrijs2005/accounts/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a database handle and owns
// schema migrations.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
