package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/scholarstream/internal/dbx"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/applications"
	"github.com/dmitrijs2005/scholarstream/internal/server/repositories/payments"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Applications(db dbx.DBTX) applications.Repository
	Payments(db dbx.DBTX) payments.Repository
}
