package sqlite

import (
	"database/sql"

	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store"
	"github.com/aussiebroadwan/bartab-mfa/internal/mfa/store/drivers/sqlite/gen"
)

type txStore struct {
	tx *sql.Tx
	q  *gen.Queries
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{
		tx: tx,
		q:  gen.New(tx),
	}
}

func (t *txStore) Users() store.Users             { return &usersRepo{q: t.q} }
func (t *txStore) AuditEvents() store.AuditEvents { return &auditEventsRepo{q: t.q} }
