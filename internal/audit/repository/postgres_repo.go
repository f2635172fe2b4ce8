package repository

import (
	"context"
	"database/sql"
)

// PostgresRepo persiste a trilha de auditoria da liquidação em banco Postgres.
type PostgresRepo struct {
	DB *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{DB: db}
}

// InsertEntry insere um registro de auditoria com o payload bruto da
// notificação, para reconciliação posterior contra o ledger.
func (r *PostgresRepo) InsertEntry(ctx context.Context, eventID uint64, kind, userID string, amountCents int64, payload []byte) error {
	const q = `
		INSERT INTO settlement_audit
		  (event_id, kind, user_id, amount_cents, payload, created_at)
		VALUES
		  ($1,$2,$3,$4,$5,NOW())
	`
	_, err := r.DB.ExecContext(ctx, q, eventID, kind, userID, amountCents, payload)
	return err
}
