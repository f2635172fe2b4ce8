// Package repo persiste o histórico de eventos, stakes e claims no Postgres,
// espelhando as mutações do ledger em memória (write-behind).
package repo

import (
	"context"
	"database/sql"
	"time"
)

type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// InsertEvent registra a criação de um evento.
func (p *Postgres) InsertEvent(ctx context.Context, eventID uint64, startTime time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pool_events (id, start_time, status, total_a_cents, total_b_cents)
		VALUES ($1,$2,'OPEN',0,0)
		ON CONFLICT (id) DO NOTHING`,
		eventID, startTime,
	)
	return err
}

// UpsertStake grava o stake acumulado de um bettor e os totais correntes.
func (p *Postgres) UpsertStake(ctx context.Context, eventID uint64, userID, side string, amountCents, totalA, totalB int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `
		INSERT INTO pool_stakes (event_id, user_id, side, amount_cents, claimed)
		VALUES ($1,$2,$3,$4,false)
		ON CONFLICT (event_id, user_id) DO UPDATE SET
		  side = EXCLUDED.side,
		  amount_cents = pool_stakes.amount_cents + EXCLUDED.amount_cents`,
		eventID, userID, side, amountCents); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `
		UPDATE pool_events SET total_a_cents=$1, total_b_cents=$2, updated_at=NOW() WHERE id=$3`,
		totalA, totalB, eventID); err != nil {
		return err
	}

	return tx.Commit()
}

// MarkResolved congela o evento com o vencedor.
func (p *Postgres) MarkResolved(ctx context.Context, eventID uint64, winner string) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE pool_events SET status='RESOLVED', winner=$1, updated_at=NOW() WHERE id=$2`,
		winner, eventID)
	return err
}

// MarkCancelled congela o evento como cancelado e zera os stakes.
func (p *Postgres) MarkCancelled(ctx context.Context, eventID uint64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `
		UPDATE pool_events SET status='CANCELLED', total_a_cents=0, total_b_cents=0, updated_at=NOW() WHERE id=$1`,
		eventID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
		UPDATE pool_stakes SET amount_cents=0 WHERE event_id=$1`, eventID); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkClaimed registra o claim consumido de um bettor com os valores pagos.
func (p *Postgres) MarkClaimed(ctx context.Context, eventID uint64, userID string, userCents, charityCents int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `
		UPDATE pool_stakes SET claimed=true, amount_cents=0 WHERE event_id=$1 AND user_id=$2`,
		eventID, userID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO pool_claims (event_id, user_id, user_cents, charity_cents, created_at)
		VALUES ($1,$2,$3,$4,NOW())`,
		eventID, userID, userCents, charityCents); err != nil {
		return err
	}
	return tx.Commit()
}

// EventRecord é a linha persistida de um evento em pool_events.
type EventRecord struct {
	EventID     uint64
	Status      string
	Winner      string
	StartTime   time.Time
	TotalACents int64
	TotalBCents int64
}

// GetEvent lê um evento persistido (consulta de histórico); retorna
// sql.ErrNoRows quando o evento nunca existiu.
func (p *Postgres) GetEvent(ctx context.Context, eventID uint64) (EventRecord, error) {
	rec := EventRecord{EventID: eventID}
	var w sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT status, winner, start_time, total_a_cents, total_b_cents FROM pool_events WHERE id=$1`,
		eventID).Scan(&rec.Status, &w, &rec.StartTime, &rec.TotalACents, &rec.TotalBCents)
	if w.Valid {
		rec.Winner = w.String
	}
	return rec, err
}
