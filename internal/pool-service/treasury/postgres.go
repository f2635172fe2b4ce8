// Package treasury implementa a capability de movimentação de valor sobre o
// esquema de carteiras no Postgres: saldo por conta, reservas de stake e
// trilha em treasury_ledger. É a única saída de fundos do pool.
package treasury

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/parimutuel/pool-engine/internal/engine/capability"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
)

type Postgres struct{ db *sql.DB }

func NewPostgres(db *sql.DB) *Postgres { return &Postgres{db: db} }

// GetOrCreateAccount retorna o id e o saldo de uma conta, criando-a se não
// existir. Usa transação para garantir atomicidade.
func (p *Postgres) GetOrCreateAccount(ctx context.Context, account string) (accountID string, balance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", 0, err
	}
	defer tx.Rollback()

	var id string
	var bal int64
	err = tx.QueryRowContext(ctx, `SELECT id, balance_cents FROM treasury_accounts WHERE account=$1`, account).Scan(&id, &bal)
	if err == sql.ErrNoRows {
		id = uuid.NewString()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO treasury_accounts(id, account, balance_cents, version) VALUES($1,$2,0,1)`,
			id, account); err != nil {
			return "", 0, err
		}
		bal = 0
	} else if err != nil {
		return "", 0, err
	}

	if err = tx.Commit(); err != nil {
		return "", 0, err
	}

	return id, bal, nil
}

// Deposit credita saldo em uma conta e registra a operação no ledger da
// tesouraria. Lock pessimista na linha da conta.
func (p *Postgres) Deposit(ctx context.Context, account string, amountCents int64, externalRef string) (newBalance int64, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var id string
	if err = tx.QueryRowContext(ctx, `SELECT id FROM treasury_accounts WHERE account=$1 FOR UPDATE`, account).Scan(&id); err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE treasury_accounts SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2`, amountCents, id); err != nil {
		return 0, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO treasury_ledger(account_id, operation_type, amount_cents, description) VALUES($1,'CREDIT',$2,$3)`,
		id, amountCents, "deposit:"+externalRef); err != nil {
		return 0, err
	}

	if err = tx.QueryRowContext(ctx, `SELECT balance_cents FROM treasury_accounts WHERE id=$1`, id).Scan(&newBalance); err != nil {
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// ReserveStake debita o valor da aposta da conta do bettor antes da admissão
// no motor. Idempotente por (account_id, external_ref).
func (p *Postgres) ReserveStake(ctx context.Context, account string, amountCents int64, externalRef string) (reservationID string, err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var accountID string
	var balance int64
	if err = tx.QueryRowContext(ctx, `SELECT id, balance_cents FROM treasury_accounts WHERE account=$1 FOR UPDATE`, account).Scan(&accountID, &balance); err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}

	// Idempotência: reserva já criada para o mesmo external_ref
	var exists string
	err = tx.QueryRowContext(ctx, `SELECT id FROM treasury_reservations WHERE account_id=$1 AND external_ref=$2`, accountID, externalRef).Scan(&exists)
	if err == nil {
		return exists, nil
	} else if err != sql.ErrNoRows {
		return "", err
	}

	if balance < amountCents {
		return "", ErrInsufficientFunds
	}

	if _, err = tx.ExecContext(ctx, `UPDATE treasury_accounts SET balance_cents = balance_cents - $1, version = version + 1 WHERE id=$2`, amountCents, accountID); err != nil {
		return "", err
	}

	reservationID = uuid.NewString()
	if _, err = tx.ExecContext(ctx, `INSERT INTO treasury_reservations(id, account_id, external_ref, amount_cents, status) VALUES($1,$2,$3,$4,'HELD')`,
		reservationID, accountID, externalRef, amountCents); err != nil {
		return "", err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO treasury_ledger(account_id, operation_type, amount_cents, description) VALUES($1,'RESERVE',$2,$3)`,
		accountID, amountCents, "reserve:"+externalRef); err != nil {
		return "", err
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}

	return reservationID, nil
}

// ReleaseStake desfaz uma reserva HELD devolvendo o saldo — usado quando a
// admissão da aposta falha depois do débito. Idempotente.
func (p *Postgres) ReleaseStake(ctx context.Context, account, externalRef string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var accountID, resID, status string
	var amount int64
	if err = tx.QueryRowContext(ctx, `
		SELECT tr.id, tr.account_id, tr.amount_cents, tr.status
		FROM treasury_reservations tr
		JOIN treasury_accounts ta ON ta.id = tr.account_id
		WHERE ta.account=$1 AND tr.external_ref=$2
		FOR UPDATE`, account, externalRef).Scan(&resID, &accountID, &amount, &status); err != nil {
		return ErrNotFound
	}

	if status != "HELD" {
		return nil
	}

	if _, err = tx.ExecContext(ctx, `UPDATE treasury_accounts SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2`, amount, accountID); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE treasury_reservations SET status='RELEASED' WHERE id=$1`, resID); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO treasury_ledger(account_id, operation_type, amount_cents, description) VALUES($1,'RELEASE',$2,$3)`,
		accountID, amount, "release:"+externalRef); err != nil {
		return err
	}

	return tx.Commit()
}

// Transfer credita um destinatário. Implementa capability.Treasury.
func (p *Postgres) Transfer(ctx context.Context, recipient string, amountCents int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err = p.creditInTx(ctx, tx, recipient, amountCents, "transfer"); err != nil {
		return err
	}
	return tx.Commit()
}

// TransferBatch credita todos os itens em uma única transação: ou todos, ou
// nenhum. É o que garante a atomicidade do claim (usuário + beneficiária) e
// do refund de cancelamento.
func (p *Postgres) TransferBatch(ctx context.Context, items []capability.TransferItem) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, it := range items {
		if err = p.creditInTx(ctx, tx, it.Recipient, it.AmountCents, "transfer_batch"); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) creditInTx(ctx context.Context, tx *sql.Tx, account string, amountCents int64, desc string) error {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM treasury_accounts WHERE account=$1 FOR UPDATE`, account).Scan(&id)
	if err == sql.ErrNoRows {
		id = uuid.NewString()
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO treasury_accounts(id, account, balance_cents, version) VALUES($1,$2,0,1)`,
			id, account); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE treasury_accounts SET balance_cents = balance_cents + $1, version = version + 1 WHERE id=$2`, amountCents, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO treasury_ledger(account_id, operation_type, amount_cents, description) VALUES($1,'CREDIT',$2,$3)`,
		id, amountCents, desc); err != nil {
		return err
	}
	return nil
}
