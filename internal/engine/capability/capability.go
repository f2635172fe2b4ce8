// Package capability define os contratos de fronteira consumidos pelo motor de
// liquidação: autorização de operador, circuit breaker de pausa, exclusão de
// reentrância, transferência de valor e oráculo de resultado. O motor depende
// apenas das interfaces; as implementações de produção vivem na camada de
// serviço (Redis, Postgres), e as em memória aqui servem ao motor e aos testes.
package capability

import (
	"context"
	"time"

	"github.com/parimutuel/pool-engine/internal/engine/ledger"
)

// Authorizer responde se um chamador tem papel de operador.
type Authorizer interface {
	IsOperator(caller string) bool
}

// Pauser é o circuit breaker externo: com o sistema pausado, novas apostas
// são recusadas.
type Pauser interface {
	Paused(ctx context.Context) bool
}

// Guard é a capability de exclusão de reentrância. Enter falha com
// ErrReentrantCall se uma operação já está em andamento.
type Guard interface {
	Enter() error
	Exit()
}

// TransferItem é uma transferência individual dentro de um lote.
type TransferItem struct {
	Recipient   string
	AmountCents int64
}

// Treasury é a capability de movimentação de valor. Toda falha é propagada
// como falha da operação, nunca ignorada. TransferBatch é atômico: ou todos
// os itens são transferidos, ou nenhum.
type Treasury interface {
	Transfer(ctx context.Context, recipient string, amountCents int64) error
	TransferBatch(ctx context.Context, items []TransferItem) error
}

// Oracle fornece o resultado de um evento na resolução pública pós-janela.
type Oracle interface {
	Winner(eventID uint64, at time.Time) (ledger.Side, error)
}
