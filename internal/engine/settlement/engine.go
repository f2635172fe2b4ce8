// Package settlement implementa a máquina de estados do ciclo de vida de
// eventos e a liquidação do pool pari-mutuel: criação, admissão de apostas,
// resolução, cancelamento com refund e claim com payout pro-rata. É o único
// código que movimenta fundos, sempre sob a capability de exclusão de
// reentrância e na disciplina checks-effects-interactions: o bookkeeping é
// finalizado antes de qualquer transferência.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parimutuel/pool-engine/internal/engine/capability"
	"github.com/parimutuel/pool-engine/internal/engine/ledger"
)

var (
	ErrUnauthorized        = errors.New("caller is not an operator")
	ErrSystemPaused        = errors.New("system paused")
	ErrNoActiveEvent       = errors.New("no active event")
	ErrBettingWindowClosed = errors.New("betting window closed")
	ErrWindowNotElapsed    = errors.New("betting window not elapsed")
	ErrEventNotResolved    = errors.New("event not resolved")
	ErrNoWinningStake      = errors.New("no stake on the winning side")
	ErrPayoutFailed        = errors.New("payout transfer failed")
	ErrRefundFailed        = errors.New("refund transfer failed")
	ErrOracleUnavailable   = errors.New("outcome oracle unavailable")
)

// Receipt resume o resultado de um claim bem-sucedido.
type Receipt struct {
	EventID      uint64
	Bettor       string
	StakeCents   int64
	GrossCents   int64
	UserCents    int64
	CharityCents int64
}

// Deps agrupa as capabilities externas consumidas pelo motor.
type Deps struct {
	Auth     capability.Authorizer
	Pause    capability.Pauser
	Guard    capability.Guard
	Treasury capability.Treasury
	Oracle   capability.Oracle
}

// Config fixa os parâmetros de deployment do motor.
type Config struct {
	// Conta beneficiária imutável que recebe metade do lucro de cada claim.
	CharityAccount string
	// Janela de apostas a partir do startTime; zero desabilita o limite.
	BettingWindow time.Duration
	// Relógio injetável; padrão time.Now.
	Now func() time.Time
}

// Engine orquestra o ciclo de vida dos eventos sobre o Pool Ledger.
// A exclusão entre operações mutantes vem do Guard: uma operação por vez,
// espelhando o log de execução totalmente ordenado do modelo de execução.
type Engine struct {
	log     *zap.Logger
	ledger  *ledger.Ledger
	deps    Deps
	charity string
	window  time.Duration
	now     func() time.Time
}

func New(log *zap.Logger, ld *ledger.Ledger, deps Deps, cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		log:     log,
		ledger:  ld,
		deps:    deps,
		charity: cfg.CharityAccount,
		window:  cfg.BettingWindow,
		now:     now,
	}
}

// Ledger expõe o ledger para as consultas read-only da camada de transporte.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// CreateEvent abre um novo evento. Apenas operador; o evento anterior precisa
// estar em estado terminal.
func (e *Engine) CreateEvent(ctx context.Context, caller string) (ledger.Event, error) {
	if !e.deps.Auth.IsOperator(caller) {
		return ledger.Event{}, ErrUnauthorized
	}
	if err := e.deps.Guard.Enter(); err != nil {
		return ledger.Event{}, err
	}
	defer e.deps.Guard.Exit()

	id, err := e.ledger.CreateEvent(e.now())
	if err != nil {
		return ledger.Event{}, err
	}
	ev, _ := e.ledger.View(id)
	e.log.Info("event created", zap.Uint64("eventId", id))
	return ev, nil
}

// PlaceBet admite a aposta de um chamador no evento corrente. O valor já foi
// debitado do chamador pela camada de transporte antes desta chamada.
func (e *Engine) PlaceBet(ctx context.Context, caller string, side ledger.Side, amountCents int64) (ledger.Event, error) {
	if e.deps.Pause != nil && e.deps.Pause.Paused(ctx) {
		return ledger.Event{}, ErrSystemPaused
	}
	if err := e.deps.Guard.Enter(); err != nil {
		return ledger.Event{}, err
	}
	defer e.deps.Guard.Exit()

	cur, ok := e.ledger.Current()
	if !ok || cur.Status != ledger.StatusOpen {
		return ledger.Event{}, ErrNoActiveEvent
	}
	if e.window > 0 && !e.now().Before(cur.StartTime.Add(e.window)) {
		return ledger.Event{}, ErrBettingWindowClosed
	}
	if err := e.ledger.RecordBet(cur.ID, caller, side, amountCents); err != nil {
		return ledger.Event{}, err
	}

	ev, _ := e.ledger.View(cur.ID)
	e.log.Info("bet placed",
		zap.Uint64("eventId", ev.ID),
		zap.String("bettor", caller),
		zap.String("side", side.String()),
		zap.Int64("amountCents", amountCents),
	)
	return ev, nil
}

// Resolve congela o evento com o resultado informado pelo operador
// (modelo trusted-oracle).
func (e *Engine) Resolve(ctx context.Context, caller string, eventID uint64, winner ledger.Side) (ledger.Event, error) {
	if !e.deps.Auth.IsOperator(caller) {
		return ledger.Event{}, ErrUnauthorized
	}
	ev, err := e.ledger.View(eventID)
	if err != nil {
		return ledger.Event{}, err
	}
	if e.window > 0 && e.now().Before(ev.StartTime.Add(e.window)) {
		return ledger.Event{}, ErrWindowNotElapsed
	}
	return e.resolve(eventID, winner)
}

// ResolveByOracle permite a qualquer chamador resolver o evento depois que a
// janela de apostas expirou, com o resultado vindo do oráculo plugável.
func (e *Engine) ResolveByOracle(ctx context.Context, eventID uint64) (ledger.Event, error) {
	ev, err := e.ledger.View(eventID)
	if err != nil {
		return ledger.Event{}, err
	}
	if e.window > 0 && e.now().Before(ev.StartTime.Add(e.window)) {
		return ledger.Event{}, ErrWindowNotElapsed
	}
	if e.deps.Oracle == nil {
		return ledger.Event{}, ErrOracleUnavailable
	}
	winner, err := e.deps.Oracle.Winner(eventID, e.now())
	if err != nil {
		return ledger.Event{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return e.resolve(eventID, winner)
}

func (e *Engine) resolve(eventID uint64, winner ledger.Side) (ledger.Event, error) {
	if err := e.deps.Guard.Enter(); err != nil {
		return ledger.Event{}, err
	}
	defer e.deps.Guard.Exit()

	if err := e.ledger.MarkResolved(eventID, winner); err != nil {
		return ledger.Event{}, err
	}
	ev, _ := e.ledger.View(eventID)
	e.log.Info("event resolved",
		zap.Uint64("eventId", eventID),
		zap.String("winner", winner.String()),
		zap.Int64("totalACents", ev.TotalACents),
		zap.Int64("totalBCents", ev.TotalBCents),
	)
	return ev, nil
}

// Cancel encerra o evento devolvendo integralmente o stake de cada
// participante, sem multiplicador. Apenas operador. O refund sai em um único
// lote atômico; se a transferência falhar, o cancelamento inteiro é desfeito.
func (e *Engine) Cancel(ctx context.Context, caller string, eventID uint64) ([]ledger.Refund, error) {
	if !e.deps.Auth.IsOperator(caller) {
		return nil, ErrUnauthorized
	}
	if err := e.deps.Guard.Enter(); err != nil {
		return nil, err
	}
	defer e.deps.Guard.Exit()

	refunds, err := e.ledger.MarkCancelled(eventID)
	if err != nil {
		return nil, err
	}

	if len(refunds) > 0 {
		items := make([]capability.TransferItem, len(refunds))
		for i, r := range refunds {
			items[i] = capability.TransferItem{Recipient: r.Bettor, AmountCents: r.AmountCents}
		}
		if err := e.deps.Treasury.TransferBatch(ctx, items); err != nil {
			e.ledger.RestoreCancelled(eventID, refunds)
			return nil, fmt.Errorf("%w: %v", ErrRefundFailed, err)
		}
	}

	e.log.Info("event cancelled",
		zap.Uint64("eventId", eventID),
		zap.Int("refunds", len(refunds)),
	)
	return refunds, nil
}

// Claim paga o bettor vencedor: marca o claim como consumido, zera o stake e
// só então transfere — parte ao chamador, parte à beneficiária — em um lote
// atômico. Uma reentrada durante a transferência é barrada pelo Guard e, mesmo
// sem ele, já observaria claimed = true. Se a transferência falhar, o
// bookkeeping é restaurado e o claim pode ser tentado de novo.
func (e *Engine) Claim(ctx context.Context, caller string, eventID uint64) (Receipt, error) {
	if err := e.deps.Guard.Enter(); err != nil {
		return Receipt{}, err
	}
	defer e.deps.Guard.Exit()

	ev, err := e.ledger.View(eventID)
	if err != nil {
		return Receipt{}, err
	}
	if ev.Status != ledger.StatusResolved {
		return Receipt{}, ErrEventNotResolved
	}

	side, amount, err := e.ledger.Stake(eventID, caller)
	if err != nil {
		return Receipt{}, err
	}
	claimed, _ := e.ledger.Claimed(eventID, caller)
	if claimed {
		return Receipt{}, ledger.ErrAlreadyClaimed
	}
	if amount <= 0 || side != ev.Winner {
		return Receipt{}, ErrNoWinningStake
	}

	winTotal := ev.TotalACents
	loseTotal := ev.TotalBCents
	if ev.Winner == ledger.SideB {
		winTotal, loseTotal = loseTotal, winTotal
	}
	// W == 0 com stake vencedor positivo é impossível, mas a divisão é
	// protegida mesmo assim
	if winTotal <= 0 {
		return Receipt{}, ErrNoWinningStake
	}

	userCents, charityCents := Split(amount, winTotal, loseTotal)

	// effects antes de interactions
	if _, _, err := e.ledger.Settle(eventID, caller); err != nil {
		return Receipt{}, err
	}

	items := []capability.TransferItem{{Recipient: caller, AmountCents: userCents}}
	if charityCents > 0 {
		items = append(items, capability.TransferItem{Recipient: e.charity, AmountCents: charityCents})
	}
	if err := e.deps.Treasury.TransferBatch(ctx, items); err != nil {
		e.ledger.RestoreStake(eventID, caller, side, amount)
		return Receipt{}, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}

	rcpt := Receipt{
		EventID:      eventID,
		Bettor:       caller,
		StakeCents:   amount,
		GrossCents:   userCents + charityCents,
		UserCents:    userCents,
		CharityCents: charityCents,
	}
	e.log.Info("winnings claimed",
		zap.Uint64("eventId", eventID),
		zap.String("bettor", caller),
		zap.Int64("userCents", userCents),
		zap.Int64("charityCents", charityCents),
	)
	return rcpt, nil
}

// EmergencyWithdraw é o escape hatch do operador: transfere fundos do pool sem
// passar pela contabilidade, quebrando deliberadamente a invariante de
// conservação. Caminho break-glass, fora do fluxo normal.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller, recipient string, amountCents int64) error {
	if !e.deps.Auth.IsOperator(caller) {
		return ErrUnauthorized
	}
	if err := e.deps.Guard.Enter(); err != nil {
		return err
	}
	defer e.deps.Guard.Exit()

	if err := e.deps.Treasury.Transfer(ctx, recipient, amountCents); err != nil {
		return fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}
	e.log.Warn("emergency withdraw",
		zap.String("recipient", recipient),
		zap.Int64("amountCents", amountCents),
	)
	return nil
}
