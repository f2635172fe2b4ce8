package ledger

import (
	"errors"
	"sync"
	"time"
)

// OddsScale é a precisão fixa das odds derivadas (oddsA + oddsB == OddsScale).
const OddsScale = 1000

var (
	ErrUnknownEvent           = errors.New("unknown event")
	ErrPriorEventUnterminated = errors.New("prior event not terminated")
	ErrEventNotOpen           = errors.New("event not open")
	ErrInvalidAmount          = errors.New("invalid bet amount")
	ErrSideLocked             = errors.New("bettor already staked on the other side")
	ErrAlreadyTerminal        = errors.New("event already terminal")
	ErrAlreadyClaimed         = errors.New("winnings already claimed")
	ErrNoStake                = errors.New("no stake recorded")
)

// Event é a visão somente-leitura de um evento do pool.
type Event struct {
	ID          uint64
	StartTime   time.Time
	Status      Status
	Winner      Side // válido apenas quando Status == StatusResolved
	TotalACents int64
	TotalBCents int64
	OddsA       int64
	OddsB       int64
}

// Refund descreve a devolução integral de um participante após cancelamento.
type Refund struct {
	Bettor      string
	Side        Side
	AmountCents int64
}

// stakeRecord acumula a aposta de um bettor em um único lado.
// Um bettor nunca aposta nos dois lados do mesmo evento (ErrSideLocked).
type stakeRecord struct {
	side    Side
	amount  int64
	claimed bool
}

type event struct {
	id        uint64
	startTime time.Time
	status    Status
	winner    Side
	totals    [2]int64
	oddsA     int64
	oddsB     int64
	stakes    map[string]*stakeRecord
	// registro explícito e ordenado de participantes; um mapa sozinho não é
	// enumerável de forma determinística para o refund do cancelamento
	participants []string
}

// Ledger mantém a contabilidade de todos os eventos do pool.
// Puro bookkeeping: nenhuma movimentação de fundos acontece aqui.
// Seguro para uso concorrente; cada método é atômico.
type Ledger struct {
	mu       sync.RWMutex
	minBet   int64
	maxBet   int64 // <= 0 significa sem teto
	events   map[uint64]*event
	lastID   uint64
	hasEvent bool
}

// New cria um Ledger com os limites de aposta configurados.
func New(minBetCents, maxBetCents int64) *Ledger {
	return &Ledger{
		minBet: minBetCents,
		maxBet: maxBetCents,
		events: make(map[uint64]*event),
	}
}

// CreateEvent aloca um novo evento com id = anterior + 1 e odds no ponto médio.
// Exige que o evento anterior (se existir) esteja em estado terminal.
func (l *Ledger) CreateEvent(now time.Time) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hasEvent {
		if cur := l.events[l.lastID]; !cur.status.Terminal() {
			return 0, ErrPriorEventUnterminated
		}
	}

	l.lastID++
	l.hasEvent = true
	l.events[l.lastID] = &event{
		id:        l.lastID,
		startTime: now,
		status:    StatusOpen,
		oddsA:     OddsScale / 2,
		oddsB:     OddsScale / 2,
		stakes:    make(map[string]*stakeRecord),
	}
	return l.lastID, nil
}

// RecordBet admite uma aposta: valida limites, incrementa o stake do bettor e o
// total do lado, e recomputa as odds. Nenhuma transferência ocorre aqui — o
// contexto chamador já recebeu o valor.
func (l *Ledger) RecordBet(eventID uint64, bettor string, side Side, amountCents int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ev, ok := l.events[eventID]
	if !ok {
		return ErrUnknownEvent
	}
	if ev.status != StatusOpen {
		return ErrEventNotOpen
	}
	if amountCents <= 0 || amountCents < l.minBet || (l.maxBet > 0 && amountCents > l.maxBet) {
		return ErrInvalidAmount
	}

	rec, ok := ev.stakes[bettor]
	if !ok {
		rec = &stakeRecord{side: side}
		ev.stakes[bettor] = rec
		ev.participants = append(ev.participants, bettor)
	} else if rec.amount > 0 && rec.side != side {
		return ErrSideLocked
	}

	rec.side = side
	rec.amount += amountCents
	ev.totals[side] += amountCents
	recomputeOdds(ev)
	return nil
}

// recomputeOdds deriva as odds como a fração do pool do lado oposto, em escala
// fixa com divisão inteira (floor). Sem volume, ambas ficam no ponto médio.
func recomputeOdds(ev *event) {
	total := ev.totals[SideA] + ev.totals[SideB]
	if total == 0 {
		ev.oddsA = OddsScale / 2
		ev.oddsB = OddsScale / 2
		return
	}
	ev.oddsA = ev.totals[SideB] * OddsScale / total
	ev.oddsB = ev.totals[SideA] * OddsScale / total
}

// Odds retorna as odds correntes de um evento.
func (l *Ledger) Odds(eventID uint64) (oddsA, oddsB int64, err error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, ok := l.events[eventID]
	if !ok {
		return 0, 0, ErrUnknownEvent
	}
	return ev.oddsA, ev.oddsB, nil
}

// Stake retorna o lado e o valor acumulado apostado por um bettor.
func (l *Ledger) Stake(eventID uint64, bettor string) (Side, int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, ok := l.events[eventID]
	if !ok {
		return SideA, 0, ErrUnknownEvent
	}
	rec, ok := ev.stakes[bettor]
	if !ok {
		return SideA, 0, nil
	}
	return rec.side, rec.amount, nil
}

// Claimed informa se o bettor já consumiu seu claim neste evento.
func (l *Ledger) Claimed(eventID uint64, bettor string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, ok := l.events[eventID]
	if !ok {
		return false, ErrUnknownEvent
	}
	rec, ok := ev.stakes[bettor]
	if !ok {
		return false, nil
	}
	return rec.claimed, nil
}

// View retorna um snapshot do evento.
func (l *Ledger) View(eventID uint64) (Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, ok := l.events[eventID]
	if !ok {
		return Event{}, ErrUnknownEvent
	}
	return snapshot(ev), nil
}

// Current retorna o snapshot do evento mais recente, se houver.
func (l *Ledger) Current() (Event, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.hasEvent {
		return Event{}, false
	}
	return snapshot(l.events[l.lastID]), true
}

// Participants retorna os bettors do evento na ordem da primeira aposta.
func (l *Ledger) Participants(eventID uint64) ([]string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ev, ok := l.events[eventID]
	if !ok {
		return nil, ErrUnknownEvent
	}
	out := make([]string, len(ev.participants))
	copy(out, ev.participants)
	return out, nil
}

// MarkResolved congela o evento com o lado vencedor. Transição única:
// um evento terminal nunca é reaberto.
func (l *Ledger) MarkResolved(eventID uint64, winner Side) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev, ok := l.events[eventID]
	if !ok {
		return ErrUnknownEvent
	}
	if ev.status.Terminal() {
		return ErrAlreadyTerminal
	}
	ev.status = StatusResolved
	ev.winner = winner
	return nil
}

// MarkCancelled congela o evento como cancelado e zera todos os stakes,
// devolvendo a lista de refunds integrais a executar. Os totais por lado são
// zerados junto para preservar a invariante de conservação.
func (l *Ledger) MarkCancelled(eventID uint64) ([]Refund, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev, ok := l.events[eventID]
	if !ok {
		return nil, ErrUnknownEvent
	}
	if ev.status.Terminal() {
		return nil, ErrAlreadyTerminal
	}

	refunds := make([]Refund, 0, len(ev.participants))
	for _, bettor := range ev.participants {
		rec := ev.stakes[bettor]
		if rec.amount == 0 {
			continue
		}
		refunds = append(refunds, Refund{Bettor: bettor, Side: rec.side, AmountCents: rec.amount})
		ev.totals[rec.side] -= rec.amount
		rec.amount = 0
	}
	ev.status = StatusCancelled
	recomputeOdds(ev)
	return refunds, nil
}

// RestoreCancelled desfaz um MarkCancelled cuja transferência de refund falhou:
// o evento volta a Open e os stakes são restaurados.
func (l *Ledger) RestoreCancelled(eventID uint64, refunds []Refund) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev, ok := l.events[eventID]
	if !ok || ev.status != StatusCancelled {
		return
	}
	for _, r := range refunds {
		rec, ok := ev.stakes[r.Bettor]
		if !ok {
			continue
		}
		rec.amount = r.AmountCents
		ev.totals[r.Side] += r.AmountCents
	}
	ev.status = StatusOpen
	recomputeOdds(ev)
}

// Settle marca o claim do bettor como consumido e zera seu stake, devolvendo o
// valor que estava registrado. A flag claimed transita false→true exatamente
// uma vez; um segundo Settle falha com ErrAlreadyClaimed.
func (l *Ledger) Settle(eventID uint64, bettor string) (Side, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev, ok := l.events[eventID]
	if !ok {
		return SideA, 0, ErrUnknownEvent
	}
	rec, ok := ev.stakes[bettor]
	if !ok || rec.amount == 0 {
		if ok && rec.claimed {
			return SideA, 0, ErrAlreadyClaimed
		}
		return SideA, 0, ErrNoStake
	}
	if rec.claimed {
		return SideA, 0, ErrAlreadyClaimed
	}
	side, amount := rec.side, rec.amount
	rec.claimed = true
	rec.amount = 0
	return side, amount, nil
}

// RestoreStake desfaz um Settle cuja transferência falhou, devolvendo o stake
// e liberando a flag claimed para nova tentativa.
func (l *Ledger) RestoreStake(eventID uint64, bettor string, side Side, amountCents int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev, ok := l.events[eventID]
	if !ok {
		return
	}
	rec, ok := ev.stakes[bettor]
	if !ok {
		return
	}
	rec.side = side
	rec.amount = amountCents
	rec.claimed = false
}

func snapshot(ev *event) Event {
	return Event{
		ID:          ev.id,
		StartTime:   ev.startTime,
		Status:      ev.status,
		Winner:      ev.winner,
		TotalACents: ev.totals[SideA],
		TotalBCents: ev.totals[SideB],
		OddsA:       ev.oddsA,
		OddsB:       ev.oddsB,
	}
}
