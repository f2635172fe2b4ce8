package capability

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/parimutuel/pool-engine/internal/engine/ledger"
)

var ErrReentrantCall = errors.New("reentrant call")

// EntryGuard implementa Guard com uma única flag global "em operação".
type EntryGuard struct {
	entered atomic.Bool
}

func NewEntryGuard() *EntryGuard { return &EntryGuard{} }

func (g *EntryGuard) Enter() error {
	if !g.entered.CompareAndSwap(false, true) {
		return ErrReentrantCall
	}
	return nil
}

func (g *EntryGuard) Exit() { g.entered.Store(false) }

// StaticAuthorizer reconhece um único operador fixado na configuração.
type StaticAuthorizer struct {
	Operator string
}

func (a StaticAuthorizer) IsOperator(caller string) bool {
	return a.Operator != "" && caller == a.Operator
}

// Switch é um Pauser em memória, útil em testes e no modo standalone.
type Switch struct {
	paused atomic.Bool
}

func (s *Switch) Paused(_ context.Context) bool { return s.paused.Load() }

func (s *Switch) SetPaused(v bool) { s.paused.Store(v) }

// PseudoOracle deriva o vencedor de um hash do id do evento com o timestamp
// da resolução, módulo 2. NÃO é aleatoriedade imprevisível: quem controla o
// momento da resolução pode influenciar o resultado. Placeholder até a
// integração de uma fonte de aleatoriedade/oráculo real.
type PseudoOracle struct{}

func (PseudoOracle) Winner(eventID uint64, at time.Time) (ledger.Side, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strconv.FormatUint(eventID, 10)))
	_, _ = h.Write([]byte(strconv.FormatInt(at.UnixNano(), 10)))
	if h.Sum64()%2 == 0 {
		return ledger.SideA, nil
	}
	return ledger.SideB, nil
}
