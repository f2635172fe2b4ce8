package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parimutuel/pool-engine/internal/engine/capability"
	"github.com/parimutuel/pool-engine/internal/engine/ledger"
	"github.com/parimutuel/pool-engine/internal/engine/settlement"
	"github.com/parimutuel/pool-engine/internal/pool-service/dto"
	"github.com/parimutuel/pool-engine/internal/pool-service/oddscache"
	"github.com/parimutuel/pool-engine/internal/pool-service/repo"
	"github.com/parimutuel/pool-engine/internal/pool-service/treasury"
	"github.com/parimutuel/pool-engine/pkg/contracts/events"
)

// HistoryRepo espelha as mutações do ledger no Postgres (write-behind).
type HistoryRepo interface {
	InsertEvent(ctx context.Context, eventID uint64, startTime time.Time) error
	UpsertStake(ctx context.Context, eventID uint64, userID, side string, amountCents, totalA, totalB int64) error
	MarkResolved(ctx context.Context, eventID uint64, winner string) error
	MarkCancelled(ctx context.Context, eventID uint64) error
	MarkClaimed(ctx context.Context, eventID uint64, userID string, userCents, charityCents int64) error
	GetEvent(ctx context.Context, eventID uint64) (repo.EventRecord, error)
}

// StakeReserver debita/devolve o stake do bettor na tesouraria em volta da
// admissão no motor.
type StakeReserver interface {
	ReserveStake(ctx context.Context, account string, amountCents int64, externalRef string) (string, error)
	ReleaseStake(ctx context.Context, account, externalRef string) error
}

// AccountStore cria e credita contas de bettor.
type AccountStore interface {
	GetOrCreateAccount(ctx context.Context, account string) (accountID string, balance int64, err error)
	Deposit(ctx context.Context, account string, amountCents int64, externalRef string) (newBalance int64, err error)
}

// TreasuryClient agrupa as operações de tesouraria usadas pelo transporte.
type TreasuryClient interface {
	StakeReserver
	AccountStore
}

// PauseSetter liga/desliga o circuit breaker de pausa.
type PauseSetter interface {
	SetPaused(ctx context.Context, paused bool) error
}

// OddsCache é o cache das odds correntes.
type OddsCache interface {
	SetCurrent(ctx context.Context, s oddscache.Snapshot) error
	GetCurrent(ctx context.Context, eventID uint64) (oddscache.Snapshot, bool, error)
}

// Publisher publica as notificações do ciclo de vida no Kafka.
type Publisher interface {
	PublishEventCreated(ctx context.Context, e events.EventCreated) error
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
	PublishEventSettled(ctx context.Context, e events.EventSettled) error
	PublishWinningsClaimed(ctx context.Context, e events.WinningsClaimed) error
}

type Server struct {
	log      *zap.Logger
	engine   *settlement.Engine
	repo     HistoryRepo
	treasury TreasuryClient
	cache    OddsCache
	publ     Publisher
	window   time.Duration

	// controles de operador, ligados no main
	Auth  capability.Authorizer
	Pause PauseSetter

	// callbacks de métricas (counter++), ligadas no main
	OnBetPlaced func()
	OnClaimPaid func()
	OnRefund    func()
	OnRejected  func(reason string)
}

func NewServer(log *zap.Logger, eng *settlement.Engine, repo HistoryRepo, tr TreasuryClient, cache OddsCache, publ Publisher, window time.Duration) *Server {
	return &Server{
		log:      log,
		engine:   eng,
		repo:     repo,
		treasury: tr,
		cache:    cache,
		publ:     publ,
		window:   window,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/events", s.createEvent)
	r.Post("/v1/events/{id}/resolve", s.resolveEvent)
	r.Post("/v1/events/{id}/resolve-oracle", s.resolveByOracle)
	r.Post("/v1/events/{id}/cancel", s.cancelEvent)
	r.Post("/v1/events/{id}/claims", s.claim)
	r.Post("/v1/bets", s.placeBet)
	r.Get("/v1/accounts", s.getAccount)
	r.Post("/v1/accounts/deposits", s.deposit)
	r.Post("/v1/system/pause", s.setPause)
	r.Get("/v1/events/current", s.getCurrent)
	r.Get("/v1/events/{id}", s.getEvent)
	r.Get("/v1/events/{id}/odds", s.getOdds)
	r.Get("/v1/events/{id}/stakes", s.getStake)
	return r
}

// operador vem no header; a engine valida contra a configuração
func operatorID(r *http.Request) string { return r.Header.Get("X-Operator-Id") }

func (s *Server) createEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.engine.CreateEvent(r.Context(), operatorID(r))
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.repo.InsertEvent(r.Context(), ev.ID, ev.StartTime); err != nil {
		s.log.Warn("event insert", zap.Uint64("eventId", ev.ID), zap.Error(err))
	}
	_ = s.cache.SetCurrent(r.Context(), snapshotOf(ev))
	_ = s.publ.PublishEventCreated(r.Context(), events.EventCreated{
		EventID:       ev.ID,
		StartUnixMs:   ev.StartTime.UnixMilli(),
		OddsA:         ev.OddsA,
		OddsB:         ev.OddsB,
		WindowSeconds: int64(s.window.Seconds()),
	})

	writeJSON(w, http.StatusCreated, eventDTO(ev))
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	side, err := ledger.ParseSide(req.Side)
	if err != nil {
		http.Error(w, "invalid side", http.StatusBadRequest)
		return
	}

	// 1) Debita o stake na tesouraria (o motor exige o valor já recebido)
	ref := "bet:" + uuid.NewString()
	if _, err := s.treasury.ReserveStake(r.Context(), req.UserID, req.AmountCents, ref); err != nil {
		if errors.Is(err, treasury.ErrInsufficientFunds) {
			http.Error(w, "insufficient funds", http.StatusConflict)
			return
		}
		s.fail(w, err)
		return
	}

	// 2) Admite a aposta no motor; em falha, devolve a reserva
	ev, err := s.engine.PlaceBet(r.Context(), req.UserID, side, req.AmountCents)
	if err != nil {
		if rerr := s.treasury.ReleaseStake(r.Context(), req.UserID, ref); rerr != nil {
			s.log.Error("stake release", zap.String("ref", ref), zap.Error(rerr))
		}
		if s.OnRejected != nil {
			s.OnRejected("bet")
		}
		s.fail(w, err)
		return
	}

	// 3) Espelha no histórico e no cache de odds
	if err := s.repo.UpsertStake(r.Context(), ev.ID, req.UserID, side.String(), req.AmountCents, ev.TotalACents, ev.TotalBCents); err != nil {
		s.log.Warn("stake upsert", zap.Uint64("eventId", ev.ID), zap.Error(err))
	}
	_ = s.cache.SetCurrent(r.Context(), snapshotOf(ev))

	// 4) Publica a notificação de aposta
	_ = s.publ.PublishBetPlaced(r.Context(), events.BetPlaced{
		EventID:     ev.ID,
		UserID:      req.UserID,
		Side:        side.String(),
		AmountCents: req.AmountCents,
		TotalACents: ev.TotalACents,
		TotalBCents: ev.TotalBCents,
		OddsA:       ev.OddsA,
		OddsB:       ev.OddsB,
	})
	if s.OnBetPlaced != nil {
		s.OnBetPlaced()
	}

	writeJSON(w, http.StatusOK, dto.PlaceBetResponse{
		EventID:     ev.ID,
		Status:      "ACCEPTED",
		TotalACents: ev.TotalACents,
		TotalBCents: ev.TotalBCents,
		OddsA:       ev.OddsA,
		OddsB:       ev.OddsB,
	})
}

func (s *Server) resolveEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathEventID(w, r)
	if !ok {
		return
	}
	var req dto.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	winner, err := ledger.ParseSide(req.Winner)
	if err != nil {
		http.Error(w, "invalid winner", http.StatusBadRequest)
		return
	}

	ev, err := s.engine.Resolve(r.Context(), operatorID(r), eventID, winner)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.settled(r.Context(), ev, 0)
	writeJSON(w, http.StatusOK, eventDTO(ev))
}

func (s *Server) resolveByOracle(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathEventID(w, r)
	if !ok {
		return
	}
	ev, err := s.engine.ResolveByOracle(r.Context(), eventID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.settled(r.Context(), ev, 0)
	writeJSON(w, http.StatusOK, eventDTO(ev))
}

func (s *Server) cancelEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathEventID(w, r)
	if !ok {
		return
	}
	refunds, err := s.engine.Cancel(r.Context(), operatorID(r), eventID)
	if err != nil {
		s.fail(w, err)
		return
	}

	if err := s.repo.MarkCancelled(r.Context(), eventID); err != nil {
		s.log.Warn("cancel persist", zap.Uint64("eventId", eventID), zap.Error(err))
	}
	ev, _ := s.engine.Ledger().View(eventID)
	_ = s.publ.PublishEventSettled(r.Context(), events.EventSettled{
		EventID: eventID,
		Status:  ev.Status.String(),
		Refunds: len(refunds),
	})
	if s.OnRefund != nil {
		for range refunds {
			s.OnRefund()
		}
	}

	writeJSON(w, http.StatusOK, dto.CancelResponse{EventID: eventID, Status: "CANCELLED", Refunds: len(refunds)})
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathEventID(w, r)
	if !ok {
		return
	}
	var req dto.ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	rcpt, err := s.engine.Claim(r.Context(), req.UserID, eventID)
	if err != nil {
		if s.OnRejected != nil {
			s.OnRejected("claim")
		}
		s.fail(w, err)
		return
	}

	if err := s.repo.MarkClaimed(r.Context(), eventID, req.UserID, rcpt.UserCents, rcpt.CharityCents); err != nil {
		s.log.Warn("claim persist", zap.Uint64("eventId", eventID), zap.Error(err))
	}
	_ = s.publ.PublishWinningsClaimed(r.Context(), events.WinningsClaimed{
		EventID:      eventID,
		UserID:       req.UserID,
		StakeCents:   rcpt.StakeCents,
		GrossCents:   rcpt.GrossCents,
		UserCents:    rcpt.UserCents,
		CharityCents: rcpt.CharityCents,
	})
	if s.OnClaimPaid != nil {
		s.OnClaimPaid()
	}

	writeJSON(w, http.StatusOK, dto.ClaimResponse{
		EventID:      eventID,
		UserID:       req.UserID,
		StakeCents:   rcpt.StakeCents,
		GrossCents:   rcpt.GrossCents,
		UserCents:    rcpt.UserCents,
		CharityCents: rcpt.CharityCents,
	})
}

// setPause liga/desliga o circuit breaker de apostas. Apenas operador.
func (s *Server) setPause(w http.ResponseWriter, r *http.Request) {
	if s.Pause == nil {
		http.Error(w, "pause switch not configured", http.StatusNotImplemented)
		return
	}
	if s.Auth == nil || !s.Auth.IsOperator(operatorID(r)) {
		http.Error(w, settlement.ErrUnauthorized.Error(), http.StatusForbidden)
		return
	}
	var req dto.PauseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.Pause.SetPaused(r.Context(), req.Paused); err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.log.Warn("pause switch changed", zap.Bool("paused", req.Paused))
	writeJSON(w, http.StatusOK, map[string]bool{"paused": req.Paused})
}

// getAccount retorna (ou cria) a conta e o saldo do usuário
func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	accountID, bal, err := s.treasury.GetOrCreateAccount(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, dto.AccountResponse{UserID: userID, AccountID: accountID, BalanceCents: bal})
}

// deposit credita saldo na conta do usuário, criando-a se necessário
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if req.ExternalRef == "" {
		req.ExternalRef = "dep:" + uuid.NewString()
	}

	accountID, _, err := s.treasury.GetOrCreateAccount(r.Context(), req.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	bal, err := s.treasury.Deposit(r.Context(), req.UserID, req.AmountCents, req.ExternalRef)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, dto.AccountResponse{UserID: req.UserID, AccountID: accountID, BalanceCents: bal})
}

func (s *Server) getCurrent(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.engine.Ledger().Current()
	if !ok {
		http.Error(w, "no event", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, eventDTO(ev))
}

func (s *Server) getEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathEventID(w, r)
	if !ok {
		return
	}
	ev, err := s.engine.Ledger().View(eventID)
	if err != nil {
		// após um restart o ledger em memória começa vazio; eventos já
		// liquidados são servidos do histórico Postgres
		if errors.Is(err, ledger.ErrUnknownEvent) {
			rec, rerr := s.repo.GetEvent(r.Context(), eventID)
			if rerr != nil {
				http.Error(w, "event not found", http.StatusNotFound)
				return
			}
			writeJSON(w, http.StatusOK, dto.EventResponse{
				EventID:     rec.EventID,
				Status:      rec.Status,
				Winner:      rec.Winner,
				StartUnixMs: rec.StartTime.UnixMilli(),
				TotalACents: rec.TotalACents,
				TotalBCents: rec.TotalBCents,
			})
			return
		}
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eventDTO(ev))
}

func (s *Server) getOdds(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathEventID(w, r)
	if !ok {
		return
	}

	if snap, hit, _ := s.cache.GetCurrent(r.Context(), eventID); hit {
		writeJSON(w, http.StatusOK, dto.OddsResponse{EventID: eventID, OddsA: snap.OddsA, OddsB: snap.OddsB})
		return
	}

	oddsA, oddsB, err := s.engine.Ledger().Odds(eventID)
	if err != nil {
		s.fail(w, err)
		return
	}
	if ev, verr := s.engine.Ledger().View(eventID); verr == nil {
		_ = s.cache.SetCurrent(r.Context(), snapshotOf(ev))
	}
	writeJSON(w, http.StatusOK, dto.OddsResponse{EventID: eventID, OddsA: oddsA, OddsB: oddsB})
}

func (s *Server) getStake(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathEventID(w, r)
	if !ok {
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}

	side, amount, err := s.engine.Ledger().Stake(eventID, userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	claimed, _ := s.engine.Ledger().Claimed(eventID, userID)
	writeJSON(w, http.StatusOK, dto.StakeResponse{
		EventID:     eventID,
		UserID:      userID,
		Side:        side.String(),
		AmountCents: amount,
		Claimed:     claimed,
	})
}

// settled persiste e publica a resolução de um evento.
func (s *Server) settled(ctx context.Context, ev ledger.Event, refunds int) {
	if err := s.repo.MarkResolved(ctx, ev.ID, ev.Winner.String()); err != nil {
		s.log.Warn("resolve persist", zap.Uint64("eventId", ev.ID), zap.Error(err))
	}
	_ = s.publ.PublishEventSettled(ctx, events.EventSettled{
		EventID:     ev.ID,
		Status:      ev.Status.String(),
		Winner:      ev.Winner.String(),
		TotalACents: ev.TotalACents,
		TotalBCents: ev.TotalBCents,
		Refunds:     refunds,
	})
}

// fail traduz os erros sentinela do motor para status HTTP.
func (s *Server) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, settlement.ErrUnauthorized):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, settlement.ErrSystemPaused):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, ledger.ErrUnknownEvent), errors.Is(err, settlement.ErrNoActiveEvent):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrInvalidAmount):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, settlement.ErrPayoutFailed), errors.Is(err, settlement.ErrRefundFailed), errors.Is(err, settlement.ErrOracleUnavailable):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.Is(err, capability.ErrReentrantCall),
		errors.Is(err, ledger.ErrEventNotOpen),
		errors.Is(err, ledger.ErrSideLocked),
		errors.Is(err, ledger.ErrAlreadyTerminal),
		errors.Is(err, ledger.ErrAlreadyClaimed),
		errors.Is(err, ledger.ErrNoStake),
		errors.Is(err, ledger.ErrPriorEventUnterminated),
		errors.Is(err, settlement.ErrBettingWindowClosed),
		errors.Is(err, settlement.ErrWindowNotElapsed),
		errors.Is(err, settlement.ErrEventNotResolved),
		errors.Is(err, settlement.ErrNoWinningStake):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathEventID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid event id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func eventDTO(ev ledger.Event) dto.EventResponse {
	out := dto.EventResponse{
		EventID:     ev.ID,
		Status:      ev.Status.String(),
		StartUnixMs: ev.StartTime.UnixMilli(),
		TotalACents: ev.TotalACents,
		TotalBCents: ev.TotalBCents,
		OddsA:       ev.OddsA,
		OddsB:       ev.OddsB,
	}
	if ev.Status == ledger.StatusResolved {
		out.Winner = ev.Winner.String()
	}
	return out
}

func snapshotOf(ev ledger.Event) oddscache.Snapshot {
	return oddscache.Snapshot{
		EventID:     ev.ID,
		OddsA:       ev.OddsA,
		OddsB:       ev.OddsB,
		TotalACents: ev.TotalACents,
		TotalBCents: ev.TotalBCents,
		UpdatedAtMs: time.Now().UnixMilli(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
