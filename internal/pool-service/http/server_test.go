package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

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

const testOperator = "ops"

// memTreasury cobre as duas pontas usadas pelo serviço: a reserva de stake do
// transporte e a capability de transferência do motor.
type memTreasury struct {
	mu        sync.Mutex
	balances  map[string]int64
	reserves  int
	releases  int
	failFunds bool
}

func newMemTreasury() *memTreasury { return &memTreasury{balances: map[string]int64{}} }

func (m *memTreasury) GetOrCreateAccount(_ context.Context, account string) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[account]; !ok {
		m.balances[account] = 0
	}
	return "acc-" + account, m.balances[account], nil
}

func (m *memTreasury) Deposit(_ context.Context, account string, amountCents int64, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] += amountCents
	return m.balances[account], nil
}

func (m *memTreasury) ReserveStake(_ context.Context, account string, amountCents int64, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFunds {
		return "", treasury.ErrInsufficientFunds
	}
	m.reserves++
	m.balances[account] -= amountCents
	return "res-1", nil
}

func (m *memTreasury) ReleaseStake(_ context.Context, account, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releases++
	return nil
}

func (m *memTreasury) Transfer(_ context.Context, recipient string, amountCents int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[recipient] += amountCents
	return nil
}

func (m *memTreasury) TransferBatch(ctx context.Context, items []capability.TransferItem) error {
	for _, it := range items {
		if err := m.Transfer(ctx, it.Recipient, it.AmountCents); err != nil {
			return err
		}
	}
	return nil
}

type memRepo struct {
	mu      sync.Mutex
	events  int
	stakes  int
	claims  int
	cancels int
	records map[uint64]repo.EventRecord
}

func (m *memRepo) InsertEvent(_ context.Context, eventID uint64, startTime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events++
	if m.records == nil {
		m.records = map[uint64]repo.EventRecord{}
	}
	m.records[eventID] = repo.EventRecord{EventID: eventID, Status: "OPEN", StartTime: startTime}
	return nil
}

func (m *memRepo) UpsertStake(context.Context, uint64, string, string, int64, int64, int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stakes++
	return nil
}

func (m *memRepo) MarkResolved(context.Context, uint64, string) error { return nil }

func (m *memRepo) MarkCancelled(context.Context, uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	return nil
}

func (m *memRepo) MarkClaimed(context.Context, uint64, string, int64, int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claims++
	return nil
}

func (m *memRepo) GetEvent(_ context.Context, eventID uint64) (repo.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[eventID]
	if !ok {
		return repo.EventRecord{}, sql.ErrNoRows
	}
	return rec, nil
}

func (m *memRepo) put(rec repo.EventRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records == nil {
		m.records = map[uint64]repo.EventRecord{}
	}
	m.records[rec.EventID] = rec
}

type memCache struct {
	mu   sync.Mutex
	snap map[uint64]oddscache.Snapshot
}

func newMemCache() *memCache { return &memCache{snap: map[uint64]oddscache.Snapshot{}} }

func (m *memCache) SetCurrent(_ context.Context, s oddscache.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap[s.EventID] = s
	return nil
}

func (m *memCache) GetCurrent(_ context.Context, eventID uint64) (oddscache.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snap[eventID]
	return s, ok, nil
}

type memPublisher struct {
	mu      sync.Mutex
	placed  []events.BetPlaced
	settled []events.EventSettled
	claimed []events.WinningsClaimed
	created []events.EventCreated
}

func (m *memPublisher) PublishEventCreated(_ context.Context, e events.EventCreated) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, e)
	return nil
}

func (m *memPublisher) PublishBetPlaced(_ context.Context, e events.BetPlaced) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placed = append(m.placed, e)
	return nil
}

func (m *memPublisher) PublishEventSettled(_ context.Context, e events.EventSettled) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settled = append(m.settled, e)
	return nil
}

func (m *memPublisher) PublishWinningsClaimed(_ context.Context, e events.WinningsClaimed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.claimed = append(m.claimed, e)
	return nil
}

// memPause adapta o Switch em memória à interface do endpoint de pausa.
type memPause struct{ sw *capability.Switch }

func (m *memPause) SetPaused(_ context.Context, v bool) error {
	m.sw.SetPaused(v)
	return nil
}

type fixture struct {
	srv      *httptest.Server
	treasury *memTreasury
	repo     *memRepo
	cache    *memCache
	publ     *memPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tr := newMemTreasury()
	pauseSwitch := &capability.Switch{}
	eng := settlement.New(zap.NewNop(), ledger.New(0, 0), settlement.Deps{
		Auth:     capability.StaticAuthorizer{Operator: testOperator},
		Pause:    pauseSwitch,
		Guard:    capability.NewEntryGuard(),
		Treasury: tr,
		Oracle:   capability.PseudoOracle{},
	}, settlement.Config{CharityAccount: "charity"})

	repo := &memRepo{}
	cache := newMemCache()
	publ := &memPublisher{}
	server := NewServer(zap.NewNop(), eng, repo, tr, cache, publ, 0)
	server.Auth = capability.StaticAuthorizer{Operator: testOperator}
	server.Pause = &memPause{sw: pauseSwitch}
	f := &fixture{
		srv:      httptest.NewServer(server.Router()),
		treasury: tr,
		repo:     repo,
		cache:    cache,
		publ:     publ,
	}
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any, operator string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if operator != "" {
		req.Header.Set("X-Operator-Id", operator)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	return out
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/v1/events", nil, "mallory")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-operator create: expected 403, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = f.do(t, http.MethodPost, "/v1/events", nil, testOperator)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	ev := decode[dto.EventResponse](t, resp)
	if ev.EventID != 1 || ev.Status != "OPEN" || ev.OddsA != 500 || ev.OddsB != 500 {
		t.Fatalf("event response: %+v", ev)
	}
	if f.repo.events != 1 || len(f.publ.created) != 1 {
		t.Fatalf("side effects: repo=%d published=%d", f.repo.events, len(f.publ.created))
	}
}

func TestPlaceBet(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/events", nil, testOperator).Body.Close()

	resp := f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
		UserID: "alice", Side: "A", AmountCents: 300,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("place bet: expected 200, got %d", resp.StatusCode)
	}
	out := decode[dto.PlaceBetResponse](t, resp)
	if out.Status != "ACCEPTED" || out.TotalACents != 300 {
		t.Fatalf("bet response: %+v", out)
	}

	resp = f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
		UserID: "bob", Side: "B", AmountCents: 100,
	}, "")
	out = decode[dto.PlaceBetResponse](t, resp)
	if out.OddsA != 250 || out.OddsB != 750 {
		t.Fatalf("odds after both bets: %+v", out)
	}

	if f.treasury.reserves != 2 || f.repo.stakes != 2 || len(f.publ.placed) != 2 {
		t.Fatalf("side effects: reserves=%d stakes=%d published=%d",
			f.treasury.reserves, f.repo.stakes, len(f.publ.placed))
	}
}

func TestPlaceBet_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/events", nil, testOperator).Body.Close()

	f.treasury.failFunds = true
	resp := f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
		UserID: "alice", Side: "A", AmountCents: 300,
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestPlaceBet_ReleasesReserveOnRejection(t *testing.T) {
	f := newFixture(t)
	// sem evento ativo: a reserva tem que ser devolvida

	resp := f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
		UserID: "alice", Side: "A", AmountCents: 300,
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if f.treasury.reserves != 1 || f.treasury.releases != 1 {
		t.Fatalf("reserve/release: %d/%d", f.treasury.reserves, f.treasury.releases)
	}
}

func TestResolveAndClaim(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/events", nil, testOperator).Body.Close()
	f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "alice", Side: "A", AmountCents: 100}, "").Body.Close()
	f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "bob", Side: "A", AmountCents: 200}, "").Body.Close()
	f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "carol", Side: "B", AmountCents: 100}, "").Body.Close()

	resp := f.do(t, http.MethodPost, "/v1/events/1/resolve", dto.ResolveRequest{Winner: "A"}, testOperator)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve: expected 200, got %d", resp.StatusCode)
	}
	ev := decode[dto.EventResponse](t, resp)
	if ev.Status != "RESOLVED" || ev.Winner != "A" {
		t.Fatalf("resolved event: %+v", ev)
	}

	resp = f.do(t, http.MethodPost, "/v1/events/1/claims", dto.ClaimRequest{UserID: "alice"}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d", resp.StatusCode)
	}
	out := decode[dto.ClaimResponse](t, resp)
	if out.UserCents != 117 || out.CharityCents != 16 {
		t.Fatalf("claim response: %+v", out)
	}

	// segundo claim → conflito
	resp = f.do(t, http.MethodPost, "/v1/events/1/claims", dto.ClaimRequest{UserID: "alice"}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("double claim: expected 409, got %d", resp.StatusCode)
	}

	if f.repo.claims != 1 || len(f.publ.claimed) != 1 || len(f.publ.settled) != 1 {
		t.Fatalf("side effects: claims=%d claimedEvts=%d settledEvts=%d",
			f.repo.claims, len(f.publ.claimed), len(f.publ.settled))
	}
}

func TestCancelEvent(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/events", nil, testOperator).Body.Close()
	f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "alice", Side: "A", AmountCents: 100}, "").Body.Close()

	resp := f.do(t, http.MethodPost, "/v1/events/1/cancel", nil, testOperator)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", resp.StatusCode)
	}
	out := decode[dto.CancelResponse](t, resp)
	if out.Refunds != 1 || out.Status != "CANCELLED" {
		t.Fatalf("cancel response: %+v", out)
	}
	// stake devolvido integralmente (reserva debitou 100, refund creditou 100)
	if bal := f.treasury.balances["alice"]; bal != 0 {
		t.Fatalf("alice net balance after cancel: %d", bal)
	}
	if f.repo.cancels != 1 {
		t.Fatalf("cancel persisted %d times", f.repo.cancels)
	}
}

func TestPauseSwitch(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/events", nil, testOperator).Body.Close()

	resp := f.do(t, http.MethodPost, "/v1/system/pause", dto.PauseRequest{Paused: true}, "mallory")
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-operator pause: expected 403, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/v1/system/pause", dto.PauseRequest{Paused: true}, testOperator)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
		UserID: "alice", Side: "A", AmountCents: 100,
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("bet while paused: expected 503, got %d", resp.StatusCode)
	}

	resp = f.do(t, http.MethodPost, "/v1/system/pause", dto.PauseRequest{Paused: false}, testOperator)
	resp.Body.Close()
	resp = f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{
		UserID: "alice", Side: "A", AmountCents: 100,
	}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bet after unpause: expected 200, got %d", resp.StatusCode)
	}
}

func TestAccountsDepositAndGet(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/v1/accounts/deposits", dto.DepositRequest{
		UserID: "alice", AmountCents: 500,
	}, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit: expected 200, got %d", resp.StatusCode)
	}
	out := decode[dto.AccountResponse](t, resp)
	if out.BalanceCents != 500 {
		t.Fatalf("balance after deposit: %+v", out)
	}

	resp = f.do(t, http.MethodGet, "/v1/accounts?userId=alice", nil, "")
	out = decode[dto.AccountResponse](t, resp)
	if out.BalanceCents != 500 || out.UserID != "alice" {
		t.Fatalf("account lookup: %+v", out)
	}

	resp = f.do(t, http.MethodPost, "/v1/accounts/deposits", dto.DepositRequest{UserID: "", AmountCents: 10}, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid deposit: expected 400, got %d", resp.StatusCode)
	}
}

func TestGetEvent_HistoryFallback(t *testing.T) {
	f := newFixture(t)

	// evento que só existe no histórico (ledger em memória pós-restart)
	f.repo.put(repo.EventRecord{
		EventID:     7,
		Status:      "RESOLVED",
		Winner:      "B",
		StartTime:   time.Unix(1_700_000_000, 0),
		TotalACents: 300,
		TotalBCents: 100,
	})

	resp := f.do(t, http.MethodGet, "/v1/events/7", nil, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history read: expected 200, got %d", resp.StatusCode)
	}
	out := decode[dto.EventResponse](t, resp)
	if out.EventID != 7 || out.Status != "RESOLVED" || out.Winner != "B" || out.TotalACents != 300 {
		t.Fatalf("history event: %+v", out)
	}

	resp = f.do(t, http.MethodGet, "/v1/events/99", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown event: expected 404, got %d", resp.StatusCode)
	}
}

func TestGetOdds_CacheFirst(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/events", nil, testOperator).Body.Close()

	// snapshot plantado no cache tem precedência sobre o ledger
	_ = f.cache.SetCurrent(context.Background(), oddscache.Snapshot{EventID: 1, OddsA: 123, OddsB: 877})
	resp := f.do(t, http.MethodGet, "/v1/events/1/odds", nil, "")
	out := decode[dto.OddsResponse](t, resp)
	if out.OddsA != 123 || out.OddsB != 877 {
		t.Fatalf("cached odds: %+v", out)
	}
}

func TestGetStake(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/v1/events", nil, testOperator).Body.Close()
	f.do(t, http.MethodPost, "/v1/bets", dto.PlaceBetRequest{UserID: "alice", Side: "B", AmountCents: 75}, "").Body.Close()

	resp := f.do(t, http.MethodGet, "/v1/events/1/stakes?userId=alice", nil, "")
	out := decode[dto.StakeResponse](t, resp)
	if out.Side != "B" || out.AmountCents != 75 || out.Claimed {
		t.Fatalf("stake response: %+v", out)
	}

	resp = f.do(t, http.MethodGet, "/v1/events/1/stakes", nil, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing userId: expected 400, got %d", resp.StatusCode)
	}
}
