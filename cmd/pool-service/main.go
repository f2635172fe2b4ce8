package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/parimutuel/pool-engine/internal/engine/capability"
	"github.com/parimutuel/pool-engine/internal/engine/ledger"
	"github.com/parimutuel/pool-engine/internal/engine/settlement"
	phttp "github.com/parimutuel/pool-engine/internal/pool-service/http"
	"github.com/parimutuel/pool-engine/internal/pool-service/oddscache"
	"github.com/parimutuel/pool-engine/internal/pool-service/pause"
	kpub "github.com/parimutuel/pool-engine/internal/pool-service/producer"
	"github.com/parimutuel/pool-engine/internal/pool-service/repo"
	"github.com/parimutuel/pool-engine/internal/pool-service/treasury"
	sharedcache "github.com/parimutuel/pool-engine/internal/shared/cache"
	"github.com/parimutuel/pool-engine/internal/shared/config"
	"github.com/parimutuel/pool-engine/internal/shared/db"
	skafka "github.com/parimutuel/pool-engine/internal/shared/kafka"
	"github.com/parimutuel/pool-engine/internal/shared/logger"
	"github.com/parimutuel/pool-engine/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	// Redis
	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writers, um por tópico
	publ := &kpub.KafkaPublisher{
		Created: skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicEventCreated),
		Placed:  skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced),
		Settled: skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicEventSettled),
		Claimed: skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicWinningsClaimed),
	}
	defer publ.Created.Close()
	defer publ.Placed.Close()
	defer publ.Settled.Close()
	defer publ.Claimed.Close()

	// Capabilities de fronteira e motor de liquidação
	tr := treasury.NewPostgres(pg)
	auth := capability.StaticAuthorizer{Operator: cfg.OperatorID}
	pauseSwitch := pause.NewRedisSwitch(rdb, cfg.PauseKey)
	eng := settlement.New(log,
		ledger.New(cfg.MinBetCents, cfg.MaxBetCents),
		settlement.Deps{
			Auth:     auth,
			Pause:    pauseSwitch,
			Guard:    capability.NewEntryGuard(),
			Treasury: tr,
			Oracle:   capability.PseudoOracle{},
		},
		settlement.Config{
			CharityAccount: cfg.CharityAccount,
			BettingWindow:  cfg.BettingWindow,
		},
	)

	// Métricas Prometheus
	betsPlaced := prometheus.NewCounter(prometheus.CounterOpts{Name: "pool_bets_placed_total", Help: "apostas admitidas"})
	claimsPaid := prometheus.NewCounter(prometheus.CounterOpts{Name: "pool_claims_paid_total", Help: "claims pagos"})
	refunds := prometheus.NewCounter(prometheus.CounterOpts{Name: "pool_refunds_total", Help: "refunds de cancelamento"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "pool_operations_rejected_total", Help: "operações rejeitadas por tipo"}, []string{"op"})
	prometheus.MustRegister(betsPlaced, claimsPaid, refunds, rejected)

	api := phttp.NewServer(log, eng,
		repo.NewPostgres(pg),
		tr,
		oddscache.New(rdb, 60*time.Second),
		publ,
		cfg.BettingWindow,
	)
	api.Auth = auth
	api.Pause = pauseSwitch
	api.OnBetPlaced = betsPlaced.Inc
	api.OnClaimPaid = claimsPaid.Inc
	api.OnRefund = refunds.Inc
	api.OnRejected = func(op string) { rejected.WithLabelValues(op).Inc() }

	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health side-car
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})
	defer metricsSrv.Close()

	log.Info("pool-service listening",
		zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)),
		zap.String("operator", cfg.OperatorID),
		zap.String("charity", cfg.CharityAccount),
	)
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
