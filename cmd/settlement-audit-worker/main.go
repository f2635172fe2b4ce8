package main

import (
	"context"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/parimutuel/pool-engine/internal/audit/consumer"
	"github.com/parimutuel/pool-engine/internal/audit/pubsub"
	"github.com/parimutuel/pool-engine/internal/audit/repository"
	"github.com/parimutuel/pool-engine/internal/pool-service/oddscache"
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

	// Inicializa dependências: Postgres e Redis
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	repo := repository.NewPostgresRepo(pg)
	rcache := oddscache.New(rdb, 60*time.Second)
	feed := pubsub.NewRedisBroadcaster(rdb)

	// Métricas Prometheus por tópico consumido
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "audit_messages_consumed_total", Help: "mensagens consumidas"}, []string{"topic"})
	audited := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "audit_entries_written_total", Help: "entradas gravadas"}, []string{"topic"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "audit_errors_total", Help: "erros por estágio"}, []string{"topic", "stage"})
	prometheus.MustRegister(consumed, audited, errorsBy)

	dlq := skafka.NewWriter(cfg.KafkaBrokers, cfg.TopicAuditDLQ)
	defer dlq.Close()

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	topics := []string{cfg.TopicBetPlaced, cfg.TopicEventSettled, cfg.TopicWinningsClaimed, cfg.TopicEventCreated}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// metrics/health side-car
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})
	defer metricsSrv.Close()

	log.Info("settlement-audit-worker started", zap.Strings("topics", topics))

	// Um processor por tópico, no mesmo consumer group
	var wg sync.WaitGroup
	for _, topic := range topics {
		reader := skafka.NewReader(brokers, topic, "settlement-audit")
		defer reader.Close()

		proc := &consumer.Processor{
			Log:        log,
			Reader:     reader,
			Topic:      topic,
			Repo:       repo,
			Cache:      rcache,
			Feed:       feed,
			DLQ:        dlq,
			OnConsumed: func() { consumed.WithLabelValues(topic).Inc() },
			OnAudited:  func() { audited.WithLabelValues(topic).Inc() },
			OnError:    func(stage string) { errorsBy.WithLabelValues(topic, stage).Inc() },
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := proc.Run(ctx); err != nil && err != context.Canceled {
				log.Error("processor stopped", zap.String("topic", proc.Topic), zap.Error(err))
			}
		}()
	}

	wg.Wait()
	log.Info("settlement-audit-worker stopped")
}
