package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/parimutuel/pool-engine/internal/odds-feed/ws"
	sharedcache "github.com/parimutuel/pool-engine/internal/shared/cache"
	"github.com/parimutuel/pool-engine/internal/shared/config"
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

	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	// Métricas Prometheus de conexões e broadcast
	wsConnections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "feed_ws_connections",
		Help: "clientes WebSocket conectados",
	})
	wsMessagesSent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "feed_ws_messages_sent_total",
		Help: "mensagens WS enviadas",
	})
	prometheus.MustRegister(wsConnections, wsMessagesSent)

	hub := ws.NewHub(func(r *http.Request) bool { return true })
	hub.OnConnect = func() { wsConnections.Inc() }
	hub.OnDisconnect = func() { wsConnections.Dec() }
	hub.OnBroadcast = func(n int) { wsMessagesSent.Add(float64(n)) }

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// escuta o canal alimentado pelo settlement-audit-worker
	ws.StartRedisSubscriber(ctx, log, rdb, hub)

	// metrics/health side-car
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	defer metricsSrv.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info("odds-feed-service started", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("ws server failed", zap.Error(err))
	}
	log.Info("odds-feed-service stopped")
}
