package consumer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/parimutuel/pool-engine/internal/audit/pubsub"
	"github.com/parimutuel/pool-engine/internal/audit/repository"
	"github.com/parimutuel/pool-engine/internal/pool-service/oddscache"
	skafka "github.com/parimutuel/pool-engine/internal/shared/kafka"
	"github.com/parimutuel/pool-engine/pkg/contracts/events"
	ctopics "github.com/parimutuel/pool-engine/pkg/contracts/topics"
)

// Processor consome as notificações de liquidação do Kafka, grava a trilha de
// auditoria no banco, refresca o cache de odds e repassa as atualizações ao
// canal Pub/Sub que alimenta o feed WebSocket. Callbacks de métricas podem
// ser usadas para monitoramento de cada etapa.
type Processor struct {
	Log    *zap.Logger
	Reader *kafka.Reader
	Topic  string
	Repo   *repository.PostgresRepo
	Cache  *oddscache.Cache
	Feed   *pubsub.RedisBroadcaster // opcional; broadcast para o odds-feed
	DLQ    *skafka.Writer           // opcional; mensagens indecodificáveis

	OnConsumed func()       // métricas (counter++)
	OnAudited  func()       // métricas
	OnError    func(string) // métricas por fase
}

// Run inicia o loop principal de consumo e processamento das mensagens Kafka.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka read failed", zap.String("topic", p.Topic), zap.Error(err))
			if p.OnError != nil {
				p.OnError("read")
			}
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		if err := p.processOne(ctx, m.Value); err != nil {
			p.Log.Warn("audit process failed", zap.String("topic", p.Topic), zap.Error(err))
			if p.OnError != nil {
				p.OnError("process")
			}
			if p.DLQ != nil {
				_ = skafka.WriteJSON(ctx, p.DLQ, string(m.Key), m.Value)
			}
			continue
		}

		if p.OnAudited != nil {
			p.OnAudited()
		}
	}
}

// processOne decodifica a mensagem conforme o tópico e grava a entrada de
// auditoria correspondente.
func (p *Processor) processOne(ctx context.Context, value []byte) error {
	switch p.Topic {
	case ctopics.BetPlaced:
		var ev events.BetPlaced
		if err := json.Unmarshal(value, &ev); err != nil {
			return err
		}
		if err := p.Repo.InsertEntry(ctx, ev.EventID, "BET_PLACED", ev.UserID, ev.AmountCents, value); err != nil {
			return err
		}
		// Refresca o cache com as odds que acompanham a aposta
		if p.Cache != nil {
			_ = p.Cache.SetCurrent(ctx, oddscache.Snapshot{
				EventID:     ev.EventID,
				OddsA:       ev.OddsA,
				OddsB:       ev.OddsB,
				TotalACents: ev.TotalACents,
				TotalBCents: ev.TotalBCents,
				UpdatedAtMs: ev.TsUnixMs,
			})
		}
		p.broadcast(ctx, ev.EventID, "BET_PLACED", ev)
		return nil

	case ctopics.WinningsClaimed:
		var ev events.WinningsClaimed
		if err := json.Unmarshal(value, &ev); err != nil {
			return err
		}
		return p.Repo.InsertEntry(ctx, ev.EventID, "WINNINGS_CLAIMED", ev.UserID, ev.UserCents+ev.CharityCents, value)

	case ctopics.EventSettled:
		var ev events.EventSettled
		if err := json.Unmarshal(value, &ev); err != nil {
			return err
		}
		if err := p.Repo.InsertEntry(ctx, ev.EventID, "EVENT_"+ev.Status, "", ev.TotalACents+ev.TotalBCents, value); err != nil {
			return err
		}
		p.broadcast(ctx, ev.EventID, "EVENT_SETTLED", ev)
		return nil

	default:
		var ev events.EventCreated
		if err := json.Unmarshal(value, &ev); err != nil {
			return err
		}
		return p.Repo.InsertEntry(ctx, ev.EventID, "EVENT_CREATED", "", 0, value)
	}
}

// broadcast repassa a atualização ao canal do feed; falha aqui não invalida o
// processamento da mensagem.
func (p *Processor) broadcast(ctx context.Context, eventID uint64, kind string, payload any) {
	if p.Feed == nil {
		return
	}
	msg := pubsub.WSUpdate{
		EventID: strconv.FormatUint(eventID, 10),
		Kind:    kind,
		Payload: payload,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := p.Feed.Publish(ctx, pubsub.ChannelPoolBroadcast, b); err != nil {
		p.Log.Warn("feed broadcast failed", zap.Uint64("eventId", eventID), zap.Error(err))
	}
}
