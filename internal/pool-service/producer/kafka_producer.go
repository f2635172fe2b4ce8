package producer

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/parimutuel/pool-engine/pkg/contracts/events"
)

// KafkaPublisher publica as notificações do ciclo de vida do pool, um writer
// por tópico.
type KafkaPublisher struct {
	Created *kafka.Writer
	Placed  *kafka.Writer
	Settled *kafka.Writer
	Claimed *kafka.Writer
}

func (p *KafkaPublisher) PublishEventCreated(ctx context.Context, e events.EventCreated) error {
	e.TsUnixMs = time.Now().UnixMilli()
	return writeJSON(ctx, p.Created, e.EventID, e)
}

func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, e events.BetPlaced) error {
	e.TsUnixMs = time.Now().UnixMilli()
	return writeJSON(ctx, p.Placed, e.EventID, e)
}

func (p *KafkaPublisher) PublishEventSettled(ctx context.Context, e events.EventSettled) error {
	e.TsUnixMs = time.Now().UnixMilli()
	return writeJSON(ctx, p.Settled, e.EventID, e)
}

func (p *KafkaPublisher) PublishWinningsClaimed(ctx context.Context, e events.WinningsClaimed) error {
	e.TsUnixMs = time.Now().UnixMilli()
	return writeJSON(ctx, p.Claimed, e.EventID, e)
}

func writeJSON(ctx context.Context, w *kafka.Writer, eventID uint64, payload any) error {
	b, _ := json.Marshal(payload)
	return w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(eventID, 10)),
		Value: b,
	})
}
