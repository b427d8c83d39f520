package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/ericc59/polybot-sub002/internal/config"
	"github.com/ericc59/polybot-sub002/internal/copytrade"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RecommendationPublisher publishes recommend-mode fan-outs for the
// notification service.
type RecommendationPublisher struct {
	writer messageWriter
	Topic  string
}

// NewRecommendationPublisher creates a Kafka publisher for recommendations.
func NewRecommendationPublisher(cfg config.Config) *RecommendationPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopicRecommendations,
		RequiredAcks:           kafka.RequireAll,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &RecommendationPublisher{writer: writer, Topic: cfg.KafkaTopicRecommendations}
}

// Notify sends rec keyed by source wallet, so one wallet's recommendations
// stay ordered within a partition.
func (p *RecommendationPublisher) Notify(ctx context.Context, rec copytrade.Recommendation) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal recommendation: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(rec.Event.SourceWallet),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close closes the underlying Kafka writer.
func (p *RecommendationPublisher) Close() error {
	return p.writer.Close()
}
