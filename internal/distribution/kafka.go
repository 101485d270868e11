package distribution

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaSink publishes feed events to a kafka topic for downstream
// consumers that need durability rather than latency.
type KafkaSink struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaSink creates a sink writing to topic on the given brokers.
func NewKafkaSink(brokers []string, topic string, log *zap.Logger) *KafkaSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
		log: log,
	}
}

// Publish serializes the payload and writes it keyed by symbol, so one
// instrument's events stay ordered within a partition.
func (k *KafkaSink) Publish(ctx context.Context, symbol string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(symbol),
		Value: data,
	})
	if err != nil {
		k.log.Warn("kafka publish failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return err
}

// Close flushes and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
