package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tally-service/internal/domain"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"
)

// EventPublisher mirrors committed tally events onto a Kafka topic for
// downstream consumers (analytics, long-term archival). The database log is
// authoritative; this mirror is best-effort and failures do not roll back the
// write that produced the event.
type EventPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewEventPublisher(bootstrapServers, topic string) (*EventPublisher, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": bootstrapServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	log.Info("Tally event Kafka producer created successfully")

	return &EventPublisher{producer: p, topic: topic}, nil
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.TallyEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal tally event: %w", err)
	}

	deliveryChan := make(chan kafka.Event, 1)
	defer close(deliveryChan)

	if err := p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.ServantID),
		Value:          payload,
	}, deliveryChan); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}

	select {
	case e := <-deliveryChan:
		msg, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("unexpected event type: %T", e)
		}
		if msg.TopicPartition.Error != nil {
			return fmt.Errorf("delivery failed: %w", msg.TopicPartition.Error)
		}
		return nil
	case <-time.After(10 * time.Second):
		return fmt.Errorf("delivery timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *EventPublisher) Close() {
	log.Info("Closing tally event Kafka producer...")
	p.producer.Flush(15 * 1000)
	p.producer.Close()
}
