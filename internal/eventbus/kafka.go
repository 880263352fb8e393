package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/homesapp/rentals/internal/event"
)

// producer is the part of *kgo.Client the forwarder uses.
type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaForwarder is a bus subscriber that forwards every domain event to a
// Kafka topic. Records are keyed by the subject entity so that events about
// one contract or payment stay ordered within a partition.
type KafkaForwarder struct {
	client producer
	topic  string
	log    *zap.Logger
}

// NewKafkaForwarder connects to brokers and produces to topic.
func NewKafkaForwarder(brokers []string, topic, clientID string, log *zap.Logger) (*KafkaForwarder, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ClientID(clientID),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: creating client: %w", err)
	}
	return newKafkaForwarder(cl, topic, log), nil
}

func newKafkaForwarder(p producer, topic string, log *zap.Logger) *KafkaForwarder {
	return &KafkaForwarder{client: p, topic: topic, log: log.Named("kafka")}
}

// HandleEvent produces evt synchronously.
func (k *KafkaForwarder) HandleEvent(ctx context.Context, evt event.DomainEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka: encoding %s: %w", evt.ID, err)
	}
	rec := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(subjectKey(evt)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(evt.EventType)},
			{Key: "event-id", Value: []byte(evt.ID)},
		},
	}
	if evt.CorrelationID != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: "correlation-id", Value: []byte(evt.CorrelationID)})
	}
	if err := k.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka: producing %s: %w", evt.EventType, err)
	}
	k.log.Debug("event forwarded", zap.String("type", evt.EventType), zap.String("key", string(rec.Key)))
	return nil
}

// Close flushes and closes the client.
func (k *KafkaForwarder) Close() { k.client.Close() }

func subjectKey(evt event.DomainEvent) string {
	for _, ref := range evt.AffectedEntities {
		if ref.Role == "subject" {
			return ref.EntityType + ":" + ref.EntityID
		}
	}
	return evt.ID
}
