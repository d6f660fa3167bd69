package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the subset of *kgo.Client the Kafka notifier needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// IdentityCreatedEvent is the record value published for a new identity.
// A downstream mailer consumes it and sends the welcome email.
type IdentityCreatedEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	IdentityID string    `json:"identity_id"`
	Recipient  string    `json:"recipient"`
	OccurredAt time.Time `json:"occurred_at"`
}

const eventIdentityCreated = "identity.created"

// Kafka publishes identity-created events. Records are keyed by identity
// so events for one identity stay ordered within a partition.
type Kafka struct {
	producer Producer
	topic    string
	now      func() time.Time
}

func NewKafka(producer Producer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic, now: time.Now}
}

func (n *Kafka) Notify(ctx context.Context, recipient, identityID string) Result {
	res := Result{Recipient: recipient, IdentityID: identityID, Channel: "kafka"}
	event := IdentityCreatedEvent{
		EventID:    uuid.NewString(),
		Type:       eventIdentityCreated,
		IdentityID: identityID,
		Recipient:  recipient,
		OccurredAt: n.now().UTC(),
	}
	value, err := json.Marshal(event)
	if err != nil {
		res.Err = fmt.Errorf("encode event: %w", err)
		return res
	}
	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(identityID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(eventIdentityCreated)},
		},
	}
	if err := n.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		res.Err = fmt.Errorf("publish %s: %w", eventIdentityCreated, err)
	}
	return res
}

// NewKafkaClient connects a franz-go client that produces to topic by
// default.
func NewKafkaClient(brokers []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}
