package relay

import (
	"context"
	"strconv"
)

// KeyedPublisher is satisfied by messaging.KafkaProducer.
type KeyedPublisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// QueuePublisher is satisfied by messaging.RabbitMQClient.
type QueuePublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// KafkaSink keys messages by notification id.
type KafkaSink struct {
	producer KeyedPublisher
}

func NewKafkaSink(p KeyedPublisher) *KafkaSink {
	return &KafkaSink{producer: p}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Forward(ctx context.Context, msg *Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	return s.producer.Publish(ctx, strconv.FormatInt(msg.NotificationID, 10), data)
}

type QueueSink struct {
	publisher QueuePublisher
	queue     string
}

func NewQueueSink(p QueuePublisher, queue string) *QueueSink {
	return &QueueSink{publisher: p, queue: queue}
}

func (s *QueueSink) Name() string { return "rabbitmq" }

func (s *QueueSink) Forward(ctx context.Context, msg *Message) error {
	data, err := encode(msg)
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, s.queue, data)
}
