package publish

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/sirupsen/logrus"

	"github.com/ayusman/romscope/internal/config"
)

// KafkaPublisher produces reports to a Kafka topic and waits for each
// delivery report.
type KafkaPublisher struct {
	producer    *kafka.Producer
	topic       string
	log         logrus.FieldLogger
	maxRetries  int
	baseBackoff time.Duration
}

// ConfigMap builds the producer configuration from cfg.
func ConfigMap(cfg config.Kafka) *kafka.ConfigMap {
	cm := &kafka.ConfigMap{
		"bootstrap.servers":   cfg.BootstrapServers,
		"security.protocol":   cfg.SecurityProtocol,
		"acks":                cfg.Acks,
		"compression.type":    cfg.CompressionType,
		"enable.idempotence":  true,
		"request.timeout.ms":  30000,
		"delivery.timeout.ms": 120000,
	}
	if cfg.SASLMechanism != "" {
		cm.SetKey("sasl.mechanism", cfg.SASLMechanism)
		cm.SetKey("sasl.username", cfg.SASLUsername)
		cm.SetKey("sasl.password", cfg.SASLPassword)
	}
	return cm
}

// NewKafkaPublisher creates a producer for cfg.Topic.
func NewKafkaPublisher(cfg config.Kafka, log logrus.FieldLogger) (*KafkaPublisher, error) {
	p, err := kafka.NewProducer(ConfigMap(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.WithFields(logrus.Fields{
		"topic":   cfg.Topic,
		"servers": cfg.BootstrapServers,
	}).Info("kafka publisher initialized")

	return &KafkaPublisher{
		producer:    p,
		topic:       cfg.Topic,
		log:         log,
		maxRetries:  3,
		baseBackoff: 100 * time.Millisecond,
	}, nil
}

// New returns a KafkaPublisher when brokers are configured and Nop otherwise.
func New(cfg config.Kafka, log logrus.FieldLogger) (Publisher, error) {
	if cfg.BootstrapServers == "" {
		return Nop{}, nil
	}
	return NewKafkaPublisher(cfg, log)
}

// Publish sends env and blocks until the broker acknowledges it or ctx ends.
func (kp *KafkaPublisher) Publish(ctx context.Context, env Envelope) error {
	msg, err := NewMessage(env)
	if err != nil {
		return err
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &kp.topic,
			Partition: kafka.PartitionAny,
		},
		Key:     []byte(msg.Key),
		Value:   msg.Value,
		Headers: headers(msg.Headers),
	}

	delivery := make(chan kafka.Event, 1)

	var lastErr error
	for attempt := 0; attempt <= kp.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := kp.baseBackoff * time.Duration(1<<uint(attempt-1))
			kp.log.Warnf("retry %d/%d after %v: %v", attempt, kp.maxRetries, backoff, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := kp.producer.Produce(message, delivery); err != nil {
			lastErr = err
			if kafkaErr, ok := err.(kafka.Error); ok && !kafkaErr.IsRetriable() {
				return fmt.Errorf("non-retriable error: %w", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-delivery:
			m, ok := e.(*kafka.Message)
			if !ok {
				lastErr = fmt.Errorf("unexpected delivery event %v", e)
				continue
			}
			if m.TopicPartition.Error != nil {
				lastErr = m.TopicPartition.Error
				continue
			}
			kp.log.WithFields(logrus.Fields{
				"analysis_id": env.AnalysisID,
				"partition":   m.TopicPartition.Partition,
				"offset":      m.TopicPartition.Offset,
			}).Debug("report delivered")
			return nil
		}
	}

	return fmt.Errorf("failed after %d retries: %w", kp.maxRetries, lastErr)
}

// Close flushes pending messages and shuts the producer down.
func (kp *KafkaPublisher) Close() error {
	if remaining := kp.producer.Flush(int((10 * time.Second).Milliseconds())); remaining > 0 {
		kp.log.Warnf("%d messages still in queue after flush timeout", remaining)
	}
	kp.producer.Close()
	return nil
}

func headers(m map[string]string) []kafka.Header {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kafka.Header, 0, len(keys))
	for _, k := range keys {
		out = append(out, kafka.Header{Key: k, Value: []byte(m[k])})
	}
	return out
}
