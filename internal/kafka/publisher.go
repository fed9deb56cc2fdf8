package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"github.com/veridata/quality-engine/internal/config"
	"github.com/veridata/quality-engine/internal/models"
)

// Publisher emits quality alerts and consistency violations to Kafka.
// Publishing is best effort: a broker failure is logged and surfaced to the
// caller but never takes the quality pipeline down.
type Publisher struct {
	producer        *kafka.Producer
	logger          *zap.Logger
	alertsTopic     string
	violationsTopic string
	timeout         time.Duration
}

// NewPublisher creates a Kafka publisher from configuration
func NewPublisher(cfg config.KafkaConfig, logger *zap.Logger) (*Publisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": strings.Join(cfg.Brokers, ","),
		"acks":              "all",
		"retries":           cfg.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	p := &Publisher{
		producer:        producer,
		logger:          logger,
		alertsTopic:     cfg.AlertsTopic,
		violationsTopic: cfg.ViolationsTopic,
		timeout:         time.Duration(cfg.ProducerTimeout) * time.Second,
	}

	go p.handleDeliveryReports()

	return p, nil
}

// PublishAlert emits a quality alert keyed by metric name
func (p *Publisher) PublishAlert(alert models.DataQualityAlert) error {
	return p.publish(p.alertsTopic, alert.MetricName, alert)
}

// PublishViolation emits a consistency violation keyed by entity id
func (p *Publisher) PublishViolation(violation models.ConsistencyViolation) error {
	return p.publish(p.violationsTopic, violation.EntityID, violation)
}

// ViolationHandler adapts the publisher to the consistency engine's
// handler callback, swallowing errors after logging them
func (p *Publisher) ViolationHandler() func(models.ConsistencyViolation) {
	return func(violation models.ConsistencyViolation) {
		if err := p.PublishViolation(violation); err != nil {
			p.logger.Error("Failed to publish violation",
				zap.String("check", violation.CheckName),
				zap.Error(err))
		}
	}
}

// AlertHandler adapts the publisher to the monitoring engine's alert
// callback
func (p *Publisher) AlertHandler() func(models.DataQualityAlert) {
	return func(alert models.DataQualityAlert) {
		if err := p.PublishAlert(alert); err != nil {
			p.logger.Error("Failed to publish alert",
				zap.String("metric", alert.MetricName),
				zap.Error(err))
		}
	}
}

func (p *Publisher) publish(topic, key string, payload interface{}) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	message := &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:       []byte(key),
		Value:     value,
		Timestamp: time.Now(),
	}

	if err := p.producer.Produce(message, nil); err != nil {
		return fmt.Errorf("failed to produce message to %s: %w", topic, err)
	}

	return nil
}

func (p *Publisher) handleDeliveryReports() {
	for event := range p.producer.Events() {
		switch e := event.(type) {
		case *kafka.Message:
			if e.TopicPartition.Error != nil {
				p.logger.Error("Message delivery failed",
					zap.String("topic", *e.TopicPartition.Topic),
					zap.Error(e.TopicPartition.Error))
			}
		case kafka.Error:
			p.logger.Error("Kafka producer error", zap.Error(e))
		}
	}
}

// Close flushes pending messages and shuts the producer down
func (p *Publisher) Close() {
	remaining := p.producer.Flush(int(p.timeout.Milliseconds()))
	if remaining > 0 {
		p.logger.Warn("Closing with undelivered messages", zap.Int("remaining", remaining))
	}
	p.producer.Close()
}
