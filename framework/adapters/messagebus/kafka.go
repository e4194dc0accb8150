// Package messagebus предоставляет Kafka адаптер message bus.
package messagebus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akriventsev/automat/framework/core"
	"github.com/akriventsev/automat/framework/metrics"
	"github.com/akriventsev/automat/framework/transport"
)

// KafkaConfig конфигурация для Kafka адаптера
type KafkaConfig struct {
	Brokers []string
	// GroupID consumer группа процессора. Один consumer группы получает
	// каждое сообщение партиции, что сериализует обработку по ключу.
	GroupID        string
	Compression    string // none, gzip, snappy, lz4, zstd
	BatchSize      int
	FlushInterval  time.Duration
	RequiredAcks   int // 0, 1, -1 (all)
	MinBytes       int
	MaxBytes       int
	MaxWait        time.Duration
	StartOffset    int64
	CommitInterval time.Duration
	EnableMetrics  bool
}

// Validate проверяет корректность конфигурации
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("brokers cannot be empty")
	}
	for i, broker := range c.Brokers {
		if !strings.Contains(broker, ":") {
			return fmt.Errorf("broker[%d] must be in format host:port", i)
		}
	}
	if c.GroupID == "" {
		return fmt.Errorf("group ID cannot be empty")
	}
	return nil
}

// DefaultKafkaConfig возвращает конфигурацию Kafka по умолчанию
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		Brokers:        []string{"localhost:9092"},
		GroupID:        "automat-group",
		Compression:    "snappy",
		BatchSize:      100,
		FlushInterval:  10 * time.Millisecond,
		RequiredAcks:   -1,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
		EnableMetrics:  true,
	}
}

// KafkaAdapter реализация MessageBus через Kafka.
// Сообщения публикуются с correlation ID в качестве ключа партиции,
// поэтому события одной саги попадают в одну партицию и доставляются
// по порядку.
type KafkaAdapter struct {
	mu      sync.RWMutex
	config  KafkaConfig
	writer  *kafka.Writer
	readers map[string]*kafka.Reader
	cancels map[string]context.CancelFunc
	metrics *metrics.Metrics
	running bool
}

// NewKafkaAdapter создает новый Kafka адаптер
func NewKafkaAdapter(config KafkaConfig) (*KafkaAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid kafka config")
	}

	adapter := &KafkaAdapter{
		config:  config,
		readers: make(map[string]*kafka.Reader),
		cancels: make(map[string]context.CancelFunc),
	}

	if config.EnableMetrics {
		var err error
		adapter.metrics, err = metrics.NewMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	adapter.writer = &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		BatchSize:    config.BatchSize,
		BatchTimeout: config.FlushInterval,
		Compression:  parseCompression(config.Compression),
	}

	return adapter, nil
}

// parseCompression преобразует строку в kafka.Compression
func parseCompression(compression string) kafka.Compression {
	switch compression {
	case "gzip":
		return kafka.Gzip
	case "snappy":
		return kafka.Snappy
	case "lz4":
		return kafka.Lz4
	case "zstd":
		return kafka.Zstd
	default:
		return kafka.Compression(0)
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (a *KafkaAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = true
	return nil
}

// Stop останавливает consumers и закрывает writer (реализация core.Lifecycle)
func (a *KafkaAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}

	for topic, cancel := range a.cancels {
		cancel()
		delete(a.cancels, topic)
	}
	for topic, reader := range a.readers {
		_ = reader.Close()
		delete(a.readers, topic)
	}
	if a.writer != nil {
		_ = a.writer.Close()
	}

	a.running = false
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (a *KafkaAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Name возвращает имя компонента (реализация core.Component)
func (a *KafkaAdapter) Name() string {
	return "kafka-messagebus"
}

// Type возвращает тип компонента (реализация core.Component)
func (a *KafkaAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish публикует сообщение в топик. Заголовок correlation_id,
// проставленный кодеком, используется как ключ партиции.
func (a *KafkaAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	start := time.Now()

	msg := kafka.Message{
		Topic: subject,
		Value: data,
	}
	if key, ok := headers[transport.HeaderCorrelationID]; ok {
		msg.Key = []byte(key)
	}
	for key, value := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
	}

	err := a.writer.WriteMessages(ctx, msg)
	if a.metrics != nil {
		a.metrics.RecordTransport(ctx, "kafka", time.Since(start), err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe подписывается на топик. Offset коммитится только после
// успешной обработки: сбойное сообщение будет доставлено повторно.
func (a *KafkaAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        a.config.Brokers,
		Topic:          subject,
		GroupID:        a.config.GroupID,
		MinBytes:       a.config.MinBytes,
		MaxBytes:       a.config.MaxBytes,
		MaxWait:        a.config.MaxWait,
		StartOffset:    a.config.StartOffset,
		CommitInterval: a.config.CommitInterval,
	})

	consumeCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.readers[subject] = reader
	a.cancels[subject] = cancel
	a.mu.Unlock()

	go func() {
		for {
			msg, err := reader.FetchMessage(consumeCtx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				continue
			}

			incoming := &transport.Message{
				Subject: msg.Topic,
				Data:    msg.Value,
				Headers: make(map[string]string),
			}
			for _, h := range msg.Headers {
				incoming.Headers[h.Key] = string(h.Value)
			}

			if err := handler(consumeCtx, incoming); err == nil {
				_ = reader.CommitMessages(consumeCtx, msg)
			}
		}
	}()

	return nil
}

// Unsubscribe отписывается от топика
func (a *KafkaAdapter) Unsubscribe(subject string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cancel, exists := a.cancels[subject]; exists {
		cancel()
		delete(a.cancels, subject)
	}
	reader, exists := a.readers[subject]
	if !exists {
		return nil
	}
	if err := reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader for %s: %w", subject, err)
	}
	delete(a.readers, subject)
	return nil
}

// PublishDeadLetter публикует сбойное сообщение в DLQ топик
func (a *KafkaAdapter) PublishDeadLetter(ctx context.Context, msg *transport.Message, reason string) error {
	headers := map[string]string{
		"original_topic": msg.Subject,
		"reason":         reason,
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	for key, value := range msg.Headers {
		headers[key] = value
	}
	return a.Publish(ctx, fmt.Sprintf("%s.dlq", msg.Subject), msg.Data, headers)
}
