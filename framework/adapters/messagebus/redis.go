// Package messagebus предоставляет Redis Streams адаптер message bus.
package messagebus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/akriventsev/automat/framework/core"
	"github.com/akriventsev/automat/framework/transport"
)

// RedisConfig конфигурация для Redis адаптера
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	PoolSize      int
	MaxRetries    int
	StreamMaxLen  int64 // максимальная длина stream (0 = без ограничений)
	ConsumerGroup string
	BlockTimeout  time.Duration
}

// Validate проверяет корректность конфигурации
func (c RedisConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if c.ConsumerGroup == "" {
		return fmt.Errorf("consumer group cannot be empty")
	}
	return nil
}

// DefaultRedisConfig возвращает конфигурацию Redis по умолчанию
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		DB:            0,
		PoolSize:      10,
		MaxRetries:    3,
		StreamMaxLen:  10000,
		ConsumerGroup: "automat-group",
		BlockTimeout:  5 * time.Second,
	}
}

// RedisAdapter реализация MessageBus через Redis Streams.
// Каждый subject отображается в отдельный stream; подписка читает
// через consumer group с подтверждением после успешной обработки.
type RedisAdapter struct {
	mu        sync.RWMutex
	config    RedisConfig
	client    *redis.Client
	cancels   map[string]context.CancelFunc
	consumers map[string]string // stream -> consumer name
	running   bool
}

// NewRedisAdapter создает новый Redis адаптер
func NewRedisAdapter(config RedisConfig) (*RedisAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid redis config")
	}

	return &RedisAdapter{
		config:    config,
		cancels:   make(map[string]context.CancelFunc),
		consumers: make(map[string]string),
	}, nil
}

// Start подключается к Redis (реализация core.Lifecycle)
func (a *RedisAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:       a.config.Addr,
		Password:   a.config.Password,
		DB:         a.config.DB,
		PoolSize:   a.config.PoolSize,
		MaxRetries: a.config.MaxRetries,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.client = client
	a.running = true
	return nil
}

// Stop останавливает consumers и закрывает клиент (реализация core.Lifecycle)
func (a *RedisAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}

	for stream, cancel := range a.cancels {
		cancel()
		delete(a.cancels, stream)
	}
	if a.client != nil {
		_ = a.client.Close()
	}

	a.running = false
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (a *RedisAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Name возвращает имя компонента (реализация core.Component)
func (a *RedisAdapter) Name() string {
	return "redis-messagebus"
}

// Type возвращает тип компонента (реализация core.Component)
func (a *RedisAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет соединение с Redis (реализация core.HealthCheckable)
func (a *RedisAdapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("redis adapter is not connected")
	}
	return client.Ping(ctx).Err()
}

// Publish публикует сообщение в stream через XADD
func (a *RedisAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		return fmt.Errorf("redis adapter is not connected")
	}

	values := map[string]interface{}{
		"data": string(data),
	}
	if len(headers) > 0 {
		headersJSON, err := json.Marshal(headers)
		if err != nil {
			return fmt.Errorf("failed to marshal headers: %w", err)
		}
		values["headers"] = string(headersJSON)
	}

	args := &redis.XAddArgs{
		Stream: streamName(subject),
		Values: values,
	}
	if a.config.StreamMaxLen > 0 {
		args.MaxLen = a.config.StreamMaxLen
		args.Approx = true
	}

	if err := client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe подписывается на stream через consumer group (XREADGROUP).
// Сообщение подтверждается (XACK) только после успешной обработки.
func (a *RedisAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	a.mu.Lock()
	client := a.client
	a.mu.Unlock()
	if client == nil {
		return fmt.Errorf("redis adapter is not connected")
	}

	stream := streamName(subject)
	consumer := fmt.Sprintf("consumer-%d", time.Now().UnixNano())

	err := client.XGroupCreateMkStream(ctx, stream, a.config.ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancels[stream] = cancel
	a.consumers[stream] = consumer
	a.mu.Unlock()

	go a.consume(consumeCtx, stream, subject, consumer, handler)
	return nil
}

// consume читает сообщения stream до отмены контекста
func (a *RedisAdapter) consume(ctx context.Context, stream, subject, consumer string, handler transport.MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := a.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    a.config.ConsumerGroup,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    10,
			Block:    a.config.BlockTimeout,
		}).Result()
		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			continue
		}

		for _, streamResult := range result {
			for _, entry := range streamResult.Messages {
				msg := decodeStreamEntry(subject, entry)
				if err := handler(ctx, msg); err == nil {
					_ = a.client.XAck(ctx, stream, a.config.ConsumerGroup, entry.ID).Err()
				}
			}
		}
	}
}

// Unsubscribe отписывается от stream
func (a *RedisAdapter) Unsubscribe(subject string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	stream := streamName(subject)
	if cancel, exists := a.cancels[stream]; exists {
		cancel()
		delete(a.cancels, stream)
	}
	delete(a.consumers, stream)
	return nil
}

// streamName отображает subject в имя Redis stream
func streamName(subject string) string {
	return fmt.Sprintf("stream:%s", subject)
}

// decodeStreamEntry восстанавливает сообщение из записи stream
func decodeStreamEntry(subject string, entry redis.XMessage) *transport.Message {
	msg := &transport.Message{
		Subject: subject,
		Headers: make(map[string]string),
	}
	if data, ok := entry.Values["data"].(string); ok {
		msg.Data = []byte(data)
	}
	if headersJSON, ok := entry.Values["headers"].(string); ok {
		_ = json.Unmarshal([]byte(headersJSON), &msg.Headers)
	}
	return msg
}
