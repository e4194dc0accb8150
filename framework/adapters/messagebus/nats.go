// Package messagebus предоставляет NATS адаптер message bus.
package messagebus

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/akriventsev/automat/framework/core"
	"github.com/akriventsev/automat/framework/metrics"
	"github.com/akriventsev/automat/framework/transport"
)

// NATSConfig конфигурация для NATS адаптера
type NATSConfig struct {
	URL               string
	MaxReconnects     int
	ReconnectWait     time.Duration
	DrainTimeout      time.Duration
	ConnectionTimeout time.Duration
	TLS               *tls.Config
	Token             string
	Username          string
	Password          string
	// Queue группа для балансировки доставки между экземплярами процессора.
	// Очередь гарантирует, что сообщение получит ровно один экземпляр.
	Queue         string
	EnableMetrics bool
}

// Validate проверяет корректность конфигурации
func (c NATSConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("URL cannot be empty")
	}
	if !strings.HasPrefix(c.URL, "nats://") && !strings.HasPrefix(c.URL, "tls://") {
		return fmt.Errorf("URL must start with nats:// or tls://")
	}
	return nil
}

// DefaultNATSConfig возвращает конфигурацию NATS по умолчанию
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:               "nats://localhost:4222",
		MaxReconnects:     10,
		ReconnectWait:     2 * time.Second,
		DrainTimeout:      30 * time.Second,
		ConnectionTimeout: 5 * time.Second,
		Queue:             "automat",
		EnableMetrics:     true,
	}
}

// NATSAdapter реализация MessageBus через NATS
type NATSAdapter struct {
	mu      sync.RWMutex
	config  NATSConfig
	conn    *nats.Conn
	subs    map[string]*nats.Subscription
	metrics *metrics.Metrics
	running bool
}

// NATSAdapterBuilder построитель для NATS адаптера
type NATSAdapterBuilder struct {
	config NATSConfig
}

// NewNATSAdapterBuilder создает новый построитель NATS адаптера
func NewNATSAdapterBuilder() *NATSAdapterBuilder {
	return &NATSAdapterBuilder{
		config: DefaultNATSConfig(),
	}
}

// WithURL устанавливает URL NATS сервера
func (b *NATSAdapterBuilder) WithURL(url string) *NATSAdapterBuilder {
	b.config.URL = url
	return b
}

// WithMaxReconnects устанавливает максимальное количество переподключений
func (b *NATSAdapterBuilder) WithMaxReconnects(maxReconnects int) *NATSAdapterBuilder {
	b.config.MaxReconnects = maxReconnects
	return b
}

// WithReconnectWait устанавливает задержку между переподключениями
func (b *NATSAdapterBuilder) WithReconnectWait(wait time.Duration) *NATSAdapterBuilder {
	b.config.ReconnectWait = wait
	return b
}

// WithDrainTimeout устанавливает таймаут для graceful shutdown
func (b *NATSAdapterBuilder) WithDrainTimeout(timeout time.Duration) *NATSAdapterBuilder {
	b.config.DrainTimeout = timeout
	return b
}

// WithConnectionTimeout устанавливает таймаут подключения
func (b *NATSAdapterBuilder) WithConnectionTimeout(timeout time.Duration) *NATSAdapterBuilder {
	b.config.ConnectionTimeout = timeout
	return b
}

// WithTLS устанавливает TLS конфигурацию
func (b *NATSAdapterBuilder) WithTLS(tls *tls.Config) *NATSAdapterBuilder {
	b.config.TLS = tls
	return b
}

// WithToken устанавливает токен аутентификации
func (b *NATSAdapterBuilder) WithToken(token string) *NATSAdapterBuilder {
	b.config.Token = token
	return b
}

// WithCredentials устанавливает username и password
func (b *NATSAdapterBuilder) WithCredentials(username, password string) *NATSAdapterBuilder {
	b.config.Username = username
	b.config.Password = password
	return b
}

// WithQueue устанавливает queue группу подписок
func (b *NATSAdapterBuilder) WithQueue(queue string) *NATSAdapterBuilder {
	b.config.Queue = queue
	return b
}

// WithMetrics включает/выключает метрики
func (b *NATSAdapterBuilder) WithMetrics(enable bool) *NATSAdapterBuilder {
	b.config.EnableMetrics = enable
	return b
}

// Build создает NATS адаптер
func (b *NATSAdapterBuilder) Build() (*NATSAdapter, error) {
	if err := b.config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid nats config")
	}

	adapter := &NATSAdapter{
		config: b.config,
		subs:   make(map[string]*nats.Subscription),
	}

	if b.config.EnableMetrics {
		var err error
		adapter.metrics, err = metrics.NewMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics: %w", err)
		}
	}

	return adapter, nil
}

// NewNATSAdapter создает NATS адаптер с конфигурацией по умолчанию
func NewNATSAdapter(url string) (*NATSAdapter, error) {
	return NewNATSAdapterBuilder().WithURL(url).Build()
}

// Start подключается к NATS серверу (реализация core.Lifecycle)
func (a *NATSAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	opts := []nats.Option{
		nats.MaxReconnects(a.config.MaxReconnects),
		nats.ReconnectWait(a.config.ReconnectWait),
		nats.Timeout(a.config.ConnectionTimeout),
		nats.DrainTimeout(a.config.DrainTimeout),
	}
	if a.config.TLS != nil {
		opts = append(opts, nats.Secure(a.config.TLS))
	}
	if a.config.Token != "" {
		opts = append(opts, nats.Token(a.config.Token))
	}
	if a.config.Username != "" && a.config.Password != "" {
		opts = append(opts, nats.UserInfo(a.config.Username, a.config.Password))
	}

	conn, err := nats.Connect(a.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	a.conn = conn
	a.running = true
	return nil
}

// Stop дренирует подписки и закрывает соединение (реализация core.Lifecycle)
func (a *NATSAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return nil
	}

	for subject, sub := range a.subs {
		_ = sub.Drain()
		delete(a.subs, subject)
	}
	if a.conn != nil && a.conn.IsConnected() {
		_ = a.conn.Drain()
		a.conn.Close()
	}

	a.running = false
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (a *NATSAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Name возвращает имя компонента (реализация core.Component)
func (a *NATSAdapter) Name() string {
	return "nats-messagebus"
}

// Type возвращает тип компонента (реализация core.Component)
func (a *NATSAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// HealthCheck проверяет соединение с NATS (реализация core.HealthCheckable)
func (a *NATSAdapter) HealthCheck(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.conn == nil || !a.conn.IsConnected() {
		return fmt.Errorf("nats connection is down")
	}
	return nil
}

// Publish публикует сообщение в subject
func (a *NATSAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	a.mu.RLock()
	conn := a.conn
	a.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("nats adapter is not connected")
	}

	start := time.Now()
	msg := nats.NewMsg(subject)
	msg.Data = data
	for key, value := range headers {
		msg.Header.Set(key, value)
	}

	err := conn.PublishMsg(msg)
	if a.metrics != nil {
		a.metrics.RecordTransport(ctx, "nats", time.Since(start), err == nil)
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe подписывается на subject. При непустой queue-группе
// используется QueueSubscribe для балансировки между экземплярами.
func (a *NATSAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return fmt.Errorf("nats adapter is not connected")
	}

	callback := func(msg *nats.Msg) {
		incoming := &transport.Message{
			Subject: msg.Subject,
			Data:    msg.Data,
			Headers: make(map[string]string),
		}
		for key, values := range msg.Header {
			if len(values) > 0 {
				incoming.Headers[key] = values[0]
			}
		}
		_ = handler(ctx, incoming)
	}

	var sub *nats.Subscription
	var err error
	if a.config.Queue != "" {
		sub, err = a.conn.QueueSubscribe(subject, a.config.Queue, callback)
	} else {
		sub, err = a.conn.Subscribe(subject, callback)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	a.subs[subject] = sub
	return nil
}

// Unsubscribe отписывается от subject
func (a *NATSAdapter) Unsubscribe(subject string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	sub, exists := a.subs[subject]
	if !exists {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", subject, err)
	}
	delete(a.subs, subject)
	return nil
}
