// Package events предоставляет мост уведомлений жизненного цикла саг
// во внешний message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/akriventsev/automat/framework/core"
	"github.com/akriventsev/automat/framework/events"
	"github.com/akriventsev/automat/framework/saga"
	"github.com/akriventsev/automat/framework/transport"
)

// BridgeConfig конфигурация моста уведомлений
type BridgeConfig struct {
	// SubjectPrefix префикс subject'ов исходящих уведомлений,
	// например "saga.events" -> "saga.events.SagaCompleted"
	SubjectPrefix string
}

// Validate проверяет корректность конфигурации
func (c BridgeConfig) Validate() error {
	if c.SubjectPrefix == "" {
		return fmt.Errorf("subject prefix cannot be empty")
	}
	return nil
}

// DefaultBridgeConfig возвращает конфигурацию моста по умолчанию
func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		SubjectPrefix: "saga.events",
	}
}

// busNotification wire-представление уведомления жизненного цикла
type busNotification struct {
	NotificationID   string      `json:"notification_id"`
	NotificationType string      `json:"notification_type"`
	CorrelationID    string      `json:"correlation_id"`
	OccurredAt       time.Time   `json:"occurred_at"`
	Details          interface{} `json:"details,omitempty"`
}

// Bridge подписывается на внутреннюю шину уведомлений и ретранслирует
// их во внешний message bus. Потребители (аудит, проекции, алертинг)
// получают события жизненного цикла без доступа к процессу саги.
type Bridge struct {
	config    BridgeConfig
	bus       events.Bus
	publisher transport.Publisher
	handlers  map[string]*events.HandlerFunc
	running   bool
}

// NewBridge создает мост уведомлений
func NewBridge(config BridgeConfig, bus events.Bus, publisher transport.Publisher) (*Bridge, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid bridge config")
	}
	return &Bridge{
		config:    config,
		bus:       bus,
		publisher: publisher,
		handlers:  make(map[string]*events.HandlerFunc),
	}, nil
}

// Name возвращает имя компонента (реализация core.Component)
func (b *Bridge) Name() string {
	return "notification-bridge"
}

// Type возвращает тип компонента (реализация core.Component)
func (b *Bridge) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Start подписывает мост на все типы уведомлений саг (реализация core.Lifecycle)
func (b *Bridge) Start(ctx context.Context) error {
	if b.running {
		return nil
	}

	notificationTypes := []string{
		saga.NotificationInstanceCreated,
		saga.NotificationTransitioned,
		saga.NotificationCompleted,
		saga.NotificationFaulted,
		saga.NotificationEventUnhandled,
		saga.NotificationUnroutable,
	}
	for _, kind := range notificationTypes {
		handler := events.NewHandlerFunc(kind, b.forward)
		if err := b.bus.Subscribe(kind, handler); err != nil {
			return fmt.Errorf("failed to subscribe bridge to %s: %w", kind, err)
		}
		b.handlers[kind] = handler
	}

	b.running = true
	return nil
}

// Stop отписывает мост от шины уведомлений (реализация core.Lifecycle)
func (b *Bridge) Stop(ctx context.Context) error {
	if !b.running {
		return nil
	}
	for kind, handler := range b.handlers {
		_ = b.bus.Unsubscribe(kind, handler)
		delete(b.handlers, kind)
	}
	b.running = false
	return nil
}

// IsRunning проверяет, запущен ли мост (реализация core.Lifecycle)
func (b *Bridge) IsRunning() bool {
	return b.running
}

// forward ретранслирует одно уведомление во внешний bus
func (b *Bridge) forward(ctx context.Context, notification events.Notification) error {
	payload := busNotification{
		NotificationID:   notification.NotificationID(),
		NotificationType: notification.NotificationType(),
		CorrelationID:    notification.CorrelationID(),
		OccurredAt:       notification.OccurredAt(),
		Details:          notification,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification %s: %w", notification.NotificationID(), err)
	}

	subject := fmt.Sprintf("%s.%s", b.config.SubjectPrefix, notification.NotificationType())
	headers := map[string]string{
		"notification_type":           notification.NotificationType(),
		transport.HeaderCorrelationID: notification.CorrelationID(),
	}
	return b.publisher.Publish(ctx, subject, data, headers)
}
