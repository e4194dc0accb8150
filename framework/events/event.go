// Package events предоставляет шину уведомлений о жизненном цикле саг.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Notification уведомление о жизненном цикле экземпляра саги
type Notification interface {
	// NotificationID возвращает уникальный идентификатор уведомления
	NotificationID() string
	// NotificationType возвращает тип уведомления
	NotificationType() string
	// OccurredAt возвращает время возникновения
	OccurredAt() time.Time
	// CorrelationID возвращает correlation ID экземпляра
	CorrelationID() string
}

// BaseNotification базовая реализация уведомления
type BaseNotification struct {
	id            string
	kind          string
	occurredAt    time.Time
	correlationID string
}

// NewBaseNotification создает новое базовое уведомление
func NewBaseNotification(kind, correlationID string) *BaseNotification {
	return &BaseNotification{
		id:            uuid.New().String(),
		kind:          kind,
		occurredAt:    time.Now(),
		correlationID: correlationID,
	}
}

func (n *BaseNotification) NotificationID() string {
	return n.id
}

func (n *BaseNotification) NotificationType() string {
	return n.kind
}

func (n *BaseNotification) OccurredAt() time.Time {
	return n.occurredAt
}

func (n *BaseNotification) CorrelationID() string {
	return n.correlationID
}

// Handler обработчик уведомлений
type Handler interface {
	// Handle обрабатывает уведомление
	Handle(ctx context.Context, notification Notification) error
	// NotificationType возвращает тип, который обрабатывает этот handler
	NotificationType() string
}

// HandlerFunc адаптер функции к интерфейсу Handler
type HandlerFunc struct {
	kind string
	fn   func(ctx context.Context, notification Notification) error
}

// NewHandlerFunc создает обработчик из функции
func NewHandlerFunc(notificationType string, fn func(ctx context.Context, notification Notification) error) *HandlerFunc {
	return &HandlerFunc{kind: notificationType, fn: fn}
}

func (h *HandlerFunc) Handle(ctx context.Context, notification Notification) error {
	return h.fn(ctx, notification)
}

func (h *HandlerFunc) NotificationType() string {
	return h.kind
}

// Publisher публикатор уведомлений
type Publisher interface {
	// Publish публикует уведомление
	Publish(ctx context.Context, notification Notification) error
}

// Subscriber подписчик на уведомления
type Subscriber interface {
	// Subscribe подписывается на тип уведомления
	Subscribe(notificationType string, handler Handler) error
	// Unsubscribe отписывается от типа уведомления
	Unsubscribe(notificationType string, handler Handler) error
}

// Bus объединяет Publisher и Subscriber
type Bus interface {
	Publisher
	Subscriber
}
