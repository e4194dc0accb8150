// Package events предоставляет in-memory реализацию шины уведомлений.
package events

import (
	"context"
	"fmt"
	"sync"
)

// Middleware middleware для уведомлений
type Middleware func(ctx context.Context, notification Notification, next func(ctx context.Context, notification Notification) error) error

// InMemoryBus реализация шины уведомлений в памяти
type InMemoryBus struct {
	mu         sync.RWMutex
	handlers   map[string][]Handler
	middleware []Middleware
	stopped    bool
}

// NewInMemoryBus создает новую шину уведомлений
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
	}
}

// WithMiddleware добавляет middleware к шине
func (b *InMemoryBus) WithMiddleware(middleware Middleware) *InMemoryBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware)
	return b
}

// Publish публикует уведомление всем подписчикам его типа.
// Ошибка первого сбойного обработчика прерывает доставку остальным.
func (b *InMemoryBus) Publish(ctx context.Context, notification Notification) error {
	b.mu.RLock()
	if b.stopped {
		b.mu.RUnlock()
		return fmt.Errorf("notification bus is stopped")
	}
	handlers := make([]Handler, len(b.handlers[notification.NotificationType()]))
	copy(handlers, b.handlers[notification.NotificationType()])
	middleware := b.middleware
	b.mu.RUnlock()

	next := func(ctx context.Context, notification Notification) error {
		for _, handler := range handlers {
			if err := handler.Handle(ctx, notification); err != nil {
				return fmt.Errorf("handler for %s failed: %w", notification.NotificationType(), err)
			}
		}
		return nil
	}

	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		prevNext := next
		next = func(ctx context.Context, notification Notification) error {
			return mw(ctx, notification, prevNext)
		}
	}

	return next(ctx, notification)
}

// Subscribe подписывается на тип уведомления
func (b *InMemoryBus) Subscribe(notificationType string, handler Handler) error {
	if notificationType == "" {
		return fmt.Errorf("notification type cannot be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[notificationType] = append(b.handlers[notificationType], handler)
	return nil
}

// Unsubscribe отписывается от типа уведомления
func (b *InMemoryBus) Unsubscribe(notificationType string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[notificationType]
	for i, h := range handlers {
		if h == handler {
			b.handlers[notificationType] = append(handlers[:i], handlers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("handler not subscribed to %s", notificationType)
}

// Shutdown останавливает шину; последующие Publish возвращают ошибку
func (b *InMemoryBus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	return nil
}
