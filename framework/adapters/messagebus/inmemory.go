// Package messagebus предоставляет адаптеры message bus для доставки
// событий саг через различные брокеры.
package messagebus

import (
	"context"
	"strings"
	"sync"

	"github.com/akriventsev/automat/framework/core"
	"github.com/akriventsev/automat/framework/transport"
)

// InMemoryConfig конфигурация для InMemory адаптера
type InMemoryConfig struct {
	// Ordered включает синхронную доставку в порядке публикации.
	// Сагам одного correlation ID нужна упорядоченная доставка,
	// поэтому по умолчанию включено.
	Ordered bool
}

// DefaultInMemoryConfig возвращает конфигурацию InMemory по умолчанию
func DefaultInMemoryConfig() InMemoryConfig {
	return InMemoryConfig{
		Ordered: true,
	}
}

// InMemoryAdapter реализация MessageBus в памяти.
// Используется в тестах и однопроцессных примерах; поддерживает
// NATS-style wildcard подписки (* и >).
type InMemoryAdapter struct {
	mu          sync.RWMutex
	config      InMemoryConfig
	subscribers map[string][]transport.MessageHandler
	running     bool
}

// NewInMemoryAdapter создает новый InMemory адаптер
func NewInMemoryAdapter(config InMemoryConfig) *InMemoryAdapter {
	return &InMemoryAdapter{
		config:      config,
		subscribers: make(map[string][]transport.MessageHandler),
	}
}

// Start запускает адаптер (реализация core.Lifecycle)
func (a *InMemoryAdapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = true
	return nil
}

// Stop останавливает адаптер (реализация core.Lifecycle)
func (a *InMemoryAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	return nil
}

// IsRunning проверяет, запущен ли адаптер (реализация core.Lifecycle)
func (a *InMemoryAdapter) IsRunning() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running
}

// Name возвращает имя компонента (реализация core.Component)
func (a *InMemoryAdapter) Name() string {
	return "inmemory-messagebus"
}

// Type возвращает тип компонента (реализация core.Component)
func (a *InMemoryAdapter) Type() core.ComponentType {
	return core.ComponentTypeAdapter
}

// Publish доставляет сообщение всем подписчикам subject.
// В ordered-режиме обработчики вызываются синхронно; ошибка первого
// сбойного обработчика возвращается публикатору.
func (a *InMemoryAdapter) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	a.mu.RLock()
	var handlers []transport.MessageHandler
	for pattern, subscribed := range a.subscribers {
		if matchSubject(subject, pattern) {
			handlers = append(handlers, subscribed...)
		}
	}
	a.mu.RUnlock()

	msg := &transport.Message{
		Subject: subject,
		Data:    data,
		Headers: headers,
	}

	for _, handler := range handlers {
		if a.config.Ordered {
			if err := handler(ctx, msg); err != nil {
				return err
			}
		} else {
			go func(h transport.MessageHandler) {
				_ = h(ctx, msg)
			}(handler)
		}
	}
	return nil
}

// Subscribe подписывается на subject или wildcard-паттерн
func (a *InMemoryAdapter) Subscribe(ctx context.Context, subject string, handler transport.MessageHandler) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subscribers[subject] = append(a.subscribers[subject], handler)
	return nil
}

// Unsubscribe отписывается от subject
func (a *InMemoryAdapter) Unsubscribe(subject string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.subscribers, subject)
	return nil
}

// SubscriberCount возвращает количество подписчиков subject
func (a *InMemoryAdapter) SubscriberCount(subject string) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.subscribers[subject])
}

// matchSubject проверяет соответствие subject паттерну подписки.
// Поддерживает NATS-style wildcards: * (один токен) и > (хвост).
func matchSubject(subject, pattern string) bool {
	if subject == pattern {
		return true
	}

	subjectParts := strings.Split(subject, ".")
	patternParts := strings.Split(pattern, ".")

	for i, part := range patternParts {
		if part == ">" {
			return true
		}
		if i >= len(subjectParts) {
			return false
		}
		if part == "*" {
			continue
		}
		if part != subjectParts[i] {
			return false
		}
	}
	return len(patternParts) == len(subjectParts)
}
