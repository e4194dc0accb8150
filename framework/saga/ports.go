// Package saga предоставляет порты внешних коллабораторов движка.
package saga

import (
	"context"
	"time"

	"github.com/akriventsev/automat/framework/container"
)

// Repository порт хранилища экземпляров саг.
//
// Find возвращает (nil, nil), если экземпляр с таким correlation ID
// не существует. Save реализаций, поставляемых с движком, выполняет
// optimistic-concurrency проверку по Version и возвращает ошибку с кодом
// core.ErrVersionConflict при попытке записать устаревшую копию.
type Repository interface {
	// Find находит экземпляр по correlation ID
	Find(ctx context.Context, correlationID string) (*Instance, error)
	// Create создает и сохраняет новый экземпляр в начальном состоянии
	Create(ctx context.Context, correlationID, initialState string, data interface{}) (*Instance, error)
	// Save сохраняет экземпляр
	Save(ctx context.Context, instance *Instance) error
}

// MessageContext контекст обработки одного входящего сообщения.
// Дает обработчикам доступ к декодированному событию, публикации
// ответных сообщений и request-scoped резолверу зависимостей.
type MessageContext interface {
	// Event возвращает декодированное событие сообщения
	Event() Event
	// Publish публикует ответное сообщение в транспорт
	Publish(ctx context.Context, subject string, payload interface{}, headers map[string]string) error
	// Resolver возвращает request-scoped контейнер зависимостей
	Resolver() *container.Container
	// Scheduler возвращает планировщик таймаутов (nil, если не настроен)
	Scheduler() TimeoutScheduler
}

// TimeoutScheduler порт внешнего планировщика таймаутов.
// Движок только отслеживает идентификаторы запрошенных таймаутов
// на экземпляре; доставку таймаут-событий выполняет коллаборатор.
type TimeoutScheduler interface {
	// Schedule планирует доставку события eventName через delay
	Schedule(ctx context.Context, correlationID, eventName string, delay time.Duration) (string, error)
	// Cancel отменяет запланированный таймаут
	Cancel(ctx context.Context, timeoutID string) error
}

// NotFoundHandler вызывается, когда событие не коррелирует ни с одним
// экземпляром и не может начать новую сагу
type NotFoundHandler func(ctx context.Context, event Event)
