// Package saga предоставляет определения событий, запускающих переходы саги.
package saga

import (
	"time"
)

// Event представляет входящее событие саги.
// События различаются по строковому имени (тегу), а не по runtime-типу payload.
type Event interface {
	// Name возвращает имя (тег) события
	Name() string
	// Payload возвращает декодированные данные события
	Payload() interface{}
	// Timestamp возвращает время создания события
	Timestamp() time.Time
}

// EventMetadata метаданные события
type EventMetadata map[string]string

// Get получает значение метаданных
func (m EventMetadata) Get(key string) (string, bool) {
	val, ok := m[key]
	return val, ok
}

// Set устанавливает значение метаданных
func (m EventMetadata) Set(key, value string) {
	m[key] = value
}

// BaseEvent базовая реализация события
type BaseEvent struct {
	name      string
	payload   interface{}
	timestamp time.Time
	metadata  EventMetadata
}

// NewEvent создает новое событие
func NewEvent(name string, payload interface{}) *BaseEvent {
	return &BaseEvent{
		name:      name,
		payload:   payload,
		timestamp: time.Now(),
		metadata:  make(EventMetadata),
	}
}

// WithMetadata добавляет метаданные к событию
func (e *BaseEvent) WithMetadata(key, value string) *BaseEvent {
	e.metadata.Set(key, value)
	return e
}

// WithTimestamp устанавливает время события (для восстановления из транспорта)
func (e *BaseEvent) WithTimestamp(ts time.Time) *BaseEvent {
	e.timestamp = ts
	return e
}

func (e *BaseEvent) Name() string {
	return e.name
}

func (e *BaseEvent) Payload() interface{} {
	return e.payload
}

func (e *BaseEvent) Timestamp() time.Time {
	return e.timestamp
}

// Metadata возвращает метаданные события
func (e *BaseEvent) Metadata() EventMetadata {
	return e.metadata
}

// Correlatable payload, который сам сообщает свой correlation ID.
// Используется как источник корреляции по умолчанию, когда явный
// экстрактор для типа события не зарегистрирован.
type Correlatable interface {
	CorrelationID() string
}
