// Package transport предоставляет контекст обработки входящего сообщения.
package transport

import (
	"context"

	"github.com/akriventsev/automat/framework/container"
	"github.com/akriventsev/automat/framework/saga"
)

// messageContext реализация saga.MessageContext поверх message bus.
// Создается на каждое входящее сообщение; resolver — дочерний scope
// контейнера приемника, живущий в пределах одной обработки.
type messageContext struct {
	event     saga.Event
	publisher Publisher
	codec     *Codec
	resolver  *container.Container
	scheduler saga.TimeoutScheduler
}

// NewMessageContext создает контекст обработки одного сообщения
func NewMessageContext(
	event saga.Event,
	publisher Publisher,
	codec *Codec,
	resolver *container.Container,
	scheduler saga.TimeoutScheduler,
) saga.MessageContext {
	return &messageContext{
		event:     event,
		publisher: publisher,
		codec:     codec,
		resolver:  resolver,
		scheduler: scheduler,
	}
}

// Event возвращает обрабатываемое событие
func (m *messageContext) Event() saga.Event {
	return m.event
}

// Publish публикует ответное событие в указанный subject.
// Имя исходящего события совпадает с subject; payload кодируется конвертом.
func (m *messageContext) Publish(ctx context.Context, subject string, payload interface{}, headers map[string]string) error {
	outgoing := saga.NewEvent(subject, payload)
	msg, err := m.codec.Encode(subject, outgoing)
	if err != nil {
		return err
	}
	for key, value := range headers {
		msg.Headers[key] = value
	}
	return m.publisher.Publish(ctx, msg.Subject, msg.Data, msg.Headers)
}

// Resolver возвращает scoped-контейнер зависимостей обработки
func (m *messageContext) Resolver() *container.Container {
	return m.resolver
}

// Scheduler возвращает планировщик таймаутов
func (m *messageContext) Scheduler() saga.TimeoutScheduler {
	return m.scheduler
}
